package tailer

import (
	"bufio"
	"io"
	"os"
	"strings"
	"unicode/utf16"
)

// Encoding is the detected byte encoding of a log file. The game client
// writes UTF-8 on some platforms and UTF-16LE (with BOM) on others.
type Encoding int

const (
	EncodingUTF8 Encoding = iota
	EncodingUTF16LE
)

func (e Encoding) String() string {
	if e == EncodingUTF16LE {
		return "utf-16le"
	}
	return "utf-8"
}

// Tailer reads newly appended lines from a single log file. It owns the
// file handle and the last-read byte offset; it knows nothing about the
// line format.
type Tailer struct {
	file     *os.File
	position int64
	path     string
	encoding Encoding
}

// Open opens the file and positions the tailer at the current end, so
// only lines appended afterwards are returned. Use Rewind to read from
// the start instead.
func Open(path string) (*Tailer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	encoding, err := detectEncoding(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	return &Tailer{
		file:     file,
		position: info.Size(),
		path:     path,
		encoding: encoding,
	}, nil
}

// detectEncoding checks for a UTF-16LE BOM (FF FE).
func detectEncoding(file *os.File) (Encoding, error) {
	bom := make([]byte, 2)
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return EncodingUTF8, err
	}
	n, err := file.Read(bom)
	if err != nil && err != io.EOF {
		return EncodingUTF8, err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return EncodingUTF8, err
	}
	if n >= 2 && bom[0] == 0xFF && bom[1] == 0xFE {
		return EncodingUTF16LE, nil
	}
	return EncodingUTF8, nil
}

// ReadNewLines returns all complete lines appended since the last read.
func (t *Tailer) ReadNewLines() ([]string, error) {
	if t.encoding == EncodingUTF16LE {
		return t.readUTF16Lines()
	}
	return t.readUTF8Lines()
}

func (t *Tailer) readUTF8Lines() ([]string, error) {
	if _, err := t.file.Seek(t.position, io.SeekStart); err != nil {
		return nil, err
	}

	var lines []string
	reader := bufio.NewReader(t.file)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				// A partial trailing line stays unread until its newline
				// arrives, so a write in progress is never half-parsed.
				break
			}
			return lines, err
		}
		t.position += int64(len(line))
		lines = append(lines, strings.TrimRight(line, "\r\n"))
	}
	return lines, nil
}

func (t *Tailer) readUTF16Lines() ([]string, error) {
	if _, err := t.file.Seek(t.position, io.SeekStart); err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(t.file)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	start := 0
	if t.position == 0 && len(raw) >= 2 && raw[0] == 0xFF && raw[1] == 0xFE {
		start = 2
	}
	// Only consume whole code units; a trailing odd byte waits for its pair.
	usable := (len(raw) - start) / 2 * 2
	units := make([]uint16, 0, usable/2)
	for i := start; i+1 < start+usable; i += 2 {
		units = append(units, uint16(raw[i])|uint16(raw[i+1])<<8)
	}
	t.position += int64(start + usable)

	text := string(utf16.Decode(units))
	// Hold back a partial trailing line until its newline arrives, like
	// the UTF-8 path does.
	if !strings.HasSuffix(text, "\n") {
		cut := strings.LastIndexByte(text, '\n') + 1
		partial := text[cut:]
		t.position -= int64(2 * len(utf16.Encode([]rune(partial))))
		text = text[:cut]
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// Rewind moves the read position back to the start of the file.
func (t *Tailer) Rewind() error {
	t.position = 0
	_, err := t.file.Seek(0, io.SeekStart)
	return err
}

// Position returns the current byte offset.
func (t *Tailer) Position() int64 {
	return t.position
}

func (t *Tailer) Path() string {
	return t.path
}

func (t *Tailer) Encoding() Encoding {
	return t.encoding
}

func (t *Tailer) Close() error {
	return t.file.Close()
}

// ReadAllLines batch-reads the full content of a log file, honoring the
// same encoding detection as tailing. Used by replay's build phase.
func ReadAllLines(path string) ([]string, error) {
	t, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer t.Close()
	if err := t.Rewind(); err != nil {
		return nil, err
	}
	return t.ReadNewLines()
}
