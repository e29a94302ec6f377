package discovery

import (
	"io"
	"os"
	"strings"
	"unicode/utf16"
)

// headerProbeBytes bounds how much of a file is decoded when looking for
// the header block; the header sits in the first few hundred bytes.
const headerProbeBytes = 8 * 1024

// newHeaderReader returns a UTF-8 reader over the leading bytes of the
// file, transparently decoding a UTF-16LE log (BOM FF FE).
func newHeaderReader(file *os.File) io.Reader {
	buf := make([]byte, headerProbeBytes)
	n, err := file.Read(buf)
	if err != nil && err != io.EOF {
		return strings.NewReader("")
	}
	buf = buf[:n]

	if len(buf) >= 2 && buf[0] == 0xFF && buf[1] == 0xFE {
		units := make([]uint16, 0, (len(buf)-2)/2)
		for i := 2; i+1 < len(buf); i += 2 {
			units = append(units, uint16(buf[i])|uint16(buf[i+1])<<8)
		}
		return strings.NewReader(string(utf16.Decode(units)))
	}
	return strings.NewReader(string(buf))
}
