package util

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
)

// formatEntry renders one entry for text outputs. Fields print in key
// order so log lines diff cleanly.
func formatEntry(entry LogEntry) string {
	var b strings.Builder
	b.WriteString(entry.Timestamp.Format("2006/01/02 15:04:05"))
	b.WriteString(" [")
	b.WriteString(entry.Level)
	b.WriteString("] ")
	b.WriteString(entry.Message)

	if len(entry.Fields) > 0 {
		keys := make([]string, 0, len(entry.Fields))
		for k := range entry.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, entry.Fields[k])
		}
	}
	return b.String()
}

// ConsoleOutput writes entries to a terminal stream, normally stderr.
type ConsoleOutput struct {
	writer io.Writer
	format LogFormat
	mu     sync.Mutex
}

func NewConsoleOutput(writer io.Writer, format LogFormat) Output {
	return &ConsoleOutput{writer: writer, format: format}
}

func (c *ConsoleOutput) Write(entry LogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.format == FormatJSON {
		data, err := sonic.Marshal(entry)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(c.writer, string(data))
		return err
	}
	_, err := fmt.Fprintln(c.writer, formatEntry(entry))
	return err
}

func (c *ConsoleOutput) Close() error {
	return nil
}

// FileOutput appends entries to a log file.
type FileOutput struct {
	file   *os.File
	format LogFormat
	mu     sync.Mutex
}

func NewFileOutput(path string, format LogFormat) (Output, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &FileOutput{file: file, format: format}, nil
}

func (f *FileOutput) Write(entry LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.format == FormatJSON {
		data, err := sonic.Marshal(entry)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(f.file, string(data))
		return err
	}
	_, err := fmt.Fprintln(f.file, formatEntry(entry))
	return err
}

func (f *FileOutput) Close() error {
	return f.file.Close()
}
