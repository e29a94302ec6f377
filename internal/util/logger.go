package util

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel is the severity threshold of the logger.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// Field is one key-value pair attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

// LogFormat selects the serialization of log entries.
type LogFormat string

const (
	FormatText LogFormat = "text"
	FormatJSON LogFormat = "json"
)

// Output is a log destination.
type Output interface {
	Write(entry LogEntry) error
	Close() error
}

// LogEntry is one structured log record.
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger fans structured entries out to its outputs. Log writes must
// never reach stdout: the terminal belongs to the live table.
type Logger struct {
	level   LogLevel
	outputs []Output
	fields  map[string]interface{}
	mu      sync.RWMutex
}

// NewLogger builds a logger writing to the given file, plus stderr when
// console is set. At least one destination is required.
func NewLogger(levelStr, logFile string, console bool) (*Logger, error) {
	l := &Logger{
		level:  ParseLogLevel(levelStr),
		fields: make(map[string]interface{}),
	}

	if console {
		l.AddOutput(NewConsoleOutput(os.Stderr, FormatText))
	}
	if logFile != "" {
		out, err := NewFileOutput(logFile, FormatText)
		if err != nil {
			return nil, fmt.Errorf("opening log file %s: %w", logFile, err)
		}
		l.AddOutput(out)
	}
	if len(l.outputs) == 0 {
		return nil, fmt.Errorf("no log destination: need a log file or console logging")
	}
	return l, nil
}

// ParseLogLevel maps a level name to its LogLevel, defaulting to info.
func ParseLogLevel(levelStr string) LogLevel {
	switch strings.ToLower(levelStr) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

func levelName(level LogLevel) string {
	switch level {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l *Logger) log(level LogLevel, msg string, fields ...Field) {
	if level < l.level {
		return
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     levelName(level),
		Message:   msg,
	}
	if len(l.fields) > 0 || len(fields) > 0 {
		entry.Fields = make(map[string]interface{}, len(l.fields)+len(fields))
		for k, v := range l.fields {
			entry.Fields[k] = v
		}
		for _, f := range fields {
			entry.Fields[f.Key] = f.Value
		}
	}

	for _, out := range l.outputs {
		if err := out.Write(entry); err != nil {
			fmt.Fprintf(os.Stderr, "log write failed: %v\n", err)
		}
	}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields...) }

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(LevelDebug, fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(LevelInfo, fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(LevelWarn, fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(LevelError, fmt.Sprintf(format, args...))
}

func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.log(LevelFatal, fmt.Sprintf(format, args...))
	l.CloseOutputs()
	os.Exit(1)
}

// With returns a derived logger carrying additional fields.
func (l *Logger) With(fields ...Field) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for _, f := range fields {
		merged[f.Key] = f.Value
	}
	return &Logger{
		level:   l.level,
		outputs: l.outputs,
		fields:  merged,
	}
}

// SetLevel changes the severity threshold.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// AddOutput registers one more destination.
func (l *Logger) AddOutput(output Output) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outputs = append(l.outputs, output)
}

// CloseOutputs flushes and closes every destination.
func (l *Logger) CloseOutputs() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, out := range l.outputs {
		out.Close()
	}
}
