package util

import "sync"

var (
	globalLogger *Logger
	loggerOnce   sync.Once
)

// InitLogger sets up the process-wide logger. The first call wins;
// later calls are no-ops so subcommands can init defensively.
func InitLogger(logLevel, logFile string, console bool) error {
	var err error
	loggerOnce.Do(func() {
		globalLogger, err = NewLogger(logLevel, logFile, console)
	})
	return err
}

// GetLogger returns the global logger, or nil before InitLogger.
func GetLogger() *Logger {
	return globalLogger
}

func LogDebug(msg string) {
	if globalLogger != nil {
		globalLogger.Debug(msg)
	}
}

func LogDebugf(format string, args ...interface{}) {
	if globalLogger != nil {
		globalLogger.Debugf(format, args...)
	}
}

func LogInfo(msg string) {
	if globalLogger != nil {
		globalLogger.Info(msg)
	}
}

func LogInfof(format string, args ...interface{}) {
	if globalLogger != nil {
		globalLogger.Infof(format, args...)
	}
}

func LogWarn(msg string) {
	if globalLogger != nil {
		globalLogger.Warn(msg)
	}
}

func LogWarnf(format string, args ...interface{}) {
	if globalLogger != nil {
		globalLogger.Warnf(format, args...)
	}
}

func LogError(msg string) {
	if globalLogger != nil {
		globalLogger.Error(msg)
	}
}

func LogErrorf(format string, args ...interface{}) {
	if globalLogger != nil {
		globalLogger.Errorf(format, args...)
	}
}
