package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// -----------------------------------------------------------------------------

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarning
	levelError
)

// -----------------------------------------------------------------------------

// Logger provides leveled, component-named logging.
type Logger struct {
	name   string
	level  level
	logger *log.Logger
}

// -----------------------------------------------------------------------------

// NewLogger creates a new Logger instance. logLevel is one of
// DEBUG|INFO|WARNING|ERROR (case-insensitive); anything else means INFO.
func NewLogger(logLevel, name string) *Logger {
	lv := levelInfo
	switch strings.ToUpper(strings.TrimSpace(logLevel)) {
	case "DEBUG":
		lv = levelDebug
	case "WARNING", "WARN":
		lv = levelWarning
	case "ERROR":
		lv = levelError
	}

	return &Logger{
		name:   name,
		level:  lv,
		logger: log.New(os.Stdout, "", log.LstdFlags),
	}
}

// -----------------------------------------------------------------------------

// Debug logs debug messages
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level > levelDebug {
		return
	}
	l.logger.Printf("[%s] DEBUG: %s", l.name, fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

// Info logs informational messages
func (l *Logger) Info(format string, args ...interface{}) {
	if l.level > levelInfo {
		return
	}
	l.logger.Printf("[%s] INFO: %s", l.name, fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

// Warning logs warning messages
func (l *Logger) Warning(format string, args ...interface{}) {
	if l.level > levelWarning {
		return
	}
	l.logger.Printf("[%s] WARNING: %s", l.name, fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.logger.Printf("[%s] ERROR: %s", l.name, fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------

// Critical logs critical errors and exits the application
func (l *Logger) Critical(format string, args ...interface{}) {
	l.logger.Printf("[%s] CRITICAL: %s", l.name, fmt.Sprintf(format, args...))
	os.Exit(1)
}
