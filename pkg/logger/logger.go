// Package logger provides the logging interface used across the dispatch
// pipeline. The interface is slog-style (message plus key-value pairs) so
// callers can plug in zap, logrus, or slog adapters without the pipeline
// depending on any of them.
package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// LogLevel represents the severity level of a log message.
type LogLevel int

const (
	// Silent suppresses all log output.
	Silent LogLevel = iota + 1
	// Error only logs error messages.
	Error
	// Warn logs warnings and errors.
	Warn
	// Info logs informational messages, warnings, and errors.
	Info
	// Debug logs all messages including debug information.
	Debug
)

// Logger is the interface that wraps the basic logging methods.
type Logger interface {
	// Info logs an informational message with structured key-value pairs.
	Info(msg string, args ...any)
	// Warn logs a warning message with structured key-value pairs.
	Warn(msg string, args ...any)
	// Error logs an error message with structured key-value pairs.
	Error(msg string, args ...any)
	// Debug logs a debug message with structured key-value pairs.
	Debug(msg string, args ...any)
}

// StandardLogger is the default implementation of the Logger interface,
// using the standard log package.
type StandardLogger struct {
	logger *log.Logger
	level  LogLevel
	prefix string
}

// NewStandardLogger creates a new logger with the given writer and configuration.
func NewStandardLogger(writer *log.Logger, level LogLevel, prefix string) Logger {
	return &StandardLogger{
		logger: writer,
		level:  level,
		prefix: prefix,
	}
}

// Info logs an informational message.
func (l *StandardLogger) Info(msg string, args ...any) {
	l.print(Info, "INFO", msg, args)
}

// Warn logs a warning message.
func (l *StandardLogger) Warn(msg string, args ...any) {
	l.print(Warn, "WARN", msg, args)
}

// Error logs an error message.
func (l *StandardLogger) Error(msg string, args ...any) {
	l.print(Error, "ERROR", msg, args)
}

// Debug logs a debug message.
func (l *StandardLogger) Debug(msg string, args ...any) {
	l.print(Debug, "DEBUG", msg, args)
}

func (l *StandardLogger) print(level LogLevel, label, msg string, args []any) {
	if l.level < level {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s", l.prefix, label, msg)
	for i := 0; i < len(args); i += 2 {
		var val any = "(no value)"
		if i+1 < len(args) {
			val = args[i+1]
		}
		fmt.Fprintf(&b, " %v=%v", args[i], val)
	}
	l.logger.Print(b.String())
}

// noopLogger discards all output.
type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) Debug(string, ...any) {}

// Discard is a logger that discards all output.
var Discard Logger = noopLogger{}

// New returns a default logger that writes to stdout.
func New() Logger {
	return NewStandardLogger(log.New(os.Stdout, "", log.LstdFlags), Info, "[dispatch]")
}
