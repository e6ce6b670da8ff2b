// SPDX-License-Identifier: AGPL-3.0-only

// Package logging provides the leveled logger used across the application.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// LogLevel is a logging severity
type LogLevel int

// Log levels
const (
	Debug LogLevel = iota
	Info
	Warn
	Error
	Fatal
)

// ParseLevel maps a level name to a LogLevel, defaulting to Info
func ParseLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return Debug
	case "info":
		return Info
	case "warn", "warning":
		return Warn
	case "error":
		return Error
	case "fatal":
		return Fatal
	default:
		return Info
	}
}

func (l LogLevel) charm() log.Level {
	switch l {
	case Debug:
		return log.DebugLevel
	case Warn:
		return log.WarnLevel
	case Error:
		return log.ErrorLevel
	case Fatal:
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

// Options configures a Logger
type Options struct {
	Level  LogLevel
	Output io.Writer
	Prefix string
	// JSON switches to the JSON formatter, used for file output
	JSON bool
}

// Logger is a leveled logger
type Logger struct {
	l    *log.Logger
	file *os.File
}

// New creates a logger writing to opts.Output (stderr when nil)
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	formatter := log.TextFormatter
	if opts.JSON {
		formatter = log.JSONFormatter
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "todolist"
	}
	return &Logger{
		l: log.NewWithOptions(out, log.Options{
			Level:           opts.Level.charm(),
			Formatter:       formatter,
			ReportTimestamp: true,
			Prefix:          prefix,
		}),
	}
}

// FileLogger creates a logger appending JSON lines to path
func FileLogger(path string, level LogLevel) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logger := New(Options{Level: level, Output: f, JSON: true})
	logger.file = f
	return logger, nil
}

// With returns a child logger carrying the given key/value pairs
func (l *Logger) With(keyvals ...interface{}) *Logger {
	return &Logger{l: l.l.With(keyvals...)}
}

// SetLevel changes the minimum level
func (l *Logger) SetLevel(level LogLevel) {
	l.l.SetLevel(level.charm())
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.l.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.l.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.l.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.l.Errorf(format, args...) }

// Printf logs at info level. It lets the logger stand in where a
// Printf-style logger is expected, such as cron's.
func (l *Logger) Printf(format string, args ...interface{}) { l.l.Infof(format, args...) }

// Fatalf logs and exits the process
func (l *Logger) Fatalf(format string, args ...interface{}) { l.l.Fatalf(format, args...) }

// Close releases the log file, if any
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = New(Options{Level: Info})
)

// SetDefaultLogger replaces the process-wide default logger
func SetDefaultLogger(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// GetDefaultLogger returns the process-wide default logger
func GetDefaultLogger() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// Discard returns a logger that drops everything, for tests
func Discard() *Logger {
	return New(Options{Level: Fatal, Output: io.Discard})
}
