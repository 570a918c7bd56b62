package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

var (
	globalLogger = DefaultLogger()
	globalMu     sync.RWMutex
)

// SetGlobal replaces the process-wide logger.
func SetGlobal(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// Global returns the process-wide logger.
func Global() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// Configure builds a stderr logger from config strings and installs it as the
// global logger.
func Configure(level, format string) *Logger {
	l := New(Config{
		Level:     ParseLevel(level),
		Format:    ParseFormat(format),
		Output:    os.Stderr,
		AddCaller: ParseLevel(level) == LevelDebug,
	})
	SetGlobal(l)
	return l
}

// Setup is Configure with an optional log file. When filePath is set, lines
// go to both stderr and the file (opened for append). The returned closer
// releases the file and is never nil.
func Setup(level, format, filePath string) (*Logger, io.Closer, error) {
	if filePath == "" {
		return Configure(level, format), io.NopCloser(nil), nil
	}

	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("logging: create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: open log file: %w", err)
	}

	l := New(Config{
		Level:     ParseLevel(level),
		Format:    ParseFormat(format),
		Output:    io.MultiWriter(os.Stderr, f),
		AddCaller: ParseLevel(level) == LevelDebug,
	})
	SetGlobal(l)
	return l, f, nil
}

// Debugf logs a debug message with fields to the global logger.
func Debugf(msg string, fields Fields) {
	Global().Debugf(msg, fields)
}

// Info logs an info message to the global logger.
func Info(msg string) {
	Global().Info(msg)
}

// Infof logs an info message with fields to the global logger.
func Infof(msg string, fields Fields) {
	Global().Infof(msg, fields)
}

// Warnf logs a warning message with fields to the global logger.
func Warnf(msg string, fields Fields) {
	Global().Warnf(msg, fields)
}

// Errorf logs an error message with fields to the global logger.
func Errorf(msg string, fields Fields) {
	Global().Errorf(msg, fields)
}
