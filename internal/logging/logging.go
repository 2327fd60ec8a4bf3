// Package logging provides the per-run debug log.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RunLogger writes timestamped debug lines for one run. It wraps file-based
// logging with thread-safe access; a zero-value logger is a no-op, which lets
// tests and dry runs skip log plumbing entirely.
type RunLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewRunLogger creates a logger writing to the specified path.
// If the path is empty, returns a no-op logger.
// Creates parent directories if they don't exist.
func NewRunLogger(logPath string) (*RunLogger, error) {
	if logPath == "" {
		return &RunLogger{}, nil
	}

	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logger := &RunLogger{file: f}
	logger.Log("=== Run log started at %s ===", time.Now().Format(time.RFC3339))
	return logger, nil
}

// NewRunLoggerForDir creates a logger at <runDir>/_debug.log.
// Returns a no-op logger if the file cannot be opened.
func NewRunLoggerForDir(runDir string) *RunLogger {
	logger, err := NewRunLogger(filepath.Join(runDir, "_debug.log"))
	if err != nil {
		return &RunLogger{}
	}
	return logger
}

// NopLogger returns a no-op logger for testing or when logging is disabled.
func NopLogger() *RunLogger {
	return &RunLogger{}
}

// Log writes a timestamped message. Safe on a nil or no-op logger.
func (l *RunLogger) Log(format string, args ...interface{}) {
	if l == nil || l.file == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(l.file, "[%s] %s\n", time.Now().Format("15:04:05.000"), msg)
	l.file.Sync()
}

// Close closes the log file. Safe on a nil or no-op logger.
func (l *RunLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
