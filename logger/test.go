package logger

import (
	"context"
	"sync"
)

// LogEntry represents a single log entry captured by the test logger.
type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

type sink struct {
	mu      sync.RWMutex
	entries []LogEntry
}

// TestLogger captures log entries in memory. Loggers derived through WithField
// and WithFields record into the same sink as their parent.
type TestLogger struct {
	sink   *sink
	fields map[string]interface{}
}

// NewTestLogger creates a new test logger.
func NewTestLogger() *TestLogger {
	return &TestLogger{
		sink:   &sink{},
		fields: make(map[string]interface{}),
	}
}

// Debug logs a debug-level message.
func (l *TestLogger) Debug(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("debug", msg, fields)
}

// Info logs an info-level message.
func (l *TestLogger) Info(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("info", msg, fields)
}

// Warn logs a warning-level message.
func (l *TestLogger) Warn(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("warn", msg, fields)
}

// Error logs an error-level message.
func (l *TestLogger) Error(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log("error", msg, fields)
}

// WithField returns a new logger with the given field added.
func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a new logger with the given fields added.
func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &TestLogger{sink: l.sink, fields: merged}
}

func (l *TestLogger) log(level, msg string, fields map[string]interface{}) {
	allFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		allFields[k] = v
	}
	for k, v := range fields {
		allFields[k] = v
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.entries = append(l.sink.entries, LogEntry{
		Level:   level,
		Message: msg,
		Fields:  allFields,
	})
}

// Entries returns a copy of all captured log entries.
func (l *TestLogger) Entries() []LogEntry {
	l.sink.mu.RLock()
	defer l.sink.mu.RUnlock()

	entries := make([]LogEntry, len(l.sink.entries))
	copy(entries, l.sink.entries)
	return entries
}

// HasMessage reports whether an entry with the given level and message was captured.
func (l *TestLogger) HasMessage(level, msg string) bool {
	for _, e := range l.Entries() {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}

// Reset clears all captured log entries.
func (l *TestLogger) Reset() {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.entries = nil
}
