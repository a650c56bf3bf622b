package logger

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// LogrusLogger wraps a logrus logger to implement the Logger interface.
type LogrusLogger struct {
	logger *logrus.Logger
	entry  *logrus.Entry
}

// NewLogrusLogger creates a LogrusLogger writing to stderr so that command output
// on stdout stays machine readable. Format is "json" (default) or "text".
func NewLogrusLogger(level, format string) *LogrusLogger {
	return NewLogrusLoggerWithOutput(level, format, os.Stderr)
}

// NewLogrusLoggerWithOutput creates a LogrusLogger writing to out.
func NewLogrusLoggerWithOutput(level, format string, out io.Writer) *LogrusLogger {
	logger := logrus.New()
	switch format {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	logger.SetOutput(out)

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	return &LogrusLogger{
		logger: logger,
		entry:  logrus.NewEntry(logger),
	}
}

// Debug logs a debug-level message.
func (l *LogrusLogger) Debug(ctx context.Context, msg string, fields map[string]interface{}) {
	l.with(ctx, fields).Debug(msg)
}

// Info logs an info-level message.
func (l *LogrusLogger) Info(ctx context.Context, msg string, fields map[string]interface{}) {
	l.with(ctx, fields).Info(msg)
}

// Warn logs a warning-level message.
func (l *LogrusLogger) Warn(ctx context.Context, msg string, fields map[string]interface{}) {
	l.with(ctx, fields).Warn(msg)
}

// Error logs an error-level message.
func (l *LogrusLogger) Error(ctx context.Context, msg string, fields map[string]interface{}) {
	l.with(ctx, fields).Error(msg)
}

// WithField returns a new logger with the given field added.
func (l *LogrusLogger) WithField(key string, value interface{}) Logger {
	return &LogrusLogger{
		logger: l.logger,
		entry:  l.entry.WithField(key, value),
	}
}

// WithFields returns a new logger with the given fields added.
func (l *LogrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &LogrusLogger{
		logger: l.logger,
		entry:  l.entry.WithFields(fields),
	}
}

func (l *LogrusLogger) with(ctx context.Context, fields map[string]interface{}) *logrus.Entry {
	entry := l.entry
	if ctx != nil {
		entry = entry.WithContext(ctx)
	}
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	return entry
}
