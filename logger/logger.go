package logger

import "context"

// Logger is the structured logger passed to every component. Fields such as
// run_id and target are attached with WithField so each line of a run can be
// correlated.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, fields map[string]interface{})

	// WithField returns a logger that adds key to every entry.
	WithField(key string, value interface{}) Logger

	// WithFields returns a logger that adds fields to every entry.
	WithFields(fields map[string]interface{}) Logger
}
