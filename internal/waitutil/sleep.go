package waitutil

import (
	"context"
	"time"
)

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep blocks for d, returning ctx.Err() if ctx finishes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recorder is a SleepFunc that returns immediately and remembers each requested delay.
type Recorder struct {
	Slept []time.Duration
}

// Sleep records d without blocking.
func (r *Recorder) Sleep(ctx context.Context, d time.Duration) error {
	r.Slept = append(r.Slept, d)
	return ctx.Err()
}

// Total returns the sum of all recorded delays.
func (r *Recorder) Total() time.Duration {
	var total time.Duration
	for _, d := range r.Slept {
		total += d
	}
	return total
}
