package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/browser"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/internal/waitutil"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/logger"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/scenario"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/storage"
)

var (
	// ErrCaptureTimeout is returned when the selector a capture waits for never appears.
	ErrCaptureTimeout = errors.New("capture timed out waiting for selector")

	// ErrCaptureFailed is returned when the screenshot could not be taken or stored.
	ErrCaptureFailed = errors.New("capture failed")
)

// DefaultSelectorTimeout bounds WaitForSelector before a capture.
const DefaultSelectorTimeout = 5 * time.Second

// Artifact is one stored screenshot.
type Artifact struct {
	Name      string    `json:"name"`
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
}

// Filename builds "{name}_{timestamp}.png" where the timestamp is UTC ISO-8601 with
// millisecond precision and ':' and '.' replaced by '-'.
func Filename(name string, t time.Time) string {
	ts := t.UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return fmt.Sprintf("%s_%s.png", name, ts)
}

// Service takes screenshots of a surface and writes them to the artifact store.
type Service struct {
	store           storage.BlobStorage
	logger          logger.Logger
	now             func() time.Time
	sleep           waitutil.SleepFunc
	selectorTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for artifact timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSleep overrides how WaitForTimeout delays are served.
func WithSleep(sleep waitutil.SleepFunc) Option {
	return func(s *Service) { s.sleep = sleep }
}

// WithSelectorTimeout overrides DefaultSelectorTimeout.
func WithSelectorTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.selectorTimeout = d
		}
	}
}

// NewService creates a capture service writing into store.
func NewService(store storage.BlobStorage, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:           store,
		logger:          log,
		now:             time.Now,
		sleep:           waitutil.Sleep,
		selectorTimeout: DefaultSelectorTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capture waits for the configured conditions, takes one screenshot and stores it
// under a timestamp-qualified filename.
func (s *Service) Capture(ctx context.Context, surface browser.Surface, name string, opts scenario.CaptureOptions) (*Artifact, error) {
	if opts.WaitForSelector != "" {
		if err := surface.WaitForSelector(ctx, opts.WaitForSelector, s.selectorTimeout); err != nil {
			if errors.Is(err, browser.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %q not visible after %s", ErrCaptureTimeout, opts.WaitForSelector, s.selectorTimeout)
			}
			return nil, fmt.Errorf("%w: waiting for %q: %v", ErrCaptureFailed, opts.WaitForSelector, err)
		}
	}

	if opts.WaitForTimeout > 0 {
		if err := s.sleep(ctx, time.Duration(opts.WaitForTimeout)*time.Millisecond); err != nil {
			return nil, err
		}
	}

	ts := s.now()
	data, err := surface.Screenshot(ctx, opts.FullPage)
	if err != nil {
		return nil, fmt.Errorf("%w: screenshot %s: %v", ErrCaptureFailed, name, err)
	}

	filename := Filename(name, ts)
	if err := s.store.Upload(ctx, filename, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: store %s: %v", ErrCaptureFailed, filename, err)
	}

	url, err := s.store.GetURL(ctx, filename)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %v", ErrCaptureFailed, filename, err)
	}

	s.logger.Info(ctx, "screenshot captured", map[string]interface{}{
		"name":      name,
		"filename":  filename,
		"full_page": opts.FullPage,
		"bytes":     len(data),
	})

	return &Artifact{
		Name:      name,
		Filename:  filename,
		Path:      filename,
		URL:       url,
		Timestamp: ts,
	}, nil
}
