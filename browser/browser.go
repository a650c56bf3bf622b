// Package browser drives a headless browser page as a UI surface that scenarios
// act on and screenshots are taken from.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrTimeout is returned when a browser operation exceeds its bound.
var ErrTimeout = errors.New("browser operation timed out")

// Surface is a live page. It is owned by whoever acquired it and must be closed
// exactly once.
type Surface interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	Scroll(ctx context.Context, pixels int) error
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	Close() error
}

// Options configures a browser launch.
type Options struct {
	Headless bool
	Width    int
	Height   int
	ExecPath string
}

// DefaultOptions returns a headless 1280x720 configuration.
func DefaultOptions() Options {
	return Options{Headless: true, Width: 1280, Height: 720}
}

// Launcher starts a browser and returns its first page.
type Launcher interface {
	Launch(ctx context.Context, opts Options) (Surface, error)
}

// NewLauncher returns the launcher for the named driver.
func NewLauncher(driver string) (Launcher, error) {
	switch strings.ToLower(driver) {
	case "", "chromedp":
		return &ChromedpLauncher{}, nil
	case "playwright":
		return &PlaywrightLauncher{}, nil
	default:
		return nil, fmt.Errorf("unsupported browser driver: %s", driver)
	}
}
