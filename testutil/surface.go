package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/browser"
)

// FakeSurface is a scriptable browser.Surface that records every call.
type FakeSurface struct {
	mu sync.Mutex

	// Calls lists interactions as "kind:argument" in call order.
	Calls []string

	// Broken selectors fail Click and Type with the mapped error.
	Broken map[string]error

	// Missing selectors never become visible; WaitForSelector returns browser.ErrTimeout.
	Missing map[string]bool

	// Image is returned by Screenshot. Defaults to a small PNG when nil.
	Image         []byte
	ScreenshotErr error
	NavigateErr   error

	closed int
}

// NewFakeSurface returns a surface where every selector exists.
func NewFakeSurface() *FakeSurface {
	return &FakeSurface{
		Broken:  make(map[string]error),
		Missing: make(map[string]bool),
	}
}

func (f *FakeSurface) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, call)
}

func (f *FakeSurface) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	f.record("navigate:" + url)
	if f.NavigateErr != nil {
		return f.NavigateErr
	}
	return ctx.Err()
}

func (f *FakeSurface) Click(ctx context.Context, selector string) error {
	f.record("click:" + selector)
	return f.interact(selector)
}

func (f *FakeSurface) Type(ctx context.Context, selector, text string) error {
	f.record(fmt.Sprintf("type:%s=%s", selector, text))
	return f.interact(selector)
}

func (f *FakeSurface) interact(selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.Broken[selector]; ok {
		if err == nil {
			err = errors.New("no node found for selector " + selector)
		}
		return err
	}
	return nil
}

func (f *FakeSurface) Scroll(ctx context.Context, pixels int) error {
	f.record(fmt.Sprintf("scroll:%d", pixels))
	return nil
}

func (f *FakeSurface) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	f.record("wait:" + selector)
	f.mu.Lock()
	missing := f.Missing[selector]
	f.mu.Unlock()
	if missing {
		return fmt.Errorf("%w: %s after %s", browser.ErrTimeout, selector, timeout)
	}
	return nil
}

func (f *FakeSurface) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	f.record(fmt.Sprintf("screenshot:%t", fullPage))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.ScreenshotErr != nil {
		return nil, f.ScreenshotErr
	}
	if f.Image != nil {
		return f.Image, nil
	}
	return tinyPNG, nil
}

func (f *FakeSurface) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// Closed returns how many times Close was called.
func (f *FakeSurface) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// CallLog returns a copy of Calls.
func (f *FakeSurface) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Calls))
	copy(out, f.Calls)
	return out
}

var _ browser.Surface = (*FakeSurface)(nil)

// tinyPNG is a valid 1x1 transparent PNG.
var tinyPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}
