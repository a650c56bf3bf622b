package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ChromedpLauncher starts Chrome through the DevTools protocol.
type ChromedpLauncher struct{}

// Launch allocates a browser and opens a tab. ctx bounds startup only; the browser
// outlives it until Close.
func (l *ChromedpLauncher) Launch(ctx context.Context, opts Options) (Surface, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.DisableGPU,
	)
	if opts.Width > 0 && opts.Height > 0 {
		allocOpts = append(allocOpts, chromedp.WindowSize(opts.Width, opts.Height))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	// The first Run binds the browser process to the context it is given, so it
	// must not carry a deadline.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	s := &chromedpSurface{tabCtx: tabCtx, cancelTab: cancelTab, cancelAlloc: cancelAlloc}

	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tabCtx) }()

	select {
	case err := <-started:
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to start chrome: %w", err)
		}
	case <-ctx.Done():
		s.Close()
		return nil, fmt.Errorf("%w: chrome did not start: %v", ErrTimeout, ctx.Err())
	}

	return s, nil
}

type chromedpSurface struct {
	tabCtx      context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	closeOnce   sync.Once
}

// run executes actions on the tab, bounded by timeout and by ctx.
func (s *chromedpSurface) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(runCtx, deadline)
		defer cancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

func (s *chromedpSurface) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.Navigate(url))
}

func (s *chromedpSurface) Click(ctx context.Context, selector string) error {
	return s.run(ctx, 0, chromedp.Click(selector, chromedp.ByQuery))
}

func (s *chromedpSurface) Type(ctx context.Context, selector, text string) error {
	return s.run(ctx, 0, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

func (s *chromedpSurface) Scroll(ctx context.Context, pixels int) error {
	var y float64
	return s.run(ctx, 0, chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d); window.scrollY", pixels), &y))
}

func (s *chromedpSurface) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (s *chromedpSurface) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	var buf []byte
	if fullPage {
		// quality 100 keeps the capture in PNG.
		if err := s.run(ctx, 0, chromedp.FullScreenshot(&buf, 100)); err != nil {
			return nil, err
		}
		return buf, nil
	}

	err := s.run(ctx, 0, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithFromSurface(true).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *chromedpSurface) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = chromedp.Cancel(s.tabCtx)
		s.cancelTab()
		s.cancelAlloc()
	})
	return err
}
