package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightLauncher starts Chromium through a Playwright driver. The driver and
// browsers must already be installed (playwright install chromium).
type PlaywrightLauncher struct{}

// Launch starts the driver, the browser and a page with the configured viewport.
func (l *PlaywrightLauncher) Launch(ctx context.Context, opts Options) (Surface, error) {
	type launched struct {
		s   *playwrightSurface
		err error
	}
	done := make(chan launched, 1)

	go func() {
		s, err := l.launch(opts)
		done <- launched{s, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		return res.s, nil
	case <-ctx.Done():
		// Release the browser once the launch goroutine finishes.
		go func() {
			if res := <-done; res.s != nil {
				res.s.Close()
			}
		}()
		return nil, fmt.Errorf("%w: playwright did not start: %v", ErrTimeout, ctx.Err())
	}
}

func (l *PlaywrightLauncher) launch(opts Options) (*playwrightSurface, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     []string{"--no-sandbox", "--disable-dev-shm-usage"},
	}
	if opts.ExecPath != "" {
		launchOpts.ExecutablePath = playwright.String(opts.ExecPath)
	}
	b, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch chromium: %w", err)
	}

	pageOpts := playwright.BrowserNewPageOptions{}
	if opts.Width > 0 && opts.Height > 0 {
		pageOpts.Viewport = &playwright.Size{Width: opts.Width, Height: opts.Height}
	}
	p, err := b.NewPage(pageOpts)
	if err != nil {
		b.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	return &playwrightSurface{pw: pw, browser: b, page: p}, nil
}

type playwrightSurface struct {
	pw        *playwright.Playwright
	browser   playwright.Browser
	page      playwright.Page
	closeOnce sync.Once
}

// timeoutMillis picks the tighter of timeout and the ctx deadline. Zero means
// the Playwright default.
func timeoutMillis(ctx context.Context, timeout time.Duration) *float64 {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
		if timeout <= 0 {
			timeout = time.Millisecond
		}
	}
	if timeout <= 0 {
		return nil
	}
	return playwright.Float(float64(timeout.Milliseconds()))
}

func mapPlaywrightError(err error) error {
	if err != nil && errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

func (s *playwrightSurface) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   timeoutMillis(ctx, timeout),
	})
	return mapPlaywrightError(err)
}

func (s *playwrightSurface) Click(ctx context.Context, selector string) error {
	err := s.page.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Timeout: timeoutMillis(ctx, 0),
	})
	return mapPlaywrightError(err)
}

func (s *playwrightSurface) Type(ctx context.Context, selector, text string) error {
	err := s.page.Locator(selector).First().PressSequentially(text, playwright.LocatorPressSequentiallyOptions{
		Timeout: timeoutMillis(ctx, 0),
	})
	return mapPlaywrightError(err)
}

func (s *playwrightSurface) Scroll(ctx context.Context, pixels int) error {
	_, err := s.page.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", pixels))
	return mapPlaywrightError(err)
}

func (s *playwrightSurface) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	err := s.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: timeoutMillis(ctx, timeout),
	})
	return mapPlaywrightError(err)
}

func (s *playwrightSurface) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	buf, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(fullPage),
		Type:     playwright.ScreenshotTypePng,
		Timeout:  timeoutMillis(ctx, 0),
	})
	return buf, mapPlaywrightError(err)
}

func (s *playwrightSurface) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = errors.Join(s.browser.Close(), s.pw.Stop())
	})
	return err
}
