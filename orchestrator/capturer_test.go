package orchestrator

import (
	"context"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/browser"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/capture"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/executor"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/scenario"
)

// cancelAfterCapture cancels the run once the first capture is stored.
type cancelAfterCapture struct {
	inner  executor.Capturer
	cancel context.CancelFunc
}

func (c cancelAfterCapture) Capture(ctx context.Context, surface browser.Surface, name string, opts scenario.CaptureOptions) (*capture.Artifact, error) {
	artifact, err := c.inner.Capture(ctx, surface, name, opts)
	c.cancel()
	return artifact, err
}
