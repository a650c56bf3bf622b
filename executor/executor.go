package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/browser"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/capture"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/internal/waitutil"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/logger"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/scenario"
)

// ErrActionFailure wraps any error raised while dispatching a scenario action.
var ErrActionFailure = errors.New("action failed")

const (
	// DefaultSettle is the pause after every action before its capture.
	DefaultSettle = time.Second

	// DefaultActionTimeout bounds a single click, type or scroll.
	DefaultActionTimeout = 10 * time.Second
)

// Capturer takes the screenshot that follows an action.
type Capturer interface {
	Capture(ctx context.Context, surface browser.Surface, name string, opts scenario.CaptureOptions) (*capture.Artifact, error)
}

// Executor replays scenario actions against a surface, one at a time.
type Executor struct {
	logger        logger.Logger
	tracer        trace.Tracer
	sleep         waitutil.SleepFunc
	settle        time.Duration
	actionTimeout time.Duration
	onFailure     func(action scenario.Action, err error)
}

// Option configures an Executor.
type Option func(*Executor)

// WithSettle overrides DefaultSettle.
func WithSettle(d time.Duration) Option {
	return func(e *Executor) { e.settle = d }
}

// WithActionTimeout overrides DefaultActionTimeout.
func WithActionTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.actionTimeout = d
		}
	}
}

// WithSleep overrides how settle and wait delays are served.
func WithSleep(sleep waitutil.SleepFunc) Option {
	return func(e *Executor) { e.sleep = sleep }
}

// WithTracer sets the tracer used for per-action spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) { e.tracer = tracer }
}

// WithFailureHook registers a callback invoked for every failed action.
func WithFailureHook(fn func(action scenario.Action, err error)) Option {
	return func(e *Executor) { e.onFailure = fn }
}

// New creates an Executor.
func New(log logger.Logger, opts ...Option) *Executor {
	e := &Executor{
		logger:        log,
		tracer:        otel.Tracer("screenshot-orchestrator/executor"),
		sleep:         waitutil.Sleep,
		settle:        DefaultSettle,
		actionTimeout: DefaultActionTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes actions in order. Every action is followed by the settle delay and
// a capture named after the action, including actions whose dispatch failed.
// Failed dispatches and failed captures are logged and skipped; the returned
// artifacts follow action order.
func (e *Executor) Run(ctx context.Context, surface browser.Surface, actions []scenario.Action, capturer Capturer) []capture.Artifact {
	artifacts := make([]capture.Artifact, 0, len(actions))

	for i, action := range actions {
		if ctx.Err() != nil {
			e.logger.Warn(ctx, "scenario interrupted", map[string]interface{}{
				"remaining": len(actions) - i,
				"error":     ctx.Err().Error(),
			})
			break
		}

		artifact := e.step(ctx, surface, i, action, capturer)
		if artifact != nil {
			artifacts = append(artifacts, *artifact)
		}
	}

	return artifacts
}

func (e *Executor) step(ctx context.Context, surface browser.Surface, index int, action scenario.Action, capturer Capturer) *capture.Artifact {
	ctx, span := e.tracer.Start(ctx, "action "+action.Name, trace.WithAttributes(
		attribute.String("action.name", action.Name),
		attribute.String("action.kind", string(action.Kind)),
		attribute.Int("action.index", index),
	))
	defer span.End()

	log := e.logger.WithFields(map[string]interface{}{
		"action": action.Name,
		"kind":   string(action.Kind),
	})

	if err := e.Dispatch(ctx, surface, action); err != nil {
		span.RecordError(err)
		log.Warn(ctx, "action failed, continuing", map[string]interface{}{"error": err.Error()})
		if e.onFailure != nil {
			e.onFailure(action, err)
		}
	}

	if err := e.sleep(ctx, e.settle); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil
	}

	artifact, err := capturer.Capture(ctx, surface, action.Name, action.CaptureOptions())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		log.Error(ctx, "capture failed", map[string]interface{}{"error": err.Error()})
		return nil
	}
	return artifact
}

// Dispatch performs the interaction of a single action. Unknown kinds are a no-op.
func (e *Executor) Dispatch(ctx context.Context, surface browser.Surface, action scenario.Action) error {
	var err error

	switch action.Kind {
	case scenario.KindWait:
		err = e.sleep(ctx, time.Duration(action.Duration)*time.Millisecond)
	case scenario.KindClick, scenario.KindType, scenario.KindScroll:
		actionCtx, cancel := context.WithTimeout(ctx, e.actionTimeout)
		defer cancel()
		switch action.Kind {
		case scenario.KindClick:
			err = surface.Click(actionCtx, action.Selector)
		case scenario.KindType:
			err = surface.Type(actionCtx, action.Selector, action.Text)
		default:
			err = surface.Scroll(actionCtx, action.Pixels)
		}
	default:
		e.logger.Debug(ctx, "unknown action kind, skipping dispatch", map[string]interface{}{
			"action": action.Name,
			"kind":   string(action.Kind),
		})
		return nil
	}

	if err != nil {
		return fmt.Errorf("%w: %s %q: %v", ErrActionFailure, action.Kind, action.Name, err)
	}
	return nil
}
