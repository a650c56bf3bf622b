// Package orchestrator drives targets through acquisition, scenario execution,
// baseline reconciliation and reporting.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/baseline"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/capture"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/events"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/executor"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/logger"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/metrics"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/report"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/scenario"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/target"
)

// DefaultAcquireTimeout bounds a whole acquisition, including app startup,
// navigation and the ready selector.
const DefaultAcquireTimeout = 2 * time.Minute

// Reconciler turns captures into comparison records.
type Reconciler interface {
	Reconcile(ctx context.Context, artifacts []capture.Artifact) ([]baseline.ComparisonRecord, error)
}

// ReportWriter persists reports.
type ReportWriter interface {
	WriteVisual(ctx context.Context, r *report.Report) (*report.Written, error)
	WriteConsolidated(ctx context.Context, c *report.ConsolidatedReport) (*report.Written, error)
}

// CoordinatorConfig holds the collaborators of a Coordinator. Events, Metrics and
// Tracer are optional.
type CoordinatorConfig struct {
	Executor       *executor.Executor
	Capturer       executor.Capturer
	Reconciler     Reconciler
	Writer         ReportWriter
	Events         events.Publisher
	Metrics        *metrics.Recorder
	Tracer         trace.Tracer
	AcquireTimeout time.Duration
	Now            func() time.Time
}

// Coordinator runs a single target from acquisition to its visual report.
type Coordinator struct {
	cfg    CoordinatorConfig
	logger logger.Logger
}

// NewCoordinator creates a Coordinator, filling unset optional collaborators.
func NewCoordinator(cfg CoordinatorConfig, log logger.Logger) *Coordinator {
	if cfg.Events == nil {
		cfg.Events = events.Noop{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("screenshot-orchestrator/orchestrator")
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = DefaultAcquireTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Coordinator{cfg: cfg, logger: log}
}

// targetRun carries the mutable state of one Run call.
type targetRun struct {
	run     report.TargetRun
	machine *Machine
	span    trace.Span
	log     logger.Logger
}

func (t *targetRun) setMetadata(meta map[string]string) {
	for k, v := range meta {
		t.run.Result.Metadata[k] = v
	}
}

// Run drives tgt through its lifecycle. Target failures are recorded in the
// returned result; the error is non-nil only when the visual report could not be
// written. The session is released exactly once on every path.
func (c *Coordinator) Run(ctx context.Context, runID string, tgt target.Target, sc *scenario.Scenario) (report.TargetRun, error) {
	kind := tgt.Kind()
	ctx, span := c.cfg.Tracer.Start(ctx, "target "+string(kind), trace.WithAttributes(
		attribute.String("target", string(kind)),
		attribute.String("run.id", runID),
	))
	defer span.End()

	tr := &targetRun{
		run: report.TargetRun{Result: report.RunResult{
			Target:    kind,
			StartedAt: c.cfg.Now(),
			Metadata:  map[string]string{},
		}},
		machine: NewMachine(),
		span:    span,
		log:     c.logger.WithFields(map[string]interface{}{"target": string(kind), "run_id": runID}),
	}

	c.publish(ctx, events.Event{Type: events.TypeTargetStarted, RunID: runID, Target: string(kind)})
	tr.log.Info(ctx, "target started", nil)

	err := c.drive(ctx, tr, tgt, sc)
	if err != nil && !errors.Is(err, report.ErrReportWrite) {
		err = nil
	}
	c.finish(ctx, runID, tr)
	return tr.run, err
}

func (c *Coordinator) drive(ctx context.Context, tr *targetRun, tgt target.Target, sc *scenario.Scenario) error {
	if err := tr.machine.Transition(StateInitializing); err != nil {
		return c.fail(ctx, tr, err)
	}

	acquireCtx, cancel := context.WithTimeout(ctx, c.cfg.AcquireTimeout)
	session, err := tgt.Acquire(acquireCtx)
	deadlineHit := errors.Is(acquireCtx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		if deadlineHit && !errors.Is(err, target.ErrAcquisitionTimeout) {
			err = fmt.Errorf("%w: after %s: %v", target.ErrAcquisitionTimeout, c.cfg.AcquireTimeout, err)
		}
		if errors.Is(err, target.ErrNoDevice) {
			tr.run.Result.Skipped = true
		}
		return c.fail(ctx, tr, err)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := session.Close(); err != nil {
				tr.log.Warn(ctx, "failed to release target", map[string]interface{}{"error": err.Error()})
			}
		})
	}
	defer release()

	if err := tr.machine.Transition(StateTargetReady); err != nil {
		return c.fail(ctx, tr, err)
	}
	tr.setMetadata(session.Metadata())

	if err := tr.machine.Transition(StateExecuting); err != nil {
		return c.fail(ctx, tr, err)
	}
	if surface := session.Surface(); surface != nil {
		tr.run.Artifacts = c.cfg.Executor.Run(ctx, surface, scenarioActions(sc), c.cfg.Capturer)
		tr.run.Result.Screenshots = len(tr.run.Artifacts)
	} else {
		outcome, err := session.Execute(ctx)
		if err != nil {
			return c.fail(ctx, tr, err)
		}
		tr.run.Result.Screenshots = outcome.Screenshots
		tr.setMetadata(outcome.Metadata)
	}
	release()

	if err := ctx.Err(); err != nil {
		return c.fail(ctx, tr, err)
	}

	if err := tr.machine.Transition(StateReconciling); err != nil {
		return c.fail(ctx, tr, err)
	}
	records, err := c.cfg.Reconciler.Reconcile(ctx, tr.run.Artifacts)
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.ObserveComparisons(records)
	}
	if err != nil {
		// Keep artifacts and records paired.
		tr.run.Artifacts = tr.run.Artifacts[:len(records)]
		tr.run.Comparisons = records
		tr.run.Result.Screenshots = len(tr.run.Artifacts)
		return c.fail(ctx, tr, err)
	}
	tr.run.Comparisons = records

	tr.run.Result.Success = true
	tr.run.Result.CompletedAt = c.cfg.Now()
	tr.run.Result.States = tr.machine.History()

	visual := report.Aggregate(tr.run.Result.CompletedAt, []report.TargetRun{tr.run})
	written, err := c.cfg.Writer.WriteVisual(ctx, visual)
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.ReportWritten("visual", err)
	}
	if err != nil {
		tr.run.Result.Success = false
		return c.fail(ctx, tr, err)
	}
	tr.run.Result.Metadata["visualReport"] = written.HTML

	return tr.machine.Transition(StateReportingDone)
}

// fail records err on the result and moves the machine to StateFailed.
func (c *Coordinator) fail(ctx context.Context, tr *targetRun, err error) error {
	tr.machine.Fail()
	tr.run.Result.Success = false
	tr.run.Result.Error = err.Error()
	tr.run.Result.ErrorKind = classify(err)
	tr.span.RecordError(err)
	tr.span.SetStatus(codes.Error, err.Error())

	fields := map[string]interface{}{"error": err.Error(), "error_kind": tr.run.Result.ErrorKind}
	if tr.run.Result.Skipped {
		tr.log.Warn(ctx, "target skipped", fields)
	} else {
		tr.log.Error(ctx, "target failed", fields)
	}
	return err
}

func (c *Coordinator) finish(ctx context.Context, runID string, tr *targetRun) {
	res := &tr.run.Result
	res.CompletedAt = c.cfg.Now()
	res.States = tr.machine.History()

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.ObserveTarget(*res)
	}

	tr.log.Info(ctx, "target finished", map[string]interface{}{
		"success":     res.Success,
		"screenshots": res.Screenshots,
		"state":       string(tr.machine.Current()),
		"duration_ms": res.Duration().Milliseconds(),
	})

	data := map[string]interface{}{
		"success":     res.Success,
		"skipped":     res.Skipped,
		"screenshots": res.Screenshots,
	}
	if res.Error != "" {
		data["error"] = res.Error
	}
	c.publish(ctx, events.Event{Type: events.TypeTargetFinished, RunID: runID, Target: string(res.Target), Data: data})
}

func (c *Coordinator) publish(ctx context.Context, ev events.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = c.cfg.Now()
	}
	if err := c.cfg.Events.Publish(ctx, ev); err != nil {
		c.logger.Warn(ctx, "failed to publish event", map[string]interface{}{
			"type":  ev.Type,
			"error": err.Error(),
		})
	}
}

// classify extends target.Classify with the failures raised after acquisition.
func classify(err error) string {
	switch {
	case errors.Is(err, baseline.ErrBaselineStore):
		return target.KindReconcile
	case errors.Is(err, report.ErrReportWrite):
		return target.KindReport
	default:
		return target.Classify(err)
	}
}

func scenarioActions(sc *scenario.Scenario) []scenario.Action {
	if sc == nil {
		return nil
	}
	return sc.Actions
}
