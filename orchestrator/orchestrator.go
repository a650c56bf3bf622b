package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/events"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/history"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/internal/uuidutil"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/logger"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/metrics"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/process"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/report"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/scenario"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/target"
)

// ErrTargetNotConfigured is recorded for a requested target with no implementation.
var ErrTargetNotConfigured = errors.New("target not configured")

// Config holds the collaborators of an Orchestrator. History, Events, Metrics and
// Processes are optional.
type Config struct {
	Targets         map[report.TargetKind]target.Target
	Writer          ReportWriter
	History         history.Store
	Events          events.Publisher
	Metrics         *metrics.Recorder
	MetricsTextfile string
	Processes       *process.Group
	Snapshot        report.ConfigSnapshot
	Now             func() time.Time
	NewRunID        func() string
}

// Outcome is everything a run produced.
type Outcome struct {
	RunID        string
	Runs         []report.TargetRun
	Visual       *report.Report
	Consolidated *report.ConsolidatedReport
	Written      *report.Written
}

// Success reports whether every requested target succeeded.
func (o *Outcome) Success() bool {
	return o != nil && o.Consolidated != nil && o.Consolidated.Success()
}

// Orchestrator runs targets one after another and consolidates their results.
type Orchestrator struct {
	cfg         Config
	coordinator *Coordinator
	logger      logger.Logger
}

// New creates an Orchestrator around coordinator.
func New(cfg Config, coordinator *Coordinator, log logger.Logger) *Orchestrator {
	if cfg.Events == nil {
		cfg.Events = events.Noop{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewRunID == nil {
		cfg.NewRunID = func() string { return uuidutil.NewRunID().String() }
	}
	return &Orchestrator{cfg: cfg, coordinator: coordinator, logger: log}
}

// Run executes kinds in order. A failing target never stops the ones after it.
// The returned error reports report write failures only; target failures are in
// the outcome. Spawned processes are killed before Run returns.
func (o *Orchestrator) Run(ctx context.Context, kinds []report.TargetKind, sc *scenario.Scenario) (*Outcome, error) {
	runID := o.cfg.NewRunID()
	startedAt := o.cfg.Now()
	log := o.logger.WithField("run_id", runID)

	defer o.cleanup(ctx, log)

	modes := make([]string, len(kinds))
	for i, k := range kinds {
		modes[i] = string(k)
	}
	log.Info(ctx, "run started", map[string]interface{}{"modes": modes})
	o.publish(ctx, events.Event{Type: events.TypeRunStarted, RunID: runID, Data: map[string]interface{}{"modes": modes}})

	outcome := &Outcome{RunID: runID}
	var errs []error

	for _, kind := range kinds {
		tgt, ok := o.cfg.Targets[kind]
		if !ok {
			outcome.Runs = append(outcome.Runs, o.unconfigured(ctx, kind))
			continue
		}

		run, err := o.coordinator.Run(ctx, runID, tgt, sc)
		outcome.Runs = append(outcome.Runs, run)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
		}
	}

	outcome.Visual = report.Aggregate(o.cfg.Now(), outcome.Runs)
	snapshot := o.cfg.Snapshot
	snapshot.Modes = modes
	outcome.Consolidated = report.Consolidate(runID, outcome.Visual, snapshot)

	written, err := o.cfg.Writer.WriteConsolidated(ctx, outcome.Consolidated)
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.ReportWritten("consolidated", err)
	}
	if err != nil {
		log.Error(ctx, "failed to write consolidated report", map[string]interface{}{"error": err.Error()})
		errs = append(errs, err)
	} else {
		outcome.Written = written
		o.publish(ctx, events.Event{Type: events.TypeReportWritten, RunID: runID, Data: map[string]interface{}{
			"html": written.HTML,
			"json": written.JSON,
		}})
	}

	o.record(ctx, log, outcome, startedAt)

	summary := outcome.Consolidated.Summary
	log.Info(ctx, "run finished", map[string]interface{}{
		"total":      summary.TotalTests,
		"successful": summary.Successful,
		"failed":     summary.Failed,
		"skipped":    summary.Skipped,
	})
	o.publish(ctx, events.Event{Type: events.TypeRunFinished, RunID: runID, Data: map[string]interface{}{
		"success":    outcome.Success(),
		"total":      summary.TotalTests,
		"successful": summary.Successful,
		"failed":     summary.Failed,
	}})

	return outcome, errors.Join(errs...)
}

func (o *Orchestrator) unconfigured(ctx context.Context, kind report.TargetKind) report.TargetRun {
	now := o.cfg.Now()
	err := fmt.Errorf("%w: %s", ErrTargetNotConfigured, kind)
	o.logger.Error(ctx, "target not configured", map[string]interface{}{"target": string(kind)})
	return report.TargetRun{Result: report.RunResult{
		Target:      kind,
		Error:       err.Error(),
		ErrorKind:   target.KindUnknown,
		StartedAt:   now,
		CompletedAt: now,
	}}
}

// record saves history and the metrics textfile. Neither affects the run outcome.
func (o *Orchestrator) record(ctx context.Context, log logger.Logger, outcome *Outcome, startedAt time.Time) {
	if o.cfg.History != nil {
		reportPath := ""
		if outcome.Written != nil {
			reportPath = outcome.Written.HTML
		}
		run := history.FromReport(outcome.Consolidated, outcome.Runs, reportPath, startedAt)
		if err := o.cfg.History.Create(ctx, run); err != nil {
			log.Warn(ctx, "failed to record run history", map[string]interface{}{"error": err.Error()})
		}
	}

	if o.cfg.Metrics != nil && o.cfg.MetricsTextfile != "" {
		if err := o.cfg.Metrics.WriteTextfile(o.cfg.MetricsTextfile); err != nil {
			log.Warn(ctx, "failed to write metrics textfile", map[string]interface{}{
				"path":  o.cfg.MetricsTextfile,
				"error": err.Error(),
			})
		}
	}
}

func (o *Orchestrator) cleanup(ctx context.Context, log logger.Logger) {
	if o.cfg.Processes == nil {
		return
	}
	if n := o.cfg.Processes.KillAll(); n > 0 {
		log.Info(ctx, "stopped leftover processes", map[string]interface{}{"count": n})
	}
}

func (o *Orchestrator) publish(ctx context.Context, ev events.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = o.cfg.Now()
	}
	if err := o.cfg.Events.Publish(ctx, ev); err != nil {
		o.logger.Warn(ctx, "failed to publish event", map[string]interface{}{
			"type":  ev.Type,
			"error": err.Error(),
		})
	}
}
