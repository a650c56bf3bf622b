package orchestrator

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/baseline"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/browser"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/capture"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/events"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/executor"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/internal/waitutil"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/logger"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/metrics"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/report"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/storage"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/target"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/testutil"
)

// tickClock advances one second on every call.
type tickClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTickClock() *tickClock {
	return &tickClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	artifacts *storage.LocalStorage
	baselines *storage.LocalStorage
	reports   *storage.LocalStorage
	log       *logger.TestLogger
	clock     *tickClock
	events    *events.Memory
	metrics   *metrics.Recorder
	writer    *report.Writer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	newStore := func(name string) *storage.LocalStorage {
		s, err := storage.NewLocalStorage(t.TempDir() + "/" + name)
		require.NoError(t, err)
		return s
	}

	f := &fixture{
		artifacts: newStore("automated"),
		baselines: newStore("baseline"),
		reports:   newStore("reports"),
		log:       logger.NewTestLogger(),
		clock:     newTickClock(),
		events:    &events.Memory{},
		metrics:   metrics.NewRecorder(),
	}
	f.writer = report.NewWriter(f.reports, "visual-changes", f.log)
	return f
}

func (f *fixture) coordinator(opts ...func(*CoordinatorConfig)) *Coordinator {
	rec := &waitutil.Recorder{}
	cfg := CoordinatorConfig{
		Executor:   executor.New(f.log, executor.WithSleep(rec.Sleep)),
		Capturer:   capture.NewService(f.artifacts, f.log, capture.WithClock(f.clock.Now), capture.WithSleep(rec.Sleep)),
		Reconciler: baseline.NewReconciler(f.artifacts, f.baselines, nil, f.log),
		Writer:     f.writer,
		Events:     f.events,
		Metrics:    f.metrics,
		Now:        f.clock.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewCoordinator(cfg, f.log)
}

// fakeTarget is a scriptable target.Target.
type fakeTarget struct {
	kind       report.TargetKind
	surface    *testutil.FakeSurface
	acquireErr error
	block      bool
	outcome    *target.Outcome
	executeErr error

	mu     sync.Mutex
	closed int
}

func (f *fakeTarget) Kind() report.TargetKind { return f.kind }

func (f *fakeTarget) Acquire(ctx context.Context) (target.Session, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	return &fakeSession{target: f}, nil
}

func (f *fakeTarget) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeSession struct {
	target *fakeTarget
}

func (s *fakeSession) Surface() browser.Surface {
	if s.target.surface == nil {
		return nil
	}
	return s.target.surface
}

func (s *fakeSession) Execute(ctx context.Context) (*target.Outcome, error) {
	if s.target.executeErr != nil {
		return nil, s.target.executeErr
	}
	if s.target.outcome != nil {
		return s.target.outcome, nil
	}
	return &target.Outcome{}, nil
}

func (s *fakeSession) Metadata() map[string]string {
	return map[string]string{"fake": string(s.target.kind)}
}

func (s *fakeSession) Close() error {
	s.target.mu.Lock()
	defer s.target.mu.Unlock()
	s.target.closed++
	return nil
}

func webTarget() *fakeTarget {
	return &fakeTarget{kind: report.TargetWeb, surface: testutil.NewFakeSurface()}
}

// failingWriter fails the selected report kinds and delegates the rest.
type failingWriter struct {
	inner           ReportWriter
	visualErr       error
	consolidatedErr error
}

func (w *failingWriter) WriteVisual(ctx context.Context, r *report.Report) (*report.Written, error) {
	if w.visualErr != nil {
		return nil, w.visualErr
	}
	return w.inner.WriteVisual(ctx, r)
}

func (w *failingWriter) WriteConsolidated(ctx context.Context, c *report.ConsolidatedReport) (*report.Written, error) {
	if w.consolidatedErr != nil {
		return nil, w.consolidatedErr
	}
	return w.inner.WriteConsolidated(ctx, c)
}

// partialReconciler reconciles the first n artifacts and then fails.
type partialReconciler struct {
	n   int
	err error
}

func (r *partialReconciler) Reconcile(ctx context.Context, artifacts []capture.Artifact) ([]baseline.ComparisonRecord, error) {
	var records []baseline.ComparisonRecord
	for i, a := range artifacts {
		if i == r.n {
			return records, r.err
		}
		records = append(records, baseline.ComparisonRecord{Name: a.Name, CurrentPath: a.Path, IsNewBaseline: true})
	}
	return records, nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}
