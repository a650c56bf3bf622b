// Package metrics records run outcomes as Prometheus metrics.
package metrics

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/baseline"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/report"
)

const namespace = "screenshot_orchestrator"

// Recorder owns a private registry so runs in the same process do not collide
// with the default one.
type Recorder struct {
	registry *prometheus.Registry

	targetRuns     *prometheus.CounterVec
	targetDuration *prometheus.HistogramVec
	screenshots    *prometheus.CounterVec
	comparisons    *prometheus.CounterVec
	actionFailures *prometheus.CounterVec
	reportWrites   *prometheus.CounterVec
}

// NewRecorder creates a Recorder with all collectors registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		targetRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "target_runs_total",
			Help:      "Target runs by outcome.",
		}, []string{"target", "outcome"}),
		targetDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "target_duration_seconds",
			Help:      "Wall time of a target run.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"target"}),
		screenshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "screenshots_total",
			Help:      "Screenshots captured or reported by a target.",
		}, []string{"target"}),
		comparisons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comparisons_total",
			Help:      "Baseline reconciliation outcomes.",
		}, []string{"result"}),
		actionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_failures_total",
			Help:      "Scenario actions that failed to dispatch.",
		}, []string{"kind"}),
		reportWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_writes_total",
			Help:      "Report writes by kind and status.",
		}, []string{"kind", "status"}),
	}

	r.registry.MustRegister(
		r.targetRuns,
		r.targetDuration,
		r.screenshots,
		r.comparisons,
		r.actionFailures,
		r.reportWrites,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveTarget records a finished target.
func (r *Recorder) ObserveTarget(res report.RunResult) {
	outcome := "success"
	switch {
	case res.Skipped:
		outcome = "skipped"
	case !res.Success:
		outcome = "failed"
	}
	target := string(res.Target)
	r.targetRuns.WithLabelValues(target, outcome).Inc()
	r.screenshots.WithLabelValues(target).Add(float64(res.Screenshots))
	if d := res.Duration(); d > 0 {
		r.targetDuration.WithLabelValues(target).Observe(d.Seconds())
	}
}

// ObserveComparisons records reconciliation outcomes.
func (r *Recorder) ObserveComparisons(records []baseline.ComparisonRecord) {
	for _, rec := range records {
		if rec.IsNewBaseline {
			r.comparisons.WithLabelValues("new_baseline").Inc()
			continue
		}
		r.comparisons.WithLabelValues("compared").Inc()
		if rec.Matched != nil && !*rec.Matched {
			r.comparisons.WithLabelValues("mismatch").Inc()
		}
	}
}

// ActionFailed counts a failed scenario action.
func (r *Recorder) ActionFailed(kind string) {
	r.actionFailures.WithLabelValues(kind).Inc()
}

// ReportWritten counts a report write attempt.
func (r *Recorder) ReportWritten(kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.reportWrites.WithLabelValues(kind, status).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry for the node_exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
