package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/baseline"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/capture"
)

// TargetKind names an automation target.
type TargetKind string

const (
	TargetWeb         TargetKind = "web"
	TargetAndroid     TargetKind = "android"
	TargetIntegration TargetKind = "integration"
	TargetHosted      TargetKind = "hosted"
)

// AllTargets lists every target in execution order.
var AllTargets = []TargetKind{TargetWeb, TargetAndroid, TargetIntegration, TargetHosted}

// IsValid reports whether k is a known target.
func (k TargetKind) IsValid() bool {
	for _, t := range AllTargets {
		if t == k {
			return true
		}
	}
	return false
}

// ParseTargets turns a mode string ("all" or a comma separated list) into targets
// in execution order, without duplicates.
func ParseTargets(mode string) ([]TargetKind, error) {
	mode = strings.TrimSpace(strings.ToLower(mode))
	if mode == "" || mode == "all" {
		return append([]TargetKind(nil), AllTargets...), nil
	}

	requested := make(map[TargetKind]bool)
	for _, part := range strings.Split(mode, ",") {
		k := TargetKind(strings.TrimSpace(part))
		if k == "" {
			continue
		}
		if k == "all" {
			return append([]TargetKind(nil), AllTargets...), nil
		}
		if !k.IsValid() {
			return nil, fmt.Errorf("unknown mode %q (want web, android, integration, hosted or all)", k)
		}
		requested[k] = true
	}

	var kinds []TargetKind
	for _, k := range AllTargets {
		if requested[k] {
			kinds = append(kinds, k)
		}
	}
	if len(kinds) == 0 {
		return nil, fmt.Errorf("no mode selected")
	}
	return kinds, nil
}

// RunResult is the outcome of one target.
type RunResult struct {
	Target      TargetKind        `json:"target"`
	Success     bool              `json:"success"`
	Skipped     bool              `json:"skipped,omitempty"`
	Screenshots int               `json:"screenshots"`
	Error       string            `json:"error,omitempty"`
	ErrorKind   string            `json:"errorKind,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	States      []string          `json:"states,omitempty"`
	StartedAt   time.Time         `json:"startedAt"`
	CompletedAt time.Time         `json:"completedAt"`
}

// Duration returns how long the target ran.
func (r RunResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// TargetRun bundles a result with the captures and comparisons it produced.
type TargetRun struct {
	Result      RunResult
	Artifacts   []capture.Artifact
	Comparisons []baseline.ComparisonRecord
}

// Results holds one optional result per target. Targets that did not run
// serialize as null.
type Results struct {
	Web         *RunResult `json:"web"`
	Android     *RunResult `json:"android"`
	Integration *RunResult `json:"integration"`
	Hosted      *RunResult `json:"hosted"`
}

func (r *Results) slot(k TargetKind) **RunResult {
	switch k {
	case TargetWeb:
		return &r.Web
	case TargetAndroid:
		return &r.Android
	case TargetIntegration:
		return &r.Integration
	case TargetHosted:
		return &r.Hosted
	}
	return nil
}

// Set stores the result for its target.
func (r *Results) Set(result RunResult) {
	if slot := r.slot(result.Target); slot != nil {
		res := result
		*slot = &res
	}
}

// Get returns the result for k, or nil.
func (r Results) Get(k TargetKind) *RunResult {
	switch k {
	case TargetWeb:
		return r.Web
	case TargetAndroid:
		return r.Android
	case TargetIntegration:
		return r.Integration
	case TargetHosted:
		return r.Hosted
	}
	return nil
}

// Ordered returns the results that are present, in execution order.
func (r Results) Ordered() []*RunResult {
	var out []*RunResult
	for _, k := range AllTargets {
		if res := r.Get(k); res != nil {
			out = append(out, res)
		}
	}
	return out
}

// Summary counts captures by reconciliation outcome.
// NewBaselines + Comparisons always equals TotalScreenshots.
type Summary struct {
	TotalScreenshots int `json:"totalScreenshots"`
	NewBaselines     int `json:"newBaselines"`
	Comparisons      int `json:"comparisons"`
	Mismatches       int `json:"mismatches,omitempty"`
}

// Report is the visual report of one run.
type Report struct {
	Timestamp   time.Time                   `json:"timestamp"`
	Summary     Summary                     `json:"summary"`
	Screenshots []capture.Artifact          `json:"screenshots"`
	Comparisons []baseline.ComparisonRecord `json:"comparisons"`
	Results     Results                     `json:"results"`
}

// Aggregate folds target runs into a report. It has no side effects.
func Aggregate(at time.Time, runs []TargetRun) *Report {
	r := &Report{
		Timestamp:   at,
		Screenshots: []capture.Artifact{},
		Comparisons: []baseline.ComparisonRecord{},
	}

	for _, run := range runs {
		r.Screenshots = append(r.Screenshots, run.Artifacts...)
		r.Comparisons = append(r.Comparisons, run.Comparisons...)
		r.Results.Set(run.Result)
	}

	r.Summary = Summarize(r.Comparisons)
	r.Summary.TotalScreenshots = len(r.Screenshots)
	return r
}

// Summarize counts comparison outcomes. TotalScreenshots is len(records).
func Summarize(records []baseline.ComparisonRecord) Summary {
	s := Summary{TotalScreenshots: len(records)}
	for _, rec := range records {
		if rec.IsNewBaseline {
			s.NewBaselines++
		}
		if rec.HadExistingBaseline {
			s.Comparisons++
			if rec.Matched != nil && !*rec.Matched {
				s.Mismatches++
			}
		}
	}
	return s
}

// TestSummary counts targets by outcome. Skipped targets are also failed.
type TestSummary struct {
	TotalTests int `json:"totalTests"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// ConfigSnapshot records the settings a run used.
type ConfigSnapshot struct {
	Modes         []string `json:"modes"`
	WebPort       int      `json:"webPort"`
	WebURL        string   `json:"webUrl,omitempty"`
	AndroidDevice string   `json:"androidDevice,omitempty"`
	Scenario      string   `json:"scenario,omitempty"`
	Comparator    string   `json:"comparator"`
	OutputDir     string   `json:"outputDir"`
	BaselineDir   string   `json:"baselineDir"`
	ReportsDir    string   `json:"reportsDir"`
}

// ConsolidatedReport summarizes a multi-target run.
type ConsolidatedReport struct {
	RunID     string         `json:"runId"`
	Timestamp time.Time      `json:"timestamp"`
	Summary   TestSummary    `json:"summary"`
	Visual    Summary        `json:"visual"`
	Results   Results        `json:"results"`
	Config    ConfigSnapshot `json:"config"`
}

// Consolidate derives the multi-target summary from a visual report.
func Consolidate(runID string, r *Report, cfg ConfigSnapshot) *ConsolidatedReport {
	c := &ConsolidatedReport{
		RunID:     runID,
		Timestamp: r.Timestamp,
		Visual:    r.Summary,
		Results:   r.Results,
		Config:    cfg,
	}
	for _, res := range r.Results.Ordered() {
		c.Summary.TotalTests++
		if res.Success {
			c.Summary.Successful++
		} else {
			c.Summary.Failed++
		}
		if res.Skipped {
			c.Summary.Skipped++
		}
	}
	return c
}

// Success reports whether every target that ran succeeded.
func (c *ConsolidatedReport) Success() bool {
	return c.Summary.TotalTests > 0 && c.Summary.Failed == 0
}
