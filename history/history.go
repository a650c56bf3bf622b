// Package history persists finished runs so they can be listed and inspected later.
package history

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/report"
)

var (
	// ErrRunNotFound is returned when a run is not found.
	ErrRunNotFound = errors.New("run not found")

	// ErrInvalidModes is returned when a run records no targets.
	ErrInvalidModes = errors.New("run modes are required")
)

// Status is the overall outcome of a run.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// Run is one orchestrator invocation.
type Run struct {
	ID               uuid.UUID   `json:"id" gorm:"type:char(36);primaryKey"`
	Modes            string      `json:"modes" gorm:"type:varchar(255);not null"`
	Status           Status      `json:"status" gorm:"type:varchar(20);not null;index:idx_runs_status"`
	TotalTests       int         `json:"total_tests"`
	Successful       int         `json:"successful"`
	Failed           int         `json:"failed"`
	Skipped          int         `json:"skipped"`
	TotalScreenshots int         `json:"total_screenshots"`
	NewBaselines     int         `json:"new_baselines"`
	Comparisons      int         `json:"comparisons"`
	Mismatches       int         `json:"mismatches"`
	ReportPath       string      `json:"report_path" gorm:"type:varchar(512)"`
	StartedAt        time.Time   `json:"started_at" gorm:"index:idx_runs_started_at"`
	CompletedAt      time.Time   `json:"completed_at"`
	Targets          []RunTarget `json:"targets,omitempty" gorm:"foreignKey:RunID"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// RunTarget is the outcome of one target within a run.
type RunTarget struct {
	ID          uuid.UUID       `json:"id" gorm:"type:char(36);primaryKey"`
	RunID       uuid.UUID       `json:"run_id" gorm:"type:char(36);not null;index:idx_run_targets_run_id"`
	Target      string          `json:"target" gorm:"type:varchar(20);not null"`
	Success     bool            `json:"success"`
	Skipped     bool            `json:"skipped"`
	Screenshots int             `json:"screenshots"`
	Error       string          `json:"error,omitempty" gorm:"type:text"`
	ErrorKind   string          `json:"error_kind,omitempty" gorm:"type:varchar(32)"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
	Comparisons []RunComparison `json:"comparisons,omitempty" gorm:"foreignKey:RunTargetID"`
}

// RunComparison is one reconciled capture.
type RunComparison struct {
	ID            uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	RunTargetID   uuid.UUID `json:"run_target_id" gorm:"type:char(36);not null;index:idx_run_comparisons_run_target_id"`
	Name          string    `json:"name" gorm:"type:varchar(255);not null"`
	CurrentPath   string    `json:"current_path" gorm:"type:varchar(512)"`
	BaselinePath  string    `json:"baseline_path" gorm:"type:varchar(512)"`
	IsNewBaseline bool      `json:"is_new_baseline"`
	Comparator    string    `json:"comparator,omitempty" gorm:"type:varchar(32)"`
	Difference    *float64  `json:"difference,omitempty"`
	Matched       *bool     `json:"matched,omitempty"`
}

// BeforeCreate hook to generate UUID before creating a new run
func (r *Run) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// BeforeCreate hook to generate UUID before creating a new run target
func (t *RunTarget) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// BeforeCreate hook to generate UUID before creating a new comparison
func (c *RunComparison) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Validate checks if the run has valid required fields.
func (r *Run) Validate() error {
	if strings.TrimSpace(r.Modes) == "" {
		return ErrInvalidModes
	}
	return nil
}

// ModeList splits Modes into target names.
func (r *Run) ModeList() []string {
	if r.Modes == "" {
		return nil
	}
	return strings.Split(r.Modes, ",")
}

// FromReport builds a Run from a consolidated report and the target runs behind it.
// An unparsable runID leaves ID unset so one is generated on create.
func FromReport(c *report.ConsolidatedReport, runs []report.TargetRun, reportPath string, startedAt time.Time) *Run {
	run := &Run{
		Modes:            strings.Join(c.Config.Modes, ","),
		Status:           StatusFailed,
		TotalTests:       c.Summary.TotalTests,
		Successful:       c.Summary.Successful,
		Failed:           c.Summary.Failed,
		Skipped:          c.Summary.Skipped,
		TotalScreenshots: c.Visual.TotalScreenshots,
		NewBaselines:     c.Visual.NewBaselines,
		Comparisons:      c.Visual.Comparisons,
		Mismatches:       c.Visual.Mismatches,
		ReportPath:       reportPath,
		StartedAt:        startedAt,
		CompletedAt:      c.Timestamp,
	}
	if id, err := uuid.Parse(c.RunID); err == nil {
		run.ID = id
	}
	if c.Success() {
		run.Status = StatusPassed
	}

	for _, tr := range runs {
		target := RunTarget{
			Target:      string(tr.Result.Target),
			Success:     tr.Result.Success,
			Skipped:     tr.Result.Skipped,
			Screenshots: tr.Result.Screenshots,
			Error:       tr.Result.Error,
			ErrorKind:   tr.Result.ErrorKind,
			StartedAt:   tr.Result.StartedAt,
			CompletedAt: tr.Result.CompletedAt,
		}
		for _, rec := range tr.Comparisons {
			target.Comparisons = append(target.Comparisons, RunComparison{
				Name:          rec.Name,
				CurrentPath:   rec.CurrentPath,
				BaselinePath:  rec.BaselinePath,
				IsNewBaseline: rec.IsNewBaseline,
				Comparator:    rec.Comparator,
				Difference:    rec.Difference,
				Matched:       rec.Matched,
			})
		}
		run.Targets = append(run.Targets, target)
	}
	return run
}
