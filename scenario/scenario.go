package scenario

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidScenarioName is returned when a scenario has no name.
	ErrInvalidScenarioName = errors.New("scenario name is required")

	// ErrInvalidActionName is returned when an action name is empty or not usable as a file name.
	ErrInvalidActionName = errors.New("invalid action name")

	// ErrMissingSelector is returned when a click or type action has no selector.
	ErrMissingSelector = errors.New("selector is required")

	// ErrNegativeValue is returned when a duration, timeout or scroll distance is negative.
	ErrNegativeValue = errors.New("value must not be negative")

	// ErrTooManyActions is returned when a scenario exceeds the action limit.
	ErrTooManyActions = errors.New("too many actions")
)

// Kind identifies the interaction an action performs.
type Kind string

const (
	KindClick  Kind = "click"
	KindType   Kind = "type"
	KindWait   Kind = "wait"
	KindScroll Kind = "scroll"
)

// IsKnown reports whether the executor has a dispatch for k. Unknown kinds are
// accepted in scenario files and only skip the interaction.
func (k Kind) IsKnown() bool {
	switch k {
	case KindClick, KindType, KindWait, KindScroll:
		return true
	}
	return false
}

// CaptureOptions controls how the screenshot after an action is taken.
type CaptureOptions struct {
	WaitForSelector string `yaml:"waitForSelector,omitempty" json:"waitForSelector,omitempty"`
	WaitForTimeout  int    `yaml:"waitForTimeout,omitempty" json:"waitForTimeout,omitempty"` // ms
	FullPage        bool   `yaml:"fullPage,omitempty" json:"fullPage,omitempty"`
}

// Action is one step of a scenario. The name doubles as the screenshot name.
type Action struct {
	Name       string          `yaml:"name" json:"name"`
	Kind       Kind            `yaml:"type" json:"type"`
	Selector   string          `yaml:"selector,omitempty" json:"selector,omitempty"`
	Text       string          `yaml:"text,omitempty" json:"text,omitempty"`
	Duration   int             `yaml:"duration,omitempty" json:"duration,omitempty"` // ms
	Pixels     int             `yaml:"pixels,omitempty" json:"pixels,omitempty"`
	Screenshot *CaptureOptions `yaml:"screenshotOptions,omitempty" json:"screenshotOptions,omitempty"`
}

// CaptureOptions returns the action's capture options or the zero value.
func (a Action) CaptureOptions() CaptureOptions {
	if a.Screenshot == nil {
		return CaptureOptions{}
	}
	return *a.Screenshot
}

// Scenario is a named, ordered list of actions.
type Scenario struct {
	Name    string   `yaml:"name" json:"name"`
	Actions []Action `yaml:"actions" json:"actions"`
}

// MaxActions bounds the number of actions accepted in one scenario.
const MaxActions = 500

// Validate checks that every action can be dispatched and captured.
func (s *Scenario) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return ErrInvalidScenarioName
	}
	if len(s.Actions) > MaxActions {
		return fmt.Errorf("%w: %d (max %d)", ErrTooManyActions, len(s.Actions), MaxActions)
	}

	for i, a := range s.Actions {
		if err := a.validate(); err != nil {
			return fmt.Errorf("action %d (%q): %w", i, a.Name, err)
		}
	}
	return nil
}

func (a Action) validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidActionName)
	}
	if strings.ContainsAny(a.Name, `/\`) || a.Name == "." || a.Name == ".." {
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidActionName, a.Name)
	}

	switch a.Kind {
	case KindClick, KindType:
		if a.Selector == "" {
			return fmt.Errorf("%w for %s", ErrMissingSelector, a.Kind)
		}
	}

	// Pixels is signed; a negative offset scrolls up.
	if a.Duration < 0 {
		return ErrNegativeValue
	}
	if a.Screenshot != nil && a.Screenshot.WaitForTimeout < 0 {
		return ErrNegativeValue
	}
	return nil
}
