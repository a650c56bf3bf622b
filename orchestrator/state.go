package orchestrator

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a coordinator state change is not allowed.
var ErrInvalidTransition = errors.New("invalid state transition")

// State is a step in the lifecycle of one target run.
type State string

const (
	StateIdle          State = "idle"
	StateInitializing  State = "initializing"
	StateTargetReady   State = "target_ready"
	StateExecuting     State = "executing"
	StateReconciling   State = "reconciling"
	StateReportingDone State = "reporting_done"
	StateFailed        State = "failed"
)

var transitions = map[State]State{
	StateIdle:         StateInitializing,
	StateInitializing: StateTargetReady,
	StateTargetReady:  StateExecuting,
	StateExecuting:    StateReconciling,
	StateReconciling:  StateReportingDone,
}

// IsFinal reports whether no further transition is possible.
func (s State) IsFinal() bool {
	return s == StateReportingDone || s == StateFailed
}

// CanTransition reports whether s may move to next. Failed is reachable from
// every non-final state.
func (s State) CanTransition(next State) bool {
	if s.IsFinal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	return transitions[s] == next
}

// Machine tracks the state of one target run and the path it took.
type Machine struct {
	current State
	history []State
}

// NewMachine starts in StateIdle.
func NewMachine() *Machine {
	return &Machine{current: StateIdle, history: []State{StateIdle}}
}

// Current returns the current state.
func (m *Machine) Current() State {
	return m.current
}

// Transition moves to next or returns ErrInvalidTransition.
func (m *Machine) Transition(next State) error {
	if !m.current.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.current, next)
	}
	m.current = next
	m.history = append(m.history, next)
	return nil
}

// Fail moves to StateFailed unless the machine is already final.
func (m *Machine) Fail() {
	if !m.current.IsFinal() {
		m.current = StateFailed
		m.history = append(m.history, StateFailed)
	}
}

// History returns the visited states as strings, oldest first.
func (m *Machine) History() []string {
	out := make([]string, len(m.history))
	for i, s := range m.history {
		out[i] = string(s)
	}
	return out
}
