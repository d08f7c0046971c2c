package workflow

import (
	"fmt"
	"sync"

	"datalens/domain/core"
)

// Step is one stage of the guided analysis workflow. Progression is strictly
// forward; there are no backward transitions.
type Step int

const (
	StepInit Step = iota
	StepUpload
	StepVariableSelection
	StepQuality
	StepOutliers
	StepUnivariate
	StepBivariate
	StepCorrelation
)

var stepNames = map[Step]string{
	StepInit:              "init",
	StepUpload:            "upload",
	StepVariableSelection: "variable_selection",
	StepQuality:           "quality",
	StepOutliers:          "outliers",
	StepUnivariate:        "univariate",
	StepBivariate:         "bivariate",
	StepCorrelation:       "correlation",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Machine tracks the current workflow step. Preconditions on transitions are
// enforced by the caller before Advance; the machine itself only guards
// ordering. A refused transition leaves the state unchanged. Safe for
// concurrent use: read-only operations may race with an Advance from
// another goroutine.
type Machine struct {
	mu      sync.RWMutex
	current Step
}

// NewMachine creates a machine at the initial step
func NewMachine() *Machine {
	return &Machine{current: StepInit}
}

// Current returns the current step
func (m *Machine) Current() Step {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// AtLeast reports whether the workflow has reached the given step
func (m *Machine) AtLeast(s Step) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current >= s
}

// Advance moves to the next step. Only single forward steps are allowed;
// anything else is a validation failure, never a fatal error.
func (m *Machine) Advance(next Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if next != m.current+1 {
		return fmt.Errorf("%w: cannot move from %s to %s", core.ErrStepOrder, m.current, next)
	}
	m.current = next
	return nil
}

// Require fails with a validation error unless the workflow has reached the
// given step.
func (m *Machine) Require(s Step) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current < s {
		return fmt.Errorf("%w: requires step %s, currently at %s", core.ErrStepOrder, s, m.current)
	}
	return nil
}
