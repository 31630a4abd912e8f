package workflow

import (
	"context"
)

// StepState is the outcome of one step in a Sequence.
type StepState string

const (
	StepDone    StepState = "done"
	StepFailed  StepState = "failed"
	StepSkipped StepState = "skipped"
)

// StepResult reports one step independently of the others.
type StepResult struct {
	Name  string    `json:"name"`
	State StepState `json:"state"`
	Err   error     `json:"-"`
}

// OK reports whether the step completed.
func (r StepResult) OK() bool {
	return r.State == StepDone
}

// Step is one unit of a Sequence.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Sequence runs dependent steps in order. A step runs only when every step
// before it completed; a failure never rolls back earlier steps.
type Sequence struct {
	steps []Step
}

// NewSequence creates a sequence from ordered steps.
func NewSequence(steps ...Step) *Sequence {
	return &Sequence{steps: steps}
}

// Run executes the steps and returns one result per step, in order.
func (s *Sequence) Run(ctx context.Context) []StepResult {
	results := make([]StepResult, len(s.steps))
	failed := false
	for i, step := range s.steps {
		results[i].Name = step.Name
		if failed {
			results[i].State = StepSkipped
			continue
		}
		if err := step.Run(ctx); err != nil {
			results[i].State = StepFailed
			results[i].Err = err
			failed = true
			continue
		}
		results[i].State = StepDone
	}
	return results
}
