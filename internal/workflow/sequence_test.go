package workflow

import (
	"context"
	"errors"
	"testing"
)

func TestSequence_Run(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name   string
		errs   []error
		states []StepState
	}{
		{
			name:   "all succeed",
			errs:   []error{nil, nil, nil},
			states: []StepState{StepDone, StepDone, StepDone},
		},
		{
			name:   "first fails",
			errs:   []error{errBoom, nil, nil},
			states: []StepState{StepFailed, StepSkipped, StepSkipped},
		},
		{
			name:   "last fails",
			errs:   []error{nil, nil, errBoom},
			states: []StepState{StepDone, StepDone, StepFailed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ran := make([]bool, len(tt.errs))
			steps := make([]Step, len(tt.errs))
			for i, err := range tt.errs {
				steps[i] = Step{Name: string(rune('a' + i)), Run: func(context.Context) error {
					ran[i] = true
					return err
				}}
			}

			results := NewSequence(steps...).Run(context.Background())
			if len(results) != len(tt.states) {
				t.Fatalf("len(results) = %d, want %d", len(results), len(tt.states))
			}
			for i, want := range tt.states {
				if results[i].State != want {
					t.Errorf("step %d state = %s, want %s", i, results[i].State, want)
				}
				if ran[i] != (want != StepSkipped) {
					t.Errorf("step %d ran = %v", i, ran[i])
				}
				if want == StepFailed && !errors.Is(results[i].Err, errBoom) {
					t.Errorf("step %d err = %v", i, results[i].Err)
				}
				if results[i].OK() != (want == StepDone) {
					t.Errorf("step %d OK() = %v", i, results[i].OK())
				}
			}
		})
	}
}
