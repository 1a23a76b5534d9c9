package testutil

import (
	"sync"

	"github.com/stancld/rossum-agents-sub001/core"
)

// StepRecorder is an emit function target that records steps safely from
// any goroutine.
type StepRecorder struct {
	mu    sync.Mutex
	steps []core.Step
}

// Emit records s. Its signature matches the agent emit callback.
func (r *StepRecorder) Emit(s core.Step) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.steps = append(r.steps, s)

	return nil
}

// Steps returns a copy of the recorded steps.
func (r *StepRecorder) Steps() []core.Step {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]core.Step(nil), r.steps...)
}

// Kinds returns the wire kinds of the recorded steps.
func (r *StepRecorder) Kinds() []string { return StepKinds(r.Steps()) }

// StepKinds maps steps to their wire kinds.
func StepKinds(steps []core.Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Kind()
	}

	return out
}
