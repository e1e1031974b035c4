package plan

import (
	"fmt"
	"log/slog"

	bt "github.com/joeycumines/go-behaviortree"
)

// Executor runs a Spec one step at a time. Each step is built from the
// factory only when it is reached, so a plan that is cancelled early never
// materializes its tail.
//
// A step that succeeds hands over to the next step on the following tick.
// The plan fails as soon as one step fails, errors, or cannot be built.
type Executor struct {
	spec    Spec
	factory ActionFactory
	index   int
	current Action
	final   bt.Status
}

var _ Action = (*Executor)(nil)

// NewExecutor creates an executor positioned at the first step.
func NewExecutor(spec Spec, factory ActionFactory) *Executor {
	return &Executor{
		spec:    spec,
		factory: factory,
	}
}

// Spec returns the plan being executed.
func (x *Executor) Spec() Spec {
	return x.spec
}

// Progress returns the index of the step currently executing (or the number
// of steps, once the plan completed).
func (x *Executor) Progress() int {
	return x.index
}

// Tick implements Action.
func (x *Executor) Tick() (bt.Status, error) {
	if x.final != 0 {
		return x.final, nil
	}

	if x.index >= x.spec.Len() {
		x.final = bt.Success
		return x.final, nil
	}

	if x.current == nil {
		step := x.spec.Steps[x.index]
		action, err := x.factory.Build(step)
		if err != nil {
			x.final = bt.Failure
			return x.final, fmt.Errorf("plan: build step %d (%s): %w", x.index, step.Name, err)
		}
		if action == nil {
			x.final = bt.Failure
			return x.final, fmt.Errorf("plan: build step %d (%s): nil action", x.index, step.Name)
		}
		x.current = action
		slog.Debug("plan step started", "index", x.index, "step", step.Name, "len", x.spec.Len())
	}

	status, err := x.current.Tick()
	if err != nil {
		x.current = nil
		x.final = bt.Failure
		return x.final, fmt.Errorf("plan: step %d (%s): %w", x.index, x.spec.Steps[x.index].Name, err)
	}

	switch status {
	case bt.Running:
		return bt.Running, nil
	case bt.Success:
		x.current = nil
		x.index++
		if x.index >= x.spec.Len() {
			x.final = bt.Success
			return x.final, nil
		}
		return bt.Running, nil
	default:
		slog.Debug("plan step failed", "index", x.index, "step", x.spec.Steps[x.index].Name)
		x.current = nil
		x.final = bt.Failure
		return x.final, nil
	}
}

// Cancel implements Action. The in-flight step, if any, is cancelled and the
// executor reports failure from then on.
func (x *Executor) Cancel() {
	if x.current != nil {
		x.current.Cancel()
		x.current = nil
	}
	if x.final == 0 {
		x.final = bt.Failure
	}
}
