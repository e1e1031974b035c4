// Package plan defines plan specifications and the runnable actions that
// execute them.
//
// A Spec is an ordered, opaque list of steps produced by a planner. The
// coordinator only observes its length; an ActionFactory gives each step
// meaning by materializing it into an Action, and an Executor walks the steps
// one at a time.
package plan

import (
	"fmt"
	"strings"

	bt "github.com/joeycumines/go-behaviortree"
)

// Step is one abstract action specification.
type Step struct {
	// Name identifies the action kind, e.g. "travel_store".
	Name string
	// Params carries planner-specific data for the factory, or nil.
	Params any
}

// Spec is an ordered sequence of steps.
type Spec struct {
	Steps []Step
}

// NewSpec builds a Spec of parameterless steps.
func NewSpec(names ...string) Spec {
	steps := make([]Step, len(names))
	for i, name := range names {
		steps[i] = Step{Name: name}
	}
	return Spec{Steps: steps}
}

// Len returns the number of steps.
func (s Spec) Len() int {
	return len(s.Steps)
}

// Names returns the step names in order.
func (s Spec) Names() []string {
	names := make([]string, len(s.Steps))
	for i, step := range s.Steps {
		names[i] = step.Name
	}
	return names
}

func (s Spec) String() string {
	return "[" + strings.Join(s.Names(), " ") + "]"
}

// Outcome is the terminal result of one plan execution.
type Outcome int

const (
	OutcomeSuccess Outcome = iota + 1
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// OutcomeOf maps a terminal behaviour tree status to an Outcome.
// Returns false for bt.Running or unknown statuses.
func OutcomeOf(status bt.Status) (Outcome, bool) {
	switch status {
	case bt.Success:
		return OutcomeSuccess, true
	case bt.Failure:
		return OutcomeFailure, true
	default:
		return 0, false
	}
}

// Action is a runnable unit of work, ticked until it stops returning
// bt.Running. Cancel is logical: it tells the action it will not be ticked
// again and must release whatever it holds.
type Action interface {
	Tick() (bt.Status, error)
	Cancel()
}

// ActionFactory materializes an abstract step into a runnable action.
type ActionFactory interface {
	Build(step Step) (Action, error)
}

// ActionFactoryFunc adapts a function to ActionFactory.
type ActionFactoryFunc func(step Step) (Action, error)

// Build implements ActionFactory.
func (f ActionFactoryFunc) Build(step Step) (Action, error) {
	return f(step)
}

// Builder lazily constructs the action bound to a runtime key. Runtimes only
// invoke it when they actually need a new action.
type Builder func() (Action, error)

// ExecutorBuilder returns a Builder that walks spec using factory.
func ExecutorBuilder(spec Spec, factory ActionFactory) Builder {
	return func() (Action, error) {
		if factory == nil {
			return nil, fmt.Errorf("plan: nil action factory")
		}
		return NewExecutor(spec, factory), nil
	}
}
