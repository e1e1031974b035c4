package coordinator

import (
	"errors"
	"fmt"

	btmod "github.com/joeycumines/plancoord/internal/bt"
	"github.com/joeycumines/plancoord/internal/plan"
)

var (
	// ErrNoPlan reports that the planner found nothing achievable for the
	// current PlanningContext. It is a normal outcome, not a fault.
	ErrNoPlan = errors.New("coordinator: no plan for current context")

	// ErrBudgetExhausted reports that the start budget for the current
	// PlanningContext is spent.
	ErrBudgetExhausted = errors.New("coordinator: plan start budget exhausted")

	// ErrStartFailed reports that the runtime refused to start a plan.
	ErrStartFailed = errors.New("coordinator: runtime failed to start plan")

	// ErrInvariantViolation reports a broken runtime contract. It is the
	// only error Drive returns.
	ErrInvariantViolation = errors.New("coordinator: invariant violation")
)

// Status is the coordinator's answer for one tick.
type Status int

const (
	StatusRunning Status = iota + 1
	StatusSuccess
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Reason explains a Result.
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonStarted: a plan was started while nothing was running.
	ReasonStarted
	// ReasonRestarted: a running plan was cancelled and replaced.
	ReasonRestarted
	// ReasonReasserted: the running plan was left alone.
	ReasonReasserted
	// ReasonThrottled: a replan is pending but the throttle window is open.
	ReasonThrottled
	// ReasonGoalSatisfied: the Done predicate holds.
	ReasonGoalSatisfied
	// ReasonCompleted: the plan finished successfully and no Done predicate is configured.
	ReasonCompleted
	// ReasonNoPlan: the planner found no plan for the current context.
	ReasonNoPlan
	// ReasonBudgetExhausted: the start budget for the current context is spent.
	ReasonBudgetExhausted
	// ReasonStartFailed: the runtime could not start the plan.
	ReasonStartFailed
	// ReasonInvariantViolation: see ErrInvariantViolation.
	ReasonInvariantViolation
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonStarted:
		return "started"
	case ReasonRestarted:
		return "restarted"
	case ReasonReasserted:
		return "reasserted"
	case ReasonThrottled:
		return "throttled"
	case ReasonGoalSatisfied:
		return "goal-satisfied"
	case ReasonCompleted:
		return "completed"
	case ReasonNoPlan:
		return "no-plan"
	case ReasonBudgetExhausted:
		return "budget-exhausted"
	case ReasonStartFailed:
		return "start-failed"
	case ReasonInvariantViolation:
		return "invariant-violation"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Result is what Drive reports for one tick.
type Result struct {
	Status Status
	Reason Reason
}

// Err maps a failing Result to its sentinel error, or nil.
func (r Result) Err() error {
	switch r.Reason {
	case ReasonNoPlan:
		return ErrNoPlan
	case ReasonBudgetExhausted:
		return ErrBudgetExhausted
	case ReasonStartFailed:
		return ErrStartFailed
	case ReasonInvariantViolation:
		return ErrInvariantViolation
	default:
		return nil
	}
}

func (r Result) String() string {
	return r.Status.String() + "/" + r.Reason.String()
}

// Phase is the coordinator's conceptual state after the latest Drive.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseReplanThrottled
	PhaseBudgetExhausted
	PhaseNoPlan
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseReplanThrottled:
		return "replan-throttled"
	case PhaseBudgetExhausted:
		return "budget-exhausted"
	case PhaseNoPlan:
		return "no-plan"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// PlanningContext identifies what the planner was asked.
type PlanningContext struct {
	InvalidationKey uint64
	CacheKey        uint64
	HasCacheKey     bool
}

// Frame is everything a probe may look at for one tick. It replaces any
// ambient per-agent state: probes and factories see exactly this.
type Frame[W any] struct {
	Tick  uint64
	Agent string
	World W
	// Blackboard is per-agent scratch space; may be nil.
	Blackboard *btmod.Blackboard
}

// Probes extract planning inputs and keys from a frame. Input and
// InvalidationKey are required; CacheKey and Done are optional.
type Probes[W, In any] struct {
	Input           func(Frame[W]) In
	InvalidationKey func(Frame[W]) uint64
	CacheKey        func(Frame[W]) uint64
	Done            func(Frame[W]) bool
}

func (p Probes[W, In]) validate() error {
	if p.Input == nil {
		return errors.New("coordinator: Probes.Input is required")
	}
	if p.InvalidationKey == nil {
		return errors.New("coordinator: Probes.InvalidationKey is required")
	}
	return nil
}

// Planner computes a plan for an input. It must be deterministic and free of
// side effects; returning false means nothing is achievable right now.
type Planner[In any] interface {
	Plan(in In) (plan.Spec, bool)
}

// PlannerFunc adapts a function to Planner.
type PlannerFunc[In any] func(in In) (plan.Spec, bool)

// Plan implements Planner.
func (f PlannerFunc[In]) Plan(in In) (plan.Spec, bool) {
	return f(in)
}

// ActionRuntime executes at most one action per key.
type ActionRuntime interface {
	// IsRunning reports whether an action is bound to key and not finished.
	IsRunning(key string) bool
	// TakeJustFinished returns, at most once, the outcome of the action
	// that last finished under key.
	TakeJustFinished(key string) (plan.Outcome, bool)
	// EnsureCurrent keeps the action bound to key, building one with build
	// only if none is running.
	EnsureCurrent(key string, build plan.Builder) error
	// ReplaceCurrentWith cancels any action bound to key and starts a new
	// one from build.
	ReplaceCurrentWith(key string, build plan.Builder) error
}

// ActionFactory builds the concrete action for a plan step, in the context
// of the frame that started the plan.
type ActionFactory[W any] interface {
	Build(frame Frame[W], step plan.Step) (plan.Action, error)
}

// ActionFactoryFunc adapts a function to ActionFactory.
type ActionFactoryFunc[W any] func(frame Frame[W], step plan.Step) (plan.Action, error)

// Build implements ActionFactory.
func (f ActionFactoryFunc[W]) Build(frame Frame[W], step plan.Step) (plan.Action, error) {
	return f(frame, step)
}

// StaticFactory adapts a frame-independent plan.ActionFactory.
func StaticFactory[W any](f plan.ActionFactory) ActionFactory[W] {
	return ActionFactoryFunc[W](func(_ Frame[W], step plan.Step) (plan.Action, error) {
		return f.Build(step)
	})
}

// bind fixes the frame, yielding a plan.ActionFactory for the executor.
func bind[W any](f ActionFactory[W], frame Frame[W]) plan.ActionFactory {
	return plan.ActionFactoryFunc(func(step plan.Step) (plan.Action, error) {
		return f.Build(frame, step)
	})
}
