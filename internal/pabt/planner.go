package pabt

import (
	"fmt"
	"log/slog"

	bt "github.com/joeycumines/go-behaviortree"
	pabtpkg "github.com/joeycumines/go-pabt"
	"github.com/joeycumines/plancoord/internal/coordinator"
	"github.com/joeycumines/plancoord/internal/plan"
	"github.com/joeycumines/plancoord/internal/probe"
)

// StepName names the single step of every PA-BT plan.
const StepName = "pabt"

// Goal is OR'd groups of AND'd conditions.
type Goal []pabtpkg.IConditions

// Planner implements coordinator.Planner[Goal] over a State.
type Planner struct {
	state *State
}

// NewPlanner creates a planner for st.
func NewPlanner(st *State) *Planner {
	return &Planner{state: st}
}

// Plan builds a PA-BT tree for goal. The plan has one step whose Params is
// the tree's bt.Node; a goal that already holds yields an empty plan.
func (p *Planner) Plan(goal Goal) (plan.Spec, bool) {
	if Satisfied(p.state, goal) {
		return plan.Spec{}, true
	}
	pl, err := pabtpkg.INew(p.state, []pabtpkg.IConditions(goal))
	if err != nil {
		slog.Debug("pabt planning failed", "error", err)
		return plan.Spec{}, false
	}
	return plan.Spec{Steps: []plan.Step{{Name: StepName, Params: pl.Node()}}}, true
}

// Done reports whether goal holds in the planner's state.
func (p *Planner) Done(goal Goal) bool {
	return Satisfied(p.state, goal)
}

// Factory turns the steps produced by Planner into actions.
var Factory plan.ActionFactory = plan.ActionFactoryFunc(func(step plan.Step) (plan.Action, error) {
	node, ok := step.Params.(bt.Node)
	if !ok || node == nil {
		return nil, fmt.Errorf("pabt: step %q does not carry a behaviour tree", step.Name)
	}
	return plan.NewNodeAction(node, nil), nil
})

// NewCoordinator wires a coordinator that pursues goal over st. The plan is
// invalidated whenever any of the watched blackboard keys changes, and the
// goal conditions are the Done predicate.
func NewCoordinator(key string, st *State, goal Goal, watch []string, opts ...coordinator.Option) (*coordinator.Coordinator[*State, Goal], error) {
	p := NewPlanner(st)
	probes := coordinator.Probes[*State, Goal]{
		Input: func(coordinator.Frame[*State]) Goal { return goal },
		InvalidationKey: func(f coordinator.Frame[*State]) uint64 {
			return probe.Signature(f.World.Blackboard, watch...)
		},
		Done: func(coordinator.Frame[*State]) bool { return p.Done(goal) },
	}
	return coordinator.New[*State, Goal](key, p, coordinator.StaticFactory[*State](Factory), probes, opts...)
}
