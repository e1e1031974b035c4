package plan

import (
	bt "github.com/joeycumines/go-behaviortree"
)

// NodeAction adapts a behaviour tree node to Action. Tick errors are reported
// as failures, matching how go-behaviortree composites treat them.
type NodeAction struct {
	node      bt.Node
	onCancel  func()
	cancelled bool
}

var _ Action = (*NodeAction)(nil)

// NewNodeAction wraps node. onCancel may be nil.
func NewNodeAction(node bt.Node, onCancel func()) *NodeAction {
	return &NodeAction{node: node, onCancel: onCancel}
}

// Tick implements Action.
func (a *NodeAction) Tick() (bt.Status, error) {
	if a.cancelled || a.node == nil {
		return bt.Failure, nil
	}
	status, err := a.node.Tick()
	if err != nil {
		return bt.Failure, err
	}
	return status, nil
}

// Cancel implements Action.
func (a *NodeAction) Cancel() {
	if a.cancelled {
		return
	}
	a.cancelled = true
	if a.onCancel != nil {
		a.onCancel()
	}
}

// TimedAction takes a fixed number of ticks, then applies its effect.
// While running it re-checks its precondition every tick and fails as soon
// as the precondition no longer holds.
type TimedAction struct {
	// Name is used for debugging only.
	Name string
	// Ticks is the number of ticks before the effect is applied; values
	// below one complete on the first tick.
	Ticks int
	// Pre is checked every tick; nil means always satisfied.
	Pre func() bool
	// Apply runs once, on the completing tick.
	Apply func()

	elapsed   int
	cancelled bool
	done      bt.Status
}

var _ Action = (*TimedAction)(nil)

// Tick implements Action.
func (a *TimedAction) Tick() (bt.Status, error) {
	if a.done != 0 {
		return a.done, nil
	}
	if a.cancelled {
		return bt.Failure, nil
	}
	if a.Pre != nil && !a.Pre() {
		a.done = bt.Failure
		return a.done, nil
	}
	a.elapsed++
	if a.elapsed < a.Ticks {
		return bt.Running, nil
	}
	if a.Apply != nil {
		a.Apply()
	}
	a.done = bt.Success
	return a.done, nil
}

// Cancel implements Action.
func (a *TimedAction) Cancel() {
	a.cancelled = true
}

// Cancelled reports whether Cancel was called.
func (a *TimedAction) Cancelled() bool {
	return a.cancelled
}
