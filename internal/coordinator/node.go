package coordinator

import (
	bt "github.com/joeycumines/go-behaviortree"
)

// PlanNode embeds a Coordinator in a behaviour tree as a leaf. Each tick of
// the node drives the coordinator once; Failure propagates to the parent
// selector or sequence like any other leaf.
//
// A node that was not ticked on the previous simulation tick is considered
// to have been deactivated in between, and its coordinator is reset before
// being driven again.
type PlanNode[W, In any] struct {
	coord    *Coordinator[W, In]
	runtime  ActionRuntime
	frame    func() Frame[W]
	lastTick uint64
	active   bool
	last     Result
}

// NewPlanNode binds coord to rt. frame supplies the current frame each time
// the node is ticked.
func NewPlanNode[W, In any](coord *Coordinator[W, In], rt ActionRuntime, frame func() Frame[W]) *PlanNode[W, In] {
	return &PlanNode[W, In]{
		coord:   coord,
		runtime: rt,
		frame:   frame,
	}
}

// Node returns the behaviour tree node.
func (n *PlanNode[W, In]) Node() bt.Node {
	return bt.New(n.tick)
}

// Last returns the result of the most recent tick.
func (n *PlanNode[W, In]) Last() Result {
	return n.last
}

// Deactivate resets the coordinator immediately, e.g. when the owning tree
// switches branches.
func (n *PlanNode[W, In]) Deactivate() {
	n.coord.Reset()
	n.active = false
}

func (n *PlanNode[W, In]) tick([]bt.Node) (bt.Status, error) {
	frame := n.frame()
	if n.active && frame.Tick != n.lastTick && frame.Tick != n.lastTick+1 {
		n.coord.Reset()
	}
	n.active = true
	n.lastTick = frame.Tick

	res, err := n.coord.Drive(frame, n.runtime)
	n.last = res
	if err != nil {
		return bt.Failure, err
	}
	switch res.Status {
	case StatusRunning:
		return bt.Running, nil
	case StatusSuccess:
		return bt.Success, nil
	default:
		return bt.Failure, nil
	}
}
