package scenario

import (
	"fmt"

	bt "github.com/joeycumines/go-behaviortree"
	pabtpkg "github.com/joeycumines/go-pabt"
	btmod "github.com/joeycumines/plancoord/internal/bt"
	"github.com/joeycumines/plancoord/internal/pabt"
	"github.com/joeycumines/plancoord/internal/planner/goap"
)

// pabtState registers one PA-BT action per scenario action over bb. Facts
// are the blackboard keys, each true or false.
func (c *compiled) pabtState(sc *Scenario, bb *btmod.Blackboard, w *World) (*pabt.State, error) {
	st := pabt.NewState(bb)
	for _, spec := range sc.Actions {
		a := c.actions[spec.Name]
		b := pabt.NewActionBuilder(a.Name)
		if pre := c.pabtConditions(a.Pre); len(pre) > 0 {
			b.When(pre...)
		}
		for i, fact := range c.vocab {
			bit := goap.State(1) << uint(i)
			switch {
			case a.Add&bit != 0:
				b.Sets(fact, true)
			case a.Del&bit != 0:
				b.Sets(fact, false)
			}
		}
		action, err := b.Do(c.pabtNode(a, bb, w)).Build()
		if err != nil {
			return nil, fmt.Errorf("scenario: %w", err)
		}
		st.RegisterAction(a.Name, action)
	}
	return st, nil
}

func (c *compiled) pabtGoal() pabt.Goal {
	return pabt.Goal{pabtpkg.IConditions(c.pabtConditions(c.goal))}
}

func (c *compiled) pabtConditions(s goap.State) []pabtpkg.Condition {
	var conds []pabtpkg.Condition
	for i, fact := range c.vocab {
		if s&(goap.State(1)<<uint(i)) != 0 {
			conds = append(conds, pabt.Equals(fact, true))
		}
	}
	return conds
}

// pabtNode runs a for its duration, failing whenever its preconditions stop
// holding. On completion the effects are applied and published so the rest
// of the tree sees them within the same tick.
func (c *compiled) pabtNode(a timedAction, bb *btmod.Blackboard, w *World) bt.Node {
	var elapsed int
	return bt.New(func([]bt.Node) (bt.Status, error) {
		if !a.Applicable(w.State) {
			elapsed = 0
			return bt.Failure, nil
		}
		if elapsed++; elapsed < a.duration {
			return bt.Running, nil
		}
		elapsed = 0
		w.State = a.Apply(w.State)
		c.publish(bb, w.State)
		return bt.Success, nil
	})
}
