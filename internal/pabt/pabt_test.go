package pabt

import (
	"errors"
	"testing"

	bt "github.com/joeycumines/go-behaviortree"
	pabtpkg "github.com/joeycumines/go-pabt"
	"github.com/joeycumines/plancoord/internal/actionrt"
	btmod "github.com/joeycumines/plancoord/internal/bt"
	"github.com/joeycumines/plancoord/internal/coordinator"
	"github.com/joeycumines/plancoord/internal/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type symbol string

func (s symbol) String() string { return string(s) }

func TestState_Variable(t *testing.T) {
	bb := new(btmod.Blackboard)
	bb.Set("x", 1)
	bb.Set("7", "seven")
	st := NewState(bb)

	v, err := st.Variable("x")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = st.Variable(7)
	require.NoError(t, err)
	assert.Equal(t, "seven", v)

	v, err = st.Variable(uint8(7))
	require.NoError(t, err)
	assert.Equal(t, "seven", v)

	v, err = st.Variable(symbol("x"))
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = st.Variable("missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = st.Variable(nil)
	assert.Error(t, err)
	_, err = st.Variable(1.5)
	assert.Error(t, err)
}

func mustAction(t *testing.T, b *ActionBuilder) *Action {
	t.Helper()
	a, err := b.Build()
	require.NoError(t, err)
	return a
}

var noop = bt.New(func([]bt.Node) (bt.Status, error) { return bt.Success, nil })

func TestState_ActionsFiltersByEffect(t *testing.T) {
	st := NewState(new(btmod.Blackboard))
	st.RegisterAction("open", mustAction(t, NewActionBuilder("open").Sets("door", "open").Do(noop)))
	st.RegisterAction("close", mustAction(t, NewActionBuilder("close").Sets("door", "closed").Do(noop)))
	st.RegisterAction("fetch", mustAction(t, NewActionBuilder("fetch").Sets("key", true).Do(noop)))

	actions, err := st.Actions(Equals("door", "open"))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "open", actions[0].(*Action).Name)

	all, err := st.Actions(nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, []string{"close", "fetch", "open"}, st.Registry().Names())
}

func TestState_ActionGenerator(t *testing.T) {
	st := NewState(new(btmod.Blackboard))
	st.RegisterAction("static", mustAction(t, NewActionBuilder("static").Sets("at", "a").Do(noop)))

	st.SetActionGenerator(func(failed pabtpkg.Condition) ([]pabtpkg.IAction, error) {
		var out []pabtpkg.IAction
		for _, target := range []string{"a", "b"} {
			out = append(out, mustAction(t, NewActionBuilder("goto_"+target).Sets("at", target).Do(noop)))
		}
		return out, nil
	})
	require.NotNil(t, st.ActionGenerator())

	actions, err := st.Actions(Equals("at", "b"))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "goto_b", actions[0].(*Action).Name, "generator output is authoritative")

	st.SetActionGenerator(func(pabtpkg.Condition) ([]pabtpkg.IAction, error) {
		return nil, errors.New("offline")
	})
	actions, err = st.Actions(Equals("at", "a"))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "static", actions[0].(*Action).Name, "generator errors fall back to the registry")
}

func TestSatisfied(t *testing.T) {
	bb := new(btmod.Blackboard)
	bb.Set("a", 1)
	st := NewState(bb)

	assert.True(t, Satisfied(st, nil))
	assert.True(t, Satisfied(st, []pabtpkg.IConditions{{Equals("a", 1), nil}}))
	assert.False(t, Satisfied(st, []pabtpkg.IConditions{{Equals("a", 1), NotNil("b")}}))
	assert.True(t, Satisfied(st, []pabtpkg.IConditions{{NotNil("b")}, {IsNil("b")}}))
	assert.False(t, Satisfied(st, []pabtpkg.IConditions{{Equals(1.5, 1)}}), "bad keys never hold")
}

func TestNewAction_RequiresNode(t *testing.T) {
	_, err := NewAction("x", nil, nil, nil)
	assert.Error(t, err)
	_, err = NewActionBuilder("x").Sets("k", 1).Build()
	assert.Error(t, err)
}

func TestExprCondition(t *testing.T) {
	c, err := NewExprCondition("count", "value != nil && value >= 3")
	require.NoError(t, err)
	assert.Equal(t, "count", c.Key())
	assert.Equal(t, "value != nil && value >= 3", c.Expression())

	assert.False(t, c.Match(nil))
	assert.NoError(t, c.LastError())
	assert.True(t, c.Match(4))
	assert.False(t, c.Match(2))

	assert.False(t, c.Match("lots"))
	assert.Error(t, c.LastError())

	_, err = NewExprCondition("count", "value >=")
	assert.Error(t, err)
	_, err = NewExprCondition("count", "")
	assert.Error(t, err)
}

func TestFuncCondition_Nil(t *testing.T) {
	var c *FuncCondition
	assert.False(t, c.Match(1))
	assert.False(t, NewFuncCondition("k", nil).Match(1))
}

// doorWorld needs the key before the door can be opened.
func doorWorld(t *testing.T) (*State, *btmod.Blackboard, Goal) {
	bb := new(btmod.Blackboard)
	bb.Set("haveKey", false)
	bb.Set("doorOpen", false)
	st := NewState(bb)

	st.RegisterAction("fetch", mustAction(t, NewActionBuilder("fetch").
		Sets("haveKey", true).
		Do(bt.New(func([]bt.Node) (bt.Status, error) {
			bb.Set("haveKey", true)
			return bt.Success, nil
		}))))
	st.RegisterAction("open", mustAction(t, NewActionBuilder("open").
		When(Equals("haveKey", true)).
		Sets("doorOpen", true).
		Do(bt.New(func([]bt.Node) (bt.Status, error) {
			bb.Set("doorOpen", true)
			return bt.Success, nil
		}))))

	return st, bb, Goal{{Equals("doorOpen", true)}}
}

func TestPlanner_PlanAndExecute(t *testing.T) {
	st, bb, goal := doorWorld(t)
	p := NewPlanner(st)

	spec, ok := p.Plan(goal)
	require.True(t, ok)
	require.Equal(t, []string{StepName}, spec.Names())

	action, err := Factory.Build(spec.Steps[0])
	require.NoError(t, err)

	status := bt.Running
	for i := 0; i < 10 && status == bt.Running; i++ {
		status, err = action.Tick()
		require.NoError(t, err)
	}
	assert.Equal(t, bt.Success, status)
	assert.Equal(t, true, bb.Get("haveKey"))
	assert.True(t, p.Done(goal))

	spec, ok = p.Plan(goal)
	assert.True(t, ok)
	assert.Zero(t, spec.Len(), "nothing to do once the goal holds")
}

func TestFactory_RejectsForeignSteps(t *testing.T) {
	_, err := Factory.Build(plan.Step{Name: "travel"})
	assert.Error(t, err)
}

func TestNewCoordinator(t *testing.T) {
	st, bb, goal := doorWorld(t)
	coord, err := NewCoordinator("door", st, goal, []string{"haveKey"})
	require.NoError(t, err)

	rt := actionrt.New()
	var res coordinator.Result
	for tick := uint64(0); tick < 10; tick++ {
		res, err = coord.Drive(coordinator.Frame[*State]{Tick: tick, Agent: "door", World: st}, rt)
		require.NoError(t, err)
		if res.Status != coordinator.StatusRunning {
			break
		}
		rt.Tick()
	}
	assert.Equal(t, coordinator.Result{Status: coordinator.StatusSuccess, Reason: coordinator.ReasonGoalSatisfied}, res)
	assert.Equal(t, true, bb.Get("doorOpen"))
	assert.GreaterOrEqual(t, coord.Stats().PlanCalls, uint64(1))
}
