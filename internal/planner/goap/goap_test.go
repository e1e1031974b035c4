package goap

import (
	"testing"

	"github.com/joeycumines/plancoord/internal/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	hasMoney State = 1 << iota
	atStore
	atShed
	hasTool
	storeOpen
)

var toolActions = []Action{
	{Name: "travel_store", Add: atStore, Del: atShed, Cost: 1},
	{Name: "buy_tool", Pre: atStore | hasMoney | storeOpen, Add: hasTool, Del: hasMoney, Cost: 1},
	{Name: "travel_shed", Add: atShed, Del: atStore, Cost: 2},
	{Name: "pickup_tool", Pre: atShed, Add: hasTool, Cost: 2},
}

func toolDomain(t *testing.T, opts ...Option) *Domain {
	t.Helper()
	d, err := NewDomain(toolActions, opts...)
	require.NoError(t, err)
	return d
}

func TestPlan_CheapestPath(t *testing.T) {
	d := toolDomain(t)

	spec, ok := d.Plan(Input{Start: hasMoney | storeOpen, Goal: hasTool})
	require.True(t, ok)
	assert.Equal(t, []string{"travel_store", "buy_tool"}, spec.Names())

	spec, ok = d.Plan(Input{Start: storeOpen, Goal: hasTool})
	require.True(t, ok)
	assert.Equal(t, []string{"travel_shed", "pickup_tool"}, spec.Names())
}

func TestPlan_StepParamsCarryAction(t *testing.T) {
	d := toolDomain(t)
	spec, ok := d.Plan(Input{Start: hasMoney | storeOpen, Goal: hasTool})
	require.True(t, ok)
	a, isAction := spec.Steps[1].Params.(Action)
	require.True(t, isAction)
	assert.Equal(t, toolActions[1], a)
}

func TestPlan_GoalAlreadySatisfied(t *testing.T) {
	spec, ok := toolDomain(t).Plan(Input{Start: hasTool | atShed, Goal: hasTool})
	assert.True(t, ok)
	assert.Zero(t, spec.Len())
}

func TestPlan_Unreachable(t *testing.T) {
	d, err := NewDomain([]Action{{Name: "buy_tool", Pre: hasMoney, Add: hasTool}})
	require.NoError(t, err)
	_, ok := d.Plan(Input{Goal: hasTool})
	assert.False(t, ok)
}

func TestPlan_NodeBudget(t *testing.T) {
	var chain []Action
	for i := range 10 {
		chain = append(chain, Action{Name: string(rune('a' + i)), Pre: 1 << uint(i), Add: 1 << uint(i+1), Cost: 1})
	}
	d, err := NewDomain(chain, WithMaxNodes(3))
	require.NoError(t, err)
	_, ok := d.Plan(Input{Start: 1, Goal: 1 << 10})
	assert.False(t, ok)

	d, err = NewDomain(chain)
	require.NoError(t, err)
	spec, ok := d.Plan(Input{Start: 1, Goal: 1 << 10})
	require.True(t, ok)
	assert.Equal(t, 10, spec.Len())
}

func TestPlan_TiesFollowDeclarationOrder(t *testing.T) {
	d, err := NewDomain([]Action{
		{Name: "second", Add: hasTool, Cost: 1},
		{Name: "first", Add: hasTool, Cost: 1},
	})
	require.NoError(t, err)
	for range 10 {
		spec, ok := d.Plan(Input{Goal: hasTool})
		require.True(t, ok)
		assert.Equal(t, plan.NewSpec("second").Names(), spec.Names())
	}
}

func TestPlan_ZeroCostActions(t *testing.T) {
	d, err := NewDomain([]Action{
		{Name: "toggle", Add: atStore},
		{Name: "untoggle", Pre: atStore, Del: atStore},
		{Name: "finish", Pre: atStore, Add: hasTool},
	})
	require.NoError(t, err)
	spec, ok := d.Plan(Input{Goal: hasTool})
	require.True(t, ok)
	assert.Equal(t, []string{"toggle", "finish"}, spec.Names())
}

func TestNewDomain_Validation(t *testing.T) {
	_, err := NewDomain([]Action{{Name: ""}})
	assert.Error(t, err)
	_, err = NewDomain([]Action{{Name: "a"}, {Name: "a"}})
	assert.Error(t, err)
	_, err = NewDomain(nil, WithMaxNodes(0))
	assert.Error(t, err)
}

func TestDomain_Lookup(t *testing.T) {
	d := toolDomain(t)
	a, ok := d.Action("pickup_tool")
	require.True(t, ok)
	assert.Equal(t, atShed, a.Pre)
	_, ok = d.Action("nope")
	assert.False(t, ok)

	actions := d.Actions()
	actions[0].Name = "mutated"
	assert.Equal(t, "travel_store", d.Actions()[0].Name)
}

func TestAction_Apply(t *testing.T) {
	a := Action{Add: atStore, Del: atShed | atStore}
	assert.Equal(t, atStore|hasMoney, a.Apply(atShed|hasMoney))
	assert.True(t, Action{Pre: hasMoney}.Applicable(hasMoney|atShed))
	assert.False(t, Action{Pre: hasMoney | atShed}.Applicable(hasMoney))
}

func TestVocabulary(t *testing.T) {
	v := Vocabulary{"HAS_MONEY", "AT_STORE", "AT_SHED", "HAS_TOOL", "STORE_OPEN"}
	require.NoError(t, v.Validate())

	s, err := v.Mask("HAS_MONEY", "STORE_OPEN")
	require.NoError(t, err)
	assert.Equal(t, hasMoney|storeOpen, s)
	assert.Equal(t, "HAS_MONEY|STORE_OPEN", v.Format(s))
	assert.Equal(t, "0", v.Format(0))
	assert.Equal(t, "HAS_TOOL|bit40", v.Format(hasTool|1<<40))

	bit, ok := v.Bit("AT_SHED")
	assert.True(t, ok)
	assert.Equal(t, atShed, bit)

	_, err = v.Mask("NOPE")
	assert.Error(t, err)

	assert.Error(t, Vocabulary{"A", "A"}.Validate())
	assert.Error(t, Vocabulary{""}.Validate())
	assert.Error(t, make(Vocabulary, 65).Validate())
}
