package htn

import (
	"testing"

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

var toolPrimitives = []Primitive{
	{Name: "travel_store", Add: atStore, Del: atShed},
	{Name: "buy_tool", Pre: atStore | hasMoney | storeOpen, Add: hasTool, Del: hasMoney},
	{Name: "travel_shed", Add: atShed, Del: atStore},
	{Name: "pickup_tool", Pre: atShed, Add: hasTool},
}

var toolCompounds = []Compound{
	{Name: "get_tool", Methods: []Method{
		// deliberately optimistic: does not check the store is open
		{Name: "buy", Pre: hasMoney, Subtasks: []string{"travel_store", "buy_tool"}},
		{Name: "scavenge", Subtasks: []string{"travel_shed", "pickup_tool"}},
	}},
	{Name: "return_home", Methods: []Method{
		{Name: "from_store", Pre: atStore, Subtasks: []string{"travel_shed"}},
		{Name: "already", Pre: atShed},
	}},
}

func toolDomain(t *testing.T, opts ...Option) *Domain {
	t.Helper()
	d, err := NewDomain(toolPrimitives, toolCompounds, opts...)
	require.NoError(t, err)
	return d
}

func TestPlan_FirstApplicableMethod(t *testing.T) {
	spec, ok := toolDomain(t).Plan(Input{State: hasMoney | storeOpen, Tasks: []string{"get_tool"}})
	require.True(t, ok)
	assert.Equal(t, []string{"travel_store", "buy_tool"}, spec.Names())

	p, isPrimitive := spec.Steps[1].Params.(Primitive)
	require.True(t, isPrimitive)
	assert.Equal(t, "buy_tool", p.Name)
}

func TestPlan_MethodPreconditionSkipsMethod(t *testing.T) {
	spec, ok := toolDomain(t).Plan(Input{State: storeOpen, Tasks: []string{"get_tool"}})
	require.True(t, ok)
	assert.Equal(t, []string{"travel_shed", "pickup_tool"}, spec.Names())
}

func TestPlan_BacktracksWhenSubtaskFails(t *testing.T) {
	spec, ok := toolDomain(t).Plan(Input{State: hasMoney, Tasks: []string{"get_tool"}})
	require.True(t, ok)
	assert.Equal(t, []string{"travel_shed", "pickup_tool"}, spec.Names())
}

func TestPlan_StateFlowsAcrossTasks(t *testing.T) {
	spec, ok := toolDomain(t).Plan(Input{
		State: hasMoney | storeOpen,
		Tasks: []string{"get_tool", "return_home"},
	})
	require.True(t, ok)
	assert.Equal(t, []string{"travel_store", "buy_tool", "travel_shed"}, spec.Names())

	spec, ok = toolDomain(t).Plan(Input{State: 0, Tasks: []string{"get_tool", "return_home"}})
	require.True(t, ok)
	assert.Equal(t, []string{"travel_shed", "pickup_tool"}, spec.Names(), "a method may have no subtasks")
}

func TestPlan_BacktracksAcrossLaterTasks(t *testing.T) {
	d, err := NewDomain(
		[]Primitive{
			{Name: "a", Add: atStore},
			{Name: "b", Add: atShed},
			{Name: "need_shed", Pre: atShed},
		},
		[]Compound{{Name: "pick", Methods: []Method{
			{Name: "via_a", Subtasks: []string{"a"}},
			{Name: "via_b", Subtasks: []string{"b"}},
		}}},
	)
	require.NoError(t, err)
	spec, ok := d.Plan(Input{Tasks: []string{"pick", "need_shed"}})
	require.True(t, ok)
	assert.Equal(t, []string{"b", "need_shed"}, spec.Names())
}

func TestPlan_EmptyTaskList(t *testing.T) {
	spec, ok := toolDomain(t).Plan(Input{State: hasTool})
	assert.True(t, ok)
	assert.Zero(t, spec.Len())
}

func TestPlan_Failures(t *testing.T) {
	d := toolDomain(t)
	_, ok := d.Plan(Input{Tasks: []string{"fly"}})
	assert.False(t, ok, "unknown task")

	_, ok = d.Plan(Input{State: hasMoney, Tasks: []string{"buy_tool"}})
	assert.False(t, ok, "primitive precondition")

	_, ok = d.Plan(Input{State: hasMoney, Tasks: []string{"return_home"}})
	assert.False(t, ok, "no applicable method")
}

func TestPlan_DepthLimit(t *testing.T) {
	compounds := []Compound{
		{Name: "loop", Methods: []Method{{Name: "again", Subtasks: []string{"loop"}}}},
	}
	d, err := NewDomain(nil, compounds, WithMaxDepth(8))
	require.NoError(t, err)
	_, ok := d.Plan(Input{Tasks: []string{"loop"}})
	assert.False(t, ok)
}

func TestPlan_ExpansionLimit(t *testing.T) {
	d := toolDomain(t, WithMaxExpansions(2))
	_, ok := d.Plan(Input{State: hasMoney | storeOpen, Tasks: []string{"get_tool"}})
	assert.False(t, ok)
}

func TestNewDomain_Validation(t *testing.T) {
	_, err := NewDomain([]Primitive{{Name: ""}}, nil)
	assert.Error(t, err)

	_, err = NewDomain([]Primitive{{Name: "x"}}, []Compound{{Name: "x", Methods: []Method{{}}}})
	assert.Error(t, err, "names are shared between kinds")

	_, err = NewDomain(nil, []Compound{{Name: "c"}})
	assert.Error(t, err, "no methods")

	_, err = NewDomain(nil, []Compound{{Name: "c", Methods: []Method{{Subtasks: []string{"ghost"}}}}})
	assert.Error(t, err, "unknown subtask")

	_, err = NewDomain(nil, nil, WithMaxDepth(0))
	assert.Error(t, err)

	d := toolDomain(t)
	assert.True(t, d.Has("get_tool"))
	p, ok := d.Primitive("pickup_tool")
	require.True(t, ok)
	assert.Equal(t, atShed, p.Pre)
	_, ok = d.Primitive("get_tool")
	assert.False(t, ok)
}
