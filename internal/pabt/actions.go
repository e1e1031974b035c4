package pabt

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	bt "github.com/joeycumines/go-behaviortree"
	pabtpkg "github.com/joeycumines/go-pabt"
)

// ActionRegistry is a thread-safe set of named actions.
type ActionRegistry struct {
	mu      sync.RWMutex
	actions map[string]pabtpkg.IAction
}

// NewActionRegistry creates an empty registry.
func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{actions: make(map[string]pabtpkg.IAction)}
}

// Register adds action under name, replacing any previous one.
func (r *ActionRegistry) Register(name string, action pabtpkg.IAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = action
}

// Get returns the action registered under name, or nil.
func (r *ActionRegistry) Get(name string) pabtpkg.IAction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.actions[name]
}

// Names returns the registered names, sorted.
func (r *ActionRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.actions))
}

// All returns every action ordered by name. The order is what makes
// planning reproducible.
func (r *ActionRegistry) All() []pabtpkg.IAction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]pabtpkg.IAction, 0, len(r.actions))
	for _, name := range slices.Sorted(maps.Keys(r.actions)) {
		out = append(out, r.actions[name])
	}
	return out
}

// Action is a named pabtpkg.IAction.
type Action struct {
	Name string

	// conditions are OR'd groups of AND'd preconditions.
	conditions []pabtpkg.IConditions
	effects    pabtpkg.Effects
	node       bt.Node
}

var _ pabtpkg.IAction = (*Action)(nil)

// NewAction creates an action. node is required.
func NewAction(name string, conditions []pabtpkg.IConditions, effects pabtpkg.Effects, node bt.Node) (*Action, error) {
	if node == nil {
		return nil, fmt.Errorf("pabt: action %q has no node", name)
	}
	return &Action{
		Name:       name,
		conditions: conditions,
		effects:    effects,
		node:       node,
	}, nil
}

// Conditions implements pabtpkg.IAction.
func (a *Action) Conditions() []pabtpkg.IConditions { return a.conditions }

// Effects implements pabtpkg.IAction.
func (a *Action) Effects() pabtpkg.Effects { return a.effects }

// Node implements pabtpkg.IAction.
func (a *Action) Node() bt.Node { return a.node }

// ActionBuilder assembles an Action fluently.
type ActionBuilder struct {
	name       string
	conditions []pabtpkg.IConditions
	effects    pabtpkg.Effects
	node       bt.Node
}

// NewActionBuilder starts building an action called name.
func NewActionBuilder(name string) *ActionBuilder {
	return &ActionBuilder{name: name}
}

// When adds a precondition group; all of conds must hold.
func (b *ActionBuilder) When(conds ...pabtpkg.Condition) *ActionBuilder {
	b.conditions = append(b.conditions, conds)
	return b
}

// Sets declares that the action leaves key equal to value.
func (b *ActionBuilder) Sets(key, value any) *ActionBuilder {
	b.effects = append(b.effects, NewEffect(key, value))
	return b
}

// Do sets the behaviour tree node that performs the action.
func (b *ActionBuilder) Do(node bt.Node) *ActionBuilder {
	b.node = node
	return b
}

// Build creates the action.
func (b *ActionBuilder) Build() (*Action, error) {
	return NewAction(b.name, b.conditions, b.effects, b.node)
}
