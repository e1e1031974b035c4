// Package pabt plans with go-pabt (planning and acting using behaviour
// trees) over a blackboard world, and adapts the resulting reactive plans to
// the coordinator's Planner interface.
//
// A PA-BT plan is a single behaviour tree that keeps expanding itself while
// it runs, so one coordinator plan here is one step: the tree.
package pabt

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	pabtpkg "github.com/joeycumines/go-pabt"
	btmod "github.com/joeycumines/plancoord/internal/bt"
)

var _ pabtpkg.IState = (*State)(nil)

// State implements pabtpkg.IState backed by a blackboard. Keys of any
// supported type are normalized to strings for storage.
type State struct {
	*btmod.Blackboard

	actions *ActionRegistry

	mu              sync.RWMutex
	actionGenerator ActionGeneratorFunc
}

// ActionGeneratorFunc produces actions for a failed condition at planning
// time, e.g. one MoveTo action per reachable target.
type ActionGeneratorFunc func(failed pabtpkg.Condition) ([]pabtpkg.IAction, error)

// NewState creates a State over bb.
func NewState(bb *btmod.Blackboard) *State {
	return &State{
		Blackboard: bb,
		actions:    NewActionRegistry(),
	}
}

// SetActionGenerator installs (or with nil, removes) the action generator.
func (s *State) SetActionGenerator(gen ActionGeneratorFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actionGenerator = gen
}

// ActionGenerator returns the installed generator, or nil.
func (s *State) ActionGenerator() ActionGeneratorFunc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.actionGenerator
}

// RegisterAction adds action under name, replacing any previous one.
func (s *State) RegisterAction(name string, action pabtpkg.IAction) {
	s.actions.Register(name, action)
}

// Registry returns the static action registry.
func (s *State) Registry() *ActionRegistry {
	return s.actions
}

// NormalizeKey converts a condition or effect key to its blackboard key.
func NormalizeKey(key any) (string, error) {
	switch k := key.(type) {
	case nil:
		return "", fmt.Errorf("pabt: variable key cannot be nil")
	case string:
		return k, nil
	case int:
		return strconv.Itoa(k), nil
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", k), nil
	case fmt.Stringer:
		return k.String(), nil
	default:
		return "", fmt.Errorf("pabt: unsupported key type: %T", key)
	}
}

// Variable implements pabtpkg.IState. Missing keys read as nil.
func (s *State) Variable(key any) (any, error) {
	name, err := NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	return s.Blackboard.Get(name), nil
}

// Actions implements pabtpkg.IState. It returns the actions with an effect
// that would satisfy failed. When a generator is installed and produces any
// actions for failed, the static registry is not consulted.
func (s *State) Actions(failed pabtpkg.Condition) ([]pabtpkg.IAction, error) {
	registered := s.actions.All()
	if failed == nil {
		return registered, nil
	}

	var relevant []pabtpkg.IAction
	generated := false

	if gen := s.ActionGenerator(); gen != nil {
		actions, err := gen(failed)
		if err != nil {
			slog.Warn("pabt action generator failed, using registered actions", "key", failed.Key(), "error", err)
		} else {
			for _, a := range actions {
				if hasRelevantEffect(a, failed) {
					relevant = append(relevant, a)
				}
			}
			generated = len(actions) > 0
		}
	}

	if !generated {
		for _, a := range registered {
			if hasRelevantEffect(a, failed) {
				relevant = append(relevant, a)
			}
		}
	}

	slog.Debug("pabt actions", "key", failed.Key(), "relevant", len(relevant), "generated", generated)
	return relevant, nil
}

func hasRelevantEffect(action pabtpkg.IAction, failed pabtpkg.Condition) bool {
	for _, effect := range action.Effects() {
		if effect != nil && effect.Key() == failed.Key() && failed.Match(effect.Value()) {
			return true
		}
	}
	return false
}

// Satisfied reports whether any group of conditions holds entirely against
// st. Within a group all conditions must match; nil conditions are skipped.
// No groups means nothing to satisfy.
func Satisfied(st pabtpkg.IState, groups []pabtpkg.IConditions) bool {
	if len(groups) == 0 {
		return true
	}
	for _, group := range groups {
		if groupHolds(st, group) {
			return true
		}
	}
	return false
}

func groupHolds(st pabtpkg.IState, group pabtpkg.IConditions) bool {
	for _, cond := range group {
		if cond == nil {
			continue
		}
		value, err := st.Variable(cond.Key())
		if err != nil || !cond.Match(value) {
			return false
		}
	}
	return true
}
