// Package actionrt is a keyed action runtime: at most one action per key,
// ticked in a deterministic order, with finished outcomes retained until the
// owner collects them.
//
// Bindings must be re-asserted between ticks. A key whose action was neither
// re-asserted (EnsureCurrent) nor replaced (ReplaceCurrentWith) since the
// previous Tick is preempted: its action is cancelled before anything is
// ticked. Owners that stop asserting an action are therefore stopping it.
package actionrt

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	bt "github.com/joeycumines/go-behaviortree"
	"github.com/joeycumines/plancoord/internal/plan"
)

// Runtime implements the coordinator's ActionRuntime.
//
// Runtime is safe for concurrent use. Actions are ticked and cancelled while
// the runtime's lock is held, so they must not call back into the runtime.
type Runtime struct {
	mu       sync.Mutex
	slots    map[string]*slot
	finished map[string]plan.Outcome
	preempt  bool
	ticks    uint64
	stats    Stats
}

type slot struct {
	action   plan.Action
	asserted bool
	since    uint64
}

// Stats counts runtime activity.
type Stats struct {
	Started   uint64
	Replaced  uint64
	Preempted uint64
	Cancelled uint64
	Succeeded uint64
	Failed    uint64
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithPreemption controls whether unasserted bindings are cancelled on the
// next Tick. It defaults to true.
func WithPreemption(enabled bool) Option {
	return func(r *Runtime) { r.preempt = enabled }
}

// New creates an empty runtime.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		slots:    make(map[string]*slot),
		finished: make(map[string]plan.Outcome),
		preempt:  true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsRunning reports whether an action is bound to key.
func (r *Runtime) IsRunning(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.slots[key]
	return ok
}

// TakeJustFinished returns and clears the outcome last recorded for key.
func (r *Runtime) TakeJustFinished(key string) (plan.Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.finished[key]
	if ok {
		delete(r.finished, key)
	}
	return o, ok
}

// EnsureCurrent re-asserts the action bound to key, or starts one from build
// if none is bound.
func (r *Runtime) EnsureCurrent(key string, build plan.Builder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.slots[key]; ok {
		s.asserted = true
		return nil
	}
	action, err := r.build(key, build)
	if err != nil {
		return err
	}
	r.slots[key] = &slot{action: action, asserted: true, since: r.ticks}
	r.stats.Started++
	slog.Debug("action started", "key", key, "tick", r.ticks)
	return nil
}

// ReplaceCurrentWith cancels whatever is bound to key and binds a new action
// from build. If build fails the current binding is left untouched.
func (r *Runtime) ReplaceCurrentWith(key string, build plan.Builder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	action, err := r.build(key, build)
	if err != nil {
		return err
	}
	if s, ok := r.slots[key]; ok {
		s.action.Cancel()
		r.stats.Replaced++
		slog.Debug("action replaced", "key", key, "tick", r.ticks)
	} else {
		r.stats.Started++
	}
	r.slots[key] = &slot{action: action, asserted: true, since: r.ticks}
	return nil
}

func (r *Runtime) build(key string, build plan.Builder) (plan.Action, error) {
	if build == nil {
		return nil, fmt.Errorf("actionrt: nil builder for key %q", key)
	}
	action, err := build()
	if err != nil {
		return nil, fmt.Errorf("actionrt: build action for key %q: %w", key, err)
	}
	if action == nil {
		return nil, fmt.Errorf("actionrt: builder for key %q returned nil action", key)
	}
	return action, nil
}

// Cancel cancels and unbinds the action for key. No outcome is recorded.
// Returns false if nothing was bound.
func (r *Runtime) Cancel(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[key]
	if !ok {
		return false
	}
	s.action.Cancel()
	delete(r.slots, key)
	r.stats.Cancelled++
	return true
}

// Current returns the action bound to key, or nil.
func (r *Runtime) Current(key string) plan.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.slots[key]; ok {
		return s.action
	}
	return nil
}

// Keys returns the bound keys, sorted.
func (r *Runtime) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.slots))
}

// Stats returns a snapshot of the activity counters.
func (r *Runtime) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Tick preempts unasserted bindings, then ticks every bound action once in
// key order. Actions that finish are unbound and their outcome recorded for
// TakeJustFinished.
func (r *Runtime) Tick() {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := slices.Sorted(maps.Keys(r.slots))

	if r.preempt {
		live := keys[:0]
		for _, key := range keys {
			s := r.slots[key]
			if s.asserted {
				live = append(live, key)
				continue
			}
			s.action.Cancel()
			delete(r.slots, key)
			r.stats.Preempted++
			slog.Debug("action preempted", "key", key, "tick", r.ticks)
		}
		keys = live
	}

	for _, key := range keys {
		s := r.slots[key]
		status, err := s.action.Tick()
		if err != nil {
			slog.Warn("action tick failed", "key", key, "tick", r.ticks, "error", err)
			status = bt.Failure
		}
		outcome, done := plan.OutcomeOf(status)
		if !done {
			s.asserted = false
			continue
		}
		delete(r.slots, key)
		r.finished[key] = outcome
		if outcome == plan.OutcomeSuccess {
			r.stats.Succeeded++
		} else {
			r.stats.Failed++
		}
		slog.Debug("action finished", "key", key, "tick", r.ticks, "outcome", outcome, "ran", r.ticks-s.since+1)
	}

	r.ticks++
}
