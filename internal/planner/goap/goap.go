// Package goap is a goal-oriented action planner over bitset world states.
//
// A world state is a set of named facts packed into a uint64. Actions
// require some facts, then add and delete others. Plan runs a uniform-cost
// search from the start state to any state satisfying the goal. Ties are
// broken by discovery order, which follows action declaration order, so
// identical inputs always produce identical plans.
package goap

import (
	"container/heap"
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"strings"

	"github.com/joeycumines/plancoord/internal/plan"
)

// State is a set of facts, one bit each.
type State uint64

// Satisfies reports whether every fact in goal holds in s.
func (s State) Satisfies(goal State) bool {
	return s&goal == goal
}

// Action is a planning operator.
type Action struct {
	Name string
	// Pre must hold (every bit set) for the action to apply.
	Pre State
	// Add is set and Del is cleared when the action completes. Del is
	// applied first, so a bit in both ends up set.
	Add  State
	Del  State
	Cost uint32
}

// Applicable reports whether a can run in s.
func (a Action) Applicable(s State) bool {
	return s.Satisfies(a.Pre)
}

// Apply returns the state after a completes in s.
func (a Action) Apply(s State) State {
	return s&^a.Del | a.Add
}

// Input is what the planner is asked.
type Input struct {
	Start State
	Goal  State
}

// DefaultMaxNodes bounds the search when Domain.MaxNodes is zero.
const DefaultMaxNodes = 1 << 16

// Domain is a fixed set of actions.
type Domain struct {
	actions  []Action
	maxNodes int
}

// Option configures a Domain.
type Option func(*Domain)

// WithMaxNodes bounds the number of states expanded per search.
func WithMaxNodes(n int) Option {
	return func(d *Domain) { d.maxNodes = n }
}

// NewDomain validates actions and builds a domain. Names must be non-empty
// and unique.
func NewDomain(actions []Action, opts ...Option) (*Domain, error) {
	seen := make(map[string]struct{}, len(actions))
	for i, a := range actions {
		if a.Name == "" {
			return nil, fmt.Errorf("goap: action %d has no name", i)
		}
		if _, ok := seen[a.Name]; ok {
			return nil, fmt.Errorf("goap: duplicate action %q", a.Name)
		}
		seen[a.Name] = struct{}{}
	}
	d := &Domain{
		actions:  append([]Action(nil), actions...),
		maxNodes: DefaultMaxNodes,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.maxNodes <= 0 {
		return nil, errors.New("goap: max nodes must be positive")
	}
	return d, nil
}

// Actions returns a copy of the domain's actions.
func (d *Domain) Actions() []Action {
	return append([]Action(nil), d.actions...)
}

// Action looks up an action by name.
func (d *Domain) Action(name string) (Action, bool) {
	for _, a := range d.actions {
		if a.Name == name {
			return a, true
		}
	}
	return Action{}, false
}

type node struct {
	state  State
	cost   uint64
	seq    uint64
	parent *node
	action int
}

type frontier []*node

func (f frontier) Len() int { return len(f) }

func (f frontier) Less(i, j int) bool {
	if f[i].cost != f[j].cost {
		return f[i].cost < f[j].cost
	}
	return f[i].seq < f[j].seq
}

func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }

func (f *frontier) Push(x any) { *f = append(*f, x.(*node)) }

func (f *frontier) Pop() any {
	old := *f
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*f = old[:len(old)-1]
	return n
}

// Plan implements coordinator.Planner. Each step's Params holds the Action
// it names. A start state that already satisfies the goal yields an empty
// plan. The second result is false when the goal is unreachable or the node
// budget runs out.
func (d *Domain) Plan(in Input) (plan.Spec, bool) {
	if in.Start.Satisfies(in.Goal) {
		return plan.Spec{}, true
	}

	var (
		open     = frontier{{state: in.Start, action: -1}}
		best     = map[State]uint64{in.Start: 0}
		seq      uint64
		expanded int
	)
	for open.Len() > 0 {
		n := heap.Pop(&open).(*node)
		if n.cost > best[n.state] {
			continue
		}
		if n.state.Satisfies(in.Goal) {
			return d.spec(n), true
		}
		if expanded >= d.maxNodes {
			slog.Debug("goap search budget exhausted", "expanded", expanded, "start", in.Start, "goal", in.Goal)
			return plan.Spec{}, false
		}
		expanded++
		for i, a := range d.actions {
			if !a.Applicable(n.state) {
				continue
			}
			next := a.Apply(n.state)
			cost := n.cost + uint64(a.Cost)
			if c, ok := best[next]; ok && c <= cost {
				continue
			}
			best[next] = cost
			seq++
			heap.Push(&open, &node{state: next, cost: cost, seq: seq, parent: n, action: i})
		}
	}
	return plan.Spec{}, false
}

func (d *Domain) spec(n *node) plan.Spec {
	var steps []plan.Step
	for ; n.parent != nil; n = n.parent {
		a := d.actions[n.action]
		steps = append(steps, plan.Step{Name: a.Name, Params: a})
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return plan.Spec{Steps: steps}
}

// Vocabulary names the bits of a State, bit i being Vocabulary[i].
type Vocabulary []string

// Mask returns the state with the named facts set.
func (v Vocabulary) Mask(names ...string) (State, error) {
	var s State
	for _, name := range names {
		i := v.index(name)
		if i < 0 {
			return 0, fmt.Errorf("goap: unknown fact %q", name)
		}
		s |= 1 << uint(i)
	}
	return s, nil
}

// Bit returns the single-fact state for name.
func (v Vocabulary) Bit(name string) (State, bool) {
	i := v.index(name)
	if i < 0 {
		return 0, false
	}
	return 1 << uint(i), true
}

// Format lists the facts set in s, in bit order, as "A|B". Bits without a
// name are rendered as "bit<N>".
func (v Vocabulary) Format(s State) string {
	if s == 0 {
		return "0"
	}
	var parts []string
	for s != 0 {
		i := bits.TrailingZeros64(uint64(s))
		if i < len(v) {
			parts = append(parts, v[i])
		} else {
			parts = append(parts, fmt.Sprintf("bit%d", i))
		}
		s &^= 1 << uint(i)
	}
	return strings.Join(parts, "|")
}

// Validate checks that names are unique, non-empty, and fit in a State.
func (v Vocabulary) Validate() error {
	if len(v) > 64 {
		return fmt.Errorf("goap: %d facts do not fit in 64 bits", len(v))
	}
	seen := make(map[string]struct{}, len(v))
	for i, name := range v {
		if name == "" {
			return fmt.Errorf("goap: fact %d has no name", i)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("goap: duplicate fact %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

func (v Vocabulary) index(name string) int {
	for i, n := range v {
		if n == name {
			return i
		}
	}
	return -1
}
