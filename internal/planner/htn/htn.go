// Package htn decomposes task lists into primitive plans (hierarchical task
// network planning) over bitset world states.
package htn

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/joeycumines/plancoord/internal/plan"
	"github.com/joeycumines/plancoord/internal/planner/goap"
)

// State is the same fact set the goap planner uses.
type State = goap.State

// Primitive is a directly executable task.
type Primitive struct {
	Name string
	Pre  State
	Add  State
	Del  State
}

// Method is one way to accomplish a compound task: if Pre holds, do
// Subtasks in order.
type Method struct {
	Name     string
	Pre      State
	Subtasks []string
}

// Compound is a task accomplished by the first method that decomposes.
type Compound struct {
	Name    string
	Methods []Method
}

// Input is the probed state and the tasks to accomplish, in order.
type Input struct {
	State State
	Tasks []string
}

const (
	// DefaultMaxDepth bounds compound nesting when not configured.
	DefaultMaxDepth = 32
	// DefaultMaxExpansions bounds work per Plan call when not configured.
	DefaultMaxExpansions = 1 << 16
)

// Domain holds the task library.
type Domain struct {
	primitives    map[string]Primitive
	compounds     map[string]Compound
	maxDepth      int
	maxExpansions int
}

// Option configures a Domain.
type Option func(*Domain)

// WithMaxDepth bounds compound task nesting.
func WithMaxDepth(n int) Option {
	return func(d *Domain) { d.maxDepth = n }
}

// WithMaxExpansions bounds the number of task expansions per Plan call.
func WithMaxExpansions(n int) Option {
	return func(d *Domain) { d.maxExpansions = n }
}

// NewDomain validates and indexes the task library. Task names are shared
// between primitives and compounds and must be unique; every subtask must
// name a known task.
func NewDomain(primitives []Primitive, compounds []Compound, opts ...Option) (*Domain, error) {
	d := &Domain{
		primitives:    make(map[string]Primitive, len(primitives)),
		compounds:     make(map[string]Compound, len(compounds)),
		maxDepth:      DefaultMaxDepth,
		maxExpansions: DefaultMaxExpansions,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.maxDepth <= 0 || d.maxExpansions <= 0 {
		return nil, errors.New("htn: limits must be positive")
	}
	for _, p := range primitives {
		if err := d.claim(p.Name); err != nil {
			return nil, err
		}
		d.primitives[p.Name] = p
	}
	for _, c := range compounds {
		if err := d.claim(c.Name); err != nil {
			return nil, err
		}
		if len(c.Methods) == 0 {
			return nil, fmt.Errorf("htn: compound task %q has no methods", c.Name)
		}
		d.compounds[c.Name] = c
	}
	for _, c := range compounds {
		for _, m := range c.Methods {
			for _, sub := range m.Subtasks {
				if !d.Has(sub) {
					return nil, fmt.Errorf("htn: method %q of %q references unknown task %q", m.Name, c.Name, sub)
				}
			}
		}
	}
	return d, nil
}

func (d *Domain) claim(name string) error {
	if name == "" {
		return errors.New("htn: task has no name")
	}
	if d.Has(name) {
		return fmt.Errorf("htn: duplicate task %q", name)
	}
	return nil
}

// Has reports whether name is a known task.
func (d *Domain) Has(name string) bool {
	_, p := d.primitives[name]
	_, c := d.compounds[name]
	return p || c
}

// Primitive looks up a primitive task.
func (d *Domain) Primitive(name string) (Primitive, bool) {
	p, ok := d.primitives[name]
	return p, ok
}

type agendaItem struct {
	name  string
	depth int
}

type search struct {
	d         *Domain
	expansion int
	exhausted bool
}

// Plan implements coordinator.Planner. Methods are tried in declaration
// order, backtracking when a later task cannot be decomposed. Each step's
// Params holds its Primitive. Unknown tasks in the input fail the plan.
func (d *Domain) Plan(in Input) (plan.Spec, bool) {
	agenda := make([]agendaItem, 0, len(in.Tasks))
	for _, name := range in.Tasks {
		if !d.Has(name) {
			slog.Debug("htn unknown root task", "task", name)
			return plan.Spec{}, false
		}
		agenda = append(agenda, agendaItem{name: name})
	}
	s := &search{d: d}
	steps, ok := s.decompose(in.State, agenda, nil)
	if !ok {
		if s.exhausted {
			slog.Debug("htn expansion budget exhausted", "tasks", in.Tasks, "expansions", s.expansion)
		}
		return plan.Spec{}, false
	}
	return plan.Spec{Steps: steps}, true
}

func (s *search) decompose(state State, agenda []agendaItem, steps []plan.Step) ([]plan.Step, bool) {
	if len(agenda) == 0 {
		return steps, true
	}
	if s.expansion >= s.d.maxExpansions {
		s.exhausted = true
		return nil, false
	}
	s.expansion++

	head, rest := agenda[0], agenda[1:]

	if p, ok := s.d.primitives[head.name]; ok {
		if !state.Satisfies(p.Pre) {
			return nil, false
		}
		next := state&^p.Del | p.Add
		return s.decompose(next, rest, append(slices.Clip(steps), plan.Step{Name: p.Name, Params: p}))
	}

	c := s.d.compounds[head.name]
	if head.depth >= s.d.maxDepth {
		return nil, false
	}
	for _, m := range c.Methods {
		if !state.Satisfies(m.Pre) {
			continue
		}
		expanded := make([]agendaItem, 0, len(m.Subtasks)+len(rest))
		for _, sub := range m.Subtasks {
			expanded = append(expanded, agendaItem{name: sub, depth: head.depth + 1})
		}
		expanded = append(expanded, rest...)
		if out, ok := s.decompose(state, expanded, steps); ok {
			return out, true
		}
		if s.exhausted {
			return nil, false
		}
	}
	return nil, false
}
