// Package scenario loads bitset world simulations from YAML and runs them
// through a coordinator, one agent, tick by tick.
package scenario

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joeycumines/plancoord/internal/coordinator"
	"github.com/joeycumines/plancoord/internal/planner/goap"
	"github.com/joeycumines/plancoord/internal/planner/htn"
	"github.com/joeycumines/plancoord/internal/probe"
	"gopkg.in/yaml.v3"
)

// Planner kinds.
const (
	PlannerGOAP = "goap"
	PlannerHTN  = "htn"
	PlannerPABT = "pabt"
)

// Scenario is the YAML document.
type Scenario struct {
	Name    string `yaml:"name"`
	Agent   string `yaml:"agent"`
	Ticks   int    `yaml:"ticks"`
	Planner string `yaml:"planner"`

	// Bits names the world facts; bit i is Bits[i].
	Bits  []string `yaml:"bits"`
	Start []string `yaml:"start"`
	Goal  []string `yaml:"goal"`
	// DoneExpr, if set, replaces the goal mask as the completion test. It
	// is an expr-lang expression over the fact names, e.g.
	// "HAS_TOOL && !AT_STORE".
	DoneExpr string `yaml:"done-expr"`
	// Invalidation lists the facts whose change invalidates the running
	// plan. Empty means every fact.
	Invalidation []string `yaml:"invalidation"`

	Actions []ActionSpec `yaml:"actions"`

	// Tasks and Compounds drive the htn planner.
	Tasks     []string       `yaml:"tasks"`
	Compounds []CompoundSpec `yaml:"compounds"`

	MaxSearchNodes int         `yaml:"max-search-nodes"`
	Events         []EventSpec `yaml:"events"`
	Options        OptionsSpec `yaml:"options"`
}

// ActionSpec is a primitive action. Duration is in ticks.
type ActionSpec struct {
	Name     string   `yaml:"name"`
	Pre      []string `yaml:"pre"`
	Add      []string `yaml:"add"`
	Del      []string `yaml:"del"`
	Cost     uint32   `yaml:"cost"`
	Duration int      `yaml:"duration"`
}

// CompoundSpec is an htn compound task.
type CompoundSpec struct {
	Name    string       `yaml:"name"`
	Methods []MethodSpec `yaml:"methods"`
}

// MethodSpec is one decomposition of a compound task.
type MethodSpec struct {
	Name     string   `yaml:"name"`
	Pre      []string `yaml:"pre"`
	Subtasks []string `yaml:"subtasks"`
}

// EventSpec changes the world at the start of a tick, before the
// coordinator runs.
type EventSpec struct {
	Tick  uint64   `yaml:"tick"`
	Set   []string `yaml:"set"`
	Clear []string `yaml:"clear"`
}

// OptionsSpec overrides coordinator options. Unset fields keep whatever
// the caller configured.
type OptionsSpec struct {
	MinReplanIntervalTicks *uint32 `yaml:"min-replan-interval-ticks"`
	MaxPlanStartsPerKey    *uint32 `yaml:"max-plan-starts-per-key"`
	CacheEnabled           *bool   `yaml:"cache-enabled"`
}

// CoordinatorOptions converts the overrides.
func (o OptionsSpec) CoordinatorOptions() []coordinator.Option {
	var opts []coordinator.Option
	if o.MinReplanIntervalTicks != nil {
		opts = append(opts, coordinator.WithMinReplanInterval(*o.MinReplanIntervalTicks))
	}
	if o.MaxPlanStartsPerKey != nil {
		opts = append(opts, coordinator.WithMaxPlanStartsPerKey(*o.MaxPlanStartsPerKey))
	}
	if o.CacheEnabled != nil {
		opts = append(opts, coordinator.WithCache(*o.CacheEnabled))
	}
	return opts
}

// Load decodes and validates a scenario. Unknown fields are errors.
func Load(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("scenario: empty document")
		}
		return nil, fmt.Errorf("scenario: decode: %w", err)
	}
	if _, err := sc.compile(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// LoadFile loads a scenario from path.
func LoadFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	defer f.Close()
	sc, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Vocabulary returns the fact names.
func (sc *Scenario) Vocabulary() goap.Vocabulary {
	return goap.Vocabulary(sc.Bits)
}

type timedAction struct {
	goap.Action
	duration int
}

type worldEvent struct {
	set, clear goap.State
}

// compiled is a validated scenario with facts resolved to bits.
type compiled struct {
	vocab   goap.Vocabulary
	start   goap.State
	goal    goap.State
	mask    goap.State
	actions map[string]timedAction
	events  map[uint64][]worldEvent
	done    *probe.ExprPredicate

	goapDomain *goap.Domain
	htnDomain  *htn.Domain
}

func (sc *Scenario) compile() (*compiled, error) {
	vocab := sc.Vocabulary()
	if len(vocab) == 0 {
		return nil, errors.New("scenario: no bits")
	}
	if err := vocab.Validate(); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	if sc.Ticks <= 0 {
		return nil, fmt.Errorf("scenario: ticks must be positive, got %d", sc.Ticks)
	}

	c := &compiled{
		vocab:   vocab,
		actions: make(map[string]timedAction, len(sc.Actions)),
		events:  make(map[uint64][]worldEvent),
	}
	var err error
	resolve := func(what string, names []string) goap.State {
		if err != nil {
			return 0
		}
		var s goap.State
		s, err = vocab.Mask(names...)
		if err != nil {
			err = fmt.Errorf("scenario: %s: %w", what, err)
		}
		return s
	}

	c.start = resolve("start", sc.Start)
	c.goal = resolve("goal", sc.Goal)
	c.mask = resolve("invalidation", sc.Invalidation)
	if len(sc.Invalidation) == 0 {
		c.mask = ^goap.State(0)
	}

	actions := make([]goap.Action, 0, len(sc.Actions))
	for _, a := range sc.Actions {
		ga := goap.Action{
			Name: a.Name,
			Pre:  resolve("action "+a.Name+" pre", a.Pre),
			Add:  resolve("action "+a.Name+" add", a.Add),
			Del:  resolve("action "+a.Name+" del", a.Del),
			Cost: a.Cost,
		}
		if a.Duration < 1 {
			return nil, fmt.Errorf("scenario: action %q: duration must be at least 1", a.Name)
		}
		c.actions[a.Name] = timedAction{Action: ga, duration: a.Duration}
		actions = append(actions, ga)
	}
	for _, ev := range sc.Events {
		c.events[ev.Tick] = append(c.events[ev.Tick], worldEvent{
			set:   resolve(fmt.Sprintf("event at tick %d", ev.Tick), ev.Set),
			clear: resolve(fmt.Sprintf("event at tick %d", ev.Tick), ev.Clear),
		})
	}

	var compounds []htn.Compound
	for _, cs := range sc.Compounds {
		ct := htn.Compound{Name: cs.Name}
		for _, m := range cs.Methods {
			ct.Methods = append(ct.Methods, htn.Method{
				Name:     m.Name,
				Pre:      resolve("method "+m.Name+" pre", m.Pre),
				Subtasks: m.Subtasks,
			})
		}
		compounds = append(compounds, ct)
	}
	if err != nil {
		return nil, err
	}

	if sc.DoneExpr != "" {
		if c.done, err = probe.NewExprPredicate(sc.DoneExpr); err != nil {
			return nil, fmt.Errorf("scenario: done-expr: %w", err)
		}
	}

	switch sc.planner() {
	case PlannerGOAP:
		if c.goal == 0 {
			return nil, errors.New("scenario: goap planner needs a goal")
		}
		var opts []goap.Option
		if sc.MaxSearchNodes > 0 {
			opts = append(opts, goap.WithMaxNodes(sc.MaxSearchNodes))
		}
		if c.goapDomain, err = goap.NewDomain(actions, opts...); err != nil {
			return nil, fmt.Errorf("scenario: %w", err)
		}
	case PlannerHTN:
		if len(sc.Tasks) == 0 {
			return nil, errors.New("scenario: htn planner needs tasks")
		}
		primitives := make([]htn.Primitive, 0, len(actions))
		for _, a := range actions {
			primitives = append(primitives, htn.Primitive{Name: a.Name, Pre: a.Pre, Add: a.Add, Del: a.Del})
		}
		if c.htnDomain, err = htn.NewDomain(primitives, compounds); err != nil {
			return nil, fmt.Errorf("scenario: %w", err)
		}
		for _, task := range sc.Tasks {
			if !c.htnDomain.Has(task) {
				return nil, fmt.Errorf("scenario: unknown task %q", task)
			}
		}
	case PlannerPABT:
		if c.goal == 0 {
			return nil, errors.New("scenario: pabt planner needs a goal")
		}
	default:
		return nil, fmt.Errorf("scenario: unknown planner %q", sc.Planner)
	}
	return c, nil
}

func (sc *Scenario) planner() string {
	if sc.Planner == "" {
		return PlannerGOAP
	}
	return sc.Planner
}

func (sc *Scenario) agent() string {
	if sc.Agent == "" {
		return "agent"
	}
	return sc.Agent
}
