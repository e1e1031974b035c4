package scenario

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/joeycumines/plancoord/internal/actionrt"
	btmod "github.com/joeycumines/plancoord/internal/bt"
	"github.com/joeycumines/plancoord/internal/coordinator"
	"github.com/joeycumines/plancoord/internal/pabt"
	"github.com/joeycumines/plancoord/internal/plan"
	"github.com/joeycumines/plancoord/internal/planner/goap"
	"github.com/joeycumines/plancoord/internal/planner/htn"
	"github.com/joeycumines/plancoord/internal/probe"
	"github.com/joeycumines/plancoord/internal/telemetry"
)

// World is the simulated world.
type World struct {
	State goap.State
}

// Row records one tick.
type Row struct {
	Tick uint64
	// State is the world as the coordinator saw it, after that tick's events.
	State  goap.State
	Result coordinator.Result
	Phase  coordinator.Phase
	// Step is the plan step bound to the agent after Drive, if any.
	Step string
	Tags []telemetry.Tag
}

// Report is the outcome of Run.
type Report struct {
	RunID       uuid.UUID
	Name        string
	Agent       string
	Planner     string
	Vocabulary  goap.Vocabulary
	Rows        []Row
	Final       goap.State
	Coordinator coordinator.Stats
	Runtime     actionrt.Stats
}

// Succeeded reports whether the last tick reported success.
func (r *Report) Succeeded() bool {
	return len(r.Rows) > 0 && r.Rows[len(r.Rows)-1].Result.Status == coordinator.StatusSuccess
}

// Run simulates sc for its configured number of ticks. Each tick applies
// the tick's events, drives the coordinator, then ticks the runtime.
//
// opts are applied before the scenario's own option overrides. Events go to
// sink as well as into the report; sink may be nil. A cancelled ctx stops
// the run between ticks and returns the partial report with ctx's error.
func Run(ctx context.Context, sc *Scenario, sink telemetry.Sink, opts ...coordinator.Option) (*Report, error) {
	c, err := sc.compile()
	if err != nil {
		return nil, err
	}
	world := &World{State: c.start}
	bb := new(btmod.Blackboard)
	switch sc.planner() {
	case PlannerHTN:
		return run[htn.Input](ctx, sc, c, world, bb, c.htnDomain, c.factory(), func(w *World) htn.Input {
			return htn.Input{State: w.State, Tasks: sc.Tasks}
		}, sink, opts)
	case PlannerPABT:
		st, err := c.pabtState(sc, bb, world)
		if err != nil {
			return nil, err
		}
		goal := c.pabtGoal()
		return run[pabt.Goal](ctx, sc, c, world, bb, pabt.NewPlanner(st), coordinator.StaticFactory[*World](pabt.Factory), func(*World) pabt.Goal {
			return goal
		}, sink, opts)
	default:
		return run[goap.Input](ctx, sc, c, world, bb, c.goapDomain, c.factory(), func(w *World) goap.Input {
			return goap.Input{Start: w.State, Goal: c.goal}
		}, sink, opts)
	}
}

// run drives the simulation. bb must be the blackboard any planner state
// reads, since it is republished from world every tick.
func run[In any](
	ctx context.Context,
	sc *Scenario,
	c *compiled,
	world *World,
	bb *btmod.Blackboard,
	planner coordinator.Planner[In],
	factory coordinator.ActionFactory[*World],
	input func(*World) In,
	sink telemetry.Sink,
	opts []coordinator.Option,
) (*Report, error) {
	agent := sc.agent()

	probes := coordinator.Probes[*World, In]{
		Input: func(f coordinator.Frame[*World]) In { return input(f.World) },
		InvalidationKey: func(f coordinator.Frame[*World]) uint64 {
			return probe.Masked(uint64(f.World.State), uint64(c.mask))
		},
	}
	switch {
	case c.done != nil:
		probes.Done = probe.Done[*World](c.done)
	case c.goal != 0:
		reached := probe.BitsGoal(uint64(c.goal))
		probes.Done = func(f coordinator.Frame[*World]) bool { return reached(uint64(f.World.State)) }
	}

	rec := new(tickRecorder)
	all := append(append([]coordinator.Option(nil), opts...), sc.Options.CoordinatorOptions()...)
	all = append(all, coordinator.WithSink(telemetry.Multi(sink, rec)))

	coord, err := coordinator.New[*World, In](agent, planner, factory, probes, all...)
	if err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	rt := actionrt.New()

	report := &Report{
		RunID:      uuid.New(),
		Name:       sc.Name,
		Agent:      agent,
		Planner:    sc.planner(),
		Vocabulary: c.vocab,
	}
	finish := func() {
		report.Final = world.State
		report.Coordinator = coord.Stats()
		report.Runtime = rt.Stats()
	}
	defer finish()

	slog.Debug("scenario started", "run", report.RunID, "name", sc.Name, "planner", report.Planner, "ticks", sc.Ticks)

	for tick := uint64(0); tick < uint64(sc.Ticks); tick++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		for _, ev := range c.events[tick] {
			world.State = world.State&^ev.clear | ev.set
		}
		c.publish(bb, world.State)

		rec.tags = nil
		state := world.State
		res, err := coord.Drive(coordinator.Frame[*World]{
			Tick:       tick,
			Agent:      agent,
			World:      world,
			Blackboard: bb,
		}, rt)
		if err != nil {
			return report, fmt.Errorf("scenario: tick %d: %w", tick, err)
		}

		row := Row{
			Tick:   tick,
			State:  state,
			Result: res,
			Phase:  coord.Stats().Phase,
			Step:   currentStep(rt, agent),
			Tags:   rec.tags,
		}
		report.Rows = append(report.Rows, row)
		slog.Debug("scenario tick", "run", report.RunID, "tick", tick, "state", c.vocab.Format(state), "result", res, "step", row.Step)

		rt.Tick()
	}
	return report, nil
}

// publish mirrors the world onto the blackboard, one boolean per fact.
func (c *compiled) publish(bb *btmod.Blackboard, s goap.State) {
	for i, name := range c.vocab {
		bb.Set(name, s&(1<<uint(i)) != 0)
	}
}

// factory builds a timed action per step. Preconditions are re-checked
// every tick, so a world change can fail a running step.
func (c *compiled) factory() coordinator.ActionFactory[*World] {
	return coordinator.ActionFactoryFunc[*World](func(f coordinator.Frame[*World], step plan.Step) (plan.Action, error) {
		a, ok := c.actions[step.Name]
		if !ok {
			return nil, fmt.Errorf("scenario: unknown action %q", step.Name)
		}
		w := f.World
		return &plan.TimedAction{
			Name:  a.Name,
			Ticks: a.duration,
			Pre:   func() bool { return a.Applicable(w.State) },
			Apply: func() { w.State = a.Apply(w.State) },
		}, nil
	})
}

func currentStep(rt *actionrt.Runtime, key string) string {
	x, ok := rt.Current(key).(*plan.Executor)
	if !ok {
		return ""
	}
	spec := x.Spec()
	if i := x.Progress(); i < spec.Len() {
		return spec.Steps[i].Name
	}
	return ""
}

type tickRecorder struct {
	tags []telemetry.Tag
}

func (r *tickRecorder) Emit(ev telemetry.Event) {
	r.tags = append(r.tags, ev.Tag)
}
