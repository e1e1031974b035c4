package coordinator

import (
	"testing"

	"github.com/joeycumines/plancoord/internal/plan"
	"github.com/joeycumines/plancoord/internal/telemetry"
	"github.com/stretchr/testify/require"
)

// testWorld exposes keys and the goal flag directly, so tests can change
// one without the other.
type testWorld struct {
	state    uint64
	key      uint64
	cacheKey uint64
	done     bool
}

// countingPlanner records every call.
type countingPlanner struct {
	inputs []uint64
	plan   func(in uint64) (plan.Spec, bool)
}

func (p *countingPlanner) Plan(in uint64) (plan.Spec, bool) {
	p.inputs = append(p.inputs, in)
	if p.plan == nil {
		return plan.NewSpec("step"), true
	}
	return p.plan(in)
}

func (p *countingPlanner) calls() int { return len(p.inputs) }

// fakeRuntime records every call and lets tests decide when actions finish.
type fakeRuntime struct {
	current  map[string]plan.Action
	finished map[string]plan.Outcome
	log      []string

	// rebuildOnEnsure makes EnsureCurrent always invoke the builder.
	rebuildOnEnsure bool
	// failStart makes every start fail.
	failStart error
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		current:  make(map[string]plan.Action),
		finished: make(map[string]plan.Outcome),
	}
}

func (f *fakeRuntime) IsRunning(key string) bool {
	_, ok := f.current[key]
	return ok
}

func (f *fakeRuntime) TakeJustFinished(key string) (plan.Outcome, bool) {
	o, ok := f.finished[key]
	delete(f.finished, key)
	return o, ok
}

func (f *fakeRuntime) EnsureCurrent(key string, build plan.Builder) error {
	if _, ok := f.current[key]; ok && !f.rebuildOnEnsure {
		f.log = append(f.log, "reassert")
		return nil
	}
	if f.failStart != nil {
		return f.failStart
	}
	a, err := build()
	if err != nil {
		return err
	}
	f.current[key] = a
	f.log = append(f.log, "start")
	return nil
}

func (f *fakeRuntime) ReplaceCurrentWith(key string, build plan.Builder) error {
	if f.failStart != nil {
		return f.failStart
	}
	a, err := build()
	if err != nil {
		return err
	}
	if old, ok := f.current[key]; ok {
		old.Cancel()
	}
	f.current[key] = a
	f.log = append(f.log, "replace")
	return nil
}

// finish completes the current action with o.
func (f *fakeRuntime) finish(key string, o plan.Outcome) {
	delete(f.current, key)
	f.finished[key] = o
}

// drop unbinds the current action without an outcome, as a preemption would.
func (f *fakeRuntime) drop(key string) {
	delete(f.current, key)
}

func (f *fakeRuntime) count(op string) int {
	n := 0
	for _, s := range f.log {
		if s == op {
			n++
		}
	}
	return n
}

func (f *fakeRuntime) resetLog() { f.log = nil }

const testKey = "agent"

var nopFactory = ActionFactoryFunc[*testWorld](func(_ Frame[*testWorld], step plan.Step) (plan.Action, error) {
	return &plan.TimedAction{Name: step.Name, Ticks: 1000}, nil
})

type harness struct {
	t       *testing.T
	world   *testWorld
	planner *countingPlanner
	rt      *fakeRuntime
	rec     *telemetry.Recorder
	coord   *Coordinator[*testWorld, uint64]
	tick    uint64
}

type harnessConfig struct {
	withDone     bool
	withCacheKey bool
	opts         []Option
}

func newHarness(t *testing.T, cfg harnessConfig) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		world:   &testWorld{key: 1},
		planner: &countingPlanner{},
		rt:      newFakeRuntime(),
		rec:     telemetry.NewRecorder(1024),
	}
	probes := Probes[*testWorld, uint64]{
		Input:           func(f Frame[*testWorld]) uint64 { return f.World.state },
		InvalidationKey: func(f Frame[*testWorld]) uint64 { return f.World.key },
	}
	if cfg.withCacheKey {
		probes.CacheKey = func(f Frame[*testWorld]) uint64 { return f.World.cacheKey }
	}
	if cfg.withDone {
		probes.Done = func(f Frame[*testWorld]) bool { return f.World.done }
	}
	opts := append([]Option{WithSink(h.rec)}, cfg.opts...)
	coord, err := New[*testWorld, uint64](testKey, h.planner, nopFactory, probes, opts...)
	require.NoError(t, err)
	h.coord = coord
	return h
}

func (h *harness) frame() Frame[*testWorld] {
	return Frame[*testWorld]{Tick: h.tick, Agent: "a1", World: h.world}
}

// drive runs one tick and advances the clock.
func (h *harness) drive() Result {
	h.t.Helper()
	res, err := h.coord.Drive(h.frame(), h.rt)
	require.NoError(h.t, err)
	h.tick++
	return res
}

// driveN runs n ticks and returns the last result.
func (h *harness) driveN(n int) Result {
	h.t.Helper()
	var res Result
	for range n {
		res = h.drive()
	}
	return res
}

var (
	running    = Result{Status: StatusRunning, Reason: ReasonStarted}
	restarted  = Result{Status: StatusRunning, Reason: ReasonRestarted}
	reasserted = Result{Status: StatusRunning, Reason: ReasonReasserted}
	throttled  = Result{Status: StatusRunning, Reason: ReasonThrottled}
	noPlan     = Result{Status: StatusFailure, Reason: ReasonNoPlan}
	exhausted  = Result{Status: StatusFailure, Reason: ReasonBudgetExhausted}
	goalMet    = Result{Status: StatusSuccess, Reason: ReasonGoalSatisfied}
	completed  = Result{Status: StatusSuccess, Reason: ReasonCompleted}
)
