package coordinator

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/joeycumines/plancoord/internal/plan"
	"github.com/joeycumines/plancoord/internal/telemetry"
)

// Coordinator owns the plan lifecycle for one agent. W is the world type
// seen by probes and factories, In the planner input type.
type Coordinator[W, In any] struct {
	key     string
	planner Planner[In]
	factory ActionFactory[W]
	probes  Probes[W, In]
	opts    Options
	sink    telemetry.Sink
	state   state
}

type state struct {
	haveKeys bool
	keys     PlanningContext

	hasPlanned      bool
	lastPlannedTick uint64
	pendingReplan   bool

	cache *cacheEntry

	startsForKey   uint32
	lastStartedKey PlanningContext
	hasStartedKey  bool

	lastOutcome plan.Outcome
	// stuck is ReasonNoPlan or ReasonBudgetExhausted while the current
	// context is known to be unplannable, ReasonNone otherwise.
	stuck Reason
	phase Phase

	planCalls  uint64
	planStarts uint64
	restarts   uint64
	noProgress uint64
	failures   uint64
}

func initialState() state {
	return state{pendingReplan: true}
}

// New creates a coordinator bound to the runtime key, planner and factory.
func New[W, In any](key string, planner Planner[In], factory ActionFactory[W], probes Probes[W, In], opts ...Option) (*Coordinator[W, In], error) {
	if planner == nil {
		return nil, errors.New("coordinator: nil planner")
	}
	if factory == nil {
		return nil, errors.New("coordinator: nil action factory")
	}
	if err := probes.validate(); err != nil {
		return nil, err
	}
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	sink := o.Sink
	if sink == nil {
		sink = telemetry.Nop
	}
	return &Coordinator[W, In]{
		key:     key,
		planner: planner,
		factory: factory,
		probes:  probes,
		opts:    o,
		sink:    sink,
		state:   initialState(),
	}, nil
}

// Key returns the runtime key this coordinator drives.
func (c *Coordinator[W, In]) Key() string {
	return c.key
}

// Options returns the effective options.
func (c *Coordinator[W, In]) Options() Options {
	return c.opts
}

// Reset restores the initial state: the next Drive plans immediately.
// Counters are cleared too.
func (c *Coordinator[W, In]) Reset() {
	c.state = initialState()
}

// Drive advances the lifecycle by one tick. See the package documentation
// for the order of operations.
func (c *Coordinator[W, In]) Drive(frame Frame[W], rt ActionRuntime) (Result, error) {
	s := &c.state
	tick := frame.Tick

	finished, hasFinished := rt.TakeJustFinished(c.key)
	if hasFinished {
		s.lastOutcome = finished
		switch finished {
		case plan.OutcomeFailure:
			s.cache = nil
			s.pendingReplan = true
			s.failures++
			c.emit(tick, telemetry.TagOutcomeFailure, s.planStarts, 0)
		case plan.OutcomeSuccess:
			c.emit(tick, telemetry.TagOutcomeSuccess, s.planStarts, 0)
		}
	}

	pctx := c.planningContext(frame)
	if s.haveKeys && pctx != s.keys {
		s.pendingReplan = true
		s.stuck = ReasonNone
		c.emit(tick, telemetry.TagInvalidated, pctx.InvalidationKey, pctx.CacheKey)
	}
	s.keys = pctx
	s.haveKeys = true

	if c.probes.Done != nil {
		if c.probes.Done(frame) {
			s.cache = nil
			s.pendingReplan = true
			if s.phase != PhaseDone {
				c.emit(tick, telemetry.TagDone, s.planStarts, s.planCalls)
			}
			// nothing is asserted: a plan still bound to the key is preempted
			return c.report(PhaseDone, StatusSuccess, ReasonGoalSatisfied), nil
		}
		if hasFinished && finished == plan.OutcomeSuccess {
			s.cache = nil
			s.pendingReplan = true
			s.noProgress++
			c.emit(tick, telemetry.TagNoProgress, pctx.InvalidationKey, pctx.CacheKey)
		}
	} else if hasFinished && finished == plan.OutcomeSuccess {
		return c.report(PhaseIdle, StatusSuccess, ReasonCompleted), nil
	}

	elapsed := c.throttleElapsed(tick)

	if rt.IsRunning(c.key) {
		if s.pendingReplan && elapsed {
			return c.start(frame, pctx, rt, true), nil
		}
		// a sticky failure leaves a running plan bound
		return c.reassert(rt)
	}

	if s.stuck != ReasonNone && !s.pendingReplan {
		return c.failStuck(), nil
	}

	if c.probes.Done == nil && s.lastOutcome == plan.OutcomeSuccess && !s.pendingReplan {
		return c.report(PhaseIdle, StatusSuccess, ReasonCompleted), nil
	}

	if s.pendingReplan && !elapsed {
		return c.report(PhaseReplanThrottled, StatusRunning, ReasonThrottled), nil
	}

	return c.start(frame, pctx, rt, false), nil
}

// throttleElapsed reports whether the throttle window since the last plan
// start has passed. A tick earlier than the last start (a rewound clock)
// counts as elapsed.
func (c *Coordinator[W, In]) throttleElapsed(tick uint64) bool {
	s := &c.state
	if !s.hasPlanned || tick < s.lastPlannedTick {
		return true
	}
	return tick-s.lastPlannedTick >= uint64(c.opts.MinReplanIntervalTicks)
}

// start runs the budget check, obtains a plan and hands it to the runtime,
// replacing the current action when replace is set.
func (c *Coordinator[W, In]) start(frame Frame[W], pctx PlanningContext, rt ActionRuntime, replace bool) Result {
	s := &c.state
	tick := frame.Tick

	if c.budgetExhausted(pctx) {
		s.cache = nil
		s.pendingReplan = false
		s.stuck = ReasonBudgetExhausted
		c.emit(tick, telemetry.TagBudgetExhausted, uint64(s.startsFor(pctx)), uint64(c.opts.MaxPlanStartsPerKey))
		slog.Debug("plan start budget exhausted", "key", c.key, "tick", tick, "starts", s.startsFor(pctx))
		return c.report(PhaseBudgetExhausted, StatusFailure, ReasonBudgetExhausted)
	}

	spec, found := c.getOrPlan(frame, pctx)
	if !found {
		s.pendingReplan = false
		s.stuck = ReasonNoPlan
		c.emit(tick, telemetry.TagNone, pctx.InvalidationKey, pctx.CacheKey)
		return c.report(PhaseNoPlan, StatusFailure, ReasonNoPlan)
	}

	s.recordStart(pctx)
	s.lastPlannedTick = tick
	s.hasPlanned = true
	s.pendingReplan = false
	s.lastOutcome = 0

	build := plan.ExecutorBuilder(spec, bind(c.factory, frame))
	var err error
	if replace {
		s.restarts++
		err = rt.ReplaceCurrentWith(c.key, build)
		c.emit(tick, telemetry.TagRestart, uint64(spec.Len()), uint64(s.startsForKey))
	} else {
		err = rt.EnsureCurrent(c.key, build)
		c.emit(tick, telemetry.TagStart, uint64(spec.Len()), uint64(s.startsForKey))
	}
	if err != nil {
		// treated like an execution failure: retry once the throttle allows
		s.cache = nil
		s.pendingReplan = true
		s.failures++
		slog.Warn("runtime failed to start plan", "key", c.key, "tick", tick, "error", err)
		return c.report(PhaseIdle, StatusFailure, ReasonStartFailed)
	}

	slog.Debug("plan started", "key", c.key, "tick", tick, "plan", spec.String(), "replace", replace)
	if replace {
		return c.report(PhaseRunning, StatusRunning, ReasonRestarted)
	}
	return c.report(PhaseRunning, StatusRunning, ReasonStarted)
}

// reassert keeps the running plan bound to the key. The runtime must not
// need to rebuild it; if it tries, the builder refuses and Drive fails loudly.
func (c *Coordinator[W, In]) reassert(rt ActionRuntime) (Result, error) {
	invoked := false
	err := rt.EnsureCurrent(c.key, func() (plan.Action, error) {
		invoked = true
		return nil, ErrInvariantViolation
	})
	if invoked || err != nil {
		if err == nil {
			err = ErrInvariantViolation
		}
		slog.Error("runtime rebuilt a running plan on re-assert", "key", c.key, "error", err)
		c.state.phase = PhaseIdle
		return Result{Status: StatusFailure, Reason: ReasonInvariantViolation},
			fmt.Errorf("%w: re-assert of running plan %q: %w", ErrInvariantViolation, c.key, err)
	}
	if c.state.pendingReplan {
		return c.report(PhaseReplanThrottled, StatusRunning, ReasonThrottled), nil
	}
	return c.report(PhaseRunning, StatusRunning, ReasonReasserted), nil
}

func (c *Coordinator[W, In]) failStuck() Result {
	if c.state.stuck == ReasonBudgetExhausted {
		return c.report(PhaseBudgetExhausted, StatusFailure, ReasonBudgetExhausted)
	}
	return c.report(PhaseNoPlan, StatusFailure, ReasonNoPlan)
}

func (c *Coordinator[W, In]) report(phase Phase, status Status, reason Reason) Result {
	c.state.phase = phase
	return Result{Status: status, Reason: reason}
}

func (c *Coordinator[W, In]) emit(tick uint64, tag telemetry.Tag, a, b uint64) {
	c.sink.Emit(telemetry.Event{Tick: tick, Tag: tag, A: a, B: b})
}

// Stats is a snapshot of the coordinator's state and counters.
type Stats struct {
	Phase           Phase
	Context         PlanningContext
	PendingReplan   bool
	LastPlannedTick uint64
	HasPlanned      bool
	LastOutcome     plan.Outcome
	Cached          bool
	StartsForKey    uint32
	PlanCalls       uint64
	PlanStarts      uint64
	Restarts        uint64
	NoProgress      uint64
	Failures        uint64
}

// Stats returns a snapshot of the current state.
func (c *Coordinator[W, In]) Stats() Stats {
	s := &c.state
	return Stats{
		Phase:           s.phase,
		Context:         s.keys,
		PendingReplan:   s.pendingReplan,
		LastPlannedTick: s.lastPlannedTick,
		HasPlanned:      s.hasPlanned,
		LastOutcome:     s.lastOutcome,
		Cached:          s.cache != nil,
		StartsForKey:    s.startsForKey,
		PlanCalls:       s.planCalls,
		PlanStarts:      s.planStarts,
		Restarts:        s.restarts,
		NoProgress:      s.noProgress,
		Failures:        s.failures,
	}
}
