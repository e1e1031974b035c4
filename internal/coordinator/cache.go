package coordinator

import (
	"github.com/joeycumines/plancoord/internal/plan"
	"github.com/joeycumines/plancoord/internal/telemetry"
)

// cacheEntry memoizes one planner call, including "no plan found".
type cacheEntry struct {
	key   PlanningContext
	spec  plan.Spec
	found bool
}

// planningContext computes the keys for frame.
func (c *Coordinator[W, In]) planningContext(frame Frame[W]) PlanningContext {
	pctx := PlanningContext{InvalidationKey: c.probes.InvalidationKey(frame)}
	if c.probes.CacheKey != nil {
		pctx.CacheKey = c.probes.CacheKey(frame)
		pctx.HasCacheKey = true
	}
	return pctx
}

// getOrPlan returns the cached result for pctx, or calls the planner.
// An entry for a different context is never reused; it is overwritten.
func (c *Coordinator[W, In]) getOrPlan(frame Frame[W], pctx PlanningContext) (plan.Spec, bool) {
	s := &c.state
	if c.opts.CacheEnabled && s.cache != nil && s.cache.key == pctx {
		return s.cache.spec, s.cache.found
	}

	in := c.probes.Input(frame)
	c.emit(frame.Tick, telemetry.TagCall, pctx.InvalidationKey, pctx.CacheKey)
	s.planCalls++
	spec, found := c.planner.Plan(in)
	if !found {
		spec = plan.Spec{}
	}
	c.emit(frame.Tick, telemetry.TagResult, uint64(spec.Len()), boolBit(found))

	if c.opts.CacheEnabled {
		s.cache = &cacheEntry{key: pctx, spec: spec, found: found}
	}
	return spec, found
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
