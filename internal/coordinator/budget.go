package coordinator

// startsFor returns how many plans were started for pctx, counting only the
// most recent context: a context change resets the count.
func (s *state) startsFor(pctx PlanningContext) uint32 {
	if s.hasStartedKey && s.lastStartedKey == pctx {
		return s.startsForKey
	}
	return 0
}

// budgetExhausted reports whether another start for pctx would exceed the
// configured budget.
func (c *Coordinator[W, In]) budgetExhausted(pctx PlanningContext) bool {
	if !c.opts.LimitPlanStarts {
		return false
	}
	return c.state.startsFor(pctx) >= c.opts.MaxPlanStartsPerKey
}

// recordStart counts a start against pctx.
func (s *state) recordStart(pctx PlanningContext) {
	s.startsForKey = s.startsFor(pctx) + 1
	s.lastStartedKey = pctx
	s.hasStartedKey = true
	s.planStarts++
}
