/*
Package coordinator implements the plan lifecycle: deciding when a planner
is invoked, caching its result, noticing when the world has moved on, and
driving an ActionRuntime accordingly.

# Driving

A Coordinator is owned by exactly one agent and bound to one runtime key and
one Planner. The owner calls Drive once per simulation tick. Every call runs
the same fixed sequence:

 1. take the just-finished outcome of the current plan, if any
 2. recompute the invalidation key and (optionally) the cache key
 3. flag a replan when either key changed since the previous tick
 4. evaluate the goal predicate, including the no-progress guard
 5. ask the runtime whether the current plan is still running
 6. replan (cancel and restart) a running plan once the throttle allows it
 7. start a plan when nothing is running
 8. otherwise re-assert the running plan

Drive reports a Result with a Status (running, success, failure) and a Reason.
Only a broken runtime contract produces an error: re-asserting a running
plan must never cause the runtime to rebuild it, and if it does Drive returns
ErrInvariantViolation.

# Keys

The invalidation key must change whenever the planner's answer could change.
The coordinator trusts the key and never compares planner inputs. A separate
cache key may be supplied when the planner's inputs and the replan trigger
differ; when it is absent the invalidation key alone identifies the cache
entry.

# Goal predicate

When Probes.Done is configured it is the single source of truth for goal
satisfaction: a plan that reports success while Done is still false is
treated as having made no progress, the cache is dropped and a replan is
forced. Without Done, a successful outcome is final until a key changes.

# Budgets and throttling

MinReplanIntervalTicks bounds how often a running plan may be cancelled and
restarted. MaxPlanStartsPerKey bounds how many times a plan may be started for
one unchanged PlanningContext; once spent, Drive fails without calling the
planner until the context changes. A planner that finds no plan behaves the
same way, so an unreachable goal never turns into a planning hot loop.

Either failure reports once, when a replan of a running plan is refused; the
plan keeps running and is re-asserted on later ticks. With nothing running,
the failure repeats on every tick until the context changes.

# Concurrency

A Coordinator is not safe for concurrent use and needs no locking: it is
driven from a single goroutine, one tick at a time. Given identical frames
and key outputs it performs an identical sequence of planner and runtime
calls, which deterministic replay relies on.
*/
package coordinator
