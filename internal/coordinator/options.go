package coordinator

import (
	"github.com/joeycumines/plancoord/internal/telemetry"
)

// Options configures a Coordinator.
type Options struct {
	// MinReplanIntervalTicks is the minimum number of ticks between two plan
	// starts while a replan is pending. Zero disables throttling.
	MinReplanIntervalTicks uint32

	// MaxPlanStartsPerKey bounds plan starts per unchanged PlanningContext,
	// when LimitPlanStarts is set.
	MaxPlanStartsPerKey uint32
	LimitPlanStarts     bool

	// CacheEnabled memoizes the planner result for the current context.
	CacheEnabled bool

	// Sink receives diagnostic events. Nil means telemetry.Nop.
	Sink telemetry.Sink
}

// DefaultOptions returns the options used when none are given: no throttle,
// no budget, caching on.
func DefaultOptions() Options {
	return Options{CacheEnabled: true}
}

// Option mutates Options.
type Option func(*Options)

// WithOptions replaces all options at once.
func WithOptions(o Options) Option {
	return func(opts *Options) { *opts = o }
}

// WithMinReplanInterval sets the throttle window in ticks.
func WithMinReplanInterval(ticks uint32) Option {
	return func(o *Options) { o.MinReplanIntervalTicks = ticks }
}

// WithMaxPlanStartsPerKey limits plan starts per unchanged PlanningContext.
func WithMaxPlanStartsPerKey(n uint32) Option {
	return func(o *Options) {
		o.MaxPlanStartsPerKey = n
		o.LimitPlanStarts = true
	}
}

// WithCache enables or disables result caching.
func WithCache(enabled bool) Option {
	return func(o *Options) { o.CacheEnabled = enabled }
}

// WithSink sets the telemetry sink.
func WithSink(s telemetry.Sink) Option {
	return func(o *Options) { o.Sink = s }
}
