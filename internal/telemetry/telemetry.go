// Package telemetry carries the diagnostic events emitted by the plan
// coordinator. Sinks are write-only: nothing emitted here is ever read back
// by the code that emitted it.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
)

// Tag names a coordinator transition.
type Tag string

const (
	// TagCall: the planner is about to be invoked. A = invalidation key, B = cache key.
	TagCall Tag = "plan.call"
	// TagResult: the planner returned. A = plan length, B = 1 if a plan was found.
	TagResult Tag = "plan.result"
	// TagInvalidated: a key changed. A = invalidation key, B = cache key.
	TagInvalidated Tag = "plan.invalidated"
	// TagRestart: a running plan was cancelled and replaced. A = plan length, B = starts for key.
	TagRestart Tag = "plan.restart"
	// TagStart: a plan was started fresh. A = plan length, B = starts for key.
	TagStart Tag = "plan.start"
	// TagNone: no plan is available for the current key. A = invalidation key, B = cache key.
	TagNone Tag = "plan.none"
	// TagDone: the goal predicate is satisfied. A = total starts, B = total planner calls.
	TagDone Tag = "plan.done"
	// TagNoProgress: a plan reported success but the goal is unmet. A = invalidation key, B = cache key.
	TagNoProgress Tag = "plan.no_progress"
	// TagBudgetExhausted: a start was refused. A = starts for key, B = budget.
	TagBudgetExhausted Tag = "plan.budget_exhausted"
	// TagOutcomeSuccess: the current plan finished successfully. A = total starts.
	TagOutcomeSuccess Tag = "plan.outcome.success"
	// TagOutcomeFailure: the current plan failed. A = total starts.
	TagOutcomeFailure Tag = "plan.outcome.failure"
)

// AllTags lists every tag in a stable order.
var AllTags = []Tag{
	TagCall,
	TagResult,
	TagInvalidated,
	TagRestart,
	TagStart,
	TagNone,
	TagDone,
	TagNoProgress,
	TagBudgetExhausted,
	TagOutcomeSuccess,
	TagOutcomeFailure,
}

// Event is one structured diagnostic record.
type Event struct {
	Tick uint64
	Tag  Tag
	A    uint64
	B    uint64
}

// Sink receives events. Implementations must not block.
type Sink interface {
	Emit(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event)

// Emit implements Sink.
func (f SinkFunc) Emit(ev Event) { f(ev) }

// Nop discards everything.
var Nop Sink = SinkFunc(func(Event) {})

// Multi fans an event out to several sinks, in order. Nil sinks are skipped.
func Multi(sinks ...Sink) Sink {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return SinkFunc(func(ev Event) {
		for _, s := range out {
			s.Emit(ev)
		}
	})
}

// SlogSink writes events to a slog.Logger at the given level.
// A nil logger uses slog.Default() at emit time.
type SlogSink struct {
	Logger *slog.Logger
	Level  slog.Level
	// Agent, when set, is attached to every record.
	Agent string
}

// Emit implements Sink.
func (s *SlogSink) Emit(ev Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx := context.Background()
	if !logger.Enabled(ctx, s.Level) {
		return
	}
	attrs := []slog.Attr{
		slog.Uint64("tick", ev.Tick),
		slog.Uint64("a", ev.A),
		slog.Uint64("b", ev.B),
	}
	if s.Agent != "" {
		attrs = append(attrs, slog.String("agent", s.Agent))
	}
	logger.LogAttrs(ctx, s.Level, string(ev.Tag), attrs...)
}

// DefaultRecorderCapacity bounds a Recorder created with a non-positive capacity.
const DefaultRecorderCapacity = 4096

// Recorder keeps the most recent events in a bounded ring buffer.
// It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	buf     []Event
	next    int
	full    bool
	dropped uint64
}

// NewRecorder creates a recorder retaining at most capacity events.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultRecorderCapacity
	}
	return &Recorder{buf: make([]Event, capacity)}
}

// Emit implements Sink.
func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		r.dropped++
	}
	r.buf[r.next] = ev
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

// Events returns the retained events, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]Event(nil), r.buf[:r.next]...)
	}
	out := make([]Event, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}

// Tags returns the tags of the retained events, oldest first.
func (r *Recorder) Tags() []Tag {
	events := r.Events()
	tags := make([]Tag, len(events))
	for i, ev := range events {
		tags[i] = ev.Tag
	}
	return tags
}

// Count returns how many retained events carry tag.
func (r *Recorder) Count(tag Tag) int {
	n := 0
	for _, ev := range r.Events() {
		if ev.Tag == tag {
			n++
		}
	}
	return n
}

// Filter returns the retained events carrying tag.
func (r *Recorder) Filter(tag Tag) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Tag == tag {
			out = append(out, ev)
		}
	}
	return out
}

// Dropped returns the number of events overwritten because the buffer was full.
func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Reset discards all retained events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.buf)
	r.next = 0
	r.full = false
	r.dropped = 0
}
