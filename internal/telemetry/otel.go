package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelSink counts coordinator events with an OpenTelemetry counter, one
// data point per event, attributed by tag.
type OTelSink struct {
	events metric.Int64Counter
	attrs  []attribute.KeyValue
	// per-tag option sets, built once so Emit does not allocate
	opts map[Tag]metric.AddOption
}

// NewOTelSink creates the "plancoord.events" counter on meter. The extra
// attributes (e.g. the agent) are attached to every data point.
func NewOTelSink(meter metric.Meter, attrs ...attribute.KeyValue) (*OTelSink, error) {
	if meter == nil {
		return nil, fmt.Errorf("telemetry: nil meter")
	}
	counter, err := meter.Int64Counter(
		"plancoord.events",
		metric.WithDescription("Plan coordinator transitions, by tag"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create events counter: %w", err)
	}
	s := &OTelSink{
		events: counter,
		attrs:  attrs,
		opts:   make(map[Tag]metric.AddOption, len(AllTags)),
	}
	for _, tag := range AllTags {
		s.opts[tag] = s.options(tag)
	}
	return s, nil
}

func (s *OTelSink) options(tag Tag) metric.AddOption {
	kv := make([]attribute.KeyValue, 0, len(s.attrs)+1)
	kv = append(kv, attribute.String("tag", string(tag)))
	kv = append(kv, s.attrs...)
	return metric.WithAttributes(kv...)
}

// Emit implements Sink.
func (s *OTelSink) Emit(ev Event) {
	opt, ok := s.opts[ev.Tag]
	if !ok {
		opt = s.options(ev.Tag)
	}
	s.events.Add(context.Background(), 1, opt)
}
