package telemetry

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestRecorder_RetainsInOrder(t *testing.T) {
	r := NewRecorder(8)
	r.Emit(Event{Tick: 0, Tag: TagCall})
	r.Emit(Event{Tick: 0, Tag: TagResult, A: 2, B: 1})
	r.Emit(Event{Tick: 0, Tag: TagStart, A: 2, B: 1})

	assert.Equal(t, []Tag{TagCall, TagResult, TagStart}, r.Tags())
	assert.Equal(t, 1, r.Count(TagStart))
	assert.Equal(t, []Event{{Tick: 0, Tag: TagResult, A: 2, B: 1}}, r.Filter(TagResult))
	assert.Zero(t, r.Dropped())
}

func TestRecorder_Wraps(t *testing.T) {
	r := NewRecorder(3)
	for i := range 5 {
		r.Emit(Event{Tick: uint64(i), Tag: TagInvalidated})
	}
	events := r.Events()
	require.Len(t, events, 3)
	assert.Equal(t, uint64(2), events[0].Tick)
	assert.Equal(t, uint64(4), events[2].Tick)
	assert.Equal(t, uint64(2), r.Dropped())

	r.Reset()
	assert.Empty(t, r.Events())
	assert.Zero(t, r.Dropped())
}

func TestRecorder_DefaultCapacity(t *testing.T) {
	r := NewRecorder(0)
	assert.Len(t, r.buf, DefaultRecorderCapacity)
}

func TestMulti(t *testing.T) {
	a, b := NewRecorder(4), NewRecorder(4)
	s := Multi(a, nil, b)
	s.Emit(Event{Tag: TagDone})
	assert.Equal(t, 1, a.Count(TagDone))
	assert.Equal(t, 1, b.Count(TagDone))

	Nop.Emit(Event{Tag: TagDone})
}

func TestSlogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := &SlogSink{Logger: logger, Level: slog.LevelDebug, Agent: "a1"}
	s.Emit(Event{Tick: 7, Tag: TagRestart, A: 2, B: 3})

	out := buf.String()
	assert.Contains(t, out, "plan.restart")
	assert.Contains(t, out, "tick=7")
	assert.Contains(t, out, "a=2")
	assert.Contains(t, out, "b=3")
	assert.Contains(t, out, "agent=a1")
}

func TestSlogSink_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	s := &SlogSink{Logger: logger, Level: slog.LevelDebug}
	s.Emit(Event{Tag: TagCall})
	assert.Empty(t, strings.TrimSpace(buf.String()))
}

func TestOTelSink(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	s, err := NewOTelSink(meter, attribute.String("agent", "a1"))
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Len(t, s.opts, len(AllTags))

	// noop instruments accept anything; this only exercises the paths
	s.Emit(Event{Tag: TagStart})
	s.Emit(Event{Tag: Tag("custom")})

	_, err = NewOTelSink(nil)
	require.Error(t, err)
}
