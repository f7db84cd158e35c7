package telemetry

import (
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry records spans in memory so package tests can assert on the
// spans the matcher, learner and worker emit.
type TestTelemetry struct {
	Recorder *tracetest.SpanRecorder
	tp       *sdktrace.TracerProvider
}

// NewTestTelemetry creates a recorder-backed tracer provider.
func NewTestTelemetry() *TestTelemetry {
	rec := tracetest.NewSpanRecorder()
	return &TestTelemetry{
		Recorder: rec,
		tp:       sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)),
	}
}

// Install makes the recorder the global tracer provider until tb ends.
// Package-level tracers bind to the first global provider ever set, so a
// test binary should Install before anything else sets one.
func (t *TestTelemetry) Install(tb testing.TB) {
	tb.Helper()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(t.tp)
	tb.Cleanup(func() { otel.SetTracerProvider(prev) })
}

// SpansNamed returns the ended spans called name.
func (t *TestTelemetry) SpansNamed(name string) []sdktrace.ReadOnlySpan {
	var out []sdktrace.ReadOnlySpan
	for _, s := range t.Recorder.Ended() {
		if s.Name() == name {
			out = append(out, s)
		}
	}
	return out
}

// AssertSpanExists fails tb unless a span called name has ended.
func (t *TestTelemetry) AssertSpanExists(tb testing.TB, name string) {
	tb.Helper()
	if len(t.SpansNamed(name)) == 0 {
		var names []string
		for _, s := range t.Recorder.Ended() {
			names = append(names, s.Name())
		}
		tb.Errorf("span %q not recorded; got %v", name, names)
	}
}

// AssertSpanAttribute fails tb unless the last span called name carries
// key with the value want.
func (t *TestTelemetry) AssertSpanAttribute(tb testing.TB, name, key string, want interface{}) {
	tb.Helper()
	spans := t.SpansNamed(name)
	if len(spans) == 0 {
		tb.Fatalf("span %q not recorded", name)
	}
	for _, kv := range spans[len(spans)-1].Attributes() {
		if string(kv.Key) != key {
			continue
		}
		if got := value(kv.Value); got != want {
			tb.Errorf("span %q attribute %q = %v, want %v", name, key, got, want)
		}
		return
	}
	tb.Errorf("span %q has no attribute %q", name, key)
}

func value(v attribute.Value) interface{} {
	switch v.Type() {
	case attribute.STRING:
		return v.AsString()
	case attribute.INT64:
		return v.AsInt64()
	case attribute.FLOAT64:
		return v.AsFloat64()
	case attribute.BOOL:
		return v.AsBool()
	}
	return v.AsInterface()
}
