package logging

import (
	"context"
	"testing"

	"github.com/Keksclan/tickercache/contextx"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContextIncludesTraceAndRequest(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	traceID, _ := trace.TraceIDFromHex("0123456789abcdef0123456789abcdef")
	spanID, _ := trace.SpanIDFromHex("0123456789abcdef")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	ctx = contextx.WithRequestID(ctx, "req-1")

	FromContext(ctx, zap.New(core)).Info("hello")
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["trace_id"] != traceID.String() {
		t.Fatalf("expected trace_id %q, got %q", traceID.String(), fields["trace_id"])
	}
	if fields["span_id"] != spanID.String() {
		t.Fatalf("expected span_id %q, got %q", spanID.String(), fields["span_id"])
	}
	if fields["request_id"] != "req-1" {
		t.Fatalf("expected request_id %q, got %q", "req-1", fields["request_id"])
	}
}

func TestFromContextWithoutValues(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	FromContext(t.Context(), base).Info("plain")
	if got := logs.All()[0].ContextMap(); len(got) != 0 {
		t.Fatalf("expected no fields, got %v", got)
	}
}

func TestNew(t *testing.T) {
	l, err := New("debug", false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !l.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected debug enabled")
	}

	if _, err := New("loud", false); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
}
