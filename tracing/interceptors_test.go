package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/Keksclan/tickercache/contextx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const getQuote = "/tickercache.Market/GetQuote"

func recorder(t *testing.T) (*TracingConfig, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return &TracingConfig{TracerProvider: tp, Propagators: propagation.TraceContext{}}, rec
}

func attrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value)
	for _, kv := range s.Attributes() {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestUnarySpan(t *testing.T) {
	cfg, rec := recorder(t)
	ctx := contextx.WithRequestID(t.Context(), "req-1")

	resp, err := UnaryServerInterceptor(cfg)(ctx, "in", &grpc.UnaryServerInfo{FullMethod: getQuote},
		func(ctx context.Context, _ any) (any, error) {
			assert.True(t, trace.SpanContextFromContext(ctx).IsValid(), "handler should see the span")
			return "out", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "out", resp)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, getQuote, s.Name())
	assert.Equal(t, trace.SpanKindServer, s.SpanKind())
	assert.Equal(t, codes.Unset, s.Status().Code)

	a := attrs(s)
	assert.Equal(t, "grpc", a["rpc.system"].AsString())
	assert.Equal(t, "tickercache.Market", a["rpc.service"].AsString())
	assert.Equal(t, "GetQuote", a["rpc.method"].AsString())
	assert.Equal(t, "req-1", a["tickercache.request_id"].AsString())
	assert.EqualValues(t, grpccodes.OK, a["rpc.grpc.status_code"].AsInt64())
}

func TestUnarySpanRecordsError(t *testing.T) {
	cfg, rec := recorder(t)
	_, err := UnaryServerInterceptor(cfg)(t.Context(), nil, &grpc.UnaryServerInfo{FullMethod: getQuote},
		func(context.Context, any) (any, error) {
			return nil, status.Error(grpccodes.NotFound, "no such symbol")
		})
	require.Error(t, err)

	s := rec.Ended()[0]
	assert.Equal(t, codes.Error, s.Status().Code)
	assert.Equal(t, "no such symbol", s.Status().Description)
	assert.EqualValues(t, grpccodes.NotFound, attrs(s)["rpc.grpc.status_code"].AsInt64())
	require.Len(t, s.Events(), 1)
	assert.Equal(t, "exception", s.Events()[0].Name)
}

func TestUnarySpanContinuesCallerTrace(t *testing.T) {
	cfg, rec := recorder(t)
	parent := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	ctx := metadata.NewIncomingContext(t.Context(), metadata.Pairs("traceparent", parent))

	_, err := UnaryServerInterceptor(cfg)(ctx, nil, &grpc.UnaryServerInfo{FullMethod: getQuote},
		func(context.Context, any) (any, error) { return nil, nil })
	require.NoError(t, err)

	s := rec.Ended()[0]
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", s.SpanContext().TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", s.Parent().SpanID().String())
}

func TestSkipAndNilConfig(t *testing.T) {
	cfg, rec := recorder(t)
	cfg.Skip = func(m string) bool { return m == "/grpc.health.v1.Health/Check" }

	called := 0
	h := func(context.Context, any) (any, error) { called++; return nil, nil }
	_, _ = UnaryServerInterceptor(cfg)(t.Context(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, h)
	_, _ = UnaryServerInterceptor(nil)(t.Context(), nil, &grpc.UnaryServerInfo{FullMethod: getQuote}, h)

	assert.Equal(t, 2, called)
	assert.Empty(t, rec.Ended())
}

type stream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *stream) Context() context.Context { return s.ctx }

func TestStreamSpan(t *testing.T) {
	cfg, rec := recorder(t)
	err := StreamServerInterceptor(cfg)(nil, &stream{ctx: t.Context()}, &grpc.StreamServerInfo{FullMethod: "/tickercache.Market/Watch"},
		func(_ any, ss grpc.ServerStream) error {
			assert.True(t, trace.SpanContextFromContext(ss.Context()).IsValid())
			return errors.New("stream broke")
		})
	require.Error(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "Watch", attrs(spans[0])["rpc.method"].AsString())
	assert.EqualValues(t, grpccodes.Unknown, attrs(spans[0])["rpc.grpc.status_code"].AsInt64())
}

func TestSplitFullMethod(t *testing.T) {
	tests := []struct{ in, service, method string }{
		{getQuote, "tickercache.Market", "GetQuote"},
		{"/grpc.health.v1.Health/Check", "grpc.health.v1.Health", "Check"},
		{"bare", "bare", ""},
	}
	for _, tt := range tests {
		s, m := splitFullMethod(tt.in)
		assert.Equal(t, tt.service, s, tt.in)
		assert.Equal(t, tt.method, m, tt.in)
	}
}
