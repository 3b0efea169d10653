// Package tracing provides OpenTelemetry tracing interceptors for gRPC
// servers and the tracer provider used by the CLI. Tracing is only active
// when [TracingConfig] is wired in via the WithTracing server option.
package tracing

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/Keksclan/tickercache/contextx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const instrumentation = "github.com/Keksclan/tickercache/tracing"

// TracingConfig holds the OpenTelemetry configuration used by the gRPC
// tracing interceptors.
type TracingConfig struct {
	// TracerProvider supplies the Tracer used to create spans. When nil the
	// global otel.GetTracerProvider() is used.
	TracerProvider trace.TracerProvider

	// Propagators extracts trace context from incoming metadata. When nil
	// the global otel.GetTextMapPropagator() is used.
	Propagators propagation.TextMapPropagator

	// Skip, when set, reports methods that should not be traced, such as
	// health checks.
	Skip func(fullMethod string) bool
}

func (c *TracingConfig) skip(fullMethod string) bool {
	return c.Skip != nil && c.Skip(fullMethod)
}

// begin opens a server span for fullMethod as a child of the caller's trace
// and returns the span context plus a func that closes the span with the
// call's outcome.
func (c *TracingConfig) begin(ctx context.Context, fullMethod string) (context.Context, func(error)) {
	prop := c.Propagators
	if prop == nil {
		prop = otel.GetTextMapPropagator()
	}
	tp := c.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	md, _ := metadata.FromIncomingContext(ctx)
	ctx = prop.Extract(ctx, mdCarrier(md))

	service, method := splitFullMethod(fullMethod)
	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", "grpc"),
		attribute.String("rpc.service", service),
		attribute.String("rpc.method", method),
	}
	if id := contextx.RequestIDFromContext(ctx); id != "" {
		attrs = append(attrs, attribute.String("tickercache.request_id", id))
	}

	ctx, span := tp.Tracer(instrumentation).Start(ctx, fullMethod,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
	return ctx, func(err error) {
		st := status.Convert(err)
		span.SetAttributes(attribute.Int("rpc.grpc.status_code", int(st.Code())))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, st.Message())
		}
		span.End()
	}
}

// UnaryServerInterceptor returns a [grpc.UnaryServerInterceptor] that
// creates a span for every unary RPC. A nil cfg disables tracing.
func UnaryServerInterceptor(cfg *TracingConfig) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if cfg == nil || cfg.skip(info.FullMethod) {
			return handler(ctx, req)
		}
		ctx, end := cfg.begin(ctx, info.FullMethod)
		resp, err := handler(ctx, req)
		end(err)
		return resp, err
	}
}

// StreamServerInterceptor returns a [grpc.StreamServerInterceptor] that
// creates a span for every streaming RPC. A nil cfg disables tracing.
func StreamServerInterceptor(cfg *TracingConfig) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if cfg == nil || cfg.skip(info.FullMethod) {
			return handler(srv, ss)
		}
		ctx, end := cfg.begin(ss.Context(), info.FullMethod)
		err := handler(srv, &tracedStream{ServerStream: ss, ctx: ctx})
		end(err)
		return err
	}
}

// mdCarrier reads and writes gRPC metadata for a propagator.
type mdCarrier metadata.MD

func (c mdCarrier) Get(key string) string {
	if v := metadata.MD(c).Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (c mdCarrier) Set(key, value string) { metadata.MD(c).Set(key, value) }

func (c mdCarrier) Keys() []string { return slices.Collect(maps.Keys(c)) }

// splitFullMethod splits "/service/method" into ("service", "method").
func splitFullMethod(fullMethod string) (string, string) {
	service, method, ok := strings.Cut(strings.TrimPrefix(fullMethod, "/"), "/")
	if !ok {
		return service, ""
	}
	return service, method
}

type tracedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedStream) Context() context.Context { return s.ctx }
