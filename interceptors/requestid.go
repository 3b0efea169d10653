package interceptors

import (
	"context"

	"github.com/Keksclan/tickercache/contextx"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// RequestIDHeader is the metadata key carrying a caller-supplied request ID.
const RequestIDHeader = "x-request-id"

// ensureRequestID returns the context enriched with a request ID: the one
// already in ctx, else the caller's x-request-id, else a fresh one.
func ensureRequestID(ctx context.Context) context.Context {
	if contextx.RequestIDFromContext(ctx) != "" {
		return ctx
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(RequestIDHeader); len(vals) > 0 && vals[0] != "" {
			return contextx.WithRequestID(ctx, vals[0])
		}
	}
	return contextx.WithRequestID(ctx, uuid.NewString())
}

// RequestIDUnary returns a unary server interceptor that ensures a request ID
// is present in the context and echoes it in the response header.
func RequestIDUnary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx = ensureRequestID(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, contextx.RequestIDFromContext(ctx)))
		return handler(ctx, req)
	}
}

// RequestIDStream returns a stream server interceptor that ensures a request
// ID is present in the stream context.
func RequestIDStream() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		return handler(srv, &ctxStream{ServerStream: ss, ctx: ensureRequestID(ss.Context())})
	}
}

// ctxStream overrides Context() to carry an enriched context.
type ctxStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *ctxStream) Context() context.Context { return s.ctx }
