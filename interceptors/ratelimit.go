package interceptors

import (
	"context"

	"github.com/Keksclan/tickercache/ratelimit"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// checkRate fails with ResourceExhausted when the limiter set assigns to
// fullMethod has no token left. Methods without a limiter always pass.
func checkRate(set *ratelimit.Set, fullMethod string) error {
	if l := set.For(fullMethod); l != nil && !l.Allow() {
		return status.Errorf(codes.ResourceExhausted, "rate limit exceeded for %s", fullMethod)
	}
	return nil
}

// RateLimitUnary rejects calls once the method's limiter is drained. Methods
// with their own rule draw from a dedicated bucket; the rest share the set's
// fallback.
func RateLimitUnary(set *ratelimit.Set) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := checkRate(set, info.FullMethod); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// RateLimitStream is the stream counterpart of RateLimitUnary.
func RateLimitStream(set *ratelimit.Set) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := checkRate(set, info.FullMethod); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}
