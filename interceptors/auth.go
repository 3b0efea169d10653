package interceptors

import (
	"context"

	"github.com/Keksclan/tickercache/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var errUnauthenticated = status.Error(codes.Unauthenticated, "unauthenticated")

// authenticate runs fn for protected methods. Errors that are not already
// gRPC statuses are reported as Unauthenticated without detail.
func authenticate(ctx context.Context, fn auth.AuthFunc, protected func(string) bool, fullMethod string) (context.Context, error) {
	if protected != nil && !protected(fullMethod) {
		return ctx, nil
	}
	md, _ := metadata.FromIncomingContext(ctx)
	out, err := fn(ctx, fullMethod, md)
	if err != nil {
		if _, ok := status.FromError(err); ok {
			return nil, err
		}
		return nil, errUnauthenticated
	}
	return out, nil
}

// AuthUnary returns a unary server interceptor that calls fn before the
// handler. Only methods accepted by protected are checked; a nil protected
// checks every method.
func AuthUnary(fn auth.AuthFunc, protected func(fullMethod string) bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := authenticate(ctx, fn, protected, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// AuthStream is the stream counterpart of AuthUnary.
func AuthStream(fn auth.AuthFunc, protected func(fullMethod string) bool) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticate(ss.Context(), fn, protected, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &ctxStream{ServerStream: ss, ctx: ctx})
	}
}
