package interceptors

import (
	"context"
	"slices"

	"google.golang.org/grpc"
)

// ChainUnary composes unary interceptors into one. They run in slice order;
// nil entries are skipped. It returns nil when nothing is left to chain.
func ChainUnary(ics []grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	ics = slices.DeleteFunc(slices.Clone(ics), func(ic grpc.UnaryServerInterceptor) bool { return ic == nil })
	switch len(ics) {
	case 0:
		return nil
	case 1:
		return ics[0]
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		return ics[0](ctx, req, info, unaryNext(ics[1:], info, handler))
	}
}

func unaryNext(rest []grpc.UnaryServerInterceptor, info *grpc.UnaryServerInfo, final grpc.UnaryHandler) grpc.UnaryHandler {
	if len(rest) == 0 {
		return final
	}
	return func(ctx context.Context, req any) (any, error) {
		return rest[0](ctx, req, info, unaryNext(rest[1:], info, final))
	}
}

// ChainStream composes stream interceptors into one. They run in slice
// order; nil entries are skipped. It returns nil when nothing is left to
// chain.
func ChainStream(ics []grpc.StreamServerInterceptor) grpc.StreamServerInterceptor {
	ics = slices.DeleteFunc(slices.Clone(ics), func(ic grpc.StreamServerInterceptor) bool { return ic == nil })
	switch len(ics) {
	case 0:
		return nil
	case 1:
		return ics[0]
	}
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return ics[0](srv, ss, info, streamNext(ics[1:], info, handler))
	}
}

func streamNext(rest []grpc.StreamServerInterceptor, info *grpc.StreamServerInfo, final grpc.StreamHandler) grpc.StreamHandler {
	if len(rest) == 0 {
		return final
	}
	return func(srv any, ss grpc.ServerStream) error {
		return rest[0](srv, ss, info, streamNext(rest[1:], info, final))
	}
}
