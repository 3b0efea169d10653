// Package core assembles gRPC server options from the middleware the
// server options selected.
package core

import "google.golang.org/grpc"

// BuildServerOptions chains unary and stream into single interceptors and
// returns them as server options ahead of extra. Empty chains add nothing.
func BuildServerOptions(
	unary []grpc.UnaryServerInterceptor,
	stream []grpc.StreamServerInterceptor,
	chainUnary func([]grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor,
	chainStream func([]grpc.StreamServerInterceptor) grpc.StreamServerInterceptor,
	extra ...grpc.ServerOption,
) []grpc.ServerOption {
	var opts []grpc.ServerOption

	if u := chainUnary(unary); u != nil {
		opts = append(opts, grpc.UnaryInterceptor(u))
	}

	if s := chainStream(stream); s != nil {
		opts = append(opts, grpc.StreamInterceptor(s))
	}

	return append(opts, extra...)
}
