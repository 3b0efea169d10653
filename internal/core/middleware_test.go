package core

import (
	"context"
	"slices"
	"testing"

	"google.golang.org/grpc"
)

func noop(ctx context.Context, req any, _ *grpc.UnaryServerInfo, h grpc.UnaryHandler) (any, error) {
	return h(ctx, req)
}

func TestNamesFollowOrder(t *testing.T) {
	var b MiddlewareBuilder
	b.Add(500, "ratelimit", noop, nil)
	b.Add(100, "recovery", noop, nil)
	b.Add(500, "ratelimit-methods", noop, nil)
	b.Add(300, "logging", nil, nil)

	want := []string{"recovery", "logging", "ratelimit", "ratelimit-methods"}
	if got := b.Names(); !slices.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	unary, stream := b.Build()
	if len(unary) != 3 || len(stream) != 0 {
		t.Fatalf("got %d unary / %d stream, want 3 / 0", len(unary), len(stream))
	}
}

func TestBuildServerOptions(t *testing.T) {
	chain := func(ics []grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
		if len(ics) == 0 {
			return nil
		}
		return ics[0]
	}
	chainStream := func([]grpc.StreamServerInterceptor) grpc.StreamServerInterceptor { return nil }

	opts := BuildServerOptions([]grpc.UnaryServerInterceptor{noop}, nil, chain, chainStream, grpc.MaxRecvMsgSize(1<<20))
	if len(opts) != 2 {
		t.Fatalf("expected interceptor + extra option, got %d", len(opts))
	}
	if got := BuildServerOptions(nil, nil, chain, chainStream); len(got) != 0 {
		t.Fatalf("expected no options, got %d", len(got))
	}
}
