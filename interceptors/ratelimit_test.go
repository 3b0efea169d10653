package interceptors

import (
	"context"
	"testing"

	"github.com/Keksclan/tickercache/ratelimit"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	methodQuote   = "/tickercache.Market/GetQuote"
	methodHeatmap = "/tickercache.Market/GetHeatmap"
)

func okHandler(context.Context, any) (any, error) { return "ok", nil }

// drain calls ic n times for method and returns the status code of each call.
func drain(t *testing.T, ic grpc.UnaryServerInterceptor, method string, n int) []codes.Code {
	t.Helper()
	got := make([]codes.Code, n)
	for i := range got {
		_, err := ic(t.Context(), nil, &grpc.UnaryServerInfo{FullMethod: method}, okHandler)
		got[i] = status.Code(err)
	}
	return got
}

func TestRateLimitUnary(t *testing.T) {
	ok, limited := codes.OK, codes.ResourceExhausted

	t.Run("fallback bucket", func(t *testing.T) {
		ic := RateLimitUnary(ratelimit.NewSet(ratelimit.NewLimiter(0.001, 2), nil))
		assert.Equal(t, []codes.Code{ok, ok, limited}, drain(t, ic, methodQuote, 3))
	})

	t.Run("method rule has its own bucket", func(t *testing.T) {
		set := ratelimit.NewSet(ratelimit.NewLimiter(1000, 100), func(m string) (ratelimit.Rule, bool) {
			return ratelimit.Rule{RPS: 0.001, Burst: 2}, m == methodHeatmap
		})
		ic := RateLimitUnary(set)
		assert.Equal(t, []codes.Code{ok, ok, limited}, drain(t, ic, methodHeatmap, 3))
		assert.Equal(t, []codes.Code{ok, ok, ok}, drain(t, ic, methodQuote, 3))
	})

	t.Run("no limiter", func(t *testing.T) {
		ic := RateLimitUnary(ratelimit.NewSet(nil, nil))
		assert.NotContains(t, drain(t, ic, methodQuote, 20), limited)
	})
}

func TestRateLimitStream(t *testing.T) {
	ic := RateLimitStream(ratelimit.NewSet(ratelimit.NewLimiter(0.001, 1), nil))
	info := &grpc.StreamServerInfo{FullMethod: methodQuote}
	noop := func(any, grpc.ServerStream) error { return nil }

	assert.NoError(t, ic(nil, nil, info, noop))
	assert.Equal(t, codes.ResourceExhausted, status.Code(ic(nil, nil, info, noop)))
}
