// Package tickercache serves cached stock dashboard data over gRPC. A
// [Server] layers recovery, request IDs, tracing, logging, rate limiting and
// admin authentication in front of the Market service.
package tickercache

import (
	"github.com/Keksclan/tickercache/auth"
	"github.com/Keksclan/tickercache/internal/core"
	"github.com/Keksclan/tickercache/marketdata"
	"github.com/Keksclan/tickercache/pattern"
	"github.com/Keksclan/tickercache/ratelimit"
	"github.com/Keksclan/tickercache/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Middleware priorities. Lower values run first, regardless of the order
// in which options are passed to NewServer.
const (
	orderRecovery  = 100
	orderRequestID = 200
	orderTracing   = 300
	orderLogging   = 400
	orderRateLimit = 500
	orderAuth      = 600
	orderCustom    = 1000
)

type methodLimit struct {
	match *pattern.Matcher
	rule  ratelimit.Rule
}

type authRule struct {
	fn       auth.AuthFunc
	patterns []*pattern.Matcher
}

// config holds the internal configuration assembled via functional options.
type config struct {
	middlewares core.MiddlewareBuilder
	log         *zap.Logger

	recovery  bool
	requestID bool
	logging   bool
	tracing   *tracing.TracingConfig

	globalLimit  *ratelimit.Limiter
	methodLimits []methodLimit
	auth         []authRule

	market   *marketdata.Service
	registry *prometheus.Registry
	health   bool
	extra    []grpc.ServerOption
}

// methodRule returns the first per-method limit matching fullMethod.
func (c *config) methodRule(fullMethod string) (ratelimit.Rule, bool) {
	for _, m := range c.methodLimits {
		if m.match.Match(fullMethod) {
			return m.rule, true
		}
	}
	return ratelimit.Rule{}, false
}

func matchAny(ms []*pattern.Matcher, fullMethod string) bool {
	for _, m := range ms {
		if m.Match(fullMethod) {
			return true
		}
	}
	return false
}
