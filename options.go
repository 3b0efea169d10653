package tickercache

import (
	"github.com/Keksclan/tickercache/auth"
	"github.com/Keksclan/tickercache/marketdata"
	"github.com/Keksclan/tickercache/marketrpc"
	"github.com/Keksclan/tickercache/pattern"
	"github.com/Keksclan/tickercache/ratelimit"
	"github.com/Keksclan/tickercache/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Option configures a Server.
type Option func(*config)

// WithLogger sets the logger used by the logging and recovery middleware
// and by the Market handler.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		c.log = l
	}
}

// WithUnaryInterceptor appends a unary server interceptor after all
// built-in middleware.
func WithUnaryInterceptor(i grpc.UnaryServerInterceptor) Option {
	return func(c *config) {
		c.middlewares.Add(orderCustom, "custom", i, nil)
	}
}

// WithStreamInterceptor appends a stream server interceptor after all
// built-in middleware.
func WithStreamInterceptor(i grpc.StreamServerInterceptor) Option {
	return func(c *config) {
		c.middlewares.Add(orderCustom, "custom", nil, i)
	}
}

// WithServerOption passes o through to grpc.NewServer.
func WithServerOption(o grpc.ServerOption) Option {
	return func(c *config) {
		c.extra = append(c.extra, o)
	}
}

// WithRecovery installs panic-recovery interceptors so that a panic inside a
// handler returns codes.Internal instead of crashing the process.
func WithRecovery() Option {
	return func(c *config) {
		c.recovery = true
	}
}

// WithRequestID accepts or generates an x-request-id for every call.
func WithRequestID() Option {
	return func(c *config) {
		c.requestID = true
	}
}

// WithLogging logs every call with its method, code and duration.
func WithLogging() Option {
	return func(c *config) {
		c.logging = true
	}
}

// WithTracing enables OpenTelemetry server spans. A nil cfg uses the global
// tracer provider and propagator.
func WithTracing(cfg *tracing.TracingConfig) Option {
	return func(c *config) {
		if cfg == nil {
			cfg = &tracing.TracingConfig{}
		}
		c.tracing = cfg
	}
}

// WithRateLimitGlobal limits all calls that no per-method limit matches.
func WithRateLimitGlobal(rps float64, burst int) Option {
	return func(c *config) {
		c.globalLimit = ratelimit.NewLimiter(rps, burst)
	}
}

// WithMethodRateLimit gives every method matching pattern its own limiter.
// Patterns are matched against the full method name and may contain one
// '*'. The first matching pattern wins. It panics on an invalid pattern.
func WithMethodRateLimit(p string, rps float64, burst int) Option {
	m := pattern.MustCompile(p)
	return func(c *config) {
		c.methodLimits = append(c.methodLimits, methodLimit{
			match: m,
			rule:  ratelimit.Rule{RPS: rps, Burst: burst},
		})
	}
}

// WithAuth requires fn to accept calls to methods matching any of patterns.
// With no patterns every method is protected.
func WithAuth(fn auth.AuthFunc, patterns ...string) Option {
	ms := make([]*pattern.Matcher, len(patterns))
	for i, p := range patterns {
		ms[i] = pattern.MustCompile(p)
	}
	return func(c *config) {
		c.auth = append(c.auth, authRule{fn: fn, patterns: ms})
	}
}

// WithAdminToken protects ClearCache with a static bearer token. An empty
// token disables cache administration entirely.
func WithAdminToken(token string) Option {
	return WithAuth(auth.BearerToken(token), marketrpc.FullMethod(marketrpc.MethodClearCache))
}

// WithMarketData registers the Market service backed by svc.
func WithMarketData(svc *marketdata.Service) Option {
	return func(c *config) {
		c.market = svc
	}
}

// WithMetricsRegistry makes MetricsHandler serve reg instead of the default
// registry.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(c *config) {
		c.registry = reg
	}
}

// WithHealth registers the standard gRPC health service.
func WithHealth() Option {
	return func(c *config) {
		c.health = true
	}
}
