package tickercache

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/Keksclan/tickercache/interceptors"
	"github.com/Keksclan/tickercache/internal/core"
	"github.com/Keksclan/tickercache/marketdata"
	"github.com/Keksclan/tickercache/marketrpc"
	"github.com/Keksclan/tickercache/ratelimit"
	"github.com/Keksclan/tickercache/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server is a composable wrapper around a [grpc.Server] that layers
// middleware (recovery, request IDs, tracing, logging, rate limiting,
// authentication) via functional [Option] values passed to [NewServer].
//
// The underlying gRPC server is available through [Server.GRPC] so that
// further services can be registered next to Market:
//
//	srv := tickercache.NewServer(
//		tickercache.WithRecovery(),
//		tickercache.WithMarketData(svc),
//		tickercache.WithAdminToken(token),
//	)
//	err := srv.Serve(ctx, lis)
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	market     *marketdata.Service
	registry   *prometheus.Registry
	log        *zap.Logger
}

// NewServer creates a new [Server] by applying the supplied functional
// [Option] values and wiring the resulting unary and stream interceptor
// chains into [grpc.NewServer]. Middleware execution order is determined by
// fixed priority levels (see package-level constants), not by the order
// options are passed.
func NewServer(opts ...Option) *Server {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.log == nil {
		cfg.log = zap.NewNop()
	}
	cfg.addBuiltins()

	unary, stream := cfg.middlewares.Build()
	serverOpts := core.BuildServerOptions(unary, stream, interceptors.ChainUnary, interceptors.ChainStream, cfg.extra...)

	s := &Server{
		grpcServer: grpc.NewServer(serverOpts...),
		market:     cfg.market,
		registry:   cfg.registry,
		log:        cfg.log,
	}
	if cfg.health {
		s.health = health.NewServer()
		healthpb.RegisterHealthServer(s.grpcServer, s.health)
	}
	if cfg.market != nil {
		s.RegisterMarket(marketrpc.NewHandler(cfg.market, cfg.log))
	}
	cfg.log.Debug("server built", zap.Strings("middleware", cfg.middlewares.Names()))
	return s
}

// addBuiltins turns the selected options into middleware entries.
func (c *config) addBuiltins() {
	if c.recovery {
		c.middlewares.Add(orderRecovery, "recovery",
			interceptors.RecoveryUnary(c.log), interceptors.RecoveryStream(c.log))
	}
	if c.requestID {
		c.middlewares.Add(orderRequestID, "request-id",
			interceptors.RequestIDUnary(), interceptors.RequestIDStream())
	}
	if c.tracing != nil {
		c.middlewares.Add(orderTracing, "tracing",
			tracing.UnaryServerInterceptor(c.tracing), tracing.StreamServerInterceptor(c.tracing))
	}
	if c.logging {
		c.middlewares.Add(orderLogging, "logging",
			interceptors.LoggingUnary(c.log), interceptors.LoggingStream(c.log))
	}
	if c.globalLimit != nil || len(c.methodLimits) > 0 {
		var rules func(string) (ratelimit.Rule, bool)
		if len(c.methodLimits) > 0 {
			rules = c.methodRule
		}
		set := ratelimit.NewSet(c.globalLimit, rules)
		c.middlewares.Add(orderRateLimit, "ratelimit",
			interceptors.RateLimitUnary(set), interceptors.RateLimitStream(set))
	}
	for _, a := range c.auth {
		var protected func(string) bool
		if len(a.patterns) > 0 {
			ps := a.patterns
			protected = func(m string) bool { return matchAny(ps, m) }
		}
		c.middlewares.Add(orderAuth, "auth",
			interceptors.AuthUnary(a.fn, protected), interceptors.AuthStream(a.fn, protected))
	}
}

// GRPC returns the underlying *grpc.Server so callers can register services.
func (s *Server) GRPC() *grpc.Server {
	return s.grpcServer
}

// Market returns the market data service configured via WithMarketData. It
// returns nil if none was configured.
func (s *Server) Market() *marketdata.Service {
	return s.market
}

// RegisterMarket registers the tickercache.Market service using h and marks
// it serving when the health service is enabled.
func (s *Server) RegisterMarket(h marketrpc.Handler) {
	marketrpc.Register(s.grpcServer, h)
	if s.health != nil {
		s.health.SetServingStatus(marketrpc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	}
}

// MetricsHandler returns an http.Handler that serves Prometheus metrics.
func (s *Server) MetricsHandler() http.Handler {
	if s.registry != nil {
		return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
	}
	return promhttp.Handler()
}

// Serve accepts connections on lis until ctx is cancelled, then stops
// gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errc := make(chan error, 1)
	go func() { errc <- s.grpcServer.Serve(lis) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	if s.health != nil {
		s.health.Shutdown()
	}
	s.grpcServer.GracefulStop()
	if err := <-errc; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
