package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Keksclan/tickercache"
	"github.com/Keksclan/tickercache/cache"
	"github.com/Keksclan/tickercache/config"
	"github.com/Keksclan/tickercache/marketdata"
	"github.com/Keksclan/tickercache/tracing"
	"github.com/Keksclan/tickercache/yahoo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func (a *app) newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC server",
		Long: `Run the tickercache gRPC server and, when metrics_listen is set, a
Prometheus endpoint at /metrics.

Examples:
  tickercache serve
  tickercache serve --config tickercache.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the YAML configuration file")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	log, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	var tp trace.TracerProvider
	if cfg.Tracing.Stdout {
		sdk, err := tracing.NewProvider(tracing.ProviderConfig{
			ServiceName: cfg.Tracing.ServiceName,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = sdk.Shutdown(shutdownCtx)
		}()
		tp = sdk
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := cache.NewPrometheusMetrics(reg)
	if err != nil {
		return err
	}

	pol, err := cfg.Policy()
	if err != nil {
		return err
	}
	store, err := cfg.OpenBackend(log)
	if err != nil {
		return err
	}

	cacheOpts := []cache.Option{
		cache.WithPolicy(pol),
		cache.WithLogger(log.Named("cache")),
		cache.WithMetrics(metrics),
		cache.WithFetchTimeout(cfg.Cache.FetchTimeout.Duration()),
	}
	if tp != nil {
		cacheOpts = append(cacheOpts, cache.WithTracerProvider(tp))
	}
	if !cfg.Cache.Coalesce {
		cacheOpts = append(cacheOpts, cache.WithoutCoalescing())
	}
	c := cache.New(store, cacheOpts...)
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn("closing cache", zap.Error(err))
		}
	}()

	var yopts []yahoo.Option
	if tp != nil {
		yopts = append(yopts, yahoo.WithTracerProvider(tp))
	}
	provider := cfg.Provider(log.Named("yahoo"), yopts...)
	svc := marketdata.NewService(provider, c, cfg.ServiceOptions(log.Named("market"))...)

	opts := append(tickercache.DefaultOptions(),
		tickercache.WithLogger(log),
		tickercache.WithMarketData(svc),
		tickercache.WithMetricsRegistry(reg),
		tickercache.WithAdminToken(cfg.Server.AdminToken),
	)
	if cfg.Server.RPS > 0 {
		opts = append(opts, tickercache.WithRateLimitGlobal(cfg.Server.RPS, cfg.Server.Burst))
	}
	for _, m := range cfg.Server.MethodLimits {
		opts = append(opts, tickercache.WithMethodRateLimit(m.Pattern, m.RPS, m.Burst))
	}
	if tp != nil {
		opts = append(opts, tickercache.WithTracing(&tracing.TracingConfig{
			TracerProvider: tp,
			Skip: func(m string) bool {
				return strings.HasPrefix(m, "/grpc.health.v1.Health/")
			},
		}))
	}
	srv := tickercache.NewServer(opts...)

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	log.Info("serving",
		zap.String("addr", lis.Addr().String()),
		zap.String("backend", cfg.Backend.Kind),
		zap.Bool("admin", cfg.Server.AdminToken != ""),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(ctx, lis) })

	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", srv.MetricsHandler())
		hs := &http.Server{Addr: cfg.MetricsListen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
