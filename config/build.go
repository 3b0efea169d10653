package config

import (
	"cmp"
	"fmt"

	"github.com/Keksclan/tickercache/backend"
	"github.com/Keksclan/tickercache/breaker"
	"github.com/Keksclan/tickercache/internal/logging"
	"github.com/Keksclan/tickercache/marketdata"
	"github.com/Keksclan/tickercache/policy"
	"github.com/Keksclan/tickercache/ratelimit"
	"github.com/Keksclan/tickercache/retry"
	"github.com/Keksclan/tickercache/upstream"
	"github.com/Keksclan/tickercache/yahoo"
	"go.uber.org/zap"
)

// Logger builds the process logger.
func (c *Config) Logger() (*zap.Logger, error) {
	return logging.New(c.Log.Level, c.Log.Development)
}

// Policy builds the TTL policy.
func (c *Config) Policy() (*policy.TTLPolicy, error) {
	var opts []policy.Option
	if c.TTL.Default > 0 {
		opts = append(opts, policy.WithDefaultTTL(c.TTL.Default.Duration()))
	}
	for _, p := range c.TTL.Prefixes {
		opts = append(opts, policy.WithPrefix(p.Prefix, p.TTL.Duration()))
	}

	var p *policy.TTLPolicy
	if c.TTL.Standard {
		p = policy.Standard(opts...)
	} else {
		p = policy.New(opts...)
	}
	for _, r := range c.TTL.Rules {
		if err := p.Register(r.Pattern, r.TTL.Duration()); err != nil {
			return nil, fmt.Errorf("config: ttl rule %q: %w", r.Pattern, err)
		}
	}
	return p, nil
}

// OpenBackend opens the configured store. The caller closes it.
func (c *Config) OpenBackend(log *zap.Logger) (backend.Backend, error) {
	var b backend.Backend
	switch c.Backend.Kind {
	case BackendMemory:
		return backend.NewMemory(), nil
	case BackendBadger:
		bb, err := backend.OpenBadger(c.Backend.Path)
		if err != nil {
			return nil, err
		}
		b = bb
	case BackendRedis:
		opts := []backend.RedisOption{backend.WithRedisLogger(log)}
		if c.Backend.Redis.Prefix != "" {
			opts = append(opts, backend.WithRedisPrefix(c.Backend.Redis.Prefix))
		}
		b = backend.NewRedis(c.Backend.Redis.Addr, c.Backend.Redis.Password, c.Backend.Redis.DB, opts...)
	default:
		return nil, fmt.Errorf("config: unknown backend %q", c.Backend.Kind)
	}

	if c.Backend.HotTier == 0 {
		return b, nil
	}
	t, err := backend.NewTiered(b, c.Backend.HotTier)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("config: hot tier: %w", err)
	}
	return t, nil
}

// Guard builds the limiter, breaker, retry and timeout applied to every
// upstream call.
func (c *Config) Guard(log *zap.Logger) *upstream.Guard {
	u := c.Upstream
	return &upstream.Guard{
		Limiter: ratelimit.NewLimiter(u.RPS, u.Burst),
		Breaker: breaker.New(breaker.Config{
			FailureThreshold:   u.Breaker.FailureThreshold,
			OpenTimeout:        u.Breaker.OpenTimeout.Duration(),
			HalfOpenMaxSuccess: u.Breaker.HalfOpenMaxSuccess,
			IsFailure:          yahoo.CountsAgainstBreaker,
			OnStateChange: func(from, to breaker.State) {
				log.Warn("upstream breaker state changed",
					zap.Stringer("from", from), zap.Stringer("to", to))
			},
		}),
		Retry: &retry.Config{
			MaxAttempts: u.Retry.MaxAttempts,
			BaseDelay:   u.Retry.BaseDelay.Duration(),
			MaxDelay:    u.Retry.MaxDelay.Duration(),
			Jitter:      u.Retry.Jitter,
			Retryable:   yahoo.Retryable,
		},
		Timeout: u.Timeout.Duration(),
	}
}

// Provider builds the Yahoo Finance client.
func (c *Config) Provider(log *zap.Logger, extra ...yahoo.Option) *yahoo.Client {
	u := c.Upstream
	opts := []yahoo.Option{
		yahoo.WithGuard(c.Guard(log)),
		yahoo.WithLogger(log),
		yahoo.WithBaseURLs(
			cmp.Or(u.ChartBase, yahoo.DefaultChartBase),
			cmp.Or(u.SummaryBase, yahoo.DefaultSummaryBase),
		),
	}
	if u.UserAgent != "" {
		opts = append(opts, yahoo.WithUserAgent(u.UserAgent))
	}
	return yahoo.New(append(opts, extra...)...)
}

// ServiceOptions returns the market data service options.
func (c *Config) ServiceOptions(log *zap.Logger) []marketdata.Option {
	opts := []marketdata.Option{marketdata.WithLogger(log)}
	if c.Upstream.Concurrency > 0 {
		opts = append(opts, marketdata.WithConcurrency(c.Upstream.Concurrency))
	}
	if c.Upstream.HeatmapBatch > 0 {
		opts = append(opts, marketdata.WithHeatmapBatches(c.Upstream.HeatmapBatch, c.Upstream.HeatmapPause.Duration()))
	}
	return opts
}
