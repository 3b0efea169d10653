package cache

import (
	"time"

	"github.com/Keksclan/tickercache/clock"
	"github.com/Keksclan/tickercache/policy"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Option configures a Cache.
type Option func(*Cache)

// WithPolicy sets the TTL policy. Without it the cache uses policy.New(),
// which resolves every key to policy.DefaultTTL.
func WithPolicy(p *policy.TTLPolicy) Option {
	return func(c *Cache) { c.policy = p }
}

// WithClock sets the time source used for write stamps and expiry.
func WithClock(clk clock.Clock) Option {
	return func(c *Cache) { c.clock = clk }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithTracerProvider sets the provider for fetch spans. The global provider
// is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Cache) { c.tracer = tp.Tracer(tracerName) }
}

// WithoutCoalescing lets concurrent callers that miss on the same key each
// run their own fetch, with the last one to finish winning the write.
func WithoutCoalescing() Option {
	return func(c *Cache) { c.coalesce = false }
}

// WithFetchTimeout bounds a coalesced fetch. The shared fetch ignores the
// cancellation of the caller that started it, so without a bound it runs
// until the fetch function returns. Zero means no bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) { c.fetchTimeout = d }
}

// SetOption configures a single write.
type SetOption func(*envelope)

// WithTTLOverride records a caller-requested TTL on the entry. Expiry is
// still decided by the policy at read time, so changing a rule affects
// entries that are already stored.
func WithTTLOverride(d time.Duration) SetOption {
	return func(e *envelope) { e.TTL = d.Milliseconds() }
}
