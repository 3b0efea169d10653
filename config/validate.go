package config

import (
	"errors"
	"fmt"

	"github.com/Keksclan/tickercache/pattern"
)

// Validate reports every problem in c at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Listen == "" {
		add("listen: required")
	}

	switch c.Backend.Kind {
	case BackendMemory:
	case BackendBadger:
		if c.Backend.Path == "" {
			add("backend.path: required for badger")
		}
	case BackendRedis:
		if c.Backend.Redis.Addr == "" {
			add("backend.redis.addr: required for redis")
		}
	default:
		add("backend.kind: unknown %q", c.Backend.Kind)
	}
	if c.Backend.HotTier < 0 {
		add("backend.hot_tier: must not be negative")
	}

	if c.TTL.Default < 0 {
		add("ttl.default: must not be negative")
	}
	for i, p := range c.TTL.Prefixes {
		if p.Prefix == "" {
			add("ttl.prefixes[%d]: empty prefix", i)
		}
		if p.TTL < 0 {
			add("ttl.prefixes[%d]: negative ttl", i)
		}
	}
	for i, r := range c.TTL.Rules {
		if _, err := pattern.Compile(r.Pattern); err != nil {
			add("ttl.rules[%d]: %w", i, err)
		}
		if r.TTL < 0 {
			add("ttl.rules[%d]: negative ttl", i)
		}
	}

	if c.Cache.FetchTimeout < 0 {
		add("cache.fetch_timeout: must not be negative")
	}

	if c.Upstream.Retry.Jitter < 0 || c.Upstream.Retry.Jitter > 1 {
		add("upstream.retry.jitter: must be within [0, 1]")
	}
	if c.Upstream.Concurrency < 0 || c.Upstream.HeatmapBatch < 0 {
		add("upstream: concurrency and heatmap_batch must not be negative")
	}

	for i, m := range c.Server.MethodLimits {
		if _, err := pattern.Compile(m.Pattern); err != nil {
			add("server.method_limits[%d]: %w", i, err)
		}
	}

	return errors.Join(errs...)
}
