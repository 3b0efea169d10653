package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Keksclan/tickercache/backend"
	"github.com/Keksclan/tickercache/pattern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestParseOverridesDefaults(t *testing.T) {
	t.Setenv("TICKERCACHE_TOKEN", "s3cret")
	cfg, err := Parse([]byte(`
listen: ":6000"
backend:
  kind: badger
  path: /tmp/tc
  hot_tier: 1000
ttl:
  default: 1m
  rules:
    - pattern: "news:*"
      ttl: 90s
cache:
  fetch_timeout: 5s
upstream:
  timeout: 3s
  retry:
    max_attempts: 5
server:
  admin_token: ${TICKERCACHE_TOKEN}
`))
	require.NoError(t, err)

	assert.Equal(t, ":6000", cfg.Listen)
	assert.Equal(t, ":9090", cfg.MetricsListen, "unset fields keep defaults")
	assert.Equal(t, BackendBadger, cfg.Backend.Kind)
	assert.EqualValues(t, 1000, cfg.Backend.HotTier)
	assert.Equal(t, time.Minute, cfg.TTL.Default.Duration())
	assert.Equal(t, 90*time.Second, cfg.TTL.Rules[0].TTL.Duration())
	assert.Equal(t, 3*time.Second, cfg.Upstream.Timeout.Duration())
	assert.Equal(t, 5*time.Second, cfg.Cache.FetchTimeout.Duration())
	assert.True(t, cfg.Cache.Coalesce, "unset fields in a section keep defaults")
	assert.Equal(t, 5, cfg.Upstream.Retry.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Upstream.Retry.BaseDelay.Duration())
	assert.Equal(t, "s3cret", cfg.Server.AdminToken)
}

func TestParseRejectsBadDuration(t *testing.T) {
	_, err := Parse([]byte("ttl:\n  default: soon\n"))
	require.Error(t, err)
}

func TestValidateJoinsProblems(t *testing.T) {
	cfg := Default()
	cfg.Listen = ""
	cfg.Backend.Kind = BackendRedis
	cfg.TTL.Rules = []PatternTTL{{Pattern: "a*b*", TTL: Duration(time.Second)}}
	cfg.Upstream.Retry.Jitter = 2
	cfg.Cache.FetchTimeout = Duration(-time.Second)

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, pattern.ErrMultipleWildcards)
	for _, want := range []string{"listen", "backend.redis.addr", "ttl.rules[0]", "jitter", "cache.fetch_timeout"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoad(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, ErrNotFound)

	path := filepath.Join(t.TempDir(), "tickercache.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestPolicy(t *testing.T) {
	cfg := Default()
	cfg.TTL.Rules = []PatternTTL{{Pattern: "news:*", TTL: Duration(time.Minute)}}
	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, p.Resolve("stock:AAPL"))
	assert.Equal(t, time.Minute, p.Resolve("news:AAPL"))
	assert.Equal(t, 5*time.Minute, p.Resolve("unknown"))

	cfg.TTL.Standard = false
	cfg.TTL.Default = Duration(time.Second)
	p, err = cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, time.Second, p.Resolve("stock:AAPL"))
}

func TestOpenBackend(t *testing.T) {
	cfg := Default()
	b, err := cfg.OpenBackend(zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &backend.Memory{}, b)
	require.NoError(t, b.Close())

	cfg.Backend = BackendConfig{Kind: BackendBadger, Path: t.TempDir(), HotTier: 100}
	b, err = cfg.OpenBackend(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	assert.IsType(t, &backend.Tiered{}, b)

	require.NoError(t, b.Set(t.Context(), "k", []byte("v")))
	v, ok, err := b.Get(t.Context(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestGuard(t *testing.T) {
	g := Default().Guard(zap.NewNop())
	require.NotNil(t, g.Limiter)
	require.NotNil(t, g.Breaker)
	require.NotNil(t, g.Retry)
	assert.Equal(t, 3, g.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Second, g.Timeout)
}
