// Package config loads the tickercache YAML configuration and turns it into
// the components the server is built from.
package config

import (
	"fmt"
	"time"
)

// Duration is a time.Duration written as a string such as "15s" or "5m".
type Duration time.Duration

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config is the complete server configuration.
type Config struct {
	Listen        string         `yaml:"listen"`
	MetricsListen string         `yaml:"metrics_listen"`
	Log           LogConfig      `yaml:"log"`
	Tracing       TracingConfig  `yaml:"tracing"`
	Backend       BackendConfig  `yaml:"backend"`
	TTL           TTLConfig      `yaml:"ttl"`
	Cache         CacheConfig    `yaml:"cache"`
	Upstream      UpstreamConfig `yaml:"upstream"`
	Server        ServerConfig   `yaml:"server"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// TracingConfig enables span export to stdout.
type TracingConfig struct {
	Stdout      bool    `yaml:"stdout"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Backend kinds.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// BackendConfig selects the store behind the cache. HotTier > 0 puts an
// in-process tier of that many entries in front of a persisted store.
type BackendConfig struct {
	Kind    string      `yaml:"kind"`
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
	HotTier int64       `yaml:"hot_tier"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// TTLConfig describes the TTL policy. With Standard set the built-in market
// rules come first and Prefixes and Rules are added after them.
type TTLConfig struct {
	Standard bool         `yaml:"standard"`
	Default  Duration     `yaml:"default"`
	Prefixes []PrefixRule `yaml:"prefixes"`
	Rules    []PatternTTL `yaml:"rules"`
}

type PrefixRule struct {
	Prefix string   `yaml:"prefix"`
	TTL    Duration `yaml:"ttl"`
}

type PatternTTL struct {
	Pattern string   `yaml:"pattern"`
	TTL     Duration `yaml:"ttl"`
}

type CacheConfig struct {
	Coalesce bool `yaml:"coalesce"`
	// FetchTimeout bounds a shared fetch once the caller that started it
	// has gone away.
	FetchTimeout Duration `yaml:"fetch_timeout"`
}

// UpstreamConfig configures the Yahoo Finance client and the guard around
// its calls.
type UpstreamConfig struct {
	ChartBase   string        `yaml:"chart_base"`
	SummaryBase string        `yaml:"summary_base"`
	UserAgent   string        `yaml:"user_agent"`
	Timeout     Duration      `yaml:"timeout"`
	RPS         float64       `yaml:"rps"`
	Burst       int           `yaml:"burst"`
	Retry       RetryConfig   `yaml:"retry"`
	Breaker     BreakerConfig `yaml:"breaker"`

	Concurrency  int      `yaml:"concurrency"`
	HeatmapBatch int      `yaml:"heatmap_batch"`
	HeatmapPause Duration `yaml:"heatmap_pause"`
}

type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
	MaxDelay    Duration `yaml:"max_delay"`
	Jitter      float64  `yaml:"jitter"`
}

type BreakerConfig struct {
	FailureThreshold   int      `yaml:"failure_threshold"`
	OpenTimeout        Duration `yaml:"open_timeout"`
	HalfOpenMaxSuccess int      `yaml:"half_open_max_success"`
}

// ServerConfig configures the gRPC surface.
type ServerConfig struct {
	RPS          float64       `yaml:"rps"`
	Burst        int           `yaml:"burst"`
	MethodLimits []MethodLimit `yaml:"method_limits"`
	// AdminToken guards ClearCache. Empty disables cache administration.
	AdminToken string `yaml:"admin_token"`
}

// MethodLimit overrides the global limit for methods matching Pattern.
type MethodLimit struct {
	Pattern string  `yaml:"pattern"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen:        ":50051",
		MetricsListen: ":9090",
		Log:           LogConfig{Level: "info"},
		Tracing:       TracingConfig{ServiceName: "tickercache", SampleRatio: 1},
		Backend:       BackendConfig{Kind: BackendMemory},
		TTL:           TTLConfig{Standard: true, Default: Duration(5 * time.Minute)},
		Cache:         CacheConfig{Coalesce: true, FetchTimeout: Duration(30 * time.Second)},
		Upstream: UpstreamConfig{
			Timeout: Duration(10 * time.Second),
			RPS:     20,
			Burst:   20,
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   Duration(200 * time.Millisecond),
				MaxDelay:    Duration(2 * time.Second),
				Jitter:      0.2,
			},
			Breaker: BreakerConfig{
				FailureThreshold:   5,
				OpenTimeout:        Duration(30 * time.Second),
				HalfOpenMaxSuccess: 1,
			},
			Concurrency:  8,
			HeatmapBatch: 50,
			HeatmapPause: Duration(100 * time.Millisecond),
		},
		Server: ServerConfig{
			RPS:   100,
			Burst: 50,
			MethodLimits: []MethodLimit{
				{Pattern: "/tickercache.Market/GetHeatmap", RPS: 1, Burst: 2},
			},
		},
	}
}
