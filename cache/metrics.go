package cache

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics receives cache events. Each method is given the key involved.
type Metrics interface {
	Hit(key string)
	Miss(key string)
	Expire(key string)
	Stale(key string)
	FetchError(key string)
	Corrupt(key string)
}

// NoopMetrics ignores every event.
type NoopMetrics struct{}

func (NoopMetrics) Hit(string)        {}
func (NoopMetrics) Miss(string)       {}
func (NoopMetrics) Expire(string)     {}
func (NoopMetrics) Stale(string)      {}
func (NoopMetrics) FetchError(string) {}
func (NoopMetrics) Corrupt(string)    {}

// PrometheusMetrics counts events per resource type. The resource is the
// part of the key before the first ':' so label cardinality stays bounded.
type PrometheusMetrics struct {
	events *prometheus.CounterVec
}

// NewPrometheusMetrics registers the cache counters with reg. Registering
// twice on the same registerer reuses the existing collector.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tickercache",
		Subsystem: "cache",
		Name:      "events_total",
		Help:      "Cache events by type and resource.",
	}, []string{"event", "resource"})

	if err := reg.Register(events); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		events = are.ExistingCollector.(*prometheus.CounterVec)
	}
	return &PrometheusMetrics{events: events}, nil
}

func (m *PrometheusMetrics) inc(event, key string) {
	m.events.WithLabelValues(event, Resource(key)).Inc()
}

func (m *PrometheusMetrics) Hit(key string)        { m.inc("hit", key) }
func (m *PrometheusMetrics) Miss(key string)       { m.inc("miss", key) }
func (m *PrometheusMetrics) Expire(key string)     { m.inc("expire", key) }
func (m *PrometheusMetrics) Stale(key string)      { m.inc("stale", key) }
func (m *PrometheusMetrics) FetchError(key string) { m.inc("fetch_error", key) }
func (m *PrometheusMetrics) Corrupt(key string)    { m.inc("corrupt", key) }

// Resource returns the resource-type segment of a conventional key.
func Resource(key string) string {
	res, _, _ := strings.Cut(key, ":")
	return res
}
