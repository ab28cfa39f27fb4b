package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vango-dev/datatable/pkg/fetch"
	"github.com/vango-dev/datatable/pkg/query"
	"github.com/vango-dev/datatable/pkg/tablestate"
)

// MetricsConfig configures the Prometheus query metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "datatable").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for fetch duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus query metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "datatable",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// QueryMetrics holds the Prometheus collectors for query clients and
// live sessions. Every metric is labeled by table (the cache base key),
// never by the full key, to keep cardinality bounded.
type QueryMetrics struct {
	fetchesTotal   *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	retriesTotal   *prometheus.CounterVec
	cacheHitsTotal *prometheus.CounterVec
	evictionsTotal *prometheus.CounterVec
	activeSessions prometheus.Gauge
}

// Prometheus creates and registers the query metrics.
//
// Metrics collected:
//   - datatable_fetches_total: Counter of fetch attempts by table and outcome
//   - datatable_fetch_duration_seconds: Histogram of fetch attempt duration
//   - datatable_fetch_retries_total: Counter of retries by table
//   - datatable_cache_hits_total: Counter of fresh cache hits by table
//   - datatable_cache_evictions_total: Counter of idle entries collected
//   - datatable_live_sessions: Gauge of open live sessions
//
// Registering twice on the same registry reuses the existing collectors.
//
// Example:
//
//	m := middleware.Prometheus(middleware.WithNamespace("myapp"))
//	client := query.NewClient[User](query.WithHooks(m.Hooks()))
//
//	http.Handle("/metrics", promhttp.Handler())
func Prometheus(opts ...MetricsOption) *QueryMetrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	reg := config.Registry

	return &QueryMetrics{
		fetchesTotal: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "fetches_total",
			Help:        "Total number of fetch attempts",
			ConstLabels: config.ConstLabels,
		}, []string{"table", "outcome"})),

		fetchDuration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "fetch_duration_seconds",
			Help:        "Fetch attempt duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"table"})),

		retriesTotal: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "fetch_retries_total",
			Help:        "Total number of fetch retries",
			ConstLabels: config.ConstLabels,
		}, []string{"table"})),

		cacheHitsTotal: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "cache_hits_total",
			Help:        "Total number of queries served from fresh cache",
			ConstLabels: config.ConstLabels,
		}, []string{"table"})),

		evictionsTotal: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "cache_evictions_total",
			Help:        "Total number of idle cache entries collected",
			ConstLabels: config.ConstLabels,
		}, []string{"table"})),

		activeSessions: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "live_sessions",
			Help:        "Number of open live table sessions",
			ConstLabels: config.ConstLabels,
		})),
	}
}

// register registers c, returning the already registered collector if
// an identical one exists.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Hooks returns query hooks that record into m.
func (m *QueryMetrics) Hooks() query.Hooks {
	return query.Hooks{
		OnFetch: func(key tablestate.Key, d time.Duration, err error) {
			table := key.Base()
			m.fetchDuration.WithLabelValues(table).Observe(d.Seconds())
			m.fetchesTotal.WithLabelValues(table, outcome(err)).Inc()
		},
		OnRetry: func(key tablestate.Key, _ int, _ error) {
			m.retriesTotal.WithLabelValues(key.Base()).Inc()
		},
		OnCacheHit: func(key tablestate.Key) {
			m.cacheHitsTotal.WithLabelValues(key.Base()).Inc()
		},
		OnEvict: func(key tablestate.Key) {
			m.evictionsTotal.WithLabelValues(key.Base()).Inc()
		},
	}
}

// SessionOpened records a live session start.
func (m *QueryMetrics) SessionOpened() {
	m.activeSessions.Inc()
}

// SessionClosed records a live session end.
func (m *QueryMetrics) SessionClosed() {
	m.activeSessions.Dec()
}

// outcome returns a low-cardinality label for a fetch result.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case fetch.IsAdapterError(err):
		return "adapter_error"
	}
	var fe *fetch.FetchError
	if errors.As(err, &fe) && fe.Status >= 500 {
		return "server_error"
	}
	if fe != nil && fe.Status >= 400 {
		return "client_error"
	}
	return "error"
}
