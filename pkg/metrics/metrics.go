// Package metrics exports cache and binding activity to Prometheus.
//
// A *Metrics is both a turbo.Observer and a turboresource.Observer:
//
//	m := metrics.New(metrics.WithNamespace("myapp"))
//	cache := turbo.NewMemory(fetch, turbo.WithObserver(m))
//	res, actions := turboresource.Create[*User](key,
//	    turboresource.WithTurbo(cache),
//	    turboresource.WithObserver(m),
//	)
//
//	http.Handle("/metrics", promhttp.Handler())
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/turboresource/pkg/turbo"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "turbo").
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

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "turbo",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the collectors. Keys are never used as labels.
type Metrics struct {
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	fetches       *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	broadcasts    *prometheus.CounterVec

	bindings  prometheus.Gauge
	triggers  *prometheus.CounterVec
	delivered *prometheus.CounterVec
}

// New registers the collectors.
//
// Metrics collected:
//   - turbo_cache_hits_total, turbo_cache_misses_total
//   - turbo_fetches_total by result (ok, aborted, forgotten, error)
//   - turbo_fetch_duration_seconds
//   - turbo_broadcasts_total by event
//   - turbo_bindings_active
//   - turbo_triggers_total by trigger and result (accepted, throttled)
//   - turbo_events_total by event and result (delivered, dropped)
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	counter := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}
	}

	return &Metrics{
		cacheHits:   factory.NewCounter(counter("cache_hits_total", "Queries answered from the cache")),
		cacheMisses: factory.NewCounter(counter("cache_misses_total", "Queries that needed a fetch")),
		fetches: factory.NewCounterVec(
			counter("fetches_total", "Origin fetches by result"),
			[]string{"result"}),
		fetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "fetch_duration_seconds",
			Help:        "Origin fetch duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),
		broadcasts: factory.NewCounterVec(
			counter("broadcasts_total", "Cache events broadcast to subscribers"),
			[]string{"event"}),

		bindings: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "bindings_active",
			Help:        "Resource bindings with a live subscription set",
			ConstLabels: config.ConstLabels,
		}),
		triggers: factory.NewCounterVec(
			counter("triggers_total", "Environment triggers by result"),
			[]string{"trigger", "result"}),
		delivered: factory.NewCounterVec(
			counter("events_total", "Cache events reaching bindings by result"),
			[]string{"event", "result"}),
	}
}

// CacheHit implements turbo.Observer.
func (m *Metrics) CacheHit(string) {
	m.cacheHits.Inc()
}

// CacheMiss implements turbo.Observer.
func (m *Metrics) CacheMiss(string) {
	m.cacheMisses.Inc()
}

// FetchDone implements turbo.Observer.
func (m *Metrics) FetchDone(_ string, elapsed time.Duration, err error) {
	m.fetchDuration.Observe(elapsed.Seconds())
	m.fetches.WithLabelValues(result(err)).Inc()
}

// Broadcast implements turbo.Observer.
func (m *Metrics) Broadcast(_ string, event turbo.Event) {
	m.broadcasts.WithLabelValues(string(event)).Inc()
}

// Bound records a binding entering Bound.
func (m *Metrics) Bound(string) {
	m.bindings.Inc()
}

// Unbound records a binding leaving Bound.
func (m *Metrics) Unbound(string) {
	m.bindings.Dec()
}

// Triggered records an environment trigger.
func (m *Metrics) Triggered(trigger string, accepted bool) {
	r := "throttled"
	if accepted {
		r = "accepted"
	}
	m.triggers.WithLabelValues(trigger, r).Inc()
}

// Delivered records a cache event reaching a binding.
func (m *Metrics) Delivered(event turbo.Event, dropped bool) {
	r := "delivered"
	if dropped {
		r = "dropped"
	}
	m.delivered.WithLabelValues(string(event), r).Inc()
}

// result buckets a fetch outcome into a low-cardinality label.
func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, turbo.ErrForgotten):
		return "forgotten"
	case errors.Is(err, turbo.ErrAborted), errors.Is(err, context.Canceled):
		return "aborted"
	default:
		return "error"
	}
}
