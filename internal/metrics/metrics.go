// Package metrics exposes Prometheus instrumentation for registries and
// tracking collections. All methods are safe on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/szhem/osgi-utils/internal/cachemanager"
)

// Event outcomes.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeStale     = "stale"
	OutcomeUnknown   = "unknown"
	OutcomeFailed    = "failed"
)

// Metrics provides observability for the registry and tracking collections.
type Metrics struct {
	reg prometheus.Registerer

	// Entries currently tracked, by filter.
	TrackedEntries *prometheus.GaugeVec

	// Tracker events by type (added/removed) and outcome.
	TrackerEvents *prometheus.CounterVec

	ProxyFailures prometheus.Counter

	BackfillLatency prometheus.Histogram

	// Services currently published.
	RegisteredServices prometheus.Gauge

	// Feed deliveries skipped because a subscriber fell behind.
	FeedDropped *prometheus.CounterVec
}

// New registers all metrics with reg. Pass prometheus.DefaultRegisterer to
// expose them on the default handler.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		reg: reg,

		TrackedEntries: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "osgi_tracker_entries",
			Help: "Number of entries currently held by tracking collections",
		}, []string{"filter"}),

		TrackerEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "osgi_tracker_events_total",
			Help: "Registry events processed by tracking collections, by type and outcome",
		}, []string{"type", "outcome"}),

		ProxyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "osgi_tracker_proxy_failures_total",
			Help: "Total proxy constructions that failed",
		}),

		BackfillLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "osgi_tracker_backfill_duration_seconds",
			Help:    "Duration of the initial backfill of a tracking collection",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		RegisteredServices: factory.NewGauge(prometheus.GaugeOpts{
			Name: "osgi_registry_services",
			Help: "Number of services currently published in the registry",
		}),

		FeedDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "osgi_feed_dropped_total",
			Help: "Events not delivered to a slow feed subscriber, by feed",
		}, []string{"feed"}),
	}
}

// SetTracked records the size of the collection tracking filter.
func (m *Metrics) SetTracked(filter string, n int) {
	if m != nil {
		m.TrackedEntries.WithLabelValues(filter).Set(float64(n))
	}
}

// ForgetTracked drops the series for a stopped collection.
func (m *Metrics) ForgetTracked(filter string) {
	if m != nil {
		m.TrackedEntries.DeleteLabelValues(filter)
	}
}

// IncrementEvent records one processed tracker event.
func (m *Metrics) IncrementEvent(eventType, outcome string) {
	if m != nil {
		m.TrackerEvents.WithLabelValues(eventType, outcome).Inc()
	}
}

func (m *Metrics) IncrementProxyFailures() {
	if m != nil {
		m.ProxyFailures.Inc()
	}
}

func (m *Metrics) ObserveBackfillLatency(d time.Duration) {
	if m != nil {
		m.BackfillLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) SetRegisteredServices(n int) {
	if m != nil {
		m.RegisteredServices.Set(float64(n))
	}
}

// IncrementFeedDropped records one skipped delivery on feed.
func (m *Metrics) IncrementFeedDropped(feed string) {
	if m != nil {
		m.FeedDropped.WithLabelValues(feed).Inc()
	}
}

// RegisterCache exposes the hit and miss counters of a cache.
func (m *Metrics) RegisterCache(c cachemanager.StatsReporter) {
	if m == nil || c == nil {
		return
	}
	factory := promauto.With(m.reg)
	labels := prometheus.Labels{"cache": c.Stats().Name}

	factory.NewCounterFunc(prometheus.CounterOpts{
		Name:        "osgi_cache_hits_total",
		Help:        "Cache hits",
		ConstLabels: labels,
	}, func() float64 { return float64(c.Stats().Hits) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Name:        "osgi_cache_misses_total",
		Help:        "Cache misses",
		ConstLabels: labels,
	}, func() float64 { return float64(c.Stats().Misses) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Name:        "osgi_cache_evictions_total",
		Help:        "Cache entries removed by expiry or invalidation",
		ConstLabels: labels,
	}, func() float64 { return float64(c.Stats().Evictions) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "osgi_cache_items",
		Help:        "Items currently cached",
		ConstLabels: labels,
	}, func() float64 { return float64(c.Stats().Items) })
}
