package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// lookup service.
type Metrics struct {
	SearchRequests *prometheus.CounterVec // labels: outcome={success,degraded,invalid,error}

	// Cache metrics.
	CacheLookups *prometheus.CounterVec // labels: tier={memory,durable}, result={hit,stale,miss}
	CacheEntries prometheus.Gauge

	// Upstream source metrics.
	SourceRequests *prometheus.CounterVec   // labels: source={authoritative,fallback}, outcome={success,error}
	SourceDuration *prometheus.HistogramVec // labels: source={authoritative,fallback}

	ConsolidatedRecords prometheus.Histogram
	WarmedRecords       prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		SearchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "landmatch",
			Name:      "search_requests_total",
			Help:      "Plot search requests by outcome.",
		}, []string{"outcome"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "landmatch",
			Name:      "cache_lookups_total",
			Help:      "Plot cache lookups by tier and result.",
		}, []string{"tier", "result"}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "landmatch",
			Name:      "cache_memory_entries",
			Help:      "Current number of entries in the in-memory cache tier.",
		}),
		SourceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "landmatch",
			Name:      "source_requests_total",
			Help:      "Upstream source queries by source and outcome.",
		}, []string{"source", "outcome"}),
		SourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "landmatch",
			Name:      "source_request_duration_seconds",
			Help:      "Upstream source query duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 8, 10},
		}, []string{"source"}),
		ConsolidatedRecords: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "landmatch",
			Name:      "consolidated_records",
			Help:      "Number of records in a consolidated search response.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		}),
		WarmedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "landmatch",
			Name:      "warmed_records_total",
			Help:      "Total records written by the cache warmer.",
		}),
	}
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.SearchRequests,
		m.CacheLookups,
		m.CacheEntries,
		m.SourceRequests,
		m.SourceDuration,
		m.ConsolidatedRecords,
		m.WarmedRecords,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests can
// construct the service repeatedly without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
