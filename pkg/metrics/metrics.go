// Package metrics defines the Prometheus metric collectors used by the
// syllabus index and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
	HTTPRequestsInFlight   prometheus.Gauge
	SearchQueriesTotal     *prometheus.CounterVec
	SearchLatency          *prometheus.HistogramVec
	SearchResultsCount     prometheus.Histogram
	IndexEntries           prometheus.Gauge
	IndexTokens            prometheus.Gauge
	IndexRebuildsTotal     *prometheus.CounterVec
	SnapshotSyncsTotal     *prometheus.CounterVec
	SnapshotDownloadsTotal *prometheus.CounterVec
	CircuitBreakerState    *prometheus.GaugeVec
}

// New creates all collectors and registers them on reg. A nil reg uses the
// default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "syllabus_queries_total",
				Help: "Total index queries by plan kind (empty, prefix, ngram, filter).",
			},
			[]string{"kind"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "syllabus_query_latency_seconds",
				Help:    "Index query latency in seconds by plan kind.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
			[]string{"kind"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "syllabus_query_results",
				Help:    "Number of results returned per query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
			},
		),
		IndexEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "syllabus_index_entries",
				Help: "Entries in the published index generation.",
			},
		),
		IndexTokens: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "syllabus_index_tokens",
				Help: "Distinct n-gram tokens in the published index generation.",
			},
		),
		IndexRebuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "syllabus_index_rebuilds_total",
				Help: "Index rebuilds by status (success, error).",
			},
			[]string{"status"},
		),
		SnapshotSyncsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "syllabus_snapshot_syncs_total",
				Help: "Snapshot sync attempts by outcome (updated, unchanged, manifest_error, fetch_error, malformed, store_error).",
			},
			[]string{"outcome"},
		),
		SnapshotDownloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "syllabus_snapshot_downloads_total",
				Help: "Snapshot download attempts by status.",
			},
			[]string{"status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.IndexEntries,
		m.IndexTokens,
		m.IndexRebuildsTotal,
		m.SnapshotSyncsTotal,
		m.SnapshotDownloadsTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the scrape handler for g, or for the default gatherer when
// g is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
