// Package metrics provides Prometheus metrics for the oracle node.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SourceFetchesTotal is a counter of source fetch attempts by outcome.
	SourceFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_fetches_total",
			Help: "Total number of price fetches from sources by outcome",
		},
		[]string{"source", "result", "reason"},
	)

	// SourceFetchDuration is a histogram of source fetch latency.
	SourceFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "source_fetch_duration_seconds",
			Help:    "Duration of single source fetches",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"source"},
	)

	// SourceConsecutiveFailures is a gauge mirroring the failure tally.
	SourceConsecutiveFailures = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "source_consecutive_failures",
			Help: "Consecutive failed fetches per source name",
		},
		[]string{"source"},
	)

	// PriceAggregationDuration is a histogram of price aggregation duration.
	PriceAggregationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "price_aggregation_duration_seconds",
			Help:    "Duration of price aggregation operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// AggregationSources is a gauge of the sources that contributed to the last price.
	AggregationSources = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aggregation_sources",
			Help: "Number of sources contributing to the last aggregated price",
		},
		[]string{"asset"},
	)

	// AggregationFailuresTotal is a counter of assets with no valid readings.
	AggregationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregation_failures_total",
			Help: "Total number of aggregations without any valid source reading",
		},
		[]string{"asset"},
	)

	// ReportSubmissionsTotal is a counter of ledger report submissions.
	ReportSubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_submissions_total",
			Help: "Total number of price report submissions",
		},
		[]string{"asset", "status"},
	)

	// LastPublishedTimestamp is a gauge of the last successful report per asset.
	LastPublishedTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "last_published_timestamp",
			Help: "Unix timestamp of the last successful price report",
		},
		[]string{"asset"},
	)

	// CycleDuration is a histogram of full update cycle durations.
	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "update_cycle_duration_seconds",
			Help:    "Duration of full update cycles",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	// AssetErrorsTotal is a counter of per-asset failures inside a cycle.
	AssetErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asset_errors_total",
			Help: "Total number of per-asset failures by stage",
		},
		[]string{"asset", "stage"},
	)

	// RPCRequestsTotal is a counter of NEAR RPC requests.
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpc_requests_total",
			Help: "Total number of NEAR RPC requests",
		},
		[]string{"endpoint", "status"},
	)

	// RPCFailoversTotal is a counter of RPC endpoint failovers.
	RPCFailoversTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rpc_failovers_total",
			Help: "Total number of NEAR RPC endpoint failovers",
		},
	)

	// HTTPRequestsTotal is a counter of total HTTP requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status"},
	)

	// HTTPRequestDuration is a histogram of HTTP request latencies.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"endpoint"},
	)
)

var registerOnce sync.Once

// Init registers all metrics with the default Prometheus registry.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			SourceFetchesTotal,
			SourceFetchDuration,
			SourceConsecutiveFailures,
			PriceAggregationDuration,
			AggregationSources,
			AggregationFailuresTotal,
			ReportSubmissionsTotal,
			LastPublishedTimestamp,
			CycleDuration,
			AssetErrorsTotal,
			RPCRequestsTotal,
			RPCFailoversTotal,
			HTTPRequestsTotal,
			HTTPRequestDuration,
		)
	})
}

// ServeHTTP serves Prometheus metrics on the specified address.
func ServeHTTP(addr, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return server.ListenAndServe()
}

// RecordSourceFetch records the outcome of a single source fetch.
// reason is empty on success.
func RecordSourceFetch(source, reason string, duration time.Duration) {
	result := "success"
	if reason != "" {
		result = "failure"
	}
	SourceFetchesTotal.WithLabelValues(source, result, reason).Inc()
	SourceFetchDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordConsecutiveFailures mirrors the failure tally for a source.
func RecordConsecutiveFailures(source string, count int) {
	SourceConsecutiveFailures.WithLabelValues(source).Set(float64(count))
}

// RecordAggregation records a price aggregation operation.
func RecordAggregation(method string, duration time.Duration) {
	PriceAggregationDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordAggregationSources records how many sources contributed to an asset price.
func RecordAggregationSources(asset string, count int) {
	AggregationSources.WithLabelValues(asset).Set(float64(count))
}

// RecordAggregationFailure records an aggregation without valid readings.
func RecordAggregationFailure(asset string) {
	AggregationFailuresTotal.WithLabelValues(asset).Inc()
	AggregationSources.WithLabelValues(asset).Set(0)
}

// RecordReport records a report submission.
func RecordReport(asset, status string) {
	ReportSubmissionsTotal.WithLabelValues(asset, status).Inc()
	if status == "success" {
		LastPublishedTimestamp.WithLabelValues(asset).SetToCurrentTime()
	}
}

// RecordCycle records a completed update cycle.
func RecordCycle(duration time.Duration) {
	CycleDuration.Observe(duration.Seconds())
}

// RecordAssetError records a per-asset failure at the given stage.
func RecordAssetError(asset, stage string) {
	AssetErrorsTotal.WithLabelValues(asset, stage).Inc()
}

// RecordRPCRequest records a NEAR RPC request.
func RecordRPCRequest(endpoint, status string) {
	RPCRequestsTotal.WithLabelValues(endpoint, status).Inc()
}

// RecordRPCFailover records an RPC failover event.
func RecordRPCFailover() {
	RPCFailoversTotal.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
