// Package metrics provides Prometheus metrics for the shard downloader.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the downloader.
type Metrics struct {
	// Shard metrics
	ShardsProcessed prometheus.Counter
	ShardsFailed    prometheus.Counter

	// Sample metrics
	SamplesProcessed *prometheus.CounterVec

	// Timing metrics
	FetchDuration prometheus.Histogram
	ShardDuration prometheus.Histogram

	// Pipeline metrics
	InFlightSamples prometheus.Gauge

	// Error metrics
	RetryAttempts prometheus.Counter
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // Address for metrics HTTP server (e.g., ":9090")
}

var defaultMetrics *Metrics

// Init initializes the metrics package with global metrics.
// Call this once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "shardfetch"
	}

	m := &Metrics{
		ShardsProcessed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "shards_processed_total",
				Help:      "Total number of shards processed to completion",
			},
		),
		ShardsFailed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "shards_failed_total",
				Help:      "Total number of shards that failed processing",
			},
		),
		SamplesProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "samples_processed_total",
				Help:      "Total number of samples processed, by outcome",
			},
			[]string{"status"},
		),
		FetchDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Time to fetch one sample, retries included",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
		),
		ShardDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "shard_duration_seconds",
				Help:      "Wall time to process one shard",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68m
			},
		),
		InFlightSamples: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_flight_samples",
				Help:      "Samples between permit acquisition and writer completion",
			},
		),
		RetryAttempts: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Total number of fetch retry attempts",
			},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}

// IncShardsProcessed increments the shards processed counter.
func (m *Metrics) IncShardsProcessed() {
	m.ShardsProcessed.Inc()
}

// IncShardsFailed increments the shards failed counter.
func (m *Metrics) IncShardsFailed() {
	m.ShardsFailed.Inc()
}

// IncSamplesProcessed increments the samples counter for a status label.
func (m *Metrics) IncSamplesProcessed(status string) {
	m.SamplesProcessed.WithLabelValues(status).Inc()
}

// ObserveFetchDuration records the time one fetch took.
func (m *Metrics) ObserveFetchDuration(seconds float64) {
	m.FetchDuration.Observe(seconds)
}

// ObserveShardDuration records the wall time one shard took.
func (m *Metrics) ObserveShardDuration(seconds float64) {
	m.ShardDuration.Observe(seconds)
}

// IncInFlightSamples increments the in-flight gauge.
func (m *Metrics) IncInFlightSamples() {
	m.InFlightSamples.Inc()
}

// DecInFlightSamples decrements the in-flight gauge.
func (m *Metrics) DecInFlightSamples() {
	m.InFlightSamples.Dec()
}

// IncRetryAttempts increments the retry attempts counter.
func (m *Metrics) IncRetryAttempts() {
	m.RetryAttempts.Inc()
}
