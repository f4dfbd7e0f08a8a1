// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Resolution metrics
	ResolutionsTotal  *prometheus.CounterVec
	ResolutionErrors  *prometheus.CounterVec
	ResolutionLatency prometheus.Histogram

	// Upstream metrics
	UpstreamRequests prometheus.Counter
	UpstreamErrors   prometheus.Counter
	UpstreamLatency  *prometheus.HistogramVec

	// Write-back metrics
	WriteBackFailures prometheus.Counter

	// Backfill metrics
	BackfillJobsTotal   *prometheus.CounterVec
	BackfillDaysWritten prometheus.Counter
	BackfillChunks      prometheus.Counter
	BackfillActiveJobs  prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "price_history"
	}

	return &Metrics{
		// Resolution metrics
		ResolutionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Total number of price resolutions by source",
		}, []string{"source"}),
		ResolutionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolution_errors_total",
			Help:      "Total number of failed price resolutions by reason",
		}, []string{"reason"}),
		ResolutionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolution_latency_seconds",
			Help:      "Price resolution latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Upstream metrics
		UpstreamRequests: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Total number of upstream API requests",
		}),
		UpstreamErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "errors_total",
			Help:      "Total number of failed upstream API requests",
		}),
		UpstreamLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "request_latency_seconds",
			Help:      "Upstream API request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),

		// Write-back metrics
		WriteBackFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "write_back_failures_total",
			Help:      "Total number of fetched prices that could not be cached",
		}),

		// Backfill metrics
		BackfillJobsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "jobs_total",
			Help:      "Total number of finished backfill jobs by status",
		}, []string{"status"}),
		BackfillDaysWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "days_written_total",
			Help:      "Total number of daily price points written by backfill jobs",
		}),
		BackfillChunks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "chunks_total",
			Help:      "Total number of backfill chunks processed",
		}),
		BackfillActiveJobs: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "active_jobs",
			Help:      "Number of backfill jobs currently running",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordResolution increments the resolutions counter for a source.
func RecordResolution(source string) {
	DefaultMetrics.ResolutionsTotal.WithLabelValues(source).Inc()
}

// RecordResolutionError records a failed resolution.
func RecordResolutionError(reason string) {
	DefaultMetrics.ResolutionErrors.WithLabelValues(reason).Inc()
}

// RecordResolutionLatency records resolution latency.
func RecordResolutionLatency(seconds float64) {
	DefaultMetrics.ResolutionLatency.Observe(seconds)
}

// RecordUpstreamRequest records an upstream request and its outcome.
func RecordUpstreamRequest(endpoint string, seconds float64, err error) {
	DefaultMetrics.UpstreamRequests.Inc()
	DefaultMetrics.UpstreamLatency.WithLabelValues(endpoint).Observe(seconds)
	if err != nil {
		DefaultMetrics.UpstreamErrors.Inc()
	}
}

// RecordWriteBackFailure increments the write-back failures counter.
func RecordWriteBackFailure() {
	DefaultMetrics.WriteBackFailures.Inc()
}

// RecordBackfillJob records a finished backfill job.
func RecordBackfillJob(status string) {
	DefaultMetrics.BackfillJobsTotal.WithLabelValues(status).Inc()
}

// RecordBackfillChunk records a processed chunk and the days it wrote.
func RecordBackfillChunk(daysWritten int) {
	DefaultMetrics.BackfillChunks.Inc()
	DefaultMetrics.BackfillDaysWritten.Add(float64(daysWritten))
}

// SetActiveBackfillJobs updates the active jobs gauge.
func SetActiveBackfillJobs(n int) {
	DefaultMetrics.BackfillActiveJobs.Set(float64(n))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
