package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Batch metrics
	BatchesStarted   prometheus.Counter
	BatchesCompleted prometheus.Counter
	BatchesFailed    prometheus.Counter
	BatchDuration    prometheus.Histogram

	// Schema migration metrics
	SchemaMigrationsTotal   *prometheus.CounterVec
	SchemaMigrationDuration *prometheus.HistogramVec
	MigrationsApplied       prometheus.Counter
	PrecheckFailures        *prometheus.CounterVec

	// Rollback metrics
	RollbacksRecorded prometheus.Counter

	// Event metrics
	EventsPublished *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		BatchesStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_started_total",
				Help:      "Total number of migration batches started",
			},
		),
		BatchesCompleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_completed_total",
				Help:      "Total number of migration batches completed successfully",
			},
		),
		BatchesFailed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_failed_total",
				Help:      "Total number of migration batches that failed",
			},
		),
		BatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Migration batch duration in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
		),

		SchemaMigrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "schema_migrations_total",
				Help:      "Total number of per-schema migration attempts",
			},
			[]string{"status", "database_type"},
		),
		SchemaMigrationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "schema_migration_duration_seconds",
				Help:      "Per-schema migration tool invocation duration in seconds",
				Buckets:   []float64{.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"database_type"},
		),
		MigrationsApplied: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "migrations_applied_total",
				Help:      "Total number of individual SQL migrations applied by the tool",
			},
		),
		PrecheckFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "precheck_failures_total",
				Help:      "Total number of connectivity pre-check failures",
			},
			[]string{"database_type"},
		),

		RollbacksRecorded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollbacks_recorded_total",
				Help:      "Total number of rollback-intent records written",
			},
		),

		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Total number of batch lifecycle events published",
			},
			[]string{"type"},
		),
	}

	// Register all metrics
	m.Register()

	return m
}

// Register registers all metrics with Prometheus
func (m *Metrics) Register() {
	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.BatchesStarted,
		m.BatchesCompleted,
		m.BatchesFailed,
		m.BatchDuration,
		m.SchemaMigrationsTotal,
		m.SchemaMigrationDuration,
		m.MigrationsApplied,
		m.PrecheckFailures,
		m.RollbacksRecorded,
		m.EventsPublished,
	)
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// HTTPMetricsMiddleware returns middleware that collects HTTP metrics
func (m *Metrics) HTTPMetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
