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
	// Training metrics
	TrainingRunsTotal      *prometheus.CounterVec
	TrainingDuration       prometheus.Histogram
	ForestFitDuration      *prometheus.HistogramVec
	SnapshotRecords        prometheus.Gauge
	LastSuccessfulTraining prometheus.Gauge

	// Optimization metrics
	OptimizationsTotal   *prometheus.CounterVec
	OptimizationDuration prometheus.Histogram
	SolverIterations     prometheus.Histogram

	// Source metrics
	SourceLoadDuration *prometheus.HistogramVec
	SourceLoadErrors   *prometheus.CounterVec
	SourceRowsLoaded   *prometheus.CounterVec

	// Stream metrics
	StreamSubscribers  prometheus.Gauge
	StreamMessagesSent prometheus.Counter

	// HTTP metrics
	HTTPRequestsTotal *prometheus.CounterVec

	// Health metrics
	UptimeSeconds prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "rwa_portfolio_lab"
	}

	return &Metrics{
		// Training metrics
		TrainingRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "training_runs_total",
			Help:      "Total number of model training runs by status",
		}, []string{"status"}),
		TrainingDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "training_duration_seconds",
			Help:      "End-to-end training duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		ForestFitDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "forest_fit_duration_seconds",
			Help:      "Random forest fit duration in seconds by target",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target"}),
		SnapshotRecords: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "snapshot_records",
			Help:      "Number of asset records in the current model snapshot",
		}),
		LastSuccessfulTraining: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "last_successful_training_timestamp",
			Help:      "Unix timestamp of last successful training run",
		}),

		// Optimization metrics
		OptimizationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "runs_total",
			Help:      "Total number of portfolio optimizations by status",
		}, []string{"status"}),
		OptimizationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "duration_seconds",
			Help:      "Portfolio optimization duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		SolverIterations: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "solver_iterations",
			Help:      "Major iterations used by the solver",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),

		// Source metrics
		SourceLoadDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "load_duration_seconds",
			Help:      "Input table load duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source", "table"}),
		SourceLoadErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "load_errors_total",
			Help:      "Total number of input table load errors",
		}, []string{"source", "table"}),
		SourceRowsLoaded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "rows_loaded_total",
			Help:      "Total number of input rows loaded",
		}, []string{"source", "table"}),

		// Stream metrics
		StreamSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "subscribers",
			Help:      "Current number of prediction stream subscribers",
		}),
		StreamMessagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_sent_total",
			Help:      "Total number of prediction messages pushed to subscribers",
		}),

		// HTTP metrics
		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),

		// Health metrics
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTraining records a training run.
func RecordTraining(status string, durationSeconds float64, records int) {
	DefaultMetrics.TrainingRunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.TrainingDuration.Observe(durationSeconds)
	if status == "success" {
		DefaultMetrics.SnapshotRecords.Set(float64(records))
	}
}

// RecordForestFit records the fit duration of one target model.
func RecordForestFit(target string, seconds float64) {
	DefaultMetrics.ForestFitDuration.WithLabelValues(target).Observe(seconds)
}

// UpdateLastTraining sets the last successful training timestamp.
func UpdateLastTraining(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulTraining.Set(float64(unixSeconds))
}

// RecordOptimization records one portfolio optimization.
func RecordOptimization(status string, durationSeconds float64, iterations int) {
	DefaultMetrics.OptimizationsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.OptimizationDuration.Observe(durationSeconds)
	if iterations > 0 {
		DefaultMetrics.SolverIterations.Observe(float64(iterations))
	}
}

// RecordSourceLoad records loading one input table.
func RecordSourceLoad(source, table string, rows int, seconds float64, err error) {
	DefaultMetrics.SourceLoadDuration.WithLabelValues(source, table).Observe(seconds)
	if err != nil {
		DefaultMetrics.SourceLoadErrors.WithLabelValues(source, table).Inc()
		return
	}
	DefaultMetrics.SourceRowsLoaded.WithLabelValues(source, table).Add(float64(rows))
}

// UpdateStreamSubscribers sets the subscriber gauge.
func UpdateStreamSubscribers(n int) {
	DefaultMetrics.StreamSubscribers.Set(float64(n))
}

// RecordStreamMessage increments the pushed message counter.
func RecordStreamMessage() {
	DefaultMetrics.StreamMessagesSent.Inc()
}

// RecordHTTPRequest records one handled HTTP request.
func RecordHTTPRequest(route string, code int) {
	DefaultMetrics.HTTPRequestsTotal.WithLabelValues(route, statusCode(code)).Inc()
}

func statusCode(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// AddUptime advances the uptime counter.
func AddUptime(seconds float64) {
	DefaultMetrics.UptimeSeconds.Add(seconds)
}
