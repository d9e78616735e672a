// Package metrics exposes the process's Prometheus collectors: HTTP client
// requests, collector run outcomes, task executor durations, persistence
// batch saves, and source health (spec.md section 4.0d).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "datahub"

var (
	// Registry holds every datahub collector; it is separate from the
	// default global registry so tests can construct isolated instances.
	Registry = prometheus.NewRegistry()

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total outbound HTTP requests issued by the client layer.",
		},
		[]string{"source", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"source"},
	)

	CollectorRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "runs_total",
			Help:      "Total collector run outcomes.",
		},
		[]string{"collector_id", "status"},
	)

	CollectorRecordsCollected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "records_collected_total",
			Help:      "Total records collected per collector.",
		},
		[]string{"collector_id"},
	)

	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "execution_duration_seconds",
			Help:      "Duration of task executor runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"task_type", "status"},
	)

	PersistenceBatchSaves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persistence",
			Name:      "batch_saves_total",
			Help:      "Total persistence batch save operations.",
		},
		[]string{"table", "status"},
	)

	PersistenceSaveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "persistence",
			Name:      "save_duration_seconds",
			Help:      "Duration of persistence batch saves.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"table"},
	)

	SourceHealthSuccessRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "health_success_rate",
			Help:      "Rolling success rate per registered data source.",
		},
		[]string{"source"},
	)
)

func init() {
	Registry.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		CollectorRunsTotal,
		CollectorRecordsCollected,
		TaskDuration,
		PersistenceBatchSaves,
		PersistenceSaveDuration,
		SourceHealthSuccessRate,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler exposes the registered collectors for scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records an outbound HTTP request's status and duration.
func ObserveHTTPRequest(source, status string, dur time.Duration) {
	HTTPRequestsTotal.WithLabelValues(source, status).Inc()
	HTTPRequestDuration.WithLabelValues(source).Observe(dur.Seconds())
}

// ObserveCollectorRun records a collector run's terminal status and the
// number of records it collected.
func ObserveCollectorRun(collectorID, status string, recordsCollected int) {
	CollectorRunsTotal.WithLabelValues(collectorID, status).Inc()
	if recordsCollected > 0 {
		CollectorRecordsCollected.WithLabelValues(collectorID).Add(float64(recordsCollected))
	}
}

// ObserveTaskExecution records a task executor run's duration and outcome.
func ObserveTaskExecution(taskType, status string, dur time.Duration) {
	TaskDuration.WithLabelValues(taskType, status).Observe(dur.Seconds())
}

// ObservePersistenceSave records a persistence batch save's outcome and
// duration.
func ObservePersistenceSave(table, status string, dur time.Duration) {
	PersistenceBatchSaves.WithLabelValues(table, status).Inc()
	PersistenceSaveDuration.WithLabelValues(table).Observe(dur.Seconds())
}

// SetSourceHealthSuccessRate publishes a source's rolling success rate in
// [0, 1].
func SetSourceHealthSuccessRate(source string, rate float64) {
	SourceHealthSuccessRate.WithLabelValues(source).Set(rate)
}
