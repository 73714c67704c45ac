package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hackd_api_requests_total",
			Help: "Total number of API requests by path and status",
		},
		[]string{"path", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hackd_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	// Status metrics
	StatusGenerationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hackd_status_generation_seconds",
			Help:    "Time taken to assemble a status snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)

	StatusSnapshotVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hackd_status_snapshot_version",
			Help: "Version of the most recent status snapshot",
		},
	)

	RuntimeResetsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hackd_runtime_resets_total",
			Help: "Times the container runtime recovered from unavailability",
		},
	)

	// Log pipeline metrics
	LogReadersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hackd_log_readers_active",
			Help: "Currently connected log stream readers",
		},
	)

	LogEventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hackd_log_events_dropped_total",
			Help: "Log events dropped due to reader backpressure",
		},
	)
)

func init() {
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(StatusGenerationDuration)
	prometheus.MustRegister(StatusSnapshotVersion)
	prometheus.MustRegister(RuntimeResetsTotal)
	prometheus.MustRegister(LogReadersActive)
	prometheus.MustRegister(LogEventsDroppedTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
