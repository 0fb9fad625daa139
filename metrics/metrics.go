package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// DetectRequestsTotal counts detect calls by backend and outcome.
	DetectRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inventory",
		Subsystem: "detection",
		Name:      "requests_total",
		Help:      "Total number of detect requests, labeled by backend and result.",
	}, []string{"backend", "result"})

	// DetectDurationSeconds is the end-to-end detect latency measured
	// inside the handler.
	DetectDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "inventory",
		Subsystem: "detection",
		Name:      "duration_seconds",
		Help:      "End-to-end time to serve a detect request.",
		// Coarse buckets to keep cardinality down; the vision backend
		// routinely takes several seconds.
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60},
	}, []string{"backend"})

	// DetectedObjectsTotal counts reported objects across all requests.
	DetectedObjectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "inventory",
		Subsystem: "detection",
		Name:      "objects_total",
		Help:      "Total number of objects counted across successful detect requests.",
	})

	// UpstreamErrorsTotal counts remote vision API failures.
	UpstreamErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "inventory",
		Subsystem: "detection",
		Name:      "upstream_errors_total",
		Help:      "Total number of vision API call failures.",
	})

	// UploadRejectedTotal counts uploads rejected before detection.
	UploadRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inventory",
		Subsystem: "detection",
		Name:      "upload_rejected_total",
		Help:      "Total number of uploads rejected at the HTTP surface, labeled by reason.",
	}, []string{"reason"})
)

// Register registers detection metrics with the default Prometheus
// registry. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			DetectRequestsTotal,
			DetectDurationSeconds,
			DetectedObjectsTotal,
			UpstreamErrorsTotal,
			UploadRejectedTotal,
		)
	})
}
