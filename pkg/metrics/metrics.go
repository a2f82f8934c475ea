// Package metrics holds the Prometheus collectors for sync activity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PushOutcomes counts remote mirror attempts by operation and outcome
	// (ok, not_found, failed, skipped).
	PushOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trashtasker_push_total",
			Help: "Remote mirror attempts by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	// PushQueueDepth is the number of push jobs waiting for a worker.
	PushQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trashtasker_push_queue_depth",
			Help: "Push jobs waiting for a worker",
		},
	)

	// ReconciledTasks counts tasks created or updated by pull passes.
	ReconciledTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trashtasker_reconciled_tasks_total",
			Help: "Local tasks created or updated by pull reconciliation",
		},
		[]string{"action"},
	)

	// ReconcilePasses counts pull passes by result (ok, failed).
	ReconcilePasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trashtasker_reconcile_passes_total",
			Help: "Pull reconciliation passes by result",
		},
		[]string{"result"},
	)

	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.3, 1, 3, 10},
		},
		[]string{"method", "route"},
	)
)

// ObserveRequest records one served HTTP request.
func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
