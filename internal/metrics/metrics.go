package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the planner API.
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// PlanRuns counts finished optimization runs by terminal status.
	PlanRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "plan_runs_total", Help: "Finished plan runs by status."},
		[]string{"status"},
	)
	// PlanIterations tracks how many outer iterations each run needed.
	PlanIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "plan_run_iterations", Help: "Outer loop iterations per run.", Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 55, 100}},
	)
	// PlanDuration tracks end-to-end solve wall time in seconds.
	PlanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "plan_run_duration_seconds", Help: "Plan run wall time in seconds.", Buckets: []float64{1, 5, 15, 60, 180, 600, 1800, 3600}},
	)
	// SolverStatuses counts inner solver outcomes across all iterations.
	SolverStatuses = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "solver_statuses_total", Help: "Inner solver statuses across iterations."},
		[]string{"status"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status.
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds.
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers all collectors on the dedicated registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(PlanRuns)
		Registry.MustRegister(PlanIterations)
		Registry.MustRegister(PlanDuration)
		Registry.MustRegister(SolverStatuses)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
