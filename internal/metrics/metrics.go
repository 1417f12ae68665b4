package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Tick loop

	TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "orchestrator",
		Name:      "tick_duration_seconds",
		Help:      "Time taken for one scheduler tick pass.",
		Buckets:   prometheus.DefBuckets,
	})

	SchedulesFiredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Name:      "schedules_fired_total",
		Help:      "Total schedule firings, by trigger kind.",
	}, []string{"trigger"})

	SchedulesDeferredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Name:      "schedules_deferred_total",
		Help:      "Total times a due schedule was deferred by the dependency gate.",
	}, []string{"schedule_id"})

	// Execution outcomes

	ExecutionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orchestrator",
		Name:      "execution_duration_seconds",
		Help:      "Duration of a pipeline execution.",
		Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 300, 900, 3600},
	}, []string{"status"})

	ExecutionsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Name:      "executions_in_flight",
		Help:      "Number of executions currently running.",
	})

	ExecutionsCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Name:      "executions_completed_total",
		Help:      "Total executions reaching a terminal state, by outcome.",
	}, []string{"outcome"})

	RetriesScheduledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Name:      "retries_scheduled_total",
		Help:      "Total delayed retry follow-ups scheduled after a failure.",
	})

	RetriesExhaustedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Name:      "retries_exhausted_total",
		Help:      "Total executions that reached max_retries and stayed terminal FAILED.",
	})

	// TaskQueue

	QueueSubmitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Name:      "queue_submit_total",
		Help:      "Total task submissions to the distributed queue, by outcome.",
	}, []string{"outcome"})

	QueueActiveTasks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Name:      "queue_active_tasks",
		Help:      "Number of tasks currently pending/running on the distributed queue.",
	})

	// Daemon lifecycle

	ProcessStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Name:      "process_start_time_seconds",
		Help:      "Unix timestamp when the daemon started.",
	})

	// Management HTTP API

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orchestrator",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

// Register registers every collector with the default Prometheus registry.
func Register() {
	prometheus.MustRegister(
		TickDuration,
		SchedulesFiredTotal,
		SchedulesDeferredTotal,
		ExecutionDuration,
		ExecutionsInFlight,
		ExecutionsCompletedTotal,
		RetriesScheduledTotal,
		RetriesExhaustedTotal,
		QueueSubmitTotal,
		QueueActiveTasks,
		ProcessStartTime,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer returns an HTTP server exposing /metrics on addr.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
