package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fleet metrics
	ContainersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gpubox_containers_total",
			Help: "Total number of persisted containers",
		},
	)

	ContainersByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gpubox_containers_by_state",
			Help: "Containers by last observed engine state",
		},
		[]string{"state"},
	)

	PortsClaimed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gpubox_ports_claimed",
			Help: "Number of host ports currently claimed",
		},
	)

	PortAllocationsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gpubox_port_allocations_failed_total",
			Help: "Port allocations rejected because the range was saturated",
		},
	)

	// Engine metrics
	EngineInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpubox_engine_invocations_total",
			Help: "Total number of container engine invocations by verb and result",
		},
		[]string{"verb", "result"},
	)

	EngineInvocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gpubox_engine_invocation_duration_seconds",
			Help:    "Container engine invocation duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 180, 600},
		},
		[]string{"verb"},
	)

	// Lifecycle metrics
	LifecycleOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpubox_lifecycle_operations_total",
			Help: "Total number of lifecycle operations by operation and result code",
		},
		[]string{"op", "code"},
	)

	LifecycleOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gpubox_lifecycle_operation_duration_seconds",
			Help:    "Lifecycle operation duration in seconds",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 180, 600},
		},
		[]string{"op"},
	)

	PartialFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpubox_partial_failures_total",
			Help: "Operations that completed one side effect and failed the next",
		},
		[]string{"op"},
	)

	// Sweep metrics
	OrphansTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gpubox_orphans_total",
			Help: "Mismatches found by the last orphan sweep by direction",
		},
		[]string{"direction"},
	)

	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gpubox_sweep_duration_seconds",
			Help:    "Time taken by an orphan sweep in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpubox_sweeps_total",
			Help: "Total number of orphan sweeps by result",
		},
		[]string{"result"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpubox_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gpubox_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ContainersTotal)
	prometheus.MustRegister(ContainersByState)
	prometheus.MustRegister(PortsClaimed)
	prometheus.MustRegister(PortAllocationsFailed)
	prometheus.MustRegister(EngineInvocationsTotal)
	prometheus.MustRegister(EngineInvocationDuration)
	prometheus.MustRegister(LifecycleOpsTotal)
	prometheus.MustRegister(LifecycleOpDuration)
	prometheus.MustRegister(PartialFailuresTotal)
	prometheus.MustRegister(OrphansTotal)
	prometheus.MustRegister(SweepDuration)
	prometheus.MustRegister(SweepsTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
