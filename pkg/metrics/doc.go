/*
Package metrics provides Prometheus metrics and health reporting for gpubox.

All collectors are package-level variables registered with the default
Prometheus registry in init, and exposed by Handler on /metrics.

# Metric families

	gpubox_containers_total                       persisted containers
	gpubox_containers_by_state{state}             last observed engine state
	gpubox_ports_claimed                          claimed host ports
	gpubox_port_allocations_failed_total          saturated port range
	gpubox_engine_invocations_total{verb,result}  engine CLI calls
	gpubox_engine_invocation_duration_seconds     engine CLI latency
	gpubox_lifecycle_operations_total{op,code}    lifecycle results by error code
	gpubox_lifecycle_operation_duration_seconds   lifecycle latency
	gpubox_partial_failures_total{op}             half-completed operations
	gpubox_orphans_total{direction}               last sweep mismatches
	gpubox_sweep_duration_seconds                 sweep latency
	gpubox_api_requests_total{route,status}       HTTP requests

Durations are measured with Timer:

	timer := metrics.NewTimer()
	err := doWork()
	timer.ObserveDurationVec(metrics.LifecycleOpDuration, "create")

# Health

Components report their state with UpdateComponent or ReportError. The
/health endpoint is unhealthy when any registered component is; /ready
additionally requires the store, engine, and api components to have
registered. Collector keeps the store component and the fleet gauges fresh.
*/
package metrics
