/*
Package telemetry reads GPU and host capacity data.

GPU data comes from NVML and is best-effort: a host without the NVIDIA
driver reports an empty device list instead of an error. Host data comes
from gopsutil; the logical CPU count bounds the CPU quota accepted for a
new container.
*/
package telemetry
