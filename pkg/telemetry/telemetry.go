package telemetry

import (
	"github.com/cuemby/gpubox/pkg/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// GPU is one device as reported by the NVIDIA driver
type GPU struct {
	Index              int     `json:"index"`
	UUID               string  `json:"uuid"`
	Name               string  `json:"name"`
	MemoryTotalBytes   uint64  `json:"memoryTotalBytes"`
	MemoryUsedBytes    uint64  `json:"memoryUsedBytes"`
	UtilizationPercent uint32  `json:"utilizationPercent"`
	MemoryUtilPercent  uint32  `json:"memoryUtilizationPercent"`
	TemperatureC       uint32  `json:"temperatureC"`
	MemoryUsedPercent  float64 `json:"memoryUsedPercent"`
}

// Host describes the capacity of the machine running the engine
type Host struct {
	Hostname             string  `json:"hostname"`
	Platform             string  `json:"platform"`
	KernelVersion        string  `json:"kernelVersion"`
	LogicalCPUs          int     `json:"logicalCpus"`
	MemoryTotalBytes     uint64  `json:"memoryTotalBytes"`
	MemoryAvailableBytes uint64  `json:"memoryAvailableBytes"`
	MemoryUsedPercent    float64 `json:"memoryUsedPercent"`
	Load1                float64 `json:"load1"`
	DiskUsedPercent      float64 `json:"diskUsedPercent"`
	UptimeSeconds        uint64  `json:"uptimeSeconds"`
	GPUs                 int     `json:"gpus"`
}

// Source reports GPU and host telemetry
type Source interface {
	GPUs() []GPU
	Host() (*Host, error)
}

// System reads telemetry from the local machine. GPU data comes from NVML
// and is empty on hosts without an NVIDIA driver.
type System struct {
	// DiskPath is the filesystem whose usage is reported, "/" by default
	DiskPath string
}

// NewSystem returns a Source backed by the local machine
func NewSystem() *System {
	return &System{DiskPath: "/"}
}

// GPUs returns every visible device. Failures are logged and yield the
// devices read so far.
func (s *System) GPUs() []GPU {
	gpus, err := readGPUs()
	if err != nil {
		logger := log.WithComponent("telemetry")
		logger.Debug().Err(err).Int("read", len(gpus)).Msg("GPU telemetry incomplete")
	}
	if gpus == nil {
		gpus = []GPU{}
	}
	return gpus
}

// Host returns host capacity. Only the logical CPU count is required; the
// other fields are left zero when they cannot be read.
func (s *System) Host() (*Host, error) {
	logger := log.WithComponent("telemetry")

	cpus, err := cpu.Counts(true)
	if err != nil {
		return nil, err
	}
	h := &Host{LogicalCPUs: cpus}

	if vm, err := mem.VirtualMemory(); err != nil {
		logger.Debug().Err(err).Msg("Memory stats unavailable")
	} else {
		h.MemoryTotalBytes = vm.Total
		h.MemoryAvailableBytes = vm.Available
		h.MemoryUsedPercent = vm.UsedPercent
	}

	if info, err := host.Info(); err != nil {
		logger.Debug().Err(err).Msg("Host info unavailable")
	} else {
		h.Hostname = info.Hostname
		h.Platform = info.Platform
		h.KernelVersion = info.KernelVersion
		h.UptimeSeconds = info.Uptime
	}

	if avg, err := load.Avg(); err == nil {
		h.Load1 = avg.Load1
	}

	path := s.DiskPath
	if path == "" {
		path = "/"
	}
	if usage, err := disk.Usage(path); err == nil {
		h.DiskUsedPercent = usage.UsedPercent
	}

	h.GPUs = len(s.GPUs())
	return h, nil
}

// Static is a fixed Source
type Static struct {
	GPUList  []GPU
	HostInfo *Host
	Err      error
}

// GPUs returns the fixed device list
func (s *Static) GPUs() []GPU {
	if s.GPUList == nil {
		return []GPU{}
	}
	return s.GPUList
}

// Host returns the fixed host description
func (s *Static) Host() (*Host, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.HostInfo, nil
}
