//go:build linux

package telemetry

import (
	"fmt"
	"sync"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// nvmlMu serializes NVML sessions
var nvmlMu sync.Mutex

func nvmlError(what string, ret nvml.Return) error {
	return fmt.Errorf("%s: %s", what, nvml.ErrorString(ret))
}

// readGPUs opens an NVML session, reads every device and closes it again.
// nvml.Init panics when libnvidia-ml.so.1 cannot be loaded; that surfaces as
// an error like any other NVML failure.
func readGPUs() (gpus []GPU, err error) {
	nvmlMu.Lock()
	defer nvmlMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			gpus, err = nil, fmt.Errorf("nvml unavailable: %v", r)
		}
	}()

	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil, nvmlError("nvml init", ret)
	}
	defer nvml.Shutdown()

	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return nil, nvmlError("device count", ret)
	}

	gpus = make([]GPU, 0, count)
	for i := 0; i < count; i++ {
		device, ret := nvml.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			return gpus, nvmlError(fmt.Sprintf("device %d handle", i), ret)
		}

		gpu := GPU{Index: i}
		if name, ret := nvml.DeviceGetName(device); ret == nvml.SUCCESS {
			gpu.Name = name
		}
		if uuid, ret := nvml.DeviceGetUUID(device); ret == nvml.SUCCESS {
			gpu.UUID = uuid
		}

		memInfo, ret := nvml.DeviceGetMemoryInfo(device)
		if ret != nvml.SUCCESS {
			return gpus, nvmlError(fmt.Sprintf("device %d memory", i), ret)
		}
		// NVML reports Free as zero on some drivers
		gpu.MemoryTotalBytes = memInfo.Total
		gpu.MemoryUsedBytes = memInfo.Used
		if memInfo.Total > 0 {
			gpu.MemoryUsedPercent = float64(memInfo.Used) / float64(memInfo.Total) * 100
		}

		if util, ret := nvml.DeviceGetUtilizationRates(device); ret == nvml.SUCCESS {
			gpu.UtilizationPercent = util.Gpu
			gpu.MemoryUtilPercent = util.Memory
		}
		if temp, ret := nvml.DeviceGetTemperature(device, nvml.TEMPERATURE_GPU); ret == nvml.SUCCESS {
			gpu.TemperatureC = temp
		}
		gpus = append(gpus, gpu)
	}
	return gpus, nil
}
