//go:build !linux

package telemetry

import "errors"

func readGPUs() ([]GPU, error) {
	return nil, errors.New("GPU telemetry requires linux")
}
