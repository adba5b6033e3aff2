// Package tuner decides how much concurrency a scan may use. It samples CPU
// and memory telemetry on a fixed interval and publishes an immutable
// ResourceBudget that hashing workers read at task boundaries.
package tuner

import (
	"context"
	"runtime"
)

// SystemResources contains detected system resources.
type SystemResources struct {
	// CPUCores is the number of logical CPU cores available.
	CPUCores int

	// TotalRAM is the total physical RAM in bytes.
	TotalRAM uint64

	// AvailableRAM is the RAM available to new work in bytes.
	AvailableRAM uint64

	// CPUUtilization is the busy fraction in [0,1] across all cores.
	CPUUtilization float64
}

// Telemetry is one sample of system load.
type Telemetry struct {
	// CPUUtilization is the busy fraction in [0,1] across all cores.
	CPUUtilization float64

	TotalMemory     uint64
	AvailableMemory uint64
}

// CPUHeadroom returns the idle CPU fraction.
func (t Telemetry) CPUHeadroom() float64 {
	return clamp01(1 - t.CPUUtilization)
}

// MemoryHeadroom returns the available memory fraction.
func (t Telemetry) MemoryHeadroom() float64 {
	if t.TotalMemory == 0 {
		return 0
	}
	return clamp01(float64(t.AvailableMemory) / float64(t.TotalMemory))
}

// Sampler reads live telemetry. Implementations return an error wrapping
// types.ErrTelemetryUnavailable when the platform cannot be sampled.
type Sampler interface {
	Sample(ctx context.Context) (Telemetry, error)
}

// Detect takes a single telemetry sample and reports system resources.
func Detect(ctx context.Context) (SystemResources, error) {
	res := SystemResources{CPUCores: runtime.NumCPU()}

	t, err := NewSystemSampler().Sample(ctx)
	if err != nil {
		return res, err
	}

	res.TotalRAM = t.TotalMemory
	res.AvailableRAM = t.AvailableMemory
	res.CPUUtilization = t.CPUUtilization
	return res, nil
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
