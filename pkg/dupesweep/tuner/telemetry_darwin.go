//go:build darwin

package tuner

import (
	"context"
	"encoding/binary"
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

// sysctlSampler derives CPU load from the one-minute load average and
// memory from the free and inactive page counts.
type sysctlSampler struct{}

// NewSystemSampler returns the sampler for this platform.
func NewSystemSampler() Sampler {
	return sysctlSampler{}
}

func (sysctlSampler) Sample(_ context.Context) (Telemetry, error) {
	total, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return Telemetry{}, fmt.Errorf("%w: sysctl hw.memsize: %v", types.ErrTelemetryUnavailable, err)
	}

	pageSize, err := unix.SysctlUint32("vm.pagesize")
	if err != nil {
		pageSize = uint32(unix.Getpagesize())
	}
	free, errFree := unix.SysctlUint32("vm.page_free_count")
	inactive, errInactive := unix.SysctlUint32("vm.page_inactive_count")
	avail := total / 2
	if errFree == nil && errInactive == nil {
		avail = (uint64(free) + uint64(inactive)) * uint64(pageSize)
	}

	load, err := loadAverage()
	if err != nil {
		return Telemetry{}, fmt.Errorf("%w: %v", types.ErrTelemetryUnavailable, err)
	}

	return Telemetry{
		CPUUtilization:  clamp01(load / float64(runtime.NumCPU())),
		TotalMemory:     total,
		AvailableMemory: min(avail, total),
	}, nil
}

// loadAverage decodes struct loadavg { fixpt_t ldavg[3]; long fscale; }.
func loadAverage() (float64, error) {
	raw, err := unix.SysctlRaw("vm.loadavg")
	if err != nil {
		return 0, fmt.Errorf("sysctl vm.loadavg: %w", err)
	}
	if len(raw) < 24 {
		return 0, fmt.Errorf("sysctl vm.loadavg: short read (%d bytes)", len(raw))
	}
	one := binary.LittleEndian.Uint32(raw[0:4])
	scale := binary.LittleEndian.Uint64(raw[16:24])
	if scale == 0 {
		return 0, fmt.Errorf("sysctl vm.loadavg: zero fscale")
	}
	return float64(one) / float64(scale), nil
}
