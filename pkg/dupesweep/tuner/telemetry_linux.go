//go:build linux

package tuner

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

// primeDelay separates the two /proc/stat reads of the very first sample.
const primeDelay = 100 * time.Millisecond

type cpuTimes struct {
	busy  uint64
	total uint64
}

// procSampler reads CPU counters from /proc/stat and memory from
// /proc/meminfo, falling back to sysinfo(2) for memory.
type procSampler struct {
	root string

	mu   sync.Mutex
	prev *cpuTimes
}

// NewSystemSampler returns the sampler for this platform.
func NewSystemSampler() Sampler {
	return &procSampler{root: "/proc"}
}

func (s *procSampler) Sample(ctx context.Context) (Telemetry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.readCPU()
	if err != nil {
		return Telemetry{}, fmt.Errorf("%w: %v", types.ErrTelemetryUnavailable, err)
	}

	if s.prev == nil {
		s.prev = &cur
		select {
		case <-ctx.Done():
			return Telemetry{}, ctx.Err()
		case <-time.After(primeDelay):
		}
		if cur, err = s.readCPU(); err != nil {
			return Telemetry{}, fmt.Errorf("%w: %v", types.ErrTelemetryUnavailable, err)
		}
	}

	var util float64
	if cur.total > s.prev.total && cur.busy >= s.prev.busy {
		util = float64(cur.busy-s.prev.busy) / float64(cur.total-s.prev.total)
	}
	s.prev = &cur

	total, avail, err := s.readMemory()
	if err != nil {
		return Telemetry{}, fmt.Errorf("%w: %v", types.ErrTelemetryUnavailable, err)
	}

	return Telemetry{
		CPUUtilization:  clamp01(util),
		TotalMemory:     total,
		AvailableMemory: min(avail, total),
	}, nil
}

func (s *procSampler) readCPU() (cpuTimes, error) {
	f, err := os.Open(filepath.Join(s.root, "stat"))
	if err != nil {
		return cpuTimes{}, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 5 || fields[0] != "cpu" {
			continue
		}
		var t cpuTimes
		var idle uint64
		// user nice system idle iowait irq softirq steal
		for i, field := range fields[1:min(len(fields), 9)] {
			v, err := strconv.ParseUint(field, 10, 64)
			if err != nil {
				return cpuTimes{}, fmt.Errorf("parsing /proc/stat: %w", err)
			}
			t.total += v
			if i == 3 || i == 4 {
				idle += v
			}
		}
		t.busy = t.total - idle
		return t, nil
	}
	if err := sc.Err(); err != nil {
		return cpuTimes{}, err
	}
	return cpuTimes{}, fmt.Errorf("no aggregate cpu line in %s/stat", s.root)
}

func (s *procSampler) readMemory() (total, avail uint64, err error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, 0, fmt.Errorf("sysinfo: %w", err)
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	total = uint64(info.Totalram) * unit

	if kb, ok := memAvailableKB(filepath.Join(s.root, "meminfo")); ok {
		return total, kb * 1024, nil
	}
	// Kernels without MemAvailable: free plus buffers is a lower bound.
	return total, (uint64(info.Freeram) + uint64(info.Bufferram)) * unit, nil
}

func memAvailableKB(path string) (uint64, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) >= 2 && fields[0] == "MemAvailable:" {
			v, err := strconv.ParseUint(fields[1], 10, 64)
			return v, err == nil
		}
	}
	return 0, false
}
