package tuner

import (
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

// staticBatchSize is used when total memory is unknown.
const staticBatchSize = 50

// StaticBudget is the conservative budget used before the first sample and
// whenever telemetry is unavailable: half the logical cores, clamped to the
// configured floor and ceiling.
func StaticBudget(cores int, cfg Config) types.ResourceBudget {
	cfg = cfg.withDefaults()
	params := strategies[cfg.Strategy]

	inFlight := cfg.MaxInFlightBytes
	if inFlight == 0 {
		inFlight = 256 * types.MiB
	}

	return types.ResourceBudget{
		MaxWorkers:       clampWorkers(max(1, cores/2), cfg),
		BatchSize:        max(1, int(float64(staticBatchSize)*params.batchScale)),
		MaxInFlightBytes: inFlight,
		SamplingInterval: cfg.SamplingInterval,
		Static:           true,
	}
}

// batchSizeFor sizes batches from total RAM.
func batchSizeFor(totalRAM uint64) int {
	switch {
	case totalRAM < 4*types.GiB:
		return 25
	case totalRAM < 8*types.GiB:
		return 50
	case totalRAM < 16*types.GiB:
		return 100
	case totalRAM < 32*types.GiB:
		return 150
	case totalRAM < 64*types.GiB:
		return 200
	default:
		return 300
	}
}

// pressure classifies a telemetry sample against the floors.
type pressure int

const (
	pressureHold pressure = iota
	pressureTight
	pressureRoomy
)

func classify(t Telemetry, cfg Config) pressure {
	cpu, mem := t.CPUHeadroom(), t.MemoryHeadroom()
	switch {
	case cpu < cfg.CPUFloor || mem < cfg.MemoryFloor:
		return pressureTight
	case cpu >= cfg.CPUFloor+cfg.HysteresisBand && mem >= cfg.MemoryFloor+cfg.HysteresisBand:
		return pressureRoomy
	default:
		return pressureHold
	}
}

// nextBudget applies the policy to cur given a fresh sample. It returns the
// new budget and whether the worker count changed.
func nextBudget(cur types.ResourceBudget, t Telemetry, cfg Config) (types.ResourceBudget, bool) {
	params := strategies[cfg.Strategy]
	baseBatch := max(1, int(float64(batchSizeFor(t.TotalMemory))*params.batchScale))

	next := cur
	next.Static = false
	next.SamplingInterval = cfg.SamplingInterval
	next.MaxInFlightBytes = inFlightAllowance(t.AvailableMemory, params.inFlightFraction, cfg.MaxInFlightBytes)
	next.BatchSize = baseBatch

	switch classify(t, cfg) {
	case pressureTight:
		next.MaxWorkers = clampWorkers(cur.MaxWorkers/2, cfg)
		next.BatchSize = max(1, baseBatch/2)
	case pressureRoomy:
		next.MaxWorkers = clampWorkers(cur.MaxWorkers+params.growStep, cfg)
	}

	return next, next.MaxWorkers != cur.MaxWorkers
}

func inFlightAllowance(available uint64, fraction float64, limit uint64) uint64 {
	allowance := uint64(float64(available) * fraction)
	if limit > 0 {
		allowance = min(allowance, limit)
	}
	return max(allowance, minInFlightBytes)
}

func clampWorkers(n int, cfg Config) int {
	return max(1, max(cfg.WorkerFloor, min(n, cfg.WorkerCeiling)))
}
