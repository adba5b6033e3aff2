package tuner

import (
	"fmt"
	"runtime"
	"time"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

// Strategy selects how aggressively the manager trades memory for speed.
type Strategy string

// Strategies.
const (
	StrategyBalanced    Strategy = "balanced"
	StrategyPerformance Strategy = "performance"
	StrategyMemory      Strategy = "memory"
)

// Sampling interval bounds.
const (
	MinSamplingInterval     = 250 * time.Millisecond
	MaxSamplingInterval     = 10 * time.Second
	DefaultSamplingInterval = time.Second
)

// Worker limits.
const (
	// maxWorkers caps any configured ceiling.
	maxWorkers = 64

	// minInFlightBytes keeps a usable in-flight allowance on starved systems.
	minInFlightBytes = 16 * types.MiB
)

// strategyParams are the constants each strategy tunes.
type strategyParams struct {
	growStep         int
	inFlightFraction float64
	batchScale       float64
}

var strategies = map[Strategy]strategyParams{
	StrategyBalanced:    {growStep: 1, inFlightFraction: 0.40, batchScale: 1},
	StrategyPerformance: {growStep: 2, inFlightFraction: 0.50, batchScale: 1},
	StrategyMemory:      {growStep: 1, inFlightFraction: 0.20, batchScale: 0.5},
}

// Config controls the resource manager.
type Config struct {
	// WorkerFloor is the minimum worker count. Zero means 1.
	WorkerFloor int

	// WorkerCeiling is the maximum worker count. Zero means logical cores.
	WorkerCeiling int

	// CPUFloor is the idle CPU fraction below which the pool shrinks.
	CPUFloor float64

	// MemoryFloor is the available memory fraction below which the pool shrinks.
	MemoryFloor float64

	// HysteresisBand is the extra headroom required above both floors
	// before the pool grows again.
	HysteresisBand float64

	// SamplingInterval is how often telemetry is read.
	SamplingInterval time.Duration

	// MaxInFlightBytes caps decoded pixel memory. Zero means no cap beyond
	// the strategy's share of available memory.
	MaxInFlightBytes uint64

	Strategy Strategy
}

// DefaultConfig returns the balanced defaults.
func DefaultConfig() Config {
	return Config{
		WorkerFloor:      1,
		WorkerCeiling:    defaultCeiling(runtime.NumCPU(), 1),
		CPUFloor:         0.20,
		MemoryFloor:      0.30,
		HysteresisBand:   0.10,
		SamplingInterval: DefaultSamplingInterval,
		MaxInFlightBytes: 512 * types.MiB,
		Strategy:         StrategyBalanced,
	}
}

// defaultCeiling is one worker per CPU, at least floor, at most maxWorkers.
func defaultCeiling(cpus, floor int) int {
	return min(max(cpus, floor), maxWorkers)
}

// withDefaults fills zero values.
func (c Config) withDefaults() Config {
	if c.WorkerFloor <= 0 {
		c.WorkerFloor = 1
	}
	if c.WorkerCeiling <= 0 {
		c.WorkerCeiling = defaultCeiling(runtime.NumCPU(), c.WorkerFloor)
	}
	if c.SamplingInterval == 0 {
		c.SamplingInterval = DefaultSamplingInterval
	}
	if c.Strategy == "" {
		c.Strategy = StrategyBalanced
	}
	return c
}

// Validate rejects inconsistent settings.
func (c Config) Validate() error {
	switch {
	case c.WorkerFloor < 0:
		return &types.ConfigurationError{Field: "workers.floor", Value: c.WorkerFloor, Reason: "must not be negative"}
	case c.WorkerCeiling < 0 || c.WorkerCeiling > maxWorkers:
		return &types.ConfigurationError{Field: "workers.ceiling", Value: c.WorkerCeiling, Reason: fmt.Sprintf("must be between 0 (auto) and %d", maxWorkers)}
	case c.WorkerCeiling > 0 && c.WorkerFloor > c.WorkerCeiling:
		return &types.ConfigurationError{Field: "workers.floor", Value: c.WorkerFloor, Reason: fmt.Sprintf("exceeds workers.ceiling (%d)", c.WorkerCeiling)}
	case c.CPUFloor < 0 || c.CPUFloor >= 1:
		return &types.ConfigurationError{Field: "resources.cpu_floor", Value: c.CPUFloor, Reason: "must be in [0,1)"}
	case c.MemoryFloor < 0 || c.MemoryFloor >= 1:
		return &types.ConfigurationError{Field: "resources.memory_floor", Value: c.MemoryFloor, Reason: "must be in [0,1)"}
	case c.HysteresisBand < 0 || c.HysteresisBand >= 1:
		return &types.ConfigurationError{Field: "resources.hysteresis", Value: c.HysteresisBand, Reason: "must be in [0,1)"}
	case c.SamplingInterval != 0 && (c.SamplingInterval < MinSamplingInterval || c.SamplingInterval > MaxSamplingInterval):
		return &types.ConfigurationError{Field: "resources.sampling_interval", Value: c.SamplingInterval, Reason: fmt.Sprintf("must be between %s and %s", MinSamplingInterval, MaxSamplingInterval)}
	}
	if c.Strategy != "" {
		if _, ok := strategies[c.Strategy]; !ok {
			return &types.ConfigurationError{Field: "resources.strategy", Value: c.Strategy, Reason: "must be balanced, performance or memory"}
		}
	}
	return nil
}
