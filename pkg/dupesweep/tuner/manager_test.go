package tuner

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

// fakeSampler returns whatever telemetry the test last set.
type fakeSampler struct {
	mu  sync.Mutex
	t   Telemetry
	err error
}

func (f *fakeSampler) set(t Telemetry, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t, f.err = t, err
}

func (f *fakeSampler) Sample(context.Context) (Telemetry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t, f.err
}

// fakeClock is advanced manually.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func load(cpu float64, memAvailFraction float64) Telemetry {
	total := 16 * types.GiB
	return Telemetry{
		CPUUtilization:  cpu,
		TotalMemory:     total,
		AvailableMemory: uint64(float64(total) * memAvailFraction),
	}
}

func newTestManager(t *testing.T, cfg Config, workers int) (*Manager, *fakeSampler, *fakeClock) {
	t.Helper()
	s := &fakeSampler{}
	m, err := NewManager(cfg, s)
	require.NoError(t, err)

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m.now = clock.Now

	b := m.CurrentBudget()
	b.MaxWorkers = workers
	b.Static = false
	m.budget.Store(&b)
	return m, s, clock
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.WorkerFloor = 1
	cfg.WorkerCeiling = 16
	return cfg
}

func TestNewManager_StartsStatic(t *testing.T) {
	cfg := testConfig()
	m, err := NewManager(cfg, &fakeSampler{})
	require.NoError(t, err)

	b := m.CurrentBudget()
	assert.True(t, b.Static)
	assert.Equal(t, clampWorkers(max(1, runtime.NumCPU()/2), cfg.withDefaults()), b.MaxWorkers)
	assert.Equal(t, cfg.SamplingInterval, b.SamplingInterval)
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.LessOrEqual(t, cfg.WorkerCeiling, maxWorkers)

	tests := []struct {
		cpus, floor, want int
	}{
		{cpus: 8, floor: 1, want: 8},
		{cpus: 128, floor: 1, want: maxWorkers},
		{cpus: 2, floor: 4, want: 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, defaultCeiling(tt.cpus, tt.floor), "cpus=%d floor=%d", tt.cpus, tt.floor)
	}
}

func TestNewManager_InvalidConfig(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*Config)
		field string
	}{
		{"floor above ceiling", func(c *Config) { c.WorkerFloor = 9; c.WorkerCeiling = 4 }, "workers.floor"},
		{"ceiling too high", func(c *Config) { c.WorkerCeiling = 1000 }, "workers.ceiling"},
		{"cpu floor", func(c *Config) { c.CPUFloor = 1.5 }, "resources.cpu_floor"},
		{"interval too short", func(c *Config) { c.SamplingInterval = time.Millisecond }, "resources.sampling_interval"},
		{"strategy", func(c *Config) { c.Strategy = "turbo" }, "resources.strategy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mut(&cfg)
			_, err := NewManager(cfg, &fakeSampler{})

			var cfgErr *types.ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestRefresh_HighLoadShrinksWithHysteresis(t *testing.T) {
	cfg := testConfig()
	m, s, clock := newTestManager(t, cfg, 8)
	ctx := context.Background()

	// High CPU load: shrink within the first sampling interval.
	s.set(load(0.95, 0.6), nil)
	require.NoError(t, m.Refresh(ctx))
	assert.Equal(t, 4, m.CurrentBudget().MaxWorkers)

	// Still inside the same interval: no second change.
	clock.Advance(cfg.SamplingInterval / 2)
	require.NoError(t, m.Refresh(ctx))
	assert.Equal(t, 4, m.CurrentBudget().MaxWorkers)

	// Load eases into the hysteresis band: hold, do not grow.
	clock.Advance(cfg.SamplingInterval)
	s.set(load(0.75, 0.6), nil)
	require.NoError(t, m.Refresh(ctx))
	assert.Equal(t, 4, m.CurrentBudget().MaxWorkers)

	clock.Advance(cfg.SamplingInterval)
	require.NoError(t, m.Refresh(ctx))
	assert.Equal(t, 4, m.CurrentBudget().MaxWorkers)

	// Load drops: grow one step per interval.
	clock.Advance(cfg.SamplingInterval)
	s.set(load(0.10, 0.6), nil)
	require.NoError(t, m.Refresh(ctx))
	assert.Equal(t, 5, m.CurrentBudget().MaxWorkers)

	require.NoError(t, m.Refresh(ctx))
	assert.Equal(t, 5, m.CurrentBudget().MaxWorkers, "only one change per interval")

	clock.Advance(cfg.SamplingInterval)
	require.NoError(t, m.Refresh(ctx))
	assert.Equal(t, 6, m.CurrentBudget().MaxWorkers)
}

func TestRefresh_MemoryPressureShrinks(t *testing.T) {
	m, s, _ := newTestManager(t, testConfig(), 6)

	s.set(load(0.05, 0.10), nil)
	require.NoError(t, m.Refresh(context.Background()))

	b := m.CurrentBudget()
	assert.Equal(t, 3, b.MaxWorkers)
	assert.Equal(t, batchSizeFor(16*types.GiB)/2, b.BatchSize)
}

func TestRefresh_NeverBelowFloorOrAboveCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.WorkerFloor = 2
	cfg.WorkerCeiling = 3
	m, s, clock := newTestManager(t, cfg, 3)
	ctx := context.Background()

	s.set(load(0.99, 0.05), nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Refresh(ctx))
		clock.Advance(cfg.SamplingInterval)
	}
	assert.Equal(t, 2, m.CurrentBudget().MaxWorkers)

	s.set(load(0.0, 0.9), nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Refresh(ctx))
		clock.Advance(cfg.SamplingInterval)
	}
	assert.Equal(t, 3, m.CurrentBudget().MaxWorkers)
}

func TestRefresh_TelemetryUnavailableFallsBack(t *testing.T) {
	cfg := testConfig()
	m, s, _ := newTestManager(t, cfg, 12)

	s.set(Telemetry{}, types.ErrTelemetryUnavailable)
	err := m.Refresh(context.Background())
	require.ErrorIs(t, err, types.ErrTelemetryUnavailable)

	b := m.CurrentBudget()
	assert.True(t, b.Static)
	assert.Equal(t, StaticBudget(runtime.NumCPU(), cfg), b)
}

func TestRefresh_InFlightAllowance(t *testing.T) {
	cfg := testConfig()
	cfg.MaxInFlightBytes = 100 * types.MiB
	m, s, _ := newTestManager(t, cfg, 2)

	s.set(load(0.5, 0.5), nil) // 8 GiB available
	require.NoError(t, m.Refresh(context.Background()))
	assert.Equal(t, 100*types.MiB, m.CurrentBudget().MaxInFlightBytes)

	assert.Equal(t, minInFlightBytes, inFlightAllowance(1024, 0.4, 0))
}

func TestCurrentBudget_ConcurrentReaders(t *testing.T) {
	m, s, clock := newTestManager(t, testConfig(), 4)
	s.set(load(0.1, 0.8), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				b := m.CurrentBudget()
				assert.GreaterOrEqual(t, b.MaxWorkers, 1)
			}
		}()
	}
	for i := 0; i < 20; i++ {
		require.NoError(t, m.Refresh(ctx))
		clock.Advance(time.Second)
	}
	wg.Wait()
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.SamplingInterval = MinSamplingInterval
	m, err := NewManager(cfg, &fakeSampler{t: load(0.1, 0.8)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return !m.CurrentBudget().Static }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestBatchSizeFor(t *testing.T) {
	tests := []struct {
		ram  uint64
		want int
	}{
		{2 * types.GiB, 25},
		{6 * types.GiB, 50},
		{12 * types.GiB, 100},
		{24 * types.GiB, 150},
		{48 * types.GiB, 200},
		{128 * types.GiB, 300},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, batchSizeFor(tt.ram), types.FormatSize(tt.ram))
	}
}
