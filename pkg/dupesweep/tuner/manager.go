package tuner

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/logging"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

var logger = logging.Get("tuner")

// Manager owns the resource budget. The sampling loop is its only writer;
// any number of goroutines may call CurrentBudget.
type Manager struct {
	cfg     Config
	sampler Sampler
	now     func() time.Time

	budget atomic.Pointer[types.ResourceBudget]

	// mu serialises Refresh so the loop and manual refreshes never race.
	mu         sync.Mutex
	lastChange time.Time
	warned     bool
}

// NewManager validates cfg and returns a manager holding the static budget.
// A nil sampler selects the platform sampler.
func NewManager(cfg Config, sampler Sampler) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if sampler == nil {
		sampler = NewSystemSampler()
	}

	m := &Manager{cfg: cfg, sampler: sampler, now: time.Now}
	static := StaticBudget(runtime.NumCPU(), cfg)
	m.budget.Store(&static)
	return m, nil
}

// CurrentBudget returns a copy of the latest budget.
func (m *Manager) CurrentBudget() types.ResourceBudget {
	return *m.budget.Load()
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Refresh takes one sample and applies the policy. The worker count changes
// at most once per sampling interval. When telemetry is unavailable the
// static budget is restored and the error is returned for the caller to
// inspect; it is never fatal.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.sampler.Sample(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.fallback(err)
		return err
	}
	m.warned = false

	cur := m.CurrentBudget()
	next, changed := nextBudget(cur, t, m.cfg)

	now := m.now()
	if changed && !cur.Static && now.Sub(m.lastChange) < m.cfg.SamplingInterval {
		next.MaxWorkers = cur.MaxWorkers
		changed = false
	}
	if changed {
		m.lastChange = now
		logger.Debug("budget changed",
			"workers", next.MaxWorkers,
			"previous", cur.MaxWorkers,
			"cpu_headroom", t.CPUHeadroom(),
			"mem_headroom", t.MemoryHeadroom(),
			"in_flight", types.FormatSize(next.MaxInFlightBytes))
	}

	m.budget.Store(&next)
	return nil
}

func (m *Manager) fallback(err error) {
	if !m.warned {
		logger.Warn("telemetry unavailable, using static budget", "error", err)
		m.warned = true
	}
	static := StaticBudget(runtime.NumCPU(), m.cfg)
	m.budget.Store(&static)
}

// Run refreshes the budget every sampling interval until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	if err := m.Refresh(ctx); err != nil && ctx.Err() != nil {
		return
	}

	ticker := time.NewTicker(m.cfg.SamplingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Refresh(ctx); err != nil && ctx.Err() != nil {
				return
			}
		}
	}
}
