package pipeline

import (
	"context"
	"sync"
	"time"
)

// gatePoll bounds how long a blocked reservation waits before re-reading
// the limit, so a budget that grows unblocks waiters without a release.
const gatePoll = 50 * time.Millisecond

// byteGate bounds the decoded pixel memory held by workers. The limit is
// read on every attempt because the budget changes while the scan runs.
// A reservation larger than the whole limit is admitted only when nothing
// else is in flight.
type byteGate struct {
	mu       sync.Mutex
	inFlight uint64
	peak     uint64
	wake     chan struct{}
}

func newByteGate() *byteGate {
	return &byteGate{wake: make(chan struct{})}
}

// acquire reserves n bytes. A zero limit means unlimited.
func (g *byteGate) acquire(ctx context.Context, n uint64, limit func() uint64) error {
	for {
		g.mu.Lock()
		lim := limit()
		if lim == 0 || g.inFlight == 0 || g.inFlight+n <= lim {
			g.inFlight += n
			g.peak = max(g.peak, g.inFlight)
			g.mu.Unlock()
			return nil
		}
		wake := g.wake
		g.mu.Unlock()

		select {
		case <-wake:
		case <-time.After(gatePoll):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (g *byteGate) release(n uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.inFlight -= min(n, g.inFlight)
	close(g.wake)
	g.wake = make(chan struct{})
}

func (g *byteGate) load() (inFlight, peak uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight, g.peak
}
