// Package pipeline hashes discovered files in parallel under a resource
// budget that may change while the pipeline runs.
//
// A single dispatcher hands files to workers. Before each dispatch it reads
// the current budget, so shrinking MaxWorkers takes effect as soon as enough
// workers finish, and growing it takes effect on the next dispatch. Decoded
// pixel memory is bounded separately by MaxInFlightBytes. Per-file failures
// become skipped records and never stop the pipeline.
package pipeline

import (
	"context"
	"image"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/broadcaster"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/cache"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/decode"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/logging"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

var logger = logging.Get("pipeline")

const (
	// defaultProgressInterval throttles progress publication.
	defaultProgressInterval = 100 * time.Millisecond

	// dispatchPoll is how often a blocked dispatcher re-reads the budget.
	dispatchPoll = 50 * time.Millisecond
)

// BudgetSource supplies the current resource budget.
type BudgetSource interface {
	CurrentBudget() types.ResourceBudget
}

// Hasher computes a perceptual hash from decoded pixels.
type Hasher interface {
	Compute(img image.Image) (types.Hash, error)
	Algorithm() types.Algorithm
}

// Cache short-circuits decoding for unchanged files.
type Cache interface {
	Lookup(path string, size uint64, modTime time.Time) (*cache.Entry, bool)
	Record(r types.ImageRecord)
}

// Options configures a Pipeline. Decoder, Hasher and Budget are required.
type Options struct {
	Decoder decode.Decoder
	Hasher  Hasher
	Budget  BudgetSource

	// Cache is optional.
	Cache Cache

	// Progress is optional. Updates are throttled to ProgressInterval.
	Progress         *broadcaster.Broadcaster
	ProgressInterval time.Duration
}

// Stats summarises a run.
type Stats struct {
	Total             int64
	Done              int64
	Hashed            int64
	Skipped           int64
	CacheHits         int64
	PeakWorkers       int64
	PeakInFlightBytes uint64
}

// Pipeline runs one hashing pass. It is not reusable.
type Pipeline struct {
	opts Options
	gate *byteGate

	// wake is signalled when a worker finishes.
	wake chan struct{}

	active      atomic.Int64
	peakWorkers atomic.Int64

	total     atomic.Int64
	done      atomic.Int64
	hashed    atomic.Int64
	skipped   atomic.Int64
	cacheHits atomic.Int64

	start        time.Time
	lastProgress atomic.Int64
	currentPath  atomic.Value
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = defaultProgressInterval
	}
	p := &Pipeline{
		opts: opts,
		gate: newByteGate(),
		wake: make(chan struct{}, 1),
	}
	p.currentPath.Store("")
	return p
}

// Run hashes paths and streams one record per file, in completion order.
// The channel is closed once every dispatched file has finished. On
// cancellation no further files are dispatched, in-flight files finish,
// and their records may be dropped; callers should check ctx.Err().
func (p *Pipeline) Run(ctx context.Context, paths []string) <-chan types.ImageRecord {
	budget := p.opts.Budget.CurrentBudget()
	out := make(chan types.ImageRecord, max(budget.BatchSize, 1))

	p.start = time.Now()
	p.total.Store(int64(len(paths)))

	go func() {
		defer close(out)
		p.dispatch(ctx, paths, out)
		p.publish(true)
		logger.Info("hashing complete",
			"files", len(paths),
			"hashed", p.hashed.Load(),
			"skipped", p.skipped.Load(),
			"cache_hits", p.cacheHits.Load(),
			"elapsed", time.Since(p.start).Round(time.Millisecond))
	}()
	return out
}

func (p *Pipeline) dispatch(ctx context.Context, paths []string, out chan<- types.ImageRecord) {
	var g errgroup.Group

	for _, path := range paths {
		if !p.acquireWorker(ctx) {
			break
		}
		g.Go(func() error {
			defer p.releaseWorker()
			p.process(ctx, path, out)
			return nil
		})
	}

	// Workers never return errors; failures travel inside records.
	_ = g.Wait()
}

// acquireWorker blocks until the active worker count is below the current
// budget. Only the dispatcher increments active, so check-then-add is safe.
func (p *Pipeline) acquireWorker(ctx context.Context) bool {
	for {
		if ctx.Err() != nil {
			return false
		}
		limit := int64(max(p.opts.Budget.CurrentBudget().MaxWorkers, 1))
		if n := p.active.Load(); n < limit {
			n = p.active.Add(1)
			for {
				peak := p.peakWorkers.Load()
				if n <= peak || p.peakWorkers.CompareAndSwap(peak, n) {
					break
				}
			}
			return true
		}

		select {
		case <-p.wake:
		case <-time.After(dispatchPoll):
		case <-ctx.Done():
			return false
		}
	}
}

func (p *Pipeline) releaseWorker() {
	p.active.Add(-1)
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pipeline) process(ctx context.Context, path string, out chan<- types.ImageRecord) {
	p.currentPath.Store(path)

	rec, ok := p.hashFile(ctx, path)
	if !ok {
		return
	}

	p.done.Add(1)
	switch {
	case rec.Skipped():
		p.skipped.Add(1)
		logger.Debug("skipping file", "path", path, "error", rec.DecodeError)
	case rec.CacheHit:
		p.hashed.Add(1)
		p.cacheHits.Add(1)
	default:
		p.hashed.Add(1)
		if p.opts.Cache != nil {
			p.opts.Cache.Record(rec)
		}
	}
	p.publish(false)

	select {
	case out <- rec:
	case <-ctx.Done():
	}
}

// hashFile produces the record for path. It reports false only when
// cancelled while waiting for memory.
func (p *Pipeline) hashFile(ctx context.Context, path string) (types.ImageRecord, bool) {
	rec := types.ImageRecord{Path: path}

	info, err := os.Stat(path)
	if err != nil {
		rec.DecodeError = types.NewDecodeFailure(path, err)
		return rec, true
	}
	rec.Size = uint64(info.Size())
	rec.ModTime = info.ModTime()

	if p.opts.Cache != nil {
		if e, ok := p.opts.Cache.Lookup(path, rec.Size, rec.ModTime); ok {
			rec.Hash = e.Hash()
			rec.Width, rec.Height = e.PixelW, e.PixelH
			rec.CacheHit = true
			return rec, true
		}
	}

	cfg, err := p.opts.Decoder.Probe(path)
	if err != nil {
		rec.DecodeError = types.NewDecodeFailure(path, err)
		return rec, true
	}

	need := cfg.EstimatedBytes()
	if err := p.gate.acquire(ctx, need, p.inFlightLimit); err != nil {
		return rec, false
	}

	img, err := p.opts.Decoder.Decode(path)
	if err == nil {
		b := img.Bounds()
		rec.Width, rec.Height = uint32(b.Dx()), uint32(b.Dy())
		rec.Hash, err = p.opts.Hasher.Compute(img)
	}
	p.gate.release(need)

	if err != nil {
		rec.Hash = types.Hash{}
		rec.DecodeError = types.NewDecodeFailure(path, err)
	}
	return rec, true
}

func (p *Pipeline) inFlightLimit() uint64 {
	return p.opts.Budget.CurrentBudget().MaxInFlightBytes
}

// publish sends progress, throttled unless force is set.
func (p *Pipeline) publish(force bool) {
	if p.opts.Progress == nil {
		return
	}

	now := time.Now().UnixMilli()
	if !force {
		last := p.lastProgress.Load()
		if now-last < p.opts.ProgressInterval.Milliseconds() {
			return
		}
		if !p.lastProgress.CompareAndSwap(last, now) {
			return
		}
	} else {
		p.lastProgress.Store(now)
	}

	p.opts.Progress.Publish(p.Progress())
}

// Progress returns a snapshot of the run.
func (p *Pipeline) Progress() types.ScanProgress {
	inFlight, _ := p.gate.load()
	path, _ := p.currentPath.Load().(string)
	return types.ScanProgress{
		Phase:         types.PhaseHashing,
		FilesTotal:    p.total.Load(),
		FilesDone:     p.done.Load(),
		Hashed:        p.hashed.Load(),
		Skipped:       p.skipped.Load(),
		CacheHits:     p.cacheHits.Load(),
		Workers:       p.opts.Budget.CurrentBudget().MaxWorkers,
		InFlightBytes: inFlight,
		CurrentPath:   path,
		Elapsed:       time.Since(p.start),
	}
}

// Stats returns the counters. Final once the Run channel is closed.
func (p *Pipeline) Stats() Stats {
	_, peak := p.gate.load()
	return Stats{
		Total:             p.total.Load(),
		Done:              p.done.Load(),
		Hashed:            p.hashed.Load(),
		Skipped:           p.skipped.Load(),
		CacheHits:         p.cacheHits.Load(),
		PeakWorkers:       p.peakWorkers.Load(),
		PeakInFlightBytes: peak,
	}
}
