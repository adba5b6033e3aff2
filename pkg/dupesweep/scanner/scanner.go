package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/broadcaster"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/cache"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/cluster"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/decode"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/fingerprint"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/logging"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/pipeline"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/selector"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/tuner"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/walker"
)

var logger = logging.Get("scanner")

// HashCache is the cache surface the scanner needs.
type HashCache interface {
	pipeline.Cache
	Flush() error
}

var _ HashCache = (*cache.HashCache)(nil)

// Scanner runs scans. One scan runs at a time; concurrent calls to Scan
// wait their turn.
type Scanner struct {
	opts     Options
	hasher   *fingerprint.Computer
	walker   *walker.Walker
	manager  *tuner.Manager
	progress *broadcaster.Broadcaster

	mu sync.Mutex
}

// New validates opts and builds a scanner.
func New(opts Options) (*Scanner, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	hasher, err := fingerprint.New(opts.Algorithm)
	if err != nil {
		return nil, err
	}
	w, err := walker.New(walker.Options{Exclude: opts.Exclude, Include: opts.Include})
	if err != nil {
		return nil, err
	}
	manager, err := tuner.NewManager(opts.Tuner, opts.Sampler)
	if err != nil {
		return nil, err
	}
	if opts.Decoder == nil {
		opts.Decoder = decode.New()
	}

	return &Scanner{
		opts:     opts,
		hasher:   hasher,
		walker:   w,
		manager:  manager,
		progress: broadcaster.New(),
	}, nil
}

// Subscribe returns a progress subscription. Unsubscribe through Progress.
func (s *Scanner) Subscribe() *broadcaster.Subscriber {
	return s.progress.Subscribe()
}

// Progress returns the progress broadcaster.
func (s *Scanner) Progress() *broadcaster.Broadcaster {
	return s.progress
}

// Budget returns the current resource budget.
func (s *Scanner) Budget() types.ResourceBudget {
	return s.manager.CurrentBudget()
}

// Options returns the validated options.
func (s *Scanner) Options() Options {
	return s.opts
}

// Close releases the progress subscribers.
func (s *Scanner) Close() {
	s.progress.Close()
}

// Scan finds near-duplicate images under roots. Per-file failures are
// reported in the result. Cancellation returns types.ErrScanCancelled and
// no partial report; a clustering invariant violation aborts the scan.
func (s *Scanner) Scan(ctx context.Context, roots []string) (*types.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	logger.Info("scan started", "roots", roots, "algorithm", s.opts.Algorithm, "threshold", s.opts.Threshold)

	tunerCtx, stopTuner := context.WithCancel(ctx)
	defer stopTuner()
	go s.manager.Run(tunerCtx)

	s.phase(types.PhaseDiscovering, start, types.ScanProgress{})
	paths, walkErrs, err := s.walker.List(ctx, roots)
	if err != nil {
		return nil, cancelled(ctx, err)
	}

	p := pipeline.New(pipeline.Options{
		Decoder:  s.opts.Decoder,
		Hasher:   s.hasher,
		Budget:   s.manager,
		Cache:    s.opts.Cache,
		Progress: s.progress,
	})
	records := make([]types.ImageRecord, 0, len(paths))
	for r := range p.Run(ctx, paths) {
		records = append(records, r)
	}
	if ctx.Err() != nil {
		return nil, cancelled(ctx, ctx.Err())
	}
	stats := p.Stats()

	if s.opts.Cache != nil {
		if err := s.opts.Cache.Flush(); err != nil {
			logger.Warn("hash cache flush failed", "error", err)
		}
	}

	s.phase(types.PhaseClustering, start, p.Progress())
	res, err := cluster.Cluster(records, s.opts.Threshold, cluster.Options{Index: s.opts.Index})
	if err != nil {
		logger.Error("clustering failed", "error", err)
		return nil, fmt.Errorf("clustering: %w", err)
	}

	s.phase(types.PhaseScoring, start, p.Progress())
	scores := make(map[string][]types.SelectionScore, len(res.Sets))
	for _, set := range res.Sets {
		scores[set.ID] = selector.Score(set, s.opts.Scoring)
	}
	if ctx.Err() != nil {
		return nil, cancelled(ctx, ctx.Err())
	}

	report := &types.Report{
		Roots:      roots,
		Algorithm:  s.opts.Algorithm,
		Threshold:  s.opts.Threshold,
		StartedAt:  start,
		FilesSeen:  len(paths),
		Hashed:     int(stats.Hashed),
		Skipped:    res.Skipped,
		Clustered:  res.Clustered,
		CacheHits:  int(stats.CacheHits),
		Sets:       res.Sets,
		Scores:     scores,
		WalkErrors: walkErrs,
		Budget:     s.manager.CurrentBudget(),
		Elapsed:    time.Since(start),
	}

	s.phase(types.PhaseDone, start, p.Progress())
	logger.Info("scan complete",
		"files", report.FilesSeen,
		"hashed", report.Hashed,
		"skipped", len(report.Skipped),
		"sets", len(report.Sets),
		"clustered", report.Clustered,
		"reclaimable", types.FormatSize(report.ReclaimableBytes()),
		"elapsed", report.Elapsed.Round(time.Millisecond))
	return report, nil
}

func (s *Scanner) phase(phase types.Phase, start time.Time, p types.ScanProgress) {
	p.Phase = phase
	p.Elapsed = time.Since(start)
	p.Workers = s.manager.CurrentBudget().MaxWorkers
	p.CurrentPath = ""
	s.progress.Publish(p)
}

func cancelled(ctx context.Context, err error) error {
	if ctx.Err() == nil {
		return err
	}
	logger.Info("scan cancelled", "cause", context.Cause(ctx))
	return fmt.Errorf("%w: %w", types.ErrScanCancelled, context.Cause(ctx))
}
