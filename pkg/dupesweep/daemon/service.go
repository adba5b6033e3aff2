// Package daemon implements dupesweepd: a long-running scanner that keeps
// the latest duplicate report for its roots, rescans when images change and
// serves the report over gRPC on a unix socket and optionally over HTTP.
package daemon

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	dupesweepv1 "github.com/jamesainslie/dupesweep/pkg/dupesweep/api/v1"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/logging"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/manifest"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/scanner"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

var logger = logging.Get("daemon")

// Service implements the Daemon gRPC service.
type Service struct {
	scanner   *scanner.Scanner
	history   *manifest.Manifest
	startTime time.Time

	// ctx bounds background scans; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	roots    []string
	scanning bool
	last     *types.Report
	lastErr  error
}

// NewService creates a service scanning roots with sc. history may be nil.
func NewService(sc *scanner.Scanner, roots []string, history *manifest.Manifest) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		scanner:   sc,
		history:   history,
		startTime: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		roots:     append([]string(nil), roots...),
	}
}

// Scan starts a background scan. It does not wait for the scan to finish.
func (s *Service) Scan(_ context.Context, req *dupesweepv1.ScanRequest) (*dupesweepv1.ScanResponse, error) {
	roots := req.Roots
	if len(roots) == 0 {
		s.mu.RLock()
		roots = s.roots
		s.mu.RUnlock()
	}
	if len(roots) == 0 {
		return nil, status.Error(codes.InvalidArgument, "no roots to scan")
	}

	if !s.Start(roots) {
		return &dupesweepv1.ScanResponse{Started: false, Message: "already scanning"}, nil
	}
	return &dupesweepv1.ScanResponse{Started: true, Message: "scan started"}, nil
}

// Start launches a background scan of roots unless one is running, and
// reports whether it did. The scan outlives the request that started it.
func (s *Service) Start(roots []string) bool {
	s.mu.Lock()
	if s.scanning || s.ctx.Err() != nil {
		s.mu.Unlock()
		logger.Debug("scan already in progress", "roots", roots)
		return false
	}
	s.scanning = true
	s.roots = append([]string(nil), roots...)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _ = s.run(s.ctx, roots)
	}()
	return true
}

// Rescan scans the current roots and blocks until the scan finishes. It is
// the watcher's change callback.
func (s *Service) Rescan(ctx context.Context, changed []string) {
	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		logger.Debug("rescan skipped, scan in progress", "changed", len(changed))
		return
	}
	s.scanning = true
	roots := s.roots
	s.mu.Unlock()

	logger.Info("rescanning after changes", "changed", len(changed))
	_, _ = s.run(ctx, roots)
}

// run must be called with scanning set.
func (s *Service) run(ctx context.Context, roots []string) (*types.Report, error) {
	report, err := s.scanner.Scan(ctx, roots)

	s.mu.Lock()
	s.scanning = false
	if err != nil {
		s.lastErr = err
	} else {
		s.last = report
		s.lastErr = nil
	}
	s.mu.Unlock()

	if err != nil {
		if errors.Is(err, types.ErrScanCancelled) {
			logger.Info("scan cancelled", "roots", roots)
		} else {
			logger.Error("scan failed", "roots", roots, "error", err)
		}
		return nil, err
	}

	if s.history != nil {
		if _, herr := s.history.LogScan(report); herr != nil {
			logger.Warn("failed to record scan history", "error", herr)
		}
	}
	return report, nil
}

// Status returns daemon health and scan state.
func (s *Service) Status(_ context.Context) (*dupesweepv1.DaemonStatus, error) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &dupesweepv1.DaemonStatus{
		Running:       true,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		MemoryBytes:   mem.Alloc,
		Roots:         append([]string(nil), s.roots...),
		Scanning:      s.scanning,
	}
	if p, ok := s.scanner.Progress().Last(); ok {
		st.Progress = p
	}
	if s.last != nil {
		st.LastScan = s.last.StartedAt
		st.Sets = len(s.last.Sets)
		st.Reclaimable = s.last.ReclaimableBytes()
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st, nil
}

// Report returns the latest completed report.
func (s *Service) Report(_ context.Context) (*types.Report, error) {
	if r := s.Latest(); r != nil {
		return r, nil
	}
	return nil, status.Error(codes.NotFound, "no completed scan")
}

// Latest returns the latest completed report, or nil.
func (s *Service) Latest() *types.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// WatchProgress streams progress until the current scan is done or ctx
// ends. With no scan running it sends the last update and returns.
func (s *Service) WatchProgress(ctx context.Context, send func(types.ScanProgress) error) error {
	sub := s.scanner.Subscribe()
	if sub == nil {
		return status.Error(codes.Unavailable, "progress not available")
	}
	defer s.scanner.Progress().Unsubscribe(sub.ID)

	if !s.isScanning() {
		if p, ok := s.scanner.Progress().Last(); ok {
			return send(p)
		}
		return nil
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	first := true
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !s.isScanning() {
				return nil
			}
		case p, ok := <-sub.Events:
			if !ok {
				return nil
			}
			// The replayed update may be the previous scan's completion.
			if first && p.Phase == types.PhaseDone && s.isScanning() {
				first = false
				continue
			}
			first = false
			if err := send(p); err != nil {
				return err
			}
			if p.Phase == types.PhaseDone {
				return nil
			}
		}
	}
}

func (s *Service) isScanning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanning
}

// Close cancels running scans and waits for them.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

var _ dupesweepv1.DaemonServer = (*Service)(nil)
