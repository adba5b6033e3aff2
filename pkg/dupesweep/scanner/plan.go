package scanner

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/trash"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

// Plan turns a report into a delete queue. Skipping a set removes only that
// set's members from the queue.
type Plan struct {
	report  *types.Report
	skipped map[string]bool
}

// NewPlan creates a plan with no sets skipped.
func NewPlan(report *types.Report) *Plan {
	return &Plan{report: report, skipped: make(map[string]bool)}
}

// Skip excludes a set from the delete queue.
func (p *Plan) Skip(setID string) error {
	if _, ok := p.report.Set(setID); !ok {
		return fmt.Errorf("unknown duplicate set %q", setID)
	}
	p.skipped[setID] = true
	return nil
}

// Unskip returns a skipped set to the delete queue.
func (p *Plan) Unskip(setID string) {
	delete(p.skipped, setID)
}

// Toggle flips the skip state of a set and reports the new state.
func (p *Plan) Toggle(setID string) (bool, error) {
	if p.skipped[setID] {
		p.Unskip(setID)
		return false, nil
	}
	if err := p.Skip(setID); err != nil {
		return false, err
	}
	return true, nil
}

// Resolve finds the set whose ID is id or starts with id. A prefix that
// matches more than one set is an error.
func (p *Plan) Resolve(id string) (string, error) {
	if _, ok := p.report.Set(id); ok {
		return id, nil
	}
	var match string
	for _, set := range p.report.Sets {
		if id == "" || !strings.HasPrefix(set.ID, id) {
			continue
		}
		if match != "" {
			return "", fmt.Errorf("set prefix %q is ambiguous", id)
		}
		match = set.ID
	}
	if match == "" {
		return "", fmt.Errorf("unknown duplicate set %q", id)
	}
	return match, nil
}

// Skipped returns the IDs of skipped sets.
func (p *Plan) Skipped() map[string]bool {
	out := make(map[string]bool, len(p.skipped))
	for id := range p.skipped {
		out[id] = true
	}
	return out
}

// Report returns the report the plan was built from.
func (p *Plan) Report() *types.Report {
	return p.report
}

// IsSkipped reports whether a set was skipped.
func (p *Plan) IsSkipped(setID string) bool {
	return p.skipped[setID]
}

// DeleteQueue returns the members recommended for deletion, in set order,
// excluding skipped sets.
func (p *Plan) DeleteQueue() []types.SelectionScore {
	var queue []types.SelectionScore
	for _, set := range p.report.Sets {
		if p.skipped[set.ID] {
			continue
		}
		for _, s := range p.report.Scores[set.ID] {
			if s.Action == types.ActionDelete {
				queue = append(queue, s)
			}
		}
	}
	return queue
}

// QueuedBytes returns the total size of the delete queue.
func (p *Plan) QueuedBytes() uint64 {
	var total uint64
	for _, s := range p.DeleteQueue() {
		total += s.Record.Size
	}
	return total
}

// ApplyResult reports what Apply did.
type ApplyResult struct {
	Trashed []string
	Bytes   uint64
	Failed  []types.ScanError
}

// Apply moves every queued file to the trash. Files that changed since the
// scan are left alone and reported as failures. Apply stops early only when
// ctx is cancelled.
func (p *Plan) Apply(ctx context.Context, t trash.Trasher) (ApplyResult, error) {
	var res ApplyResult
	for _, s := range p.DeleteQueue() {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		path := s.Record.Path
		if err := unchanged(s.Record); err != nil {
			res.Failed = append(res.Failed, types.ScanError{Path: path, Error: err.Error()})
			continue
		}
		if err := t.Trash(ctx, path); err != nil {
			logger.Warn("trash failed", "path", path, "error", err)
			res.Failed = append(res.Failed, types.ScanError{Path: path, Error: err.Error()})
			continue
		}
		logger.Info("trashed", "path", path, "size", s.Record.Size)
		res.Trashed = append(res.Trashed, path)
		res.Bytes += s.Record.Size
	}
	return res, nil
}

// unchanged verifies the file still matches the scanned record.
func unchanged(r types.ImageRecord) error {
	info, err := os.Stat(r.Path)
	if err != nil {
		return err
	}
	if uint64(info.Size()) != r.Size || !info.ModTime().Equal(r.ModTime) {
		return fmt.Errorf("%s changed since the scan", r.Path)
	}
	return nil
}
