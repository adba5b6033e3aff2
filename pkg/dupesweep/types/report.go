package types

import "time"

// Report is everything a scan surfaces to presentation layers.
type Report struct {
	Roots     []string  `json:"roots"`
	Algorithm Algorithm `json:"algorithm"`
	Threshold int       `json:"threshold"`
	StartedAt time.Time `json:"started_at"`

	// FilesSeen is the number of candidate image files discovered.
	FilesSeen int `json:"files_seen"`

	// Hashed is the number of files hashed successfully.
	Hashed int `json:"hashed"`

	// Skipped lists files that could not be hashed, with reasons.
	Skipped []SkippedFile `json:"skipped"`

	// Clustered is the number of files that ended up in a duplicate set.
	Clustered int `json:"clustered"`

	CacheHits int `json:"cache_hits"`

	// Sets are ordered by the modification time of their oldest member.
	Sets []DuplicateSet `json:"sets"`

	// Scores maps set ID to per-member scores in member order.
	Scores map[string][]SelectionScore `json:"scores"`

	// WalkErrors are traversal errors; those paths were omitted.
	WalkErrors []ScanError `json:"walk_errors,omitempty"`

	Budget  ResourceBudget `json:"budget"`
	Elapsed time.Duration  `json:"elapsed"`
}

// Set returns the set with the given ID.
func (r *Report) Set(id string) (DuplicateSet, bool) {
	for _, s := range r.Sets {
		if s.ID == id {
			return s, true
		}
	}
	return DuplicateSet{}, false
}

// ReclaimableBytes sums the sizes of members recommended for deletion.
func (r *Report) ReclaimableBytes() uint64 {
	var total uint64
	for _, scores := range r.Scores {
		for _, s := range scores {
			if s.Action == ActionDelete {
				total += s.Record.Size
			}
		}
	}
	return total
}
