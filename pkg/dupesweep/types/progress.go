package types

import "time"

// Phase identifies the stage a scan is in.
type Phase string

// Scan phases in order.
const (
	PhaseDiscovering Phase = "discovering"
	PhaseHashing     Phase = "hashing"
	PhaseClustering  Phase = "clustering"
	PhaseScoring     Phase = "scoring"
	PhaseDone        Phase = "done"
)

// ScanProgress is a point-in-time progress update.
type ScanProgress struct {
	Phase Phase `json:"phase"`

	// FilesTotal is the number of candidate files discovered.
	FilesTotal int64 `json:"files_total"`

	// FilesDone counts files that finished hashing, successfully or not.
	FilesDone int64 `json:"files_done"`

	Hashed    int64 `json:"hashed"`
	Skipped   int64 `json:"skipped"`
	CacheHits int64 `json:"cache_hits"`

	// Workers is the worker ceiling in effect when the update was taken.
	Workers int `json:"workers"`

	// InFlightBytes is the decoded pixel memory currently reserved.
	InFlightBytes uint64 `json:"in_flight_bytes"`

	CurrentPath string        `json:"current_path"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Fraction returns completion in [0,1] for the hashing phase.
func (p ScanProgress) Fraction() float64 {
	if p.FilesTotal <= 0 {
		return 0
	}
	f := float64(p.FilesDone) / float64(p.FilesTotal)
	return min(f, 1)
}
