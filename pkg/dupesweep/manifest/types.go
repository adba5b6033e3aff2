// Package manifest records scans and trash actions as JSON history entries.
package manifest

import (
	"time"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

// OperationType represents the type of operation.
type OperationType string

const (
	// OpScan represents a completed scan.
	OpScan OperationType = "scan"
	// OpTrash represents files moved to the trash.
	OpTrash OperationType = "trash"
)

// Entry represents a single manifest entry.
type Entry struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Operation OperationType     `json:"operation"`
	Roots     []string          `json:"roots,omitempty"`
	Sets      []SetRecord       `json:"sets,omitempty"`
	Files     []FileRecord      `json:"files,omitempty"`
	Failures  []types.ScanError `json:"failures,omitempty"`
	Summary   Summary           `json:"summary"`
}

// SetRecord summarises one duplicate set.
type SetRecord struct {
	ID      string   `json:"id"`
	Keep    string   `json:"keep"`
	Members []string `json:"members"`
	Bytes   uint64   `json:"bytes"`
}

// FileRecord represents a file acted upon.
type FileRecord struct {
	Path      string    `json:"path"`
	Size      uint64    `json:"size"`
	ModTime   time.Time `json:"mod_time"`
	SetID     string    `json:"set_id,omitempty"`
	TrashedAt time.Time `json:"trashed_at,omitempty"`
}

// Summary contains operation summary.
type Summary struct {
	Algorithm   types.Algorithm `json:"algorithm,omitempty"`
	Threshold   int             `json:"threshold,omitempty"`
	FilesSeen   int             `json:"files_seen,omitempty"`
	Hashed      int             `json:"hashed,omitempty"`
	Skipped     int             `json:"skipped,omitempty"`
	SetCount    int             `json:"set_count,omitempty"`
	TotalFiles  int             `json:"total_files"`
	TotalBytes  uint64          `json:"total_bytes"`
	ElapsedSecs float64         `json:"elapsed_secs,omitempty"`
}
