// Package types provides the core data types shared by the dupesweep engine:
// perceptual hashes, image records, duplicate sets, selection scores, the
// resource budget and the scan report handed to presentation layers.
package types

import (
	"fmt"
	"math/bits"
	"path/filepath"
	"time"
)

// Algorithm names a perceptual hash algorithm.
type Algorithm string

// Supported hash algorithms. A run uses exactly one.
const (
	AlgorithmPHash Algorithm = "phash"
	AlgorithmDCT   Algorithm = "dct"
	AlgorithmDHash Algorithm = "dhash"
	AlgorithmAHash Algorithm = "ahash"
)

// Algorithms lists every supported algorithm in display order.
var Algorithms = []Algorithm{AlgorithmPHash, AlgorithmDCT, AlgorithmDHash, AlgorithmAHash}

// Valid reports whether a is a supported algorithm.
func (a Algorithm) Valid() bool {
	for _, known := range Algorithms {
		if a == known {
			return true
		}
	}
	return false
}

// HashWidth is the bit width produced by every supported algorithm.
const HashWidth = 64

// Hash is a fixed-width perceptual hash. Only the low Width bits of Bits
// are significant.
type Hash struct {
	Bits      uint64    `json:"bits"`
	Width     uint8     `json:"width"`
	Algorithm Algorithm `json:"algorithm"`
}

// IsZero reports whether the hash was never computed.
func (h Hash) IsZero() bool {
	return h.Width == 0
}

// Compatible reports whether two hashes can be compared.
func (h Hash) Compatible(o Hash) bool {
	return h.Width == o.Width && h.Algorithm == o.Algorithm && h.Width > 0
}

// Distance returns the Hamming distance between two compatible hashes.
// Callers must check Compatible first.
func (h Hash) Distance(o Hash) int {
	return bits.OnesCount64((h.Bits ^ o.Bits) & h.mask())
}

// Bit reports whether bit i is set.
func (h Hash) Bit(i int) bool {
	return h.Bits&(1<<uint(i)) != 0
}

func (h Hash) mask() uint64 {
	if h.Width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << h.Width) - 1
}

// String renders the hash as algorithm:hex.
func (h Hash) String() string {
	return fmt.Sprintf("%s:%016x", h.Algorithm, h.Bits)
}

// ImageRecord is the hashing result for a single file. It is created once by
// the pipeline and never mutated after being emitted.
type ImageRecord struct {
	// Path is the absolute path to the image.
	Path string `json:"path"`

	// Hash is the perceptual hash. Zero when DecodeError is set.
	Hash Hash `json:"hash"`

	// Size is the file size in bytes.
	Size uint64 `json:"size"`

	// Width and Height are the pixel dimensions, zero when unknown.
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`

	// ModTime is the last modification time of the file.
	ModTime time.Time `json:"mod_time"`

	// CacheHit is true when the hash came from the hash cache.
	CacheHit bool `json:"cache_hit,omitempty"`

	// DecodeError is set when the file could not be decoded or hashed.
	DecodeError error `json:"-"`
}

// Skipped reports whether the record failed and cannot be clustered.
func (r ImageRecord) Skipped() bool {
	return r.DecodeError != nil
}

// Pixels returns the pixel count.
func (r ImageRecord) Pixels() uint64 {
	return uint64(r.Width) * uint64(r.Height)
}

// Name returns the base name of the file.
func (r ImageRecord) Name() string {
	return filepath.Base(r.Path)
}

// DuplicateSet is a connected component of near-duplicate images. Members
// are ordered by ModTime ascending.
type DuplicateSet struct {
	ID                 string        `json:"id"`
	Members            []ImageRecord `json:"members"`
	RepresentativeHash Hash          `json:"representative_hash"`
}

// TotalSize returns the combined byte size of every member.
func (s DuplicateSet) TotalSize() uint64 {
	var total uint64
	for _, m := range s.Members {
		total += m.Size
	}
	return total
}

// Paths returns member paths in member order.
func (s DuplicateSet) Paths() []string {
	paths := make([]string, len(s.Members))
	for i, m := range s.Members {
		paths[i] = m.Path
	}
	return paths
}

// Action is the recommended action for a set member.
type Action string

// Recommended actions.
const (
	ActionKeep   Action = "keep"
	ActionDelete Action = "delete"
)

// Signals breaks a score into its unweighted inputs.
type Signals struct {
	Quality  float64 `json:"quality"`
	Size     float64 `json:"size"`
	Filename float64 `json:"filename"`
}

// SelectionScore is the advisory ranking of one set member.
type SelectionScore struct {
	Record  ImageRecord `json:"record"`
	Score   float64     `json:"score"`
	Action  Action      `json:"action"`
	Signals Signals     `json:"signals"`
}

// ResourceBudget is an immutable snapshot of the concurrency budget.
type ResourceBudget struct {
	// MaxWorkers is the hashing worker ceiling. Always at least 1.
	MaxWorkers int `json:"max_workers"`

	// BatchSize sizes record buffers and progress batching.
	BatchSize int `json:"batch_size"`

	// MaxInFlightBytes bounds decoded-but-unhashed pixel buffers.
	MaxInFlightBytes uint64 `json:"max_in_flight_bytes"`

	// SamplingInterval is how often the budget is recomputed.
	SamplingInterval time.Duration `json:"sampling_interval"`

	// Static is true when telemetry is unavailable and the fallback is in use.
	Static bool `json:"static"`
}

// ScanError pairs a path with an error encountered during traversal.
type ScanError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// SkippedFile is a file excluded from clustering.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}
