// Package config loads dupesweep configuration from a YAML file,
// DUPESWEEP_ environment variables and command-line flags, and converts it
// into validated engine options.
package config

import "time"

// Default configuration values for dupesweep.
const (
	// DefaultAlgorithm is the perceptual hash used when none is configured.
	DefaultAlgorithm = "phash"

	// DefaultThreshold is the maximum Hamming distance between duplicates.
	DefaultThreshold = 6

	// DefaultIndex is the clustering neighbour index.
	DefaultIndex = "bktree"

	// DefaultStrategy is the resource strategy.
	DefaultStrategy = "balanced"

	// DefaultMaxInFlight caps decoded pixel memory.
	DefaultMaxInFlight = "512MiB"

	// DefaultRetentionDays is how long history entries are kept.
	DefaultRetentionDays = 30

	// DefaultLogMaxSize is the log rotation threshold.
	DefaultLogMaxSize = "10MiB"

	// DefaultLogMaxBackups is how many rotated logs are kept.
	DefaultLogMaxBackups = 3

	// DefaultDebounce is the quiet period before a watch rescan.
	DefaultDebounce = 2 * time.Second
)

// DefaultExclusions are directory names skipped during discovery.
var DefaultExclusions = []string{
	".git",
	"node_modules",
	".Trash",
	"@eaDir",
}
