// Package scanner runs a complete near-duplicate scan: discovery, hashing
// under the adaptive resource budget, clustering and scoring. It is the
// engine behind the CLI, the watcher and the daemon.
package scanner

import (
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/cluster"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/decode"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/selector"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/tuner"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

// Options configures the scanner.
type Options struct {
	// Algorithm is the perceptual hash used for every file in the run.
	Algorithm types.Algorithm

	// Threshold is the maximum Hamming distance for two images to be linked.
	Threshold int

	// Index selects the clustering neighbour index.
	Index cluster.Index

	// Tuner configures the adaptive worker pool.
	Tuner tuner.Config

	// Scoring configures keep/delete recommendations.
	Scoring selector.Config

	// Exclude and Include are glob patterns applied during discovery.
	Exclude []string
	Include []string

	// Cache is an optional hash cache. It must use the same algorithm.
	// If nil, caching is disabled.
	Cache HashCache

	// Sampler overrides the platform telemetry sampler.
	Sampler tuner.Sampler

	// Decoder overrides the default image decoder.
	Decoder decode.Decoder
}

// DefaultOptions returns options with sensible defaults for most systems.
func DefaultOptions() Options {
	return Options{
		Algorithm: types.AlgorithmPHash,
		Threshold: cluster.DefaultThreshold,
		Index:     cluster.IndexBKTree,
		Tuner:     tuner.DefaultConfig(),
		Scoring:   selector.DefaultConfig(),
	}
}

// Validate checks every option up front so a scan never starts with a
// partially applied configuration.
func (o *Options) Validate() error {
	if o.Algorithm == "" {
		o.Algorithm = types.AlgorithmPHash
	}
	if !o.Algorithm.Valid() {
		return &types.ConfigurationError{Field: "hash.algorithm", Value: o.Algorithm, Reason: "unknown algorithm"}
	}
	if o.Threshold < 0 || o.Threshold > types.HashWidth {
		return &types.ConfigurationError{Field: "hash.threshold", Value: o.Threshold, Reason: "must be between 0 and 64"}
	}
	if o.Index == "" {
		o.Index = cluster.IndexBKTree
	}
	if !o.Index.Valid() {
		return &types.ConfigurationError{Field: "cluster.index", Value: o.Index, Reason: "unknown index"}
	}
	if err := o.Tuner.Validate(); err != nil {
		return err
	}
	return o.Scoring.Validate()
}
