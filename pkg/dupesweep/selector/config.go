package selector

import (
	"math"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

// Weights scale the three scoring signals.
type Weights struct {
	Quality  float64 `mapstructure:"quality" json:"quality" yaml:"quality"`
	Size     float64 `mapstructure:"size" json:"size" yaml:"size"`
	Filename float64 `mapstructure:"filename" json:"filename" yaml:"filename"`
}

// Pattern is a user preference: filenames containing Pattern are favoured
// by Weight points (0-100).
type Pattern struct {
	Pattern string  `mapstructure:"pattern" json:"pattern" yaml:"pattern"`
	Weight  float64 `mapstructure:"weight" json:"weight" yaml:"weight"`
}

// Config controls scoring.
type Config struct {
	Weights  Weights
	Patterns []Pattern

	// SizeCap is the multiple of the set median above which larger files
	// stop scoring higher.
	SizeCap float64
}

// Defaults.
const (
	DefaultSizeCap   = 2.0
	maxPatternWeight = 100
)

// DefaultWeights favour resolution, then filename, then size.
var DefaultWeights = Weights{Quality: 0.45, Size: 0.25, Filename: 0.30}

// DefaultPatterns are the preferences shipped with a fresh config.
var DefaultPatterns = []Pattern{
	{Pattern: "_EN", Weight: 40},
	{Pattern: "EN", Weight: 35},
	{Pattern: "HD", Weight: 25},
	{Pattern: "4K", Weight: 28},
}

// DefaultConfig returns the default scoring configuration.
func DefaultConfig() Config {
	return Config{
		Weights:  DefaultWeights,
		Patterns: append([]Pattern(nil), DefaultPatterns...),
		SizeCap:  DefaultSizeCap,
	}
}

// Validate rejects weights that cannot produce a ranking.
func (c Config) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"scoring.weights.quality", c.Weights.Quality},
		{"scoring.weights.size", c.Weights.Size},
		{"scoring.weights.filename", c.Weights.Filename},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v < 0 {
			return &types.ConfigurationError{Field: f.name, Value: f.v, Reason: "must be a non-negative number"}
		}
	}
	if c.Weights.Quality+c.Weights.Size+c.Weights.Filename == 0 {
		return &types.ConfigurationError{Field: "scoring.weights", Value: c.Weights, Reason: "at least one weight must be positive"}
	}
	if c.SizeCap != 0 && (c.SizeCap < 1 || math.IsNaN(c.SizeCap) || math.IsInf(c.SizeCap, 0)) {
		return &types.ConfigurationError{Field: "scoring.size_cap", Value: c.SizeCap, Reason: "must be at least 1"}
	}
	for _, p := range c.Patterns {
		if p.Pattern == "" {
			return &types.ConfigurationError{Field: "scoring.patterns", Value: p, Reason: "pattern must not be empty"}
		}
		if p.Weight < 0 || p.Weight > maxPatternWeight {
			return &types.ConfigurationError{Field: "scoring.patterns", Value: p, Reason: "weight must be between 0 and 100"}
		}
	}
	return nil
}
