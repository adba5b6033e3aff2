package types

import (
	"errors"
	"fmt"
)

// ErrTelemetryUnavailable is returned by samplers that cannot read system
// load. The resource manager falls back to a static budget.
var ErrTelemetryUnavailable = errors.New("resource telemetry unavailable")

// ErrScanCancelled is returned when a scan is cancelled. No partial
// results accompany it.
var ErrScanCancelled = errors.New("scan cancelled")

// DecodeFailure reports a file that could not be decoded or hashed.
type DecodeFailure struct {
	Path   string
	Reason string
	Err    error
}

func (e *DecodeFailure) Error() string {
	if e.Path == "" {
		return "decode failure: " + e.Reason
	}
	return fmt.Sprintf("decode %s: %s", e.Path, e.Reason)
}

func (e *DecodeFailure) Unwrap() error {
	return e.Err
}

// NewDecodeFailure wraps err as a DecodeFailure for path.
func NewDecodeFailure(path string, err error) *DecodeFailure {
	var df *DecodeFailure
	if errors.As(err, &df) {
		if df.Path == "" {
			return &DecodeFailure{Path: path, Reason: df.Reason, Err: df.Err}
		}
		return df
	}
	return &DecodeFailure{Path: path, Reason: err.Error(), Err: err}
}

// ClusteringIndexError is an internal invariant violation while clustering,
// such as hashes of different widths in the same run. It aborts the scan.
type ClusteringIndexError struct {
	Path   string
	Reason string
}

func (e *ClusteringIndexError) Error() string {
	if e.Path == "" {
		return "clustering index: " + e.Reason
	}
	return fmt.Sprintf("clustering index: %s: %s", e.Path, e.Reason)
}

// ConfigurationError rejects an invalid option before a scan starts.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Reason)
}
