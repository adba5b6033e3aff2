//go:build !linux && !darwin

package tuner

import (
	"context"
	"fmt"
	"runtime"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

type unsupportedSampler struct{}

// NewSystemSampler returns a sampler that always reports telemetry as
// unavailable, which keeps the manager on its static budget.
func NewSystemSampler() Sampler {
	return unsupportedSampler{}
}

func (unsupportedSampler) Sample(context.Context) (Telemetry, error) {
	return Telemetry{}, fmt.Errorf("%w on %s", types.ErrTelemetryUnavailable, runtime.GOOS)
}
