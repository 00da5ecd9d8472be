// Package probe gathers host resource metrics. Each Probe produces a small
// reading.Set; the Aggregator runs them concurrently and merges the results.
package probe

import (
	"context"
	"fmt"

	"github.com/sweeney/sensor-dashboard/internal/reading"
)

// Probe is one independent metric-gathering operation.
type Probe interface {
	Name() string
	Probe(ctx context.Context) (*reading.Set, error)
}

// ProbeError reports a probe that could not produce its readings.
type ProbeError struct {
	Probe string
	Err   error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("%s probe: %v", e.Probe, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// formatPercent renders p with two decimals and a percent sign.
func formatPercent(p float64) string {
	return fmt.Sprintf("%.2f%%", p)
}
