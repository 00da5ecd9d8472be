package probe

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/sensor-dashboard/internal/reading"
)

// Aggregator runs a fixed list of probes concurrently and merges their
// readings in list order.
type Aggregator struct {
	probes []Probe
}

// NewAggregator returns an Aggregator over probes.
func NewAggregator(probes ...Probe) *Aggregator {
	return &Aggregator{probes: probes}
}

// Collect starts every probe, waits for all of them and merges the results.
// If any probe fails, Collect returns the first error and no readings.
// Siblings of a failed probe are not cancelled; each is bounded by its own
// command timeout.
func (a *Aggregator) Collect(ctx context.Context) (*reading.Set, error) {
	results := make([]*reading.Set, len(a.probes))

	var g errgroup.Group
	for i, p := range a.probes {
		i, p := i, p
		g.Go(func() error {
			set, err := p.Probe(ctx)
			if err != nil {
				return err
			}
			results[i] = set
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := reading.NewSet()
	for _, set := range results {
		merged.Merge(set)
	}
	return merged, nil
}
