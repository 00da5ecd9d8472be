package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/sensor-dashboard/internal/reading"
)

// SectionName identifies one group of readings.
type SectionName string

const (
	SectionSensors       SectionName = "sensors"
	SectionSystemMetrics SectionName = "system-metrics"
	SectionUPS           SectionName = "ups"
)

// Title is the human heading for the section.
func (n SectionName) Title() string {
	switch n {
	case SectionSensors:
		return "Hardware Sensors"
	case SectionSystemMetrics:
		return "System Metrics"
	case SectionUPS:
		return "UPS"
	}
	return string(n)
}

// SectionResult holds one section of a snapshot. Exactly one of Readings
// and Err is set.
type SectionResult struct {
	Name     SectionName
	Readings *reading.Set
	Err      error
}

// Snapshot is every section collected at roughly the same moment.
type Snapshot struct {
	Time     time.Time
	Sections []SectionResult
}

// Section returns the named section, if present.
func (s Snapshot) Section(name SectionName) (SectionResult, bool) {
	for _, sec := range s.Sections {
		if sec.Name == name {
			return sec, true
		}
	}
	return SectionResult{}, false
}

type sectionJSON struct {
	Name     SectionName  `json:"name"`
	Readings *reading.Set `json:"readings,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// MarshalJSON encodes the snapshot with failed sections reduced to their
// public message.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	sections := make([]sectionJSON, len(s.Sections))
	for i, sec := range s.Sections {
		sections[i] = sectionJSON{Name: sec.Name, Readings: sec.Readings}
		if sec.Err != nil {
			sections[i].Readings = nil
			sections[i].Error = PublicMessage(sec.Name, sec.Err)
		}
	}
	return json.Marshal(struct {
		Time     string        `json:"time"`
		Sections []sectionJSON `json:"sections"`
	}{
		Time:     s.Time.UTC().Format(time.RFC3339),
		Sections: sections,
	})
}

type sectionCollector struct {
	name SectionName
	fn   func(context.Context) (*reading.Set, error)
}

// Snapshot collects every configured section concurrently. A failing section
// is recorded in its slot and does not affect the others.
func (s *Service) Snapshot(ctx context.Context) Snapshot {
	collectors := []sectionCollector{
		{SectionSensors, s.Sensors},
		{SectionSystemMetrics, s.SystemMetrics},
	}
	if s.UPSEnabled() {
		collectors = append(collectors, sectionCollector{SectionUPS, s.UPS})
	}

	snap := Snapshot{
		Time:     time.Now().UTC(),
		Sections: make([]SectionResult, len(collectors)),
	}
	var g errgroup.Group
	for i, c := range collectors {
		i, c := i, c
		g.Go(func() error {
			set, err := c.fn(ctx)
			snap.Sections[i] = SectionResult{Name: c.name, Readings: set, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return snap
}
