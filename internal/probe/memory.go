package probe

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/sweeney/sensor-dashboard/internal/reading"
)

const gigabyte = 1024 * 1024 * 1024

// MemoryCounters returns total and free physical memory in bytes.
type MemoryCounters func(ctx context.Context) (total, free uint64, err error)

// HostMemory reads the host's counters through gopsutil.
func HostMemory(ctx context.Context) (total, free uint64, err error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	return vm.Total, vm.Free, nil
}

// Memory reports RAM usage computed as total minus free.
type Memory struct {
	// Counters defaults to HostMemory.
	Counters MemoryCounters
}

func (m *Memory) Name() string { return "memory" }

// Probe returns RAM Total, RAM Used and RAM Used %.
func (m *Memory) Probe(ctx context.Context) (*reading.Set, error) {
	counters := m.Counters
	if counters == nil {
		counters = HostMemory
	}
	total, free, err := counters(ctx)
	if err != nil {
		return nil, &ProbeError{Probe: m.Name(), Err: err}
	}
	return memoryReadings(total, free), nil
}

func memoryReadings(total, free uint64) *reading.Set {
	var used uint64
	if free < total {
		used = total - free
	}
	var pct float64
	if total > 0 {
		pct = float64(used) / float64(total) * 100
	}

	set := reading.NewSet()
	set.Put("RAM Total", reading.Text(formatGB(total)))
	set.Put("RAM Used", reading.Text(formatGB(used)))
	set.Put("RAM Used %", reading.Text(formatPercent(pct)))
	return set
}

func formatGB(bytes uint64) string {
	return fmt.Sprintf("%.2f GB", float64(bytes)/gigabyte)
}
