package probe

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/sweeney/sensor-dashboard/internal/reading"
	"github.com/sweeney/sensor-dashboard/internal/runner"
)

// cpuLineRe matches procps top's summary line, e.g.
//
//	%Cpu(s):  3.1 us,  1.2 sy,  0.0 ni, 95.4 id,  0.2 wa,  0.0 hi,  0.1 si,  0.0 st
//
// Some locales print a decimal comma ("3,1 us").
var cpuLineRe = regexp.MustCompile(`Cpu\(s\):\s*(\d+(?:[.,]\d+)?)\s*%?\s*us,\s*(\d+(?:[.,]\d+)?)\s*%?\s*sy`)

// CPUUnavailable is the fallback value when top's output has no usable
// summary line.
const CPUUnavailable = "Unable to retrieve"

// CPU reports user, system and total CPU load from a top snapshot.
type CPU struct {
	Runner  runner.Runner
	Command runner.Command
}

func (c *CPU) Name() string { return "cpu" }

// Probe runs top once. A failed command is an error; output without a
// Cpu(s) line degrades to a single "CPU Load" reading instead.
func (c *CPU) Probe(ctx context.Context) (*reading.Set, error) {
	out, err := c.Runner.Run(ctx, c.Command)
	if err != nil {
		return nil, &ProbeError{Probe: c.Name(), Err: err}
	}
	return parseTop(out), nil
}

func parseTop(out string) *reading.Set {
	set := reading.NewSet()
	for _, line := range strings.Split(out, "\n") {
		m := cpuLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		user, userOK := parseLocaleFloat(m[1])
		system, systemOK := parseLocaleFloat(m[2])
		if !userOK || !systemOK {
			continue
		}
		set.Put("CPU User Load", reading.Text(formatPercent(user)))
		set.Put("CPU System Load", reading.Text(formatPercent(system)))
		set.Put("CPU Total Load", reading.Text(formatPercent(user+system)))
		return set
	}
	set.Put("CPU Load", reading.Text(CPUUnavailable))
	return set
}

func parseLocaleFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
