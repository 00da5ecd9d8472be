package probe

import (
	"context"
	"errors"
	"strings"

	"github.com/sweeney/sensor-dashboard/internal/reading"
	"github.com/sweeney/sensor-dashboard/internal/runner"
)

var errDiskOutput = errors.New("unexpected df output")

// Disk reports root filesystem usage from df, keeping df's own units.
type Disk struct {
	Runner  runner.Runner
	Command runner.Command
}

func (d *Disk) Name() string { return "disk" }

// Probe runs df and returns Disk Total, Disk Used and Disk Used %.
func (d *Disk) Probe(ctx context.Context) (*reading.Set, error) {
	out, err := d.Runner.Run(ctx, d.Command)
	if err != nil {
		return nil, &ProbeError{Probe: d.Name(), Err: err}
	}
	set, err := parseDF(out)
	if err != nil {
		return nil, &ProbeError{Probe: d.Name(), Err: err}
	}
	return set, nil
}

// parseDF reads the data row under df's header:
//
//	Filesystem      Size  Used Avail Use% Mounted on
//	/dev/nvme0n1p2  468G  201G  244G  46% /
//
// Without -P, df wraps a long device name onto its own line, so the fields
// of every line after the header are joined before indexing.
func parseDF(out string) (*reading.Set, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		return nil, errDiskOutput
	}
	var fields []string
	for _, line := range lines[1:] {
		fields = append(fields, strings.Fields(line)...)
	}
	if len(fields) < 5 {
		return nil, errDiskOutput
	}

	set := reading.NewSet()
	set.Put("Disk Total", reading.Text(fields[1]))
	set.Put("Disk Used", reading.Text(fields[2]))
	set.Put("Disk Used %", reading.Text(fields[4]))
	return set, nil
}
