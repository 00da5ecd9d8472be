package runner

import (
	"context"
	"sync"
)

// FakeRunner is a test double for Runner.
//
// Outputs and Errors are keyed by the command line (Command.String()).
// A command with neither entry returns "" and no error. Calls records every
// command line in call order. FakeRunner is safe for concurrent use so it
// can back the concurrent metrics probes.
type FakeRunner struct {
	Outputs map[string]string
	Errors  map[string]error

	mu    sync.Mutex
	calls []string
}

// Run returns the pre-seeded output or error for cmd.
func (f *FakeRunner) Run(ctx context.Context, cmd Command) (string, error) {
	line := cmd.String()
	f.mu.Lock()
	f.calls = append(f.calls, line)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err, ok := f.Errors[line]; ok {
		return "", err
	}
	return f.Outputs[line], nil
}

// Calls returns the command lines run so far.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many times line was run.
func (f *FakeRunner) CallCount(line string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == line {
			n++
		}
	}
	return n
}
