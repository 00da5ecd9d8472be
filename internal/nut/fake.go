package nut

import (
	"context"
	"sync"
)

// FakePoller is a test double for Poller.
//
// Poll returns Variables, or when Sequence is set the next element of
// Sequence, repeating the last one once it runs out. Err fails every call.
// A cancelled context fails the call before anything else and is not counted.
// Seed the fields before sharing the fake between goroutines.
type FakePoller struct {
	Variables []Variable
	Sequence  [][]Variable
	Err       error
	CallCount int
	Closed    bool

	mu sync.Mutex
}

// Poll returns a copy of the seeded variables for this call.
func (f *FakePoller) Poll(ctx context.Context) ([]Variable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.CallCount++
	if f.Err != nil {
		return nil, f.Err
	}
	src := f.Variables
	if n := len(f.Sequence); n > 0 {
		src = f.Sequence[min(f.CallCount, n)-1]
	}
	return append([]Variable(nil), src...), nil
}

// Close records that the poller was closed.
func (f *FakePoller) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
