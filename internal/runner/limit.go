package runner

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

type limited struct {
	next Runner
	sem  *semaphore.Weighted
}

// Limit returns a Runner that allows at most n commands of next to run at
// once. Callers beyond the cap wait until a slot frees or ctx ends.
// n <= 0 returns next unchanged.
func Limit(next Runner, n int64) Runner {
	if n <= 0 {
		return next
	}
	return &limited{next: next, sem: semaphore.NewWeighted(n)}
}

func (l *limited) Run(ctx context.Context, cmd Command) (string, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("waiting to run %s: %w", cmd, err)
	}
	defer l.sem.Release(1)
	return l.next.Run(ctx, cmd)
}
