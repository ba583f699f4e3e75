package scanner

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Budget caps the number of probes in flight across a whole run. One Budget
// is shared by every batch the scheduler processes.
type Budget struct {
	sem      *semaphore.Weighted
	size     int64
	inflight atomic.Int64
	peak     atomic.Int64
}

func NewBudget(size int) (*Budget, error) {
	if size < 1 {
		return nil, fmt.Errorf("concurrency budget must be at least 1, got %d", size)
	}
	return &Budget{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}, nil
}

// Do runs fn while holding one unit of the budget. The unit is released on
// every exit path of fn, including a panic.
func (b *Budget) Do(ctx context.Context, fn func(context.Context)) error {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to acquire probe slot: %w", err)
	}

	n := b.inflight.Add(1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}

	defer func() {
		b.inflight.Add(-1)
		b.sem.Release(1)
	}()

	fn(ctx)
	return nil
}

func (b *Budget) Size() int {
	return int(b.size)
}

// InFlight reports units currently held.
func (b *Budget) InFlight() int64 {
	return b.inflight.Load()
}

// Peak reports the highest InFlight value observed since creation.
func (b *Budget) Peak() int64 {
	return b.peak.Load()
}
