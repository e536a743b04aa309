package cluster

import (
	"context"
	"math"
	"sync"

	"golang.org/x/sync/semaphore"
)

// pool bounds the number of concurrently running replica calls
type pool struct {
	sem *semaphore.Weighted

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// newPool creates a pool running at most size tasks at once (0 = unbounded)
func newPool(size int) *pool {
	if size <= 0 {
		size = math.MaxInt32
	}
	return &pool{sem: semaphore.NewWeighted(int64(size))}
}

// Go runs fn in a new goroutine once a slot is free. It blocks while the pool
// is exhausted. If ctx ends first or the pool is closed, fn is not run.
func (p *pool) Go(ctx context.Context, fn func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		p.sem.Release(1)
		return ErrClusterInactive
	}
	p.wg.Add(1)
	p.mu.RUnlock()

	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		fn()
	}()
	return nil
}

// Close rejects new tasks and waits until all started tasks returned.
func (p *pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}
