package core

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// WorkerPool bounds how many CPU-bound seals run at once across the cohort.
type WorkerPool struct {
	sem *semaphore.Weighted
}

// NewWorkerPool creates a pool with size slots, or GOMAXPROCS slots when size <= 0.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &WorkerPool{sem: semaphore.NewWeighted(int64(size))}
}

type result[T any] struct {
	value T
	err   error
}

// Future is the pending result of work dispatched to a WorkerPool.
type Future[T any] struct {
	ch chan result[T]
}

// Await blocks until the work finishes or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case r := <-f.ch:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Dispatch runs fn on a pool slot in its own goroutine.
func Dispatch[T any](ctx context.Context, pool *WorkerPool, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{ch: make(chan result[T], 1)}
	go func() {
		if err := pool.sem.Acquire(ctx, 1); err != nil {
			var zero T
			f.ch <- result[T]{value: zero, err: err}
			return
		}
		defer pool.sem.Release(1)
		v, err := fn(ctx)
		f.ch <- result[T]{value: v, err: err}
	}()
	return f
}
