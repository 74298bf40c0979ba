package fleet

import (
	"context"
	"errors"
	"fmt"

	"github.com/panjf2000/ants/v2"
)

// DefaultPoolSize is the worker count used when none is configured.
const DefaultPoolSize = 8

// Runner runs blocking work off the caller's goroutine.
type Runner interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Executor is a bounded worker pool shared by every session of the process.
type Executor struct {
	pool *ants.Pool
}

// NewExecutor creates a pool of size workers. Submissions block while all
// workers are busy.
func NewExecutor(size int) (*Executor, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	return &Executor{pool: pool}, nil
}

// Do runs fn on a pool worker and waits for it or for ctx. When ctx ends
// first, fn keeps running with the same ctx and its result is dropped.
func (e *Executor) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	task := func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("fleet: worker panic: %v", r)
			}
		}()
		done <- fn(ctx)
	}

	if err := e.pool.Submit(task); err != nil {
		if errors.Is(err, ants.ErrPoolClosed) {
			return ErrPoolClosed
		}
		return fmt.Errorf("submitting task: %w", err)
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports the number of busy workers.
func (e *Executor) Running() int {
	return e.pool.Running()
}

// Cap reports the pool size.
func (e *Executor) Cap() int {
	return e.pool.Cap()
}

// Release stops the pool. Pending Do calls fail with ErrPoolClosed.
func (e *Executor) Release() {
	e.pool.Release()
}
