// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package workpool bounds the number of concurrent blocking extractions.
package workpool

import (
	"context"
	"errors"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrDeadlineExceeded is returned when a submission cannot finish within its
// deadline, whether it was still queued or already running.
var ErrDeadlineExceeded = errors.New("workpool: deadline exceeded")

const maxDefaultWorkers = 16

// DefaultWorkers derives the worker budget from the CPU count.
func DefaultWorkers() int {
	n := 4 * runtime.NumCPU()
	if n > maxDefaultWorkers {
		n = maxDefaultWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Pool is a fixed-budget slot pool. Slots are held for the full lifetime of a
// task, including the grace period after its caller has been unblocked.
type Pool struct {
	sem     *semaphore.Weighted
	workers int
}

func New(workers int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	return &Pool{
		sem:     semaphore.NewWeighted(int64(workers)),
		workers: workers,
	}
}

// Workers reports the pool budget.
func (p *Pool) Workers() int {
	return p.workers
}

// Run executes fn on a pool slot, bounded by timeout. Queue wait counts
// against the same deadline. When the deadline passes the caller gets
// ErrDeadlineExceeded immediately; the running task sees its context
// cancelled and releases the slot when it returns.
func Run[T any](ctx context.Context, p *Pool, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := p.sem.Acquire(callCtx, 1); err != nil {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, ErrDeadlineExceeded
	}

	type outcome struct {
		val T
		err error
	}

	done := make(chan outcome, 1)
	go func() {
		defer p.sem.Release(1)
		v, err := fn(callCtx)
		done <- outcome{val: v, err: err}
	}()

	select {
	case out := <-done:
		return out.val, out.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, ErrDeadlineExceeded
	}
}
