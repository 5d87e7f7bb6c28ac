// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package workpool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReturnsValue(t *testing.T) {
	pool := New(2)

	got, err := Run(context.Background(), pool, time.Second, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestRunPropagatesTaskError(t *testing.T) {
	pool := New(1)
	boom := errors.New("boom")

	_, err := Run(context.Background(), pool, time.Second, func(ctx context.Context) (int, error) {
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestRunUnblocksCallerAtDeadline(t *testing.T) {
	pool := New(1)
	taskDone := make(chan struct{})

	start := time.Now()
	_, err := Run(context.Background(), pool, 50*time.Millisecond, func(ctx context.Context) (int, error) {
		defer close(taskDone)
		<-ctx.Done()
		return 0, ctx.Err()
	})
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrDeadlineExceeded)
	assert.Less(t, elapsed, 500*time.Millisecond, "caller must not wait for the task")

	// The abandoned task still finishes and releases its slot
	select {
	case <-taskDone:
	case <-time.After(time.Second):
		t.Fatal("abandoned task never observed cancellation")
	}
}

func TestRunQueueWaitCountsAgainstDeadline(t *testing.T) {
	pool := New(1)
	release := make(chan struct{})

	// Occupy the only slot
	go Run(context.Background(), pool, 5*time.Second, func(ctx context.Context) (int, error) {
		<-release
		return 0, nil
	})
	defer close(release)

	// Give the occupying task time to acquire the slot
	time.Sleep(20 * time.Millisecond)

	_, err := Run(context.Background(), pool, 50*time.Millisecond, func(ctx context.Context) (int, error) {
		return 1, nil
	})
	require.ErrorIs(t, err, ErrDeadlineExceeded)
}

func TestRunHonoursCallerCancellation(t *testing.T) {
	pool := New(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, pool, time.Second, func(ctx context.Context) (int, error) {
		return 1, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDefaultWorkersBounded(t *testing.T) {
	n := DefaultWorkers()
	assert.GreaterOrEqual(t, n, 1)
	assert.LessOrEqual(t, n, maxDefaultWorkers)

	assert.Equal(t, n, New(0).Workers())
	assert.Equal(t, 3, New(3).Workers())
}
