// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTryAcquireWindow(t *testing.T) {
	limiter := New(5 * time.Second)

	current := time.Unix(1000, 0)
	limiter.now = func() time.Time { return current }

	assert.True(t, limiter.TryAcquire(1))

	// Inside the window
	current = current.Add(2 * time.Second)
	assert.False(t, limiter.TryAcquire(1))

	// Denial must not extend the window: 5s after the successful acquire
	current = current.Add(3 * time.Second)
	assert.True(t, limiter.TryAcquire(1))
}

func TestTryAcquireIsPerUser(t *testing.T) {
	limiter := New(5 * time.Second)

	current := time.Unix(1000, 0)
	limiter.now = func() time.Time { return current }

	assert.True(t, limiter.TryAcquire(1))
	assert.True(t, limiter.TryAcquire(2))
	assert.False(t, limiter.TryAcquire(1))
	assert.False(t, limiter.TryAcquire(2))
}

func TestPurgeStale(t *testing.T) {
	limiter := New(5 * time.Second)

	current := time.Unix(1000, 0)
	limiter.now = func() time.Time { return current }

	limiter.TryAcquire(1)
	current = current.Add(30 * time.Second)
	limiter.TryAcquire(2)

	// User 1 idle for 30s, under the 50s staleness horizon
	assert.Equal(t, 0, limiter.PurgeStale())

	current = current.Add(25 * time.Second)

	// User 1 now idle for 55s, user 2 for 25s
	assert.Equal(t, 1, limiter.PurgeStale())
	assert.Equal(t, 1, limiter.Len())

	// A purged user starts fresh
	assert.True(t, limiter.TryAcquire(1))
}
