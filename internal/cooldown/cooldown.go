// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package cooldown enforces a minimum interval between a user's consecutive
// downloads without ever blocking the caller.
package cooldown

import (
	"sync"
	"time"
)

// stalenessFactor decides when an idle entry can be dropped by the sweeper.
const stalenessFactor = 10

// Limiter is a per-user non-blocking gate. A denied acquisition does not
// touch the stored timestamp, so hammering the gate never extends the wait.
type Limiter struct {
	mu       sync.Mutex
	window   time.Duration
	lastSeen map[int64]time.Time

	now func() time.Time
}

func New(window time.Duration) *Limiter {
	if window <= 0 {
		window = 5 * time.Second
	}
	return &Limiter{
		window:   window,
		lastSeen: make(map[int64]time.Time),
		now:      time.Now,
	}
}

// TryAcquire reports whether the user may proceed. On success the user's
// timestamp is advanced; on denial nothing changes.
func (l *Limiter) TryAcquire(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.lastSeen[userID]; ok && now.Sub(last) < l.window {
		return false
	}

	l.lastSeen[userID] = now
	return true
}

// PurgeStale drops entries idle for more than ten windows and reports how
// many were removed.
func (l *Limiter) PurgeStale() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for id, last := range l.lastSeen {
		if now.Sub(last) > stalenessFactor*l.window {
			delete(l.lastSeen, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked users.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lastSeen)
}
