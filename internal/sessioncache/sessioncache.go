// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package sessioncache holds each user's most recent search results so page
// navigation and selection never repeat the upstream search.
package sessioncache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Shaxzodbek16/TinglaBot/internal/media"
)

// ErrNotFound covers both a missing session and an expired one; callers
// cannot tell the difference and must re-run the search either way.
var ErrNotFound = errors.New("sessioncache: session not found")

// Page is one pagination window over a session's hits.
type Page struct {
	Hits      []media.SearchHit
	PageIndex int
	Total     int
	HasMore   bool
}

type session struct {
	hits      []media.SearchHit
	createdAt time.Time
}

// Cache is a bounded per-user result store. One session per user; storing a
// new result set replaces the old one wholesale.
type Cache struct {
	mu          sync.Mutex
	sessions    map[int64]*session
	maxSessions int
	pageSize    int
	ttl         time.Duration

	now func() time.Time
}

func New(maxSessions, pageSize int, ttl time.Duration) *Cache {
	if maxSessions <= 0 {
		maxSessions = 50
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{
		sessions:    make(map[int64]*session),
		maxSessions: maxSessions,
		pageSize:    pageSize,
		ttl:         ttl,
		now:         time.Now,
	}
}

// Put stores hits as the user's session, replacing any previous one. When the
// cache is full and the user is new, the globally-oldest session is evicted
// immediately.
func (c *Cache) Put(userID int64, hits []media.SearchHit) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.sessions[userID]; !exists && len(c.sessions) >= c.maxSessions {
		c.evictOldestLocked()
	}

	stored := make([]media.SearchHit, len(hits))
	copy(stored, hits)

	c.sessions[userID] = &session{
		hits:      stored,
		createdAt: c.now(),
	}
}

func (c *Cache) evictOldestLocked() {
	var (
		oldestID   int64
		oldestTime time.Time
		found      bool
	)
	for id, s := range c.sessions {
		if !found || s.createdAt.Before(oldestTime) {
			oldestID = id
			oldestTime = s.createdAt
			found = true
		}
	}
	if found {
		delete(c.sessions, oldestID)
		log.Debug().Int64("userID", oldestID).Msg("Evicted oldest search session")
	}
}

// GetPage returns the requested page of the user's session. Pages past the
// end are empty but not an error.
func (c *Cache) GetPage(userID int64, page int) (*Page, error) {
	if page < 0 {
		return nil, fmt.Errorf("page index cannot be negative")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.liveSessionLocked(userID)
	if err != nil {
		return nil, err
	}

	start := page * c.pageSize
	end := start + c.pageSize
	if start > len(s.hits) {
		start = len(s.hits)
	}
	if end > len(s.hits) {
		end = len(s.hits)
	}

	hits := make([]media.SearchHit, end-start)
	copy(hits, s.hits[start:end])

	return &Page{
		Hits:      hits,
		PageIndex: page,
		Total:     len(s.hits),
		HasMore:   end < len(s.hits),
	}, nil
}

// Hit returns the hit at the absolute index within the user's session.
func (c *Cache) Hit(userID int64, index int) (media.SearchHit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.liveSessionLocked(userID)
	if err != nil {
		return media.SearchHit{}, err
	}

	if index < 0 || index >= len(s.hits) {
		return media.SearchHit{}, fmt.Errorf("hit index %d out of range [0,%d)", index, len(s.hits))
	}

	return s.hits[index], nil
}

// IsValid reports whether the user has a live session.
func (c *Cache) IsValid(userID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.liveSessionLocked(userID)
	return err == nil
}

// liveSessionLocked returns the session if present and unexpired; an expired
// session is dropped on the spot.
func (c *Cache) liveSessionLocked(userID int64) (*session, error) {
	s, ok := c.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	if c.now().Sub(s.createdAt) > c.ttl {
		delete(c.sessions, userID)
		return nil, ErrNotFound
	}
	return s, nil
}

// PurgeExpired drops every expired session and reports how many were removed.
func (c *Cache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for id, s := range c.sessions {
		if now.Sub(s.createdAt) > c.ttl {
			delete(c.sessions, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored sessions, live or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}
