// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package sweeper reclaims disk and memory left behind by finished requests.
package sweeper

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// mediaExtensions limits deletion to artifacts this process plausibly wrote.
// Anything else in the working directory is left alone.
var mediaExtensions = map[string]struct{}{
	".mp3":  {},
	".m4a":  {},
	".mp4":  {},
	".webm": {},
	".mkv":  {},
	".wav":  {},
	".ogg":  {},
	".opus": {},
	".aac":  {},
	".flac": {},
	".part": {},
}

// SessionPurger drops expired search sessions.
type SessionPurger interface {
	PurgeExpired() int
}

// CooldownPurger drops idle cooldown entries.
type CooldownPurger interface {
	PurgeStale() int
}

// Sweeper periodically deletes aged media artifacts from the working
// directory and purges in-memory state. Every step is best-effort; failures
// are logged and the next cycle runs regardless.
type Sweeper struct {
	dir       string
	interval  time.Duration
	retention time.Duration
	sessions  SessionPurger
	cooldowns CooldownPurger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	now func() time.Time
}

func New(dir string, interval, retention time.Duration, sessions SessionPurger, cooldowns CooldownPurger) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	if retention <= 0 {
		retention = 30 * time.Minute
	}
	return &Sweeper{
		dir:       dir,
		interval:  interval,
		retention: retention,
		sessions:  sessions,
		cooldowns: cooldowns,
		now:       time.Now,
	}
}

// Start launches the sweep loop. Calling Start twice restarts the loop.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.stopLocked()
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(runCtx, s.done)

	log.Info().
		Dur("interval", s.interval).
		Dur("retention", s.retention).
		Str("dir", s.dir).
		Msg("Cleanup sweeper started")
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Sweeper) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one cleanup cycle immediately.
func (s *Sweeper) Sweep() {
	removed := s.sweepFiles()

	purgedSessions := 0
	if s.sessions != nil {
		purgedSessions = s.sessions.PurgeExpired()
	}

	purgedCooldowns := 0
	if s.cooldowns != nil {
		purgedCooldowns = s.cooldowns.PurgeStale()
	}

	if removed > 0 || purgedSessions > 0 || purgedCooldowns > 0 {
		log.Debug().
			Int("files", removed).
			Int("sessions", purgedSessions).
			Int("cooldowns", purgedCooldowns).
			Msg("Sweep cycle complete")
	}
}

func (s *Sweeper) sweepFiles() int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("dir", s.dir).Msg("Sweep could not read working directory")
		}
		return 0
	}

	cutoff := s.now().Add(-s.retention)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := mediaExtensions[ext]; !ok {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			if !os.IsNotExist(err) {
				log.Warn().Err(err).Str("path", path).Msg("Sweep failed to remove artifact")
			}
			continue
		}
		removed++
	}

	return removed
}
