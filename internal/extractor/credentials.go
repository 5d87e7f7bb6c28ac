// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package extractor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Credential is one identity used against the remote source. A zero CookiePath
// means anonymous access.
type Credential struct {
	Name       string
	CookiePath string
}

// Anonymous returns true when the credential carries no cookie file.
func (c Credential) Anonymous() bool {
	return c.CookiePath == ""
}

// CredentialStore rotates over cookie-file credentials loaded from a
// directory. Files are ordered by name so every process walks them in the
// same sequence.
type CredentialStore struct {
	mu          sync.Mutex
	credentials []Credential
	next        int
}

// NewCredentialStore loads every regular file in dir as a credential. An empty
// or missing dir yields a store with a single anonymous credential, so chain
// construction never sees an empty credential list.
func NewCredentialStore(dir string) (*CredentialStore, error) {
	store := &CredentialStore{}

	if dir == "" {
		store.credentials = []Credential{{Name: "anonymous"}}
		return store, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("dir", dir).Msg("Cookie directory does not exist, running anonymous")
			store.credentials = []Credential{{Name: "anonymous"}}
			return store, nil
		}
		return nil, fmt.Errorf("read cookie directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		store.credentials = append(store.credentials, Credential{
			Name:       name,
			CookiePath: filepath.Join(dir, name),
		})
	}

	if len(store.credentials) == 0 {
		store.credentials = []Credential{{Name: "anonymous"}}
	} else {
		log.Debug().Int("count", len(store.credentials)).Str("dir", dir).Msg("Loaded cookie credentials")
	}

	return store, nil
}

// Next returns the next credential in rotation.
func (s *CredentialStore) Next() Credential {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.credentials[s.next]
	s.next = (s.next + 1) % len(s.credentials)
	return c
}

// All returns a copy of every credential, in rotation order starting from the
// current position.
func (s *CredentialStore) All() []Credential {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Credential, 0, len(s.credentials))
	for i := 0; i < len(s.credentials); i++ {
		out = append(out, s.credentials[(s.next+i)%len(s.credentials)])
	}
	return out
}

// Len reports the number of credentials.
func (s *CredentialStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.credentials)
}
