// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package fallback walks a credential and format ladder until one attempt
// produces a healthy artifact.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Shaxzodbek16/TinglaBot/internal/extractor"
	"github.com/Shaxzodbek16/TinglaBot/internal/workpool"
)

// MinArtifactBytes is the size floor below which an artifact is treated as a
// failed attempt. Empty and near-empty files are a common failure mode of
// throttled credentials.
const MinArtifactBytes = 1000

// Attempt pairs one credential with one format profile.
type Attempt struct {
	Credential extractor.Credential
	Profile    extractor.FormatProfile
}

// ExhaustedError reports that every attempt in a chain failed.
type ExhaustedError struct {
	Attempts int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d download attempts failed", e.Attempts)
}

func (e *ExhaustedError) Is(target error) bool {
	_, ok := target.(*ExhaustedError)
	return ok
}

// ErrExhausted is the comparison target for errors.Is.
var ErrExhausted = &ExhaustedError{}

// BuildChain expands credentials and profiles into the full attempt sequence.
// All profiles are tried under the first credential before moving to the
// next, so a healthy credential gets every chance before rotation.
func BuildChain(credentials []extractor.Credential, profiles []extractor.FormatProfile) []Attempt {
	chain := make([]Attempt, 0, len(credentials)*len(profiles))
	for _, cred := range credentials {
		for _, profile := range profiles {
			chain = append(chain, Attempt{Credential: cred, Profile: profile})
		}
	}
	return chain
}

// Engine executes attempt chains through the bounded pool.
type Engine struct {
	extractor extractor.Extractor
	pool      *workpool.Pool
}

func NewEngine(ext extractor.Extractor, pool *workpool.Pool) *Engine {
	return &Engine{extractor: ext, pool: pool}
}

// Resolve tries each attempt in order and returns the first healthy artifact.
// The timeout bounds every individual attempt; a timed-out attempt is a soft
// failure like any other and the chain advances, since a single hung
// credential is exactly what the matrix exists to survive. Only the caller's
// own context ending stops the walk early. Undersized artifacts are deleted
// and treated as failures.
func (e *Engine) Resolve(ctx context.Context, base extractor.Request, attempts []Attempt, timeout time.Duration) (*extractor.Result, error) {
	if len(attempts) == 0 {
		return nil, &ExhaustedError{Attempts: 0}
	}

	for i, attempt := range attempts {
		req := base
		req.Credential = attempt.Credential
		req.Profile = attempt.Profile

		res, err := workpool.Run(ctx, e.pool, timeout, func(ctx context.Context) (*extractor.Result, error) {
			return e.extractor.Extract(ctx, req)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}

			if errors.Is(err, workpool.ErrDeadlineExceeded) {
				log.Debug().
					Int("attempt", i+1).
					Str("credential", attempt.Credential.Name).
					Str("format", attempt.Profile.Name).
					Msg("Download attempt timed out, advancing chain")
				continue
			}

			log.Debug().
				Err(err).
				Int("attempt", i+1).
				Str("credential", attempt.Credential.Name).
				Str("format", attempt.Profile.Name).
				Msg("Download attempt failed")
			continue
		}

		if res.SizeBytes < MinArtifactBytes {
			log.Debug().
				Int("attempt", i+1).
				Int64("bytes", res.SizeBytes).
				Str("credential", attempt.Credential.Name).
				Str("format", attempt.Profile.Name).
				Msg("Artifact below size floor, advancing chain")
			if removeErr := os.Remove(res.Path); removeErr != nil && !os.IsNotExist(removeErr) {
				log.Warn().Err(removeErr).Str("path", res.Path).Msg("Failed to remove undersized artifact")
			}
			continue
		}

		log.Debug().
			Int("attempt", i+1).
			Int64("bytes", res.SizeBytes).
			Str("credential", attempt.Credential.Name).
			Str("format", attempt.Profile.Name).
			Msg("Download attempt succeeded")

		return res, nil
	}

	return nil, &ExhaustedError{Attempts: len(attempts)}
}
