// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package recognition

import (
	"context"
	"errors"
	"os"
	"sort"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/rs/zerolog/log"

	"github.com/Shaxzodbek16/TinglaBot/internal/extractor"
	"github.com/Shaxzodbek16/TinglaBot/internal/media"
)

// ErrNoMatch means the service processed the clip but recognised nothing.
var ErrNoMatch = errors.New("recognition: no match")

// Clipper produces a fingerprint-ready sample from a media file.
type Clipper interface {
	Clip(ctx context.Context, srcPath string) (string, error)
}

// Identifier resolves a clip into ranked track candidates.
type Identifier interface {
	Identify(ctx context.Context, clipPath string) ([]media.TrackCandidate, error)
}

// Pipeline runs transcode, fingerprint and the secondary search that turns a
// recognised track into downloadable hits.
type Pipeline struct {
	clipper       Clipper
	identifier    Identifier
	searcher      extractor.Searcher
	searchTimeout time.Duration
	searchLimit   int
}

func NewPipeline(clipper Clipper, identifier Identifier, searcher extractor.Searcher, searchTimeout time.Duration, searchLimit int) *Pipeline {
	if searchTimeout <= 0 {
		searchTimeout = 6 * time.Second
	}
	if searchLimit <= 0 {
		searchLimit = 10
	}
	return &Pipeline{
		clipper:       clipper,
		identifier:    identifier,
		searcher:      searcher,
		searchTimeout: searchTimeout,
		searchLimit:   searchLimit,
	}
}

// Recognise identifies the track in srcPath and returns the outcome together
// with downloadable hits for it. The candidate ranking is the service's own;
// the top candidate is accepted as-is. When the secondary search yields
// nothing, a single degenerate hit is synthesized from the recognised
// metadata so the caller always has something to offer.
func (p *Pipeline) Recognise(ctx context.Context, srcPath string) (*media.RecognitionOutcome, []media.SearchHit, error) {
	clipFile, err := p.clipper.Clip(ctx, srcPath)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if removeErr := os.Remove(clipFile); removeErr != nil && !os.IsNotExist(removeErr) {
			log.Warn().Err(removeErr).Str("path", clipFile).Msg("Failed to remove fingerprint clip")
		}
	}()

	candidates, err := p.identifier.Identify(ctx, clipFile)
	if err != nil {
		return nil, nil, err
	}
	if len(candidates) == 0 {
		return nil, nil, ErrNoMatch
	}

	outcome := &media.RecognitionOutcome{
		Candidates:      candidates,
		SourceAudioPath: srcPath,
		RecognisedAt:    time.Now(),
	}

	best := outcome.Best()
	hits := p.secondarySearch(ctx, best)
	if len(hits) == 0 {
		hits = []media.SearchHit{{
			Title:  best.Title,
			Artist: best.Artist,
			Source: media.SourceKindRecognition,
		}}
	}

	return outcome, hits, nil
}

// secondarySearch looks for downloadable renditions of the recognised track.
// Its failure is not pipeline failure; the recognition result stands alone.
func (p *Pipeline) secondarySearch(ctx context.Context, best media.TrackCandidate) []media.SearchHit {
	query := media.SearchHit{Title: best.Title, Artist: best.Artist}.Query()
	if query == "" {
		return nil
	}

	searchCtx, cancel := context.WithTimeout(ctx, p.searchTimeout)
	defer cancel()

	hits, err := p.searcher.Search(searchCtx, query, p.searchLimit)
	if err != nil {
		log.Debug().Err(err).Str("query", query).Msg("Secondary search failed")
		return nil
	}

	rankHits(query, hits)
	return hits
}

// rankHits orders hits by fuzzy closeness to the recognised track, keeping
// the upstream order among equally-ranked entries.
func rankHits(query string, hits []media.SearchHit) {
	if len(hits) < 2 {
		return
	}

	distance := func(h media.SearchHit) int {
		d := fuzzy.RankMatchNormalizedFold(query, h.Query())
		if d < 0 {
			// Non-matching hits sink to the bottom
			return int(^uint(0) >> 1)
		}
		return d
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return distance(hits[i]) < distance(hits[j])
	})
}
