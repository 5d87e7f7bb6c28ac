// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package recognition

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shaxzodbek16/TinglaBot/internal/media"
)

type fakeClipper struct {
	err   error
	paths []string
}

func (f *fakeClipper) Clip(ctx context.Context, srcPath string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	path := srcPath + ".clip.wav"
	if err := os.WriteFile(path, []byte("wav"), 0o644); err != nil {
		return "", err
	}
	f.paths = append(f.paths, path)
	return path, nil
}

type fakeIdentifier struct {
	candidates []media.TrackCandidate
	err        error
}

func (f *fakeIdentifier) Identify(ctx context.Context, clipPath string) ([]media.TrackCandidate, error) {
	return f.candidates, f.err
}

type fakeSearcher struct {
	hits  []media.SearchHit
	err   error
	query string
}

func (f *fakeSearcher) Search(ctx context.Context, query string, limit int) ([]media.SearchHit, error) {
	f.query = query
	return f.hits, f.err
}

func newTestPipeline(clipper *fakeClipper, identifier *fakeIdentifier, searcher *fakeSearcher) *Pipeline {
	return NewPipeline(clipper, identifier, searcher, time.Second, 10)
}

func srcFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.mp4")
	require.NoError(t, os.WriteFile(path, []byte("media"), 0o644))
	return path
}

func TestRecogniseHappyPath(t *testing.T) {
	clipper := &fakeClipper{}
	identifier := &fakeIdentifier{candidates: []media.TrackCandidate{
		{Title: "Blinding Lights", Artist: "The Weeknd"},
		{Title: "Blinding Lights", Artist: "Cover Band"},
	}}
	searcher := &fakeSearcher{hits: []media.SearchHit{
		{Title: "Blinding Lights", Artist: "The Weeknd", ExternalID: "abc", Source: media.SourceKindVideoSearch},
	}}

	pipeline := newTestPipeline(clipper, identifier, searcher)

	outcome, hits, err := pipeline.Recognise(context.Background(), srcFile(t))
	require.NoError(t, err)

	// Upstream ranking preserved
	assert.Equal(t, "The Weeknd", outcome.Best().Artist)
	assert.Len(t, outcome.Candidates, 2)

	require.Len(t, hits, 1)
	assert.Equal(t, "abc", hits[0].ExternalID)

	assert.Equal(t, "Blinding Lights The Weeknd", searcher.query)

	// Clip cleaned up
	require.Len(t, clipper.paths, 1)
	_, statErr := os.Stat(clipper.paths[0])
	assert.True(t, os.IsNotExist(statErr))
}

func TestRecogniseNoMatch(t *testing.T) {
	pipeline := newTestPipeline(&fakeClipper{}, &fakeIdentifier{}, &fakeSearcher{})

	_, _, err := pipeline.Recognise(context.Background(), srcFile(t))
	require.ErrorIs(t, err, ErrNoMatch)
}

func TestRecogniseSynthesizesDegenerateHit(t *testing.T) {
	tests := []struct {
		name     string
		searcher *fakeSearcher
	}{
		{name: "empty_secondary_search", searcher: &fakeSearcher{}},
		{name: "failed_secondary_search", searcher: &fakeSearcher{err: errors.New("search down")}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			identifier := &fakeIdentifier{candidates: []media.TrackCandidate{
				{Title: "Obscure Track", Artist: "Unknown Artist"},
			}}
			pipeline := newTestPipeline(&fakeClipper{}, identifier, tt.searcher)

			outcome, hits, err := pipeline.Recognise(context.Background(), srcFile(t))
			require.NoError(t, err)

			require.Len(t, hits, 1)
			assert.Equal(t, "Obscure Track", hits[0].Title)
			assert.Equal(t, "Unknown Artist", hits[0].Artist)
			assert.Empty(t, hits[0].ExternalID)
			assert.Equal(t, media.SourceKindRecognition, hits[0].Source)

			assert.Equal(t, "Obscure Track", outcome.Best().Title)
		})
	}
}

func TestRecognisePropagatesClipperFailure(t *testing.T) {
	boom := errors.New("ffmpeg exploded")
	pipeline := newTestPipeline(&fakeClipper{err: boom}, &fakeIdentifier{}, &fakeSearcher{})

	_, _, err := pipeline.Recognise(context.Background(), srcFile(t))
	require.ErrorIs(t, err, boom)
}

func TestRecognisePropagatesIdentifierFailure(t *testing.T) {
	boom := errors.New("service down")
	pipeline := newTestPipeline(&fakeClipper{}, &fakeIdentifier{err: boom}, &fakeSearcher{})

	_, _, err := pipeline.Recognise(context.Background(), srcFile(t))
	require.ErrorIs(t, err, boom)
}

func TestRankHits(t *testing.T) {
	hits := []media.SearchHit{
		{Title: "totally unrelated video compilation", Artist: "someone"},
		{Title: "Blinding Lights", Artist: "The Weeknd"},
		{Title: "Blinding Lights (Live)", Artist: "The Weeknd"},
	}

	rankHits("Blinding Lights The Weeknd", hits)

	assert.Equal(t, "Blinding Lights", hits[0].Title)
	assert.Equal(t, "totally unrelated video compilation", hits[2].Title)
}
