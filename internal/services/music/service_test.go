// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package music

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shaxzodbek16/TinglaBot/internal/cooldown"
	"github.com/Shaxzodbek16/TinglaBot/internal/extractor"
	"github.com/Shaxzodbek16/TinglaBot/internal/fallback"
	"github.com/Shaxzodbek16/TinglaBot/internal/media"
	"github.com/Shaxzodbek16/TinglaBot/internal/models"
	"github.com/Shaxzodbek16/TinglaBot/internal/recognition"
	"github.com/Shaxzodbek16/TinglaBot/internal/sessioncache"
	"github.com/Shaxzodbek16/TinglaBot/internal/workpool"
)

type fakeUserStore struct {
	budget    int
	downloads int
	ensureErr error
}

func (f *fakeUserStore) Ensure(ctx context.Context, id int64, username string) (*models.User, error) {
	if f.ensureErr != nil {
		return nil, f.ensureErr
	}
	return &models.User{ID: id, Username: username, RequestsLeft: f.budget}, nil
}

func (f *fakeUserStore) ConsumeRequest(ctx context.Context, id int64) (bool, error) {
	if f.budget <= 0 {
		return false, nil
	}
	f.budget--
	return true, nil
}

func (f *fakeUserStore) RecordDownload(ctx context.Context, id int64) error {
	f.downloads++
	return nil
}

type fakeSearcher struct {
	hits     []media.SearchHit
	err      error
	gotQuery string
	gotLimit int
}

func (f *fakeSearcher) Search(ctx context.Context, query string, limit int) ([]media.SearchHit, error) {
	f.gotQuery = query
	f.gotLimit = limit
	return f.hits, f.err
}

type fakeResolver struct {
	res   *extractor.Result
	err   error
	calls int
	base  extractor.Request
}

func (f *fakeResolver) Resolve(ctx context.Context, base extractor.Request, attempts []fallback.Attempt, timeout time.Duration) (*extractor.Result, error) {
	f.calls++
	f.base = base
	return f.res, f.err
}

type fakeDirect struct {
	res   *extractor.Result
	err   error
	calls int
}

func (f *fakeDirect) Extract(ctx context.Context, req extractor.Request) (*extractor.Result, error) {
	f.calls++
	return f.res, f.err
}

type fakeRecogniser struct {
	outcome *media.RecognitionOutcome
	hits    []media.SearchHit
	err     error
}

func (f *fakeRecogniser) Recognise(ctx context.Context, srcPath string) (*media.RecognitionOutcome, []media.SearchHit, error) {
	return f.outcome, f.hits, f.err
}

type fixture struct {
	users      *fakeUserStore
	searcher   *fakeSearcher
	resolver   *fakeResolver
	direct     *fakeDirect
	cache      *sessioncache.Cache
	limiter    *cooldown.Limiter
	recogniser *fakeRecogniser
	service    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	creds, err := extractor.NewCredentialStore("")
	require.NoError(t, err)

	f := &fixture{
		users:      &fakeUserStore{budget: 10},
		searcher:   &fakeSearcher{},
		resolver:   &fakeResolver{},
		direct:     &fakeDirect{},
		cache:      sessioncache.New(50, 10, 10*time.Minute),
		limiter:    cooldown.New(5 * time.Second),
		recogniser: &fakeRecogniser{},
	}
	f.service = newService(
		f.users, f.searcher, f.resolver, f.direct, creds,
		f.cache, f.limiter, f.recogniser,
		Config{MediaDir: t.TempDir()},
	)
	return f
}

func searchHits(n int) []media.SearchHit {
	hits := make([]media.SearchHit, n)
	for i := range hits {
		hits[i] = media.SearchHit{
			Title:      fmt.Sprintf("track %d", i),
			Artist:     "artist",
			ExternalID: fmt.Sprintf("id-%d", i),
			Source:     media.SourceKindVideoSearch,
		}
	}
	return hits
}

func TestSearchCachesAndPaginates(t *testing.T) {
	f := newFixture(t)
	f.searcher.hits = searchHits(25)

	page, err := f.service.Search(context.Background(), 1, "alice", "blinding lights")
	require.NoError(t, err)

	assert.Len(t, page.Hits, 10)
	assert.True(t, page.HasMore)
	assert.Equal(t, 25, page.Total)
	assert.Equal(t, "blinding lights", f.searcher.gotQuery)
	assert.Equal(t, 30, f.searcher.gotLimit)

	page, err = f.service.GetPage(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Len(t, page.Hits, 5)
	assert.False(t, page.HasMore)
}

func TestSearchQueryHygiene(t *testing.T) {
	f := newFixture(t)
	f.searcher.hits = searchHits(1)

	_, err := f.service.Search(context.Background(), 1, "alice", " x ")
	require.ErrorIs(t, err, ErrQueryTooShort)

	long := strings.Repeat("a", 300)
	_, err = f.service.Search(context.Background(), 1, "alice", long)
	require.NoError(t, err)
	assert.Len(t, []rune(f.searcher.gotQuery), 100)
}

func TestSearchBudgetDenied(t *testing.T) {
	f := newFixture(t)
	f.users.budget = 0

	_, err := f.service.Search(context.Background(), 1, "alice", "some song")
	require.ErrorIs(t, err, ErrBudgetExhausted)
	assert.Equal(t, MsgBudgetExhausted, UserMessage(err))
}

func TestSearchWithURLShortCircuits(t *testing.T) {
	f := newFixture(t)

	page, err := f.service.Search(context.Background(), 1, "alice", "https://example.com/watch?v=abc")
	require.NoError(t, err)

	require.Len(t, page.Hits, 1)
	assert.Equal(t, media.SourceKindDirectURL, page.Hits[0].Source)
	assert.Empty(t, f.searcher.gotQuery, "searcher must not run for URLs")
}

func TestSelectDownloadsHit(t *testing.T) {
	f := newFixture(t)
	f.cache.Put(1, searchHits(5))
	f.resolver.res = &extractor.Result{Path: "/tmp/track.m4a", SizeBytes: 5000}

	res, err := f.service.Select(context.Background(), 1, 2, RenditionAudio)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/track.m4a", res.Path)
	assert.Equal(t, "track 2", res.Hit.Title)
	assert.Equal(t, "track 2 artist", f.resolver.base.Query)
	assert.Equal(t, 1, f.users.downloads)
}

func TestSelectCooldown(t *testing.T) {
	f := newFixture(t)
	f.cache.Put(1, searchHits(5))
	f.resolver.res = &extractor.Result{Path: "/tmp/track.m4a", SizeBytes: 5000}

	_, err := f.service.Select(context.Background(), 1, 0, RenditionAudio)
	require.NoError(t, err)

	_, err = f.service.Select(context.Background(), 1, 1, RenditionAudio)
	require.ErrorIs(t, err, ErrCooldownActive)
	assert.Equal(t, MsgCooldown, UserMessage(err))

	// A different user is unaffected
	f.cache.Put(2, searchHits(1))
	_, err = f.service.Select(context.Background(), 2, 0, RenditionAudio)
	require.NoError(t, err)
}

func TestSelectExpiredSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Select(context.Background(), 1, 0, RenditionAudio)
	require.ErrorIs(t, err, sessioncache.ErrNotFound)
	assert.Equal(t, MsgSessionExpired, UserMessage(err))
}

func TestSelectWalksFallbackChain(t *testing.T) {
	// End to end through the real engine: first attempt yields a zero-byte
	// artifact, the second a healthy one.
	dir := t.TempDir()
	creds, err := extractor.NewCredentialStore("")
	require.NoError(t, err)

	ext := &scriptedExtractor{dir: dir, sizes: []int{0, 4096}}
	engine := fallback.NewEngine(ext, workpool.New(2))

	f := newFixture(t)
	service := newService(
		f.users, f.searcher, engine, f.direct, creds,
		f.cache, f.limiter, f.recogniser,
		Config{MediaDir: dir},
	)

	f.cache.Put(1, []media.SearchHit{{Title: "blinding lights", Artist: "the weeknd", ExternalID: "abc", Source: media.SourceKindVideoSearch}})

	res, err := service.Select(context.Background(), 1, 0, RenditionAudio)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), res.SizeBytes)
	assert.Equal(t, 2, ext.calls, "success after exactly two attempts")
}

type scriptedExtractor struct {
	dir   string
	sizes []int
	calls int
}

func (s *scriptedExtractor) Extract(ctx context.Context, req extractor.Request) (*extractor.Result, error) {
	if s.calls >= len(s.sizes) {
		return nil, errors.New("unscripted call")
	}
	size := s.sizes[s.calls]
	s.calls++

	path := filepath.Join(s.dir, fmt.Sprintf("out-%d.m4a", s.calls))
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		return nil, err
	}
	return &extractor.Result{Path: path, SizeBytes: int64(size)}, nil
}

func TestTryDownloadRejectsNonURL(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.TryDownload(context.Background(), 1, "alice", "blinding lights", RenditionAudio)
	require.Error(t, err)
	assert.Equal(t, 0, f.resolver.calls)
}

func TestTryDownloadDirectMediaURL(t *testing.T) {
	f := newFixture(t)
	f.direct.res = &extractor.Result{Path: "/tmp/file.mp3", SizeBytes: 2048}

	res, err := f.service.TryDownload(context.Background(), 1, "alice", "https://cdn.example.com/file.mp3", RenditionAudio)
	require.NoError(t, err)

	assert.Equal(t, int64(2048), res.SizeBytes)
	assert.Equal(t, 1, f.direct.calls)
	assert.Equal(t, 0, f.resolver.calls, "direct file URLs bypass the extractor chain")
}

func TestTryDownloadPageURLUsesChain(t *testing.T) {
	f := newFixture(t)
	f.resolver.res = &extractor.Result{Path: "/tmp/out.m4a", SizeBytes: 9000}

	res, err := f.service.TryDownload(context.Background(), 1, "alice", "https://example.com/watch?v=abc", RenditionAudio)
	require.NoError(t, err)

	assert.Equal(t, int64(9000), res.SizeBytes)
	assert.Equal(t, 1, f.resolver.calls)
	assert.Equal(t, 0, f.direct.calls)
	assert.Equal(t, "https://example.com/watch?v=abc", f.resolver.base.URL)
}

func TestRecogniseAndSearchSeedsSession(t *testing.T) {
	f := newFixture(t)
	f.recogniser.outcome = &media.RecognitionOutcome{
		Candidates: []media.TrackCandidate{{Title: "Song", Artist: "Artist"}},
	}
	f.recogniser.hits = searchHits(12)

	outcome, page, err := f.service.RecogniseAndSearch(context.Background(), 1, "alice", "/tmp/voice.ogg")
	require.NoError(t, err)

	assert.Equal(t, "Song", outcome.Best().Title)
	assert.Len(t, page.Hits, 10)
	assert.True(t, page.HasMore)

	// Hits are selectable afterwards
	f.resolver.res = &extractor.Result{Path: "/tmp/x.m4a", SizeBytes: 3000}
	_, err = f.service.Select(context.Background(), 1, 11, RenditionAudio)
	require.NoError(t, err)
}

func TestRecogniseNoMatchMapped(t *testing.T) {
	f := newFixture(t)
	f.recogniser.err = recognition.ErrNoMatch

	_, _, err := f.service.RecogniseAndSearch(context.Background(), 1, "alice", "/tmp/voice.ogg")
	require.ErrorIs(t, err, recognition.ErrNoMatch)
	assert.Equal(t, MsgNoMatch, UserMessage(err))
}

func TestUserMessageMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "query_too_short", err: ErrQueryTooShort, want: MsgQueryTooShort},
		{name: "cooldown", err: ErrCooldownActive, want: MsgCooldown},
		{name: "budget", err: ErrBudgetExhausted, want: MsgBudgetExhausted},
		{name: "expired_session", err: sessioncache.ErrNotFound, want: MsgSessionExpired},
		{name: "deadline", err: workpool.ErrDeadlineExceeded, want: MsgTimeout},
		{name: "exhausted", err: &fallback.ExhaustedError{Attempts: 6}, want: MsgDownloadFailed},
		{name: "no_match", err: recognition.ErrNoMatch, want: MsgNoMatch},
		{name: "wrapped", err: fmt.Errorf("select: %w", ErrCooldownActive), want: MsgCooldown},
		{name: "unknown", err: errors.New("boom"), want: MsgInternal},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain", in: "blinding lights", want: "blinding lights"},
		{name: "collapses_whitespace", in: "  blinding   lights  ", want: "blinding lights"},
		{name: "single_char", in: "x", wantErr: true},
		{name: "only_spaces", in: "   ", wantErr: true},
		{name: "two_chars_split", in: "a b", want: "a b"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeQuery(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrQueryTooShort)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsDirectMediaURL(t *testing.T) {
	assert.True(t, isDirectMediaURL("https://cdn.example.com/a.mp3"))
	assert.True(t, isDirectMediaURL("https://cdn.example.com/a.FLAC"))
	assert.False(t, isDirectMediaURL("https://example.com/watch?v=abc"))
	assert.False(t, isDirectMediaURL("https://example.com/video.mp4"))
}
