// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package music is the orchestration layer: it admits requests, runs searches
// and downloads through the fallback engine, and owns the user-facing result
// lifecycle.
package music

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Shaxzodbek16/TinglaBot/internal/cooldown"
	"github.com/Shaxzodbek16/TinglaBot/internal/extractor"
	"github.com/Shaxzodbek16/TinglaBot/internal/fallback"
	"github.com/Shaxzodbek16/TinglaBot/internal/media"
	"github.com/Shaxzodbek16/TinglaBot/internal/models"
	"github.com/Shaxzodbek16/TinglaBot/internal/sessioncache"
)

const (
	// MaxSearchLimit caps the hit count no matter what the caller asks for.
	MaxSearchLimit = 50

	minQueryChars = 2
	maxQueryRunes = 100
)

// RenditionKind selects which format ladder a download walks.
type RenditionKind string

const (
	RenditionAudio RenditionKind = "audio"
	RenditionVideo RenditionKind = "video"
)

// Admission and validation failures surfaced to the caller.
var (
	ErrQueryTooShort   = errors.New("music: query too short")
	ErrCooldownActive  = errors.New("music: cooldown active")
	ErrBudgetExhausted = errors.New("music: request budget exhausted")
)

// DownloadResult is a completed download handed back to the front end.
type DownloadResult struct {
	Path      string
	SizeBytes int64
	Hit       media.SearchHit
}

type userStore interface {
	Ensure(ctx context.Context, id int64, username string) (*models.User, error)
	ConsumeRequest(ctx context.Context, id int64) (bool, error)
	RecordDownload(ctx context.Context, id int64) error
}

type resolver interface {
	Resolve(ctx context.Context, base extractor.Request, attempts []fallback.Attempt, timeout time.Duration) (*extractor.Result, error)
}

type recogniser interface {
	Recognise(ctx context.Context, srcPath string) (*media.RecognitionOutcome, []media.SearchHit, error)
}

// Config carries the service's tunables, all resolved by the caller.
type Config struct {
	MediaDir      string
	SearchLimit   int
	SearchTimeout time.Duration
	AudioTimeout  time.Duration
	VideoTimeout  time.Duration
}

// Service implements the produced operations. All collaborators are injected;
// the service owns no goroutines.
type Service struct {
	users       userStore
	searcher    extractor.Searcher
	engine      resolver
	direct      extractor.Extractor
	credentials *extractor.CredentialStore
	cache       *sessioncache.Cache
	limiter     *cooldown.Limiter
	recogniser  recogniser

	mediaDir      string
	searchLimit   int
	searchTimeout time.Duration
	audioTimeout  time.Duration
	videoTimeout  time.Duration
}

func NewService(
	users *models.UserStore,
	searcher extractor.Searcher,
	engine *fallback.Engine,
	direct extractor.Extractor,
	credentials *extractor.CredentialStore,
	cache *sessioncache.Cache,
	limiter *cooldown.Limiter,
	pipeline recogniser,
	cfg Config,
) *Service {
	return newService(users, searcher, engine, direct, credentials, cache, limiter, pipeline, cfg)
}

func newService(
	users userStore,
	searcher extractor.Searcher,
	engine resolver,
	direct extractor.Extractor,
	credentials *extractor.CredentialStore,
	cache *sessioncache.Cache,
	limiter *cooldown.Limiter,
	pipeline recogniser,
	cfg Config,
) *Service {
	limit := cfg.SearchLimit
	if limit <= 0 {
		limit = 30
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	searchTimeout := cfg.SearchTimeout
	if searchTimeout <= 0 {
		searchTimeout = 6 * time.Second
	}
	audioTimeout := cfg.AudioTimeout
	if audioTimeout <= 0 {
		audioTimeout = 60 * time.Second
	}
	videoTimeout := cfg.VideoTimeout
	if videoTimeout <= 0 {
		videoTimeout = 90 * time.Second
	}

	return &Service{
		users:         users,
		searcher:      searcher,
		engine:        engine,
		direct:        direct,
		credentials:   credentials,
		cache:         cache,
		limiter:       limiter,
		recogniser:    pipeline,
		mediaDir:      cfg.MediaDir,
		searchLimit:   limit,
		searchTimeout: searchTimeout,
		audioTimeout:  audioTimeout,
		videoTimeout:  videoTimeout,
	}
}

// Search runs a free-text search for the user and caches the result set. The
// first page is returned. A URL is accepted here too and short-circuits into
// a single direct-resolution hit.
func (s *Service) Search(ctx context.Context, userID int64, username, query string) (*sessioncache.Page, error) {
	if err := s.admit(ctx, userID, username); err != nil {
		return nil, err
	}

	if isURL(query) {
		hit := media.SearchHit{
			Title:      query,
			ExternalID: query,
			Source:     media.SourceKindDirectURL,
		}
		s.cache.Put(userID, []media.SearchHit{hit})
		return s.cache.GetPage(userID, 0)
	}

	cleaned, err := normalizeQuery(query)
	if err != nil {
		return nil, err
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.searchTimeout)
	defer cancel()

	hits, err := s.searcher.Search(searchCtx, cleaned, s.searchLimit)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", cleaned, err)
	}
	if len(hits) > MaxSearchLimit {
		hits = hits[:MaxSearchLimit]
	}

	log.Debug().Int64("userID", userID).Str("query", cleaned).Int("hits", len(hits)).Msg("Search complete")

	s.cache.Put(userID, hits)
	return s.cache.GetPage(userID, 0)
}

// GetPage pages through the user's cached results.
func (s *Service) GetPage(ctx context.Context, userID int64, page int) (*sessioncache.Page, error) {
	return s.cache.GetPage(userID, page)
}

// Select downloads the hit at index from the user's session in the requested
// rendition. Cooldown is checked before any work starts.
func (s *Service) Select(ctx context.Context, userID int64, index int, kind RenditionKind) (*DownloadResult, error) {
	if !s.limiter.TryAcquire(userID) {
		return nil, ErrCooldownActive
	}

	hit, err := s.cache.Hit(userID, index)
	if err != nil {
		return nil, err
	}

	return s.download(ctx, userID, hit, kind)
}

// TryDownload resolves a raw URL straight through the engine, bypassing
// search entirely.
func (s *Service) TryDownload(ctx context.Context, userID int64, username, rawURL string, kind RenditionKind) (*DownloadResult, error) {
	if !isURL(rawURL) {
		return nil, fmt.Errorf("not a url: %q", rawURL)
	}

	if err := s.admit(ctx, userID, username); err != nil {
		return nil, err
	}
	if !s.limiter.TryAcquire(userID) {
		return nil, ErrCooldownActive
	}

	hit := media.SearchHit{
		Title:      rawURL,
		ExternalID: rawURL,
		Source:     media.SourceKindDirectURL,
	}

	return s.download(ctx, userID, hit, kind)
}

// RecogniseAndSearch identifies the track in a media file and seeds the
// user's session with downloadable hits for it.
func (s *Service) RecogniseAndSearch(ctx context.Context, userID int64, username, srcPath string) (*media.RecognitionOutcome, *sessioncache.Page, error) {
	if err := s.admit(ctx, userID, username); err != nil {
		return nil, nil, err
	}

	outcome, hits, err := s.recogniser.Recognise(ctx, srcPath)
	if err != nil {
		return nil, nil, err
	}

	s.cache.Put(userID, hits)
	page, err := s.cache.GetPage(userID, 0)
	if err != nil {
		return nil, nil, err
	}

	return outcome, page, nil
}

// admit ensures the user exists and spends one unit of their budget.
func (s *Service) admit(ctx context.Context, userID int64, username string) error {
	if _, err := s.users.Ensure(ctx, userID, username); err != nil {
		return err
	}

	ok, err := s.users.ConsumeRequest(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBudgetExhausted
	}

	return nil
}

func (s *Service) download(ctx context.Context, userID int64, hit media.SearchHit, kind RenditionKind) (*DownloadResult, error) {
	base := extractor.Request{OutputDir: s.mediaDir}
	if hit.Source == media.SourceKindDirectURL {
		base.URL = hit.ExternalID
	} else {
		base.Query = hit.Query()
	}

	timeout := s.audioTimeout
	profiles := extractor.AudioLadder()
	if kind == RenditionVideo {
		timeout = s.videoTimeout
		profiles = extractor.VideoLadder()
	}

	// Direct file URLs skip the extractor chain entirely
	if base.URL != "" && isDirectMediaURL(base.URL) {
		res, err := s.direct.Extract(ctx, base)
		if err != nil {
			return nil, err
		}
		return s.finishDownload(ctx, userID, hit, res)
	}

	chain := fallback.BuildChain(s.credentials.All(), profiles)
	res, err := s.engine.Resolve(ctx, base, chain, timeout)
	if err != nil {
		return nil, err
	}

	return s.finishDownload(ctx, userID, hit, res)
}

func (s *Service) finishDownload(ctx context.Context, userID int64, hit media.SearchHit, res *extractor.Result) (*DownloadResult, error) {
	if err := s.users.RecordDownload(ctx, userID); err != nil {
		log.Warn().Err(err).Int64("userID", userID).Msg("Failed to record download")
	}

	log.Info().
		Int64("userID", userID).
		Str("title", hit.Title).
		Int64("bytes", res.SizeBytes).
		Msg("Download complete")

	return &DownloadResult{
		Path:      res.Path,
		SizeBytes: res.SizeBytes,
		Hit:       hit,
	}, nil
}

// normalizeQuery trims, enforces the minimum significant length and truncates
// runaway input.
func normalizeQuery(query string) (string, error) {
	cleaned := strings.Join(strings.Fields(query), " ")

	significant := 0
	for _, r := range cleaned {
		if r != ' ' {
			significant++
		}
	}
	if significant < minQueryChars {
		return "", ErrQueryTooShort
	}

	runes := []rune(cleaned)
	if len(runes) > maxQueryRunes {
		cleaned = string(runes[:maxQueryRunes])
	}

	return cleaned, nil
}

func isURL(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.Host != ""
}

var directMediaExts = map[string]struct{}{
	".mp3":  {},
	".m4a":  {},
	".wav":  {},
	".ogg":  {},
	".opus": {},
	".flac": {},
}

// isDirectMediaURL reports whether the URL points at a plain audio file
// rather than a page needing site extraction.
func isDirectMediaURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	_, ok := directMediaExts[ext]
	return ok
}
