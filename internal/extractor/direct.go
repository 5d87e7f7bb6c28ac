// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package extractor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Shaxzodbek16/TinglaBot/internal/buildinfo"
)

// DirectHTTPExtractor fetches a media file straight over HTTP. Used when the
// request already names a direct file URL and no site extraction is needed.
type DirectHTTPExtractor struct {
	client   *http.Client
	maxBytes int64
}

func NewDirectHTTPExtractor(maxBytes int64) *DirectHTTPExtractor {
	if maxBytes <= 0 {
		maxBytes = 40 << 20
	}
	return &DirectHTTPExtractor{
		client: &http.Client{
			Timeout: 90 * time.Second,
		},
		maxBytes: maxBytes,
	}
}

func (e *DirectHTTPExtractor) Extract(ctx context.Context, req Request) (*Result, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("direct extraction requires a url")
	}
	if req.OutputDir == "" {
		return nil, fmt.Errorf("request has no output directory")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", buildinfo.UserAgent)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", req.URL, resp.StatusCode)
	}

	if resp.ContentLength > e.maxBytes {
		return nil, fmt.Errorf("fetch %s: %d bytes exceeds ceiling %d", req.URL, resp.ContentLength, e.maxBytes)
	}

	outPath := filepath.Join(req.OutputDir, artifactKey(req)+directExt(req.URL))

	f, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("create artifact: %w", err)
	}

	// Read one byte past the ceiling so an over-sized body is detectable.
	written, err := io.Copy(f, io.LimitReader(resp.Body, e.maxBytes+1))
	closeErr := f.Close()
	if err != nil {
		os.Remove(outPath)
		return nil, fmt.Errorf("download %s: %w", req.URL, err)
	}
	if closeErr != nil {
		os.Remove(outPath)
		return nil, fmt.Errorf("close artifact: %w", closeErr)
	}
	if written > e.maxBytes {
		os.Remove(outPath)
		return nil, fmt.Errorf("download %s: exceeds ceiling %d bytes", req.URL, e.maxBytes)
	}

	log.Debug().Str("url", req.URL).Int64("bytes", written).Msg("Direct download complete")

	return &Result{Path: outPath, SizeBytes: written}, nil
}

// directExt guesses a file extension from the URL path, defaulting to .mp3.
func directExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ".mp3"
	}
	if ext := path.Ext(u.Path); ext != "" && len(ext) <= 5 {
		return ext
	}
	return ".mp3"
}
