// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package recognition

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog/log"

	"github.com/Shaxzodbek16/TinglaBot/internal/buildinfo"
	"github.com/Shaxzodbek16/TinglaBot/internal/media"
)

const (
	identifyTimeout = 20 * time.Second
	identifyRetries = 3
)

// Client posts fingerprint clips to the remote recognition service. The
// service's internals are opaque; only the ranked candidate list matters.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: identifyTimeout,
		},
	}
}

type identifyResponse struct {
	Matches []struct {
		Title  string `json:"title"`
		Artist string `json:"artist"`
	} `json:"matches"`
}

// retryableStatusError marks server-side failures worth another attempt.
type retryableStatusError struct {
	status int
}

func (e *retryableStatusError) Error() string {
	return fmt.Sprintf("recognition service returned status %d", e.status)
}

// Identify uploads the clip and returns the service's candidates in its own
// ranking. An empty list is a valid answer, not an error.
func (c *Client) Identify(ctx context.Context, clipPath string) ([]media.TrackCandidate, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("recognition service url is not configured")
	}

	var candidates []media.TrackCandidate

	err := retry.Do(
		func() error {
			var attemptErr error
			candidates, attemptErr = c.identifyOnce(ctx, clipPath)
			return attemptErr
		},
		retry.Attempts(identifyRetries),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			if statusErr, ok := err.(*retryableStatusError); ok {
				return statusErr.status >= 500
			}
			// Transport errors are worth retrying, context errors are not
			return ctx.Err() == nil
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().Err(err).Uint("attempt", n+1).Msg("Retrying recognition request")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("identify clip: %w", err)
	}

	return candidates, nil
}

func (c *Client) identifyOnce(ctx context.Context, clipPath string) ([]media.TrackCandidate, error) {
	f, err := os.Open(clipPath)
	if err != nil {
		return nil, fmt.Errorf("open clip: %w", err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, f)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("User-Agent", buildinfo.UserAgent)
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &retryableStatusError{status: resp.StatusCode}
	}

	var decoded identifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	candidates := make([]media.TrackCandidate, 0, len(decoded.Matches))
	for _, m := range decoded.Matches {
		if m.Title == "" {
			continue
		}
		candidates = append(candidates, media.TrackCandidate{
			Title:  m.Title,
			Artist: m.Artist,
		})
	}

	return candidates, nil
}
