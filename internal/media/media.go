// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package media holds the value types shared by the search, fallback and
// recognition services. All of them are plain data and immutable once produced.
package media

import (
	"fmt"
	"strings"
	"time"
)

// SourceKind identifies which backend produced a SearchHit.
type SourceKind string

const (
	SourceKindVideoSearch SourceKind = "video_search"
	SourceKindDirectURL   SourceKind = "direct_url"
	SourceKindRecognition SourceKind = "recognition"
)

// SearchHit is a single search or recognition result. ExternalID is empty for
// degenerate hits synthesized from recognition metadata alone.
type SearchHit struct {
	Title      string     `json:"title"`
	Artist     string     `json:"artist"`
	DurationS  int        `json:"durationSeconds"`
	ExternalID string     `json:"externalId"`
	Source     SourceKind `json:"source"`
}

// Query returns the free-text query used to re-resolve this hit into a
// downloadable rendition.
func (h SearchHit) Query() string {
	return strings.TrimSpace(h.Title + " " + h.Artist)
}

// FormatDuration renders the duration as m:ss, or "" when unknown.
func (h SearchHit) FormatDuration() string {
	if h.DurationS <= 0 {
		return ""
	}
	return fmt.Sprintf("%d:%02d", h.DurationS/60, h.DurationS%60)
}

// TrackCandidate is a ranked fingerprint match reported by the remote
// recognition service. Order is the service's own ranking and is preserved.
type TrackCandidate struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// RecognitionOutcome is the result of running the recognition pipeline over a
// source media file. Candidates[0] is the accepted best match.
type RecognitionOutcome struct {
	Candidates      []TrackCandidate
	SourceAudioPath string
	RecognisedAt    time.Time
}

// Best returns the accepted top candidate.
func (o *RecognitionOutcome) Best() TrackCandidate {
	if o == nil || len(o.Candidates) == 0 {
		return TrackCandidate{}
	}
	return o.Candidates[0]
}
