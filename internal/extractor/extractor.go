// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package extractor resolves free-text queries and URLs into local media files.
package extractor

import (
	"context"

	"github.com/Shaxzodbek16/TinglaBot/internal/media"
)

// Request describes a single extraction attempt. Either Query or URL is set,
// never both.
type Request struct {
	Query      string
	URL        string
	Profile    FormatProfile
	Credential Credential
	OutputDir  string
}

// Result is a successfully produced local artifact.
type Result struct {
	Path      string
	SizeBytes int64
}

// Extractor turns a Request into a local file. Implementations return plain
// errors for transient failures; callers decide whether to try again with a
// different credential or format.
type Extractor interface {
	Extract(ctx context.Context, req Request) (*Result, error)
}

// Searcher resolves a free-text query into ranked hits without downloading
// anything.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]media.SearchHit, error)
}
