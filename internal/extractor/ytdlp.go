// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package extractor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	shellquote "github.com/Hellseher/go-shellquote"
	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"

	"github.com/Shaxzodbek16/TinglaBot/internal/media"
)

// YtDlpExtractor shells out to the yt-dlp binary for both URL and search-based
// extraction.
type YtDlpExtractor struct {
	binPath string
}

func NewYtDlpExtractor(binPath string) *YtDlpExtractor {
	if binPath == "" {
		binPath = "yt-dlp"
	}
	return &YtDlpExtractor{binPath: binPath}
}

// Extract downloads the requested media into req.OutputDir and returns the
// produced file. The context deadline bounds the whole child process.
func (e *YtDlpExtractor) Extract(ctx context.Context, req Request) (*Result, error) {
	if req.Query == "" && req.URL == "" {
		return nil, fmt.Errorf("request has neither query nor url")
	}
	if req.OutputDir == "" {
		return nil, fmt.Errorf("request has no output directory")
	}

	key := artifactKey(req)
	outTemplate := filepath.Join(req.OutputDir, key+".%(ext)s")

	args := buildYtDlpArgs(req, outTemplate)

	log.Debug().
		Str("credential", req.Credential.Name).
		Str("format", req.Profile.Name).
		Str("cmd", shellquote.Join(append([]string{e.binPath}, args...)...)).
		Msg("Running yt-dlp")

	cmd := exec.CommandContext(ctx, e.binPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("yt-dlp failed: %w: %s", err, firstLine(stderr.String()))
	}

	path, size, err := findArtifact(req.OutputDir, key)
	if err != nil {
		return nil, err
	}

	return &Result{Path: path, SizeBytes: size}, nil
}

func buildYtDlpArgs(req Request, outTemplate string) []string {
	args := []string{
		"--no-playlist",
		"--no-warnings",
		"--quiet",
		"-f", req.Profile.Selector,
		"-o", outTemplate,
	}

	if req.Profile.MaxFileSizeBytes > 0 {
		args = append(args, "--max-filesize", fmt.Sprintf("%d", req.Profile.MaxFileSizeBytes))
	}

	if !req.Credential.Anonymous() {
		args = append(args, "--cookies", req.Credential.CookiePath)
	}

	if req.URL != "" {
		args = append(args, req.URL)
	} else {
		args = append(args, "ytsearch1:"+req.Query)
	}

	return args
}

// artifactKey derives a stable, filesystem-safe name for the attempt.
func artifactKey(req Request) string {
	h := xxhash.New()
	h.WriteString(req.Query)
	h.WriteString("\x00")
	h.WriteString(req.URL)
	h.WriteString("\x00")
	h.WriteString(req.Profile.Name)
	h.WriteString("\x00")
	h.WriteString(req.Credential.Name)
	return fmt.Sprintf("%016x", h.Sum64())
}

// findArtifact locates the file yt-dlp produced for key. The extension is
// chosen by yt-dlp so we glob for it.
func findArtifact(dir, key string) (string, int64, error) {
	matches, err := filepath.Glob(filepath.Join(dir, key+".*"))
	if err != nil {
		return "", 0, fmt.Errorf("glob artifact: %w", err)
	}
	if len(matches) == 0 {
		return "", 0, fmt.Errorf("yt-dlp produced no artifact for key %s", key)
	}

	// .part files mean the download was cut off
	for _, m := range matches {
		if strings.HasSuffix(m, ".part") {
			continue
		}
		info, err := os.Stat(m)
		if err != nil {
			return "", 0, fmt.Errorf("stat artifact: %w", err)
		}
		return m, info.Size(), nil
	}

	return "", 0, fmt.Errorf("only partial artifact produced for key %s", key)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// YtDlpSearcher resolves free-text queries via yt-dlp flat extraction, which
// returns metadata without downloading anything.
type YtDlpSearcher struct {
	binPath string
}

func NewYtDlpSearcher(binPath string) *YtDlpSearcher {
	if binPath == "" {
		binPath = "yt-dlp"
	}
	return &YtDlpSearcher{binPath: binPath}
}

type flatEntry struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Uploader string  `json:"uploader"`
	Channel  string  `json:"channel"`
	Duration float64 `json:"duration"`
}

func (s *YtDlpSearcher) Search(ctx context.Context, query string, limit int) ([]media.SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}

	args := []string{
		"--flat-playlist",
		"--dump-json",
		"--no-warnings",
		"--quiet",
		fmt.Sprintf("ytsearch%d:%s", limit, query),
	}

	log.Debug().
		Str("query", query).
		Int("limit", limit).
		Msg("Running yt-dlp search")

	cmd := exec.CommandContext(ctx, s.binPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("yt-dlp search failed: %w: %s", err, firstLine(stderr.String()))
	}

	return parseFlatEntries(stdout.Bytes())
}

func parseFlatEntries(raw []byte) ([]media.SearchHit, error) {
	var hits []media.SearchHit

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var entry flatEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			log.Debug().Err(err).Msg("Skipping unparseable search entry")
			continue
		}
		if entry.ID == "" || entry.Title == "" {
			continue
		}

		artist := entry.Uploader
		if artist == "" {
			artist = entry.Channel
		}

		hits = append(hits, media.SearchHit{
			Title:      entry.Title,
			Artist:     artist,
			DurationS:  int(entry.Duration),
			ExternalID: entry.ID,
			Source:     media.SourceKindVideoSearch,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan search output: %w", err)
	}

	return hits, nil
}
