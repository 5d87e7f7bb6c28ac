// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package recognition identifies the track playing in a media file via a
// remote fingerprint service.
package recognition

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	shellquote "github.com/Hellseher/go-shellquote"
	"github.com/rs/zerolog/log"
)

const (
	// clipSeconds bounds the fingerprint sample; the service needs no more.
	clipSeconds      = 10
	transcodeTimeout = 15 * time.Second
)

// Transcoder produces fingerprint-ready clips with ffmpeg: mono, 16 kHz,
// signed 16-bit PCM WAV, first ten seconds only.
type Transcoder struct {
	ffmpegPath string
}

func NewTranscoder(ffmpegPath string) *Transcoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Transcoder{ffmpegPath: ffmpegPath}
}

// Clip writes the fingerprint sample next to the source file and returns its
// path. The transcode carries its own timeout on top of ctx.
func (t *Transcoder) Clip(ctx context.Context, srcPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, transcodeTimeout)
	defer cancel()

	outPath := clipPath(srcPath)

	args := []string{
		"-y",
		"-i", srcPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", "16000",
		"-t", fmt.Sprintf("%d", clipSeconds),
		"-f", "wav",
		outPath,
	}

	log.Debug().
		Str("cmd", shellquote.Join(append([]string{t.ffmpegPath}, args...)...)).
		Msg("Running ffmpeg")

	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("transcode timed out: %w", ctx.Err())
		}
		return "", fmt.Errorf("ffmpeg failed: %w: %s", err, lastLine(stderr.String()))
	}

	return outPath, nil
}

func clipPath(srcPath string) string {
	return srcPath + ".clip.wav"
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
