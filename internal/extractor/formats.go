// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package extractor

// FormatProfile is one rung of a download format ladder. Profiles are tried
// most-preferred first; a failed or undersized artifact advances to the next.
type FormatProfile struct {
	Name string
	// Selector is the yt-dlp format expression.
	Selector string
	// MaxFileSizeBytes aborts the download when the rendition exceeds it.
	// Zero means unlimited.
	MaxFileSizeBytes int64
	// Audio extracts an audio-only rendition.
	Audio bool
}

const (
	audioSizeCeiling = 40 << 20
	videoSizeCeiling = 45 << 20
)

// AudioLadder returns the audio format ladder, preferred first. m4a keeps
// player compatibility broad; the tail rungs trade quality guarantees for a
// higher chance of any artifact at all.
func AudioLadder() []FormatProfile {
	return []FormatProfile{
		{
			Name:             "m4a",
			Selector:         "bestaudio[ext=m4a]",
			MaxFileSizeBytes: audioSizeCeiling,
			Audio:            true,
		},
		{
			Name:             "bestaudio",
			Selector:         "bestaudio",
			MaxFileSizeBytes: audioSizeCeiling,
			Audio:            true,
		},
		{
			Name:     "best",
			Selector: "best",
			Audio:    true,
		},
	}
}

// VideoLadder returns the video format ladder, preferred first.
func VideoLadder() []FormatProfile {
	return []FormatProfile{
		{
			Name:             "720p-capped",
			Selector:         "best[height<=720]",
			MaxFileSizeBytes: videoSizeCeiling,
		},
		{
			Name:     "720p",
			Selector: "best[height<=720]",
		},
		{
			Name:     "best",
			Selector: "best",
		},
	}
}
