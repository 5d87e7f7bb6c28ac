// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package music

import (
	"context"
	"errors"

	"github.com/Shaxzodbek16/TinglaBot/internal/fallback"
	"github.com/Shaxzodbek16/TinglaBot/internal/recognition"
	"github.com/Shaxzodbek16/TinglaBot/internal/sessioncache"
	"github.com/Shaxzodbek16/TinglaBot/internal/workpool"
)

// User-facing messages. The front end relays these verbatim; nothing below
// leaks backend detail.
const (
	MsgQueryTooShort   = "Send at least two characters to search."
	MsgSessionExpired  = "These results have expired. Search again."
	MsgCooldown        = "Easy there. Wait a few seconds before the next download."
	MsgBudgetExhausted = "You are out of requests."
	MsgTimeout         = "The source is taking too long. Try again in a bit."
	MsgDownloadFailed  = "Could not fetch that track. Try another result."
	MsgNoMatch         = "Could not recognise this track."
	MsgInternal        = "Something went wrong. Try again."
)

// UserMessage maps any error produced by the service into the short message
// shown to the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrQueryTooShort):
		return MsgQueryTooShort
	case errors.Is(err, ErrCooldownActive):
		return MsgCooldown
	case errors.Is(err, ErrBudgetExhausted):
		return MsgBudgetExhausted
	case errors.Is(err, sessioncache.ErrNotFound):
		return MsgSessionExpired
	case errors.Is(err, workpool.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return MsgTimeout
	case errors.Is(err, fallback.ErrExhausted):
		return MsgDownloadFailed
	case errors.Is(err, recognition.ErrNoMatch):
		return MsgNoMatch
	default:
		return MsgInternal
	}
}
