// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package buildinfo

import "fmt"

var (
	Version = "dev"
	Commit  = ""
	Date    = ""

	UserAgent = "TinglaBot/dev"
)

func init() {
	UserAgent = fmt.Sprintf("TinglaBot/%s", Version)
}
