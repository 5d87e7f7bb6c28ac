// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

type Config struct {
	Version string

	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	LogLevel      string `mapstructure:"logLevel"`
	LogPath       string `mapstructure:"logPath"`
	LogMaxSize    int    `mapstructure:"logMaxSize"`
	LogMaxBackups int    `mapstructure:"logMaxBackups"`

	DataDir   string `mapstructure:"dataDir"`
	MediaDir  string `mapstructure:"mediaDir"`
	CookieDir string `mapstructure:"cookieDir"`

	YtDlpPath  string `mapstructure:"ytDlpPath"`
	FfmpegPath string `mapstructure:"ffmpegPath"`

	RecognizerURL    string `mapstructure:"recognizerUrl"`
	RecognizerAPIKey string `mapstructure:"recognizerApiKey"`

	MaxWorkers int `mapstructure:"maxWorkers"`

	SearchTimeoutSeconds        int `mapstructure:"searchTimeoutSeconds"`
	AudioDownloadTimeoutSeconds int `mapstructure:"audioDownloadTimeoutSeconds"`
	VideoDownloadTimeoutSeconds int `mapstructure:"videoDownloadTimeoutSeconds"`

	PageSize           int `mapstructure:"pageSize"`
	SearchLimit        int `mapstructure:"searchLimit"`
	MaxSessions        int `mapstructure:"maxSessions"`
	SessionTTLMinutes  int `mapstructure:"sessionTtlMinutes"`
	CooldownSeconds    int `mapstructure:"cooldownSeconds"`
	SweepMinutes       int `mapstructure:"sweepMinutes"`
	RetentionMinutes   int `mapstructure:"retentionMinutes"`
	MaxDownloadBytesMB int `mapstructure:"maxDownloadBytesMb"`
}
