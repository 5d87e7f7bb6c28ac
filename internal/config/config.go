// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Shaxzodbek16/TinglaBot/internal/domain"
)

var envPrefix = "TINGLABOT__"

type AppConfig struct {
	Config  *domain.Config
	viper   *viper.Viper
	dataDir string
	version string

	listenersMu sync.RWMutex
	listeners   []func(*domain.Config)
}

func New(configDirOrPath string, versions ...string) (*AppConfig, error) {
	version := "dev"
	if len(versions) > 0 && strings.TrimSpace(versions[0]) != "" {
		version = versions[0]
	}

	c := &AppConfig{
		viper:   viper.New(),
		Config:  &domain.Config{},
		version: version,
	}

	c.defaults()

	if err := c.load(configDirOrPath); err != nil {
		return nil, err
	}

	c.loadFromEnv()

	if err := c.viper.Unmarshal(c.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	c.Config.Version = c.version

	c.resolveDataDir()

	c.watchConfig()

	return c, nil
}

func (c *AppConfig) defaults() {
	host := "localhost"
	if detectContainer() {
		host = "0.0.0.0"
	}

	c.viper.SetDefault("host", host)
	c.viper.SetDefault("port", 7911)
	c.viper.SetDefault("logLevel", "INFO")
	c.viper.SetDefault("logPath", "")
	c.viper.SetDefault("logMaxSize", 50)
	c.viper.SetDefault("logMaxBackups", 3)
	c.viper.SetDefault("dataDir", "") // Empty means auto-detect (next to config file)
	c.viper.SetDefault("mediaDir", "")
	c.viper.SetDefault("cookieDir", "")
	c.viper.SetDefault("ytDlpPath", "yt-dlp")
	c.viper.SetDefault("ffmpegPath", "ffmpeg")
	c.viper.SetDefault("recognizerUrl", "")
	c.viper.SetDefault("recognizerApiKey", "")
	c.viper.SetDefault("maxWorkers", 0) // 0 means derive from CPU count
	c.viper.SetDefault("searchTimeoutSeconds", 6)
	c.viper.SetDefault("audioDownloadTimeoutSeconds", 60)
	c.viper.SetDefault("videoDownloadTimeoutSeconds", 90)
	c.viper.SetDefault("pageSize", 10)
	c.viper.SetDefault("searchLimit", 30)
	c.viper.SetDefault("maxSessions", 50)
	c.viper.SetDefault("sessionTtlMinutes", 10)
	c.viper.SetDefault("cooldownSeconds", 5)
	c.viper.SetDefault("sweepMinutes", 30)
	c.viper.SetDefault("retentionMinutes", 30)
	c.viper.SetDefault("maxDownloadBytesMb", 40)
}

func (c *AppConfig) load(configDirOrPath string) error {
	c.viper.SetConfigType("toml")

	if configDirOrPath != "" {
		configPath := c.resolveConfigPath(configDirOrPath)
		c.viper.SetConfigFile(configPath)

		if err := c.viper.ReadInConfig(); err != nil {
			if os.IsNotExist(err) || strings.Contains(err.Error(), "no such file") {
				if err := c.writeDefaultConfig(configPath); err != nil {
					return err
				}
				if err := c.viper.ReadInConfig(); err != nil {
					return fmt.Errorf("failed to read newly created config: %w", err)
				}
				return nil
			}
			return fmt.Errorf("failed to read config: %w", err)
		}
		return nil
	}

	c.viper.SetConfigName("config")
	c.viper.AddConfigPath(".")
	c.viper.AddConfigPath(GetDefaultConfigDir())

	if err := c.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			defaultConfigPath := filepath.Join(GetDefaultConfigDir(), "config.toml")
			if err := c.writeDefaultConfig(defaultConfigPath); err != nil {
				return err
			}
			c.viper.SetConfigFile(defaultConfigPath)
			if err := c.viper.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read newly created config: %w", err)
			}
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	return nil
}

func (c *AppConfig) loadFromEnv() {
	// DO NOT use AutomaticEnv() - it reads ALL env vars and causes conflicts with K8s
	// Instead, explicitly bind only the environment variables we want

	c.viper.BindEnv("host", envPrefix+"HOST")
	c.viper.BindEnv("port", envPrefix+"PORT")
	c.viper.BindEnv("logLevel", envPrefix+"LOG_LEVEL")
	c.viper.BindEnv("logPath", envPrefix+"LOG_PATH")
	c.viper.BindEnv("logMaxSize", envPrefix+"LOG_MAX_SIZE")
	c.viper.BindEnv("logMaxBackups", envPrefix+"LOG_MAX_BACKUPS")
	c.viper.BindEnv("dataDir", envPrefix+"DATA_DIR")
	c.viper.BindEnv("mediaDir", envPrefix+"MEDIA_DIR")
	c.viper.BindEnv("cookieDir", envPrefix+"COOKIE_DIR")
	c.viper.BindEnv("ytDlpPath", envPrefix+"YT_DLP_PATH")
	c.viper.BindEnv("ffmpegPath", envPrefix+"FFMPEG_PATH")
	c.viper.BindEnv("recognizerUrl", envPrefix+"RECOGNIZER_URL")
	c.bindOrReadFromFile("recognizerApiKey", envPrefix+"RECOGNIZER_API_KEY")
	c.viper.BindEnv("maxWorkers", envPrefix+"MAX_WORKERS")
	c.viper.BindEnv("searchTimeoutSeconds", envPrefix+"SEARCH_TIMEOUT_SECONDS")
	c.viper.BindEnv("audioDownloadTimeoutSeconds", envPrefix+"AUDIO_DOWNLOAD_TIMEOUT_SECONDS")
	c.viper.BindEnv("videoDownloadTimeoutSeconds", envPrefix+"VIDEO_DOWNLOAD_TIMEOUT_SECONDS")
	c.viper.BindEnv("pageSize", envPrefix+"PAGE_SIZE")
	c.viper.BindEnv("searchLimit", envPrefix+"SEARCH_LIMIT")
	c.viper.BindEnv("maxSessions", envPrefix+"MAX_SESSIONS")
	c.viper.BindEnv("sessionTtlMinutes", envPrefix+"SESSION_TTL_MINUTES")
	c.viper.BindEnv("cooldownSeconds", envPrefix+"COOLDOWN_SECONDS")
	c.viper.BindEnv("sweepMinutes", envPrefix+"SWEEP_MINUTES")
	c.viper.BindEnv("retentionMinutes", envPrefix+"RETENTION_MINUTES")
	c.viper.BindEnv("maxDownloadBytesMb", envPrefix+"MAX_DOWNLOAD_BYTES_MB")
}

func (c *AppConfig) watchConfig() {
	c.viper.WatchConfig()
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Msgf("Config file changed: %s", e.Name)

		if err := c.viper.Unmarshal(c.Config); err != nil {
			log.Error().Err(err).Msg("Failed to reload configuration")
			return
		}

		c.Config.Version = c.version
		c.ApplyLogConfig()
		c.notifyListeners()
	})
}

// RegisterReloadListener registers a callback invoked after the config file is
// reloaded. The callback receives a copy of the new configuration.
func (c *AppConfig) RegisterReloadListener(fn func(*domain.Config)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *AppConfig) notifyListeners() {
	c.listenersMu.RLock()
	listeners := append([]func(*domain.Config){}, c.listeners...)
	c.listenersMu.RUnlock()

	if len(listeners) == 0 {
		return
	}

	copied := *c.Config
	for _, listener := range listeners {
		listener(&copied)
	}
}

func (c *AppConfig) writeDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		log.Debug().Msgf("Config file already exists at: %s", path)
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	log.Debug().Msgf("Created config directory: %s", dir)

	configTemplate := `# config.toml - Auto-generated on first run

# Hostname / IP
# Default: "localhost" (or "0.0.0.0" in containers)
host = "{{ .host }}"

# Port
# Default: 7911
port = {{ .port }}

# Log file path
# If not defined, logs to stdout
# Optional
#logPath = "log/tinglabot.log"

# Maximum log file size in megabytes before rotation
# Default: {{ .logMaxSize }}
#logMaxSize = {{ .logMaxSize }}

# Number of rotated log files to retain (0 keeps all)
# Default: {{ .logMaxBackups }}
#logMaxBackups = {{ .logMaxBackups }}

# Data directory (default: next to config file)
# The database file (tinglabot.db) is created inside this directory
#dataDir = "/var/db/tinglabot"

# Working directory for downloaded media artifacts
# Default: <dataDir>/media
#mediaDir = ""

# Directory holding cookie-file credentials, one file per credential.
# Files are used in sorted order, round-robin.
#cookieDir = "/etc/tinglabot/cookies"

# External tool paths
# Default: resolved from PATH
#ytDlpPath = "yt-dlp"
#ffmpegPath = "ffmpeg"

# Remote fingerprint recognition service
#recognizerUrl = "https://recognizer.example.com/v1/recognize"
#recognizerApiKey = ""

# Worker budget for blocking extraction work
# Default: 0 (derived from CPU count, capped at 16)
#maxWorkers = 0

# Deadline tiers in seconds. Search must feel interactive; downloads may run longer.
#searchTimeoutSeconds = {{ .searchTimeoutSeconds }}
#audioDownloadTimeoutSeconds = {{ .audioDownloadTimeoutSeconds }}
#videoDownloadTimeoutSeconds = {{ .videoDownloadTimeoutSeconds }}

# Result cache and pagination
#pageSize = {{ .pageSize }}
#searchLimit = {{ .searchLimit }}
#maxSessions = {{ .maxSessions }}
#sessionTtlMinutes = {{ .sessionTtlMinutes }}

# Minimum interval between a user's consecutive downloads
#cooldownSeconds = {{ .cooldownSeconds }}

# Background cleanup cadence and artifact retention
#sweepMinutes = {{ .sweepMinutes }}
#retentionMinutes = {{ .retentionMinutes }}

# Ceiling for direct HTTP downloads, in megabytes
#maxDownloadBytesMb = {{ .maxDownloadBytesMb }}

# Log level
# Default: "INFO"
# Options: "ERROR", "DEBUG", "INFO", "WARN", "TRACE"
logLevel = "{{ .logLevel }}"
`

	data := map[string]any{
		"host":                        c.viper.GetString("host"),
		"port":                        c.viper.GetInt("port"),
		"logLevel":                    c.viper.GetString("logLevel"),
		"logMaxSize":                  c.viper.GetInt("logMaxSize"),
		"logMaxBackups":               c.viper.GetInt("logMaxBackups"),
		"searchTimeoutSeconds":        c.viper.GetInt("searchTimeoutSeconds"),
		"audioDownloadTimeoutSeconds": c.viper.GetInt("audioDownloadTimeoutSeconds"),
		"videoDownloadTimeoutSeconds": c.viper.GetInt("videoDownloadTimeoutSeconds"),
		"pageSize":                    c.viper.GetInt("pageSize"),
		"searchLimit":                 c.viper.GetInt("searchLimit"),
		"maxSessions":                 c.viper.GetInt("maxSessions"),
		"sessionTtlMinutes":           c.viper.GetInt("sessionTtlMinutes"),
		"cooldownSeconds":             c.viper.GetInt("cooldownSeconds"),
		"sweepMinutes":                c.viper.GetInt("sweepMinutes"),
		"retentionMinutes":            c.viper.GetInt("retentionMinutes"),
		"maxDownloadBytesMb":          c.viper.GetInt("maxDownloadBytesMb"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse config template: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := tmpl.Execute(f, data); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Info().Msgf("Created default config file: %s", path)
	return nil
}

// GetDefaultConfigDir returns the OS-specific config directory
func GetDefaultConfigDir() string {
	// First check if XDG_CONFIG_HOME is set (Docker containers set this to /config)
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		if xdgConfig == "/config" {
			return xdgConfig
		}
		return filepath.Join(xdgConfig, "tinglabot")
	}

	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "tinglabot")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "AppData", "Roaming", "tinglabot")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "tinglabot")
	}
}

func detectContainer() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	if _, err := os.Stat("/run/.containerenv"); err == nil {
		return true
	}
	return false
}

func (c *AppConfig) ApplyLogConfig() {
	zerolog.TimeFieldFormat = time.RFC3339

	setLogLevel(c.Config.LogLevel)

	var writer io.Writer = baseLogWriter(c.version)

	if c.Config.LogPath != "" {
		multiWriter, err := setupLogFile(c.Config.LogPath, writer, c.Config.LogMaxSize, c.Config.LogMaxBackups)
		if err != nil {
			log.Error().Err(err).Msg("Failed to setup log file")
		} else {
			writer = multiWriter
		}
	}

	log.Logger = log.Logger.Output(writer)
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Logger.Level(lvl)
}

func setupLogFile(path string, base io.Writer, maxSize, maxBackups int) (io.Writer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if maxSize <= 0 {
		maxSize = 50
	}
	if maxBackups < 0 {
		maxBackups = 0
	}

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
	}

	return io.MultiWriter(base, rotator), nil
}

func baseLogWriter(version string) io.Writer {
	if isDevBuild(version) {
		return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return os.Stderr
}

// InitDefaultLogger configures zerolog before a configuration file is loaded.
// Used by CLI entry points.
func InitDefaultLogger(version string) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Logger.Output(baseLogWriter(version))
}

func isDevBuild(version string) bool {
	v := strings.ToLower(strings.TrimSpace(version))
	return v == "" || v == "dev" || strings.HasSuffix(v, "-dev")
}

// resolveConfigPath determines the actual config file path from the provided directory or file path
func (c *AppConfig) resolveConfigPath(configDirOrPath string) string {
	if strings.HasSuffix(strings.ToLower(configDirOrPath), ".toml") {
		return configDirOrPath
	}

	if info, err := os.Stat(configDirOrPath); err == nil && !info.IsDir() {
		return configDirOrPath
	}

	return filepath.Join(configDirOrPath, "config.toml")
}

// resolveDataDir sets the data directory based on configuration
func (c *AppConfig) resolveDataDir() {
	switch {
	case c.Config.DataDir != "":
		c.dataDir = c.Config.DataDir
	case c.viper.ConfigFileUsed() != "":
		c.dataDir = filepath.Dir(c.viper.ConfigFileUsed())
	default:
		c.dataDir = "."
	}
}

// GetDatabasePath returns the path to the database file
func (c *AppConfig) GetDatabasePath() string {
	return filepath.Join(c.dataDir, "tinglabot.db")
}

// GetDataDir returns the resolved data directory.
func (c *AppConfig) GetDataDir() string {
	return c.dataDir
}

// GetMediaDir returns the working directory for downloaded artifacts.
func (c *AppConfig) GetMediaDir() string {
	if c.Config.MediaDir != "" {
		return c.Config.MediaDir
	}
	return filepath.Join(c.dataDir, "media")
}

// GetConfigDir returns the directory containing the config file
func (c *AppConfig) GetConfigDir() string {
	if c.viper.ConfigFileUsed() != "" {
		return filepath.Dir(c.viper.ConfigFileUsed())
	}
	return GetDefaultConfigDir()
}

func WriteDefaultConfig(path string) error {
	c := &AppConfig{
		viper: viper.New(),
	}

	c.defaults()

	return c.writeDefaultConfig(path)
}

// Sets viper variable if environment variable with _FILE suffix is present
func (c *AppConfig) bindOrReadFromFile(viperVar string, envVar string) {
	envVarFile := envVar + "_FILE"
	if filePath := os.Getenv(envVarFile); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", filePath).Msg("Could not read " + envVarFile)
		}
		c.viper.Set(viperVar, strings.TrimSpace(string(content)))
	} else {
		c.viper.BindEnv(viperVar, envVar)
	}
}
