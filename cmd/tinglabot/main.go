// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Shaxzodbek16/TinglaBot/internal/api"
	"github.com/Shaxzodbek16/TinglaBot/internal/buildinfo"
	"github.com/Shaxzodbek16/TinglaBot/internal/config"
	"github.com/Shaxzodbek16/TinglaBot/internal/cooldown"
	"github.com/Shaxzodbek16/TinglaBot/internal/database"
	"github.com/Shaxzodbek16/TinglaBot/internal/extractor"
	"github.com/Shaxzodbek16/TinglaBot/internal/fallback"
	"github.com/Shaxzodbek16/TinglaBot/internal/models"
	"github.com/Shaxzodbek16/TinglaBot/internal/recognition"
	"github.com/Shaxzodbek16/TinglaBot/internal/services/music"
	"github.com/Shaxzodbek16/TinglaBot/internal/sessioncache"
	"github.com/Shaxzodbek16/TinglaBot/internal/sweeper"
	"github.com/Shaxzodbek16/TinglaBot/internal/workpool"
)

func main() {
	config.InitDefaultLogger(buildinfo.Version)

	var rootCmd = &cobra.Command{
		Use:   "tinglabot",
		Short: "Music search, download and recognition service",
		Long: `tinglabot - a self-hosted music acquisition service with
credential-rotating download fallback and audio recognition.`,
	}

	rootCmd.Version = buildinfo.Version

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand(buildinfo.Version))
	rootCmd.AddCommand(RunGenerateConfigCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunServeCommand() *cobra.Command {
	var (
		configDir string
		dataDir   string
		logPath   string
	)

	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/tinglabot/). Can also be a direct path to a .toml file")
	command.Flags().StringVar(&dataDir, "data-dir", "", "data directory for database and downloaded media (default is next to config file)")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stdout)")

	command.Run = func(cmd *cobra.Command, args []string) {
		app := NewApplication(configDir, dataDir, logPath)
		app.runServer()
	}

	return command
}

func RunVersionCommand(version string) *cobra.Command {
	var command = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of tinglabot",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	return command
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file without starting the server.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/tinglabot/config.toml
- Windows: %APPDATA%\tinglabot\config.toml

You can specify either a directory path or a direct file path:
- Directory: tinglabot generate-config --config-dir /path/to/config/
- File: tinglabot generate-config --config-dir /path/to/myconfig.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var configPath string
			if configDir != "" {
				if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
					configPath = configDir
				} else if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
					configPath = configDir
				} else {
					configPath = filepath.Join(configDir, "config.toml")
				}
			} else {
				defaultDir := config.GetDefaultConfigDir()
				configPath = filepath.Join(defaultDir, "config.toml")
			}

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

type Application struct {
	configDir string
	dataDir   string
	logPath   string
}

func NewApplication(configDir, dataDir, logPath string) *Application {
	return &Application{
		configDir: configDir,
		dataDir:   dataDir,
		logPath:   logPath,
	}
}

func (app *Application) runServer() {
	// Flags win over config file and environment.
	if app.dataDir != "" {
		os.Setenv("TINGLABOT__DATA_DIR", app.dataDir)
	}
	if app.logPath != "" {
		os.Setenv("TINGLABOT__LOG_PATH", app.logPath)
	}

	cfg, err := config.New(app.configDir, buildinfo.Version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize configuration")
	}

	cfg.ApplyLogConfig()

	log.Info().Str("version", buildinfo.Version).Msg("Starting tinglabot")

	db, err := database.New(cfg.GetDatabasePath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	userStore := models.NewUserStore(db.Conn())

	mediaDir := cfg.GetMediaDir()
	if err := os.MkdirAll(mediaDir, 0755); err != nil {
		log.Fatal().Err(err).Str("dir", mediaDir).Msg("Failed to create media directory")
	}

	credentials, err := extractor.NewCredentialStore(cfg.Config.CookieDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Config.CookieDir).Msg("Failed to load cookie credentials")
	}
	log.Info().Int("credentials", credentials.Len()).Msg("Credential store ready")

	ytdlp := extractor.NewYtDlpExtractor(cfg.Config.YtDlpPath)
	searcher := extractor.NewYtDlpSearcher(cfg.Config.YtDlpPath)
	pool := workpool.New(cfg.Config.MaxWorkers)
	engine := fallback.NewEngine(ytdlp, pool)
	direct := extractor.NewDirectHTTPExtractor(int64(cfg.Config.MaxDownloadBytesMB) << 20)

	cache := sessioncache.New(
		cfg.Config.MaxSessions,
		cfg.Config.PageSize,
		time.Duration(cfg.Config.SessionTTLMinutes)*time.Minute,
	)
	limiter := cooldown.New(time.Duration(cfg.Config.CooldownSeconds) * time.Second)

	searchTimeout := time.Duration(cfg.Config.SearchTimeoutSeconds) * time.Second

	transcoder := recognition.NewTranscoder(cfg.Config.FfmpegPath)
	recognizerClient := recognition.NewClient(cfg.Config.RecognizerURL, cfg.Config.RecognizerAPIKey)
	pipeline := recognition.NewPipeline(transcoder, recognizerClient, searcher, searchTimeout, cfg.Config.SearchLimit)
	if cfg.Config.RecognizerURL == "" {
		log.Warn().Msg("No recognizer URL configured - audio recognition will be unavailable")
	}

	musicService := music.NewService(
		userStore,
		searcher,
		engine,
		direct,
		credentials,
		cache,
		limiter,
		pipeline,
		music.Config{
			MediaDir:      mediaDir,
			SearchLimit:   cfg.Config.SearchLimit,
			SearchTimeout: searchTimeout,
			AudioTimeout:  time.Duration(cfg.Config.AudioDownloadTimeoutSeconds) * time.Second,
			VideoTimeout:  time.Duration(cfg.Config.VideoDownloadTimeoutSeconds) * time.Second,
		},
	)

	sweep := sweeper.New(
		mediaDir,
		time.Duration(cfg.Config.SweepMinutes)*time.Minute,
		time.Duration(cfg.Config.RetentionMinutes)*time.Minute,
		cache,
		limiter,
	)
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	sweep.Start(sweepCtx)
	defer sweep.Stop()

	httpServer := api.NewServer(&api.Dependencies{
		Config:       cfg,
		Version:      buildinfo.Version,
		MusicService: musicService,
		UserStore:    userStore,
	})

	errorChannel := make(chan error)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorChannel <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Msgf("got signal %v, shutting down server", sig.String())
	case err := <-errorChannel:
		log.Error().Err(err).Msg("got unexpected error from server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("got error during graceful http shutdown")
		os.Exit(1)
	}

	os.Exit(0)
}
