// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Shaxzodbek16/TinglaBot/internal/api/handlers"
	"github.com/Shaxzodbek16/TinglaBot/internal/config"
	"github.com/Shaxzodbek16/TinglaBot/internal/models"
	"github.com/Shaxzodbek16/TinglaBot/internal/services/music"
)

type Server struct {
	server  *http.Server
	logger  zerolog.Logger
	config  *config.AppConfig
	version string

	musicService *music.Service
	userStore    *models.UserStore
}

type Dependencies struct {
	Config       *config.AppConfig
	Version      string
	MusicService *music.Service
	UserStore    *models.UserStore
}

func NewServer(deps *Dependencies) *Server {
	return &Server{
		server: &http.Server{
			ReadHeaderTimeout: time.Second * 15,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      120 * time.Second,
			IdleTimeout:       180 * time.Second,
		},
		logger:       log.Logger.With().Str("module", "api").Logger(),
		config:       deps.Config,
		version:      deps.Version,
		musicService: deps.MusicService,
		userStore:    deps.UserStore,
	}
}

func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.config.Config.Host, s.config.Config.Port)

	var lastErr error
	for _, proto := range []string{"tcp", "tcp4", "tcp6"} {
		err := s.tryToServe(addr, proto)
		if err == nil {
			return nil
		}

		if errors.Is(err, http.ErrServerClosed) {
			return err
		}

		s.logger.Error().Err(err).Str("addr", addr).Str("proto", proto).Msg("Failed to start server")
		lastErr = err
	}

	return lastErr
}

func (s *Server) tryToServe(addr, protocol string) error {
	listener, err := net.Listen(protocol, addr)
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("protocol", protocol).
		Str("addr", listener.Addr().String()).
		Msg("Starting API server")

	s.server.Handler = s.Handler()

	return s.server.Serve(listener)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) Handler() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)

	corsMiddleware := cors.New(cors.Options{
		AllowCredentials: true,
		AllowedMethods:   []string{"HEAD", "OPTIONS", "GET", "POST", "PUT", "DELETE"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowOriginFunc:  func(origin string) bool { return true },
		MaxAge:           300,
	})
	r.Use(corsMiddleware.Handler)

	healthHandler := handlers.NewHealthHandler(s.version)
	musicHandler := handlers.NewMusicHandler(s.musicService, s.config.GetMediaDir())
	usersHandler := handlers.NewUsersHandler(s.userStore)

	r.Get("/health", healthHandler.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		musicHandler.Routes(r)
		usersHandler.Routes(r)
	})

	return r
}
