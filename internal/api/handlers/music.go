// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/Shaxzodbek16/TinglaBot/internal/fallback"
	"github.com/Shaxzodbek16/TinglaBot/internal/media"
	"github.com/Shaxzodbek16/TinglaBot/internal/recognition"
	"github.com/Shaxzodbek16/TinglaBot/internal/services/music"
	"github.com/Shaxzodbek16/TinglaBot/internal/sessioncache"
	"github.com/Shaxzodbek16/TinglaBot/internal/workpool"
)

// maxUploadBytes caps recognition uploads.
const maxUploadBytes = 20 << 20

type MusicHandler struct {
	service  *music.Service
	mediaDir string
}

func NewMusicHandler(service *music.Service, mediaDir string) *MusicHandler {
	return &MusicHandler{service: service, mediaDir: mediaDir}
}

func (h *MusicHandler) Routes(r chi.Router) {
	r.Post("/search", h.Search)
	r.Get("/results/{userID}", h.GetPage)
	r.Post("/select", h.Select)
	r.Post("/download", h.Download)
	r.Post("/recognize", h.Recognize)
}

type searchRequest struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Query    string `json:"query"`
}

type pageResponse struct {
	Hits      []media.SearchHit `json:"hits"`
	PageIndex int               `json:"pageIndex"`
	Total     int               `json:"total"`
	HasMore   bool              `json:"hasMore"`
}

func toPageResponse(page *sessioncache.Page) pageResponse {
	return pageResponse{
		Hits:      page.Hits,
		PageIndex: page.PageIndex,
		Total:     page.Total,
		HasMore:   page.HasMore,
	}
}

func (h *MusicHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == 0 {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	page, err := h.service.Search(r.Context(), req.UserID, req.Username, req.Query)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPageResponse(page))
}

func (h *MusicHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	page := 0
	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 0 {
			writeError(w, http.StatusBadRequest, "invalid page index")
			return
		}
	}

	result, err := h.service.GetPage(r.Context(), userID, page)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPageResponse(result))
}

type selectRequest struct {
	UserID int64  `json:"userId"`
	Index  int    `json:"index"`
	Kind   string `json:"kind"`
}

type downloadResponse struct {
	Path      string          `json:"path"`
	SizeBytes int64           `json:"sizeBytes"`
	Hit       media.SearchHit `json:"hit"`
}

func (h *MusicHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	kind, err := parseKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.service.Select(r.Context(), req.UserID, req.Index, kind)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, downloadResponse{
		Path:      res.Path,
		SizeBytes: res.SizeBytes,
		Hit:       res.Hit,
	})
}

type downloadRequest struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	URL      string `json:"url"`
	Kind     string `json:"kind"`
}

func (h *MusicHandler) Download(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	kind, err := parseKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.service.TryDownload(r.Context(), req.UserID, req.Username, req.URL, kind)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, downloadResponse{
		Path:      res.Path,
		SizeBytes: res.SizeBytes,
		Hit:       res.Hit,
	})
}

type recognizeResponse struct {
	Candidates []media.TrackCandidate `json:"candidates"`
	Page       pageResponse           `json:"page"`
}

// Recognize accepts a multipart media upload, identifies the track and seeds
// the user's session with downloadable hits.
func (h *MusicHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	userID, err := strconv.ParseInt(r.FormValue("userId"), 10, 64)
	if err != nil || userID == 0 {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	username := r.FormValue("username")

	file, header, err := r.FormFile("media")
	if err != nil {
		writeError(w, http.StatusBadRequest, "media file is required")
		return
	}
	defer file.Close()

	srcPath, err := h.saveUpload(file, header.Filename)
	if err != nil {
		log.Error().Err(err).Msg("Failed to persist recognition upload")
		writeError(w, http.StatusInternalServerError, music.MsgInternal)
		return
	}
	defer os.Remove(srcPath)

	outcome, page, err := h.service.RecogniseAndSearch(r.Context(), userID, username, srcPath)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, recognizeResponse{
		Candidates: outcome.Candidates,
		Page:       toPageResponse(page),
	})
}

func (h *MusicHandler) saveUpload(file io.Reader, name string) (string, error) {
	if err := os.MkdirAll(h.mediaDir, 0755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}

	ext := filepath.Ext(name)
	if ext == "" {
		ext = ".bin"
	}

	out, err := os.CreateTemp(h.mediaDir, "upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}

	if _, err := io.Copy(out, io.LimitReader(file, maxUploadBytes)); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("close upload: %w", err)
	}

	return out.Name(), nil
}

func parseKind(raw string) (music.RenditionKind, error) {
	switch raw {
	case "", string(music.RenditionAudio):
		return music.RenditionAudio, nil
	case string(music.RenditionVideo):
		return music.RenditionVideo, nil
	default:
		return "", fmt.Errorf("unknown rendition kind %q", raw)
	}
}

// writeServiceError translates service failures into HTTP status codes while
// keeping the body down to the user-facing message.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, music.ErrQueryTooShort):
		status = http.StatusBadRequest
	case errors.Is(err, music.ErrCooldownActive), errors.Is(err, music.ErrBudgetExhausted):
		status = http.StatusTooManyRequests
	case errors.Is(err, sessioncache.ErrNotFound):
		status = http.StatusGone
	case errors.Is(err, workpool.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, fallback.ErrExhausted):
		status = http.StatusBadGateway
	case errors.Is(err, recognition.ErrNoMatch):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}

	writeError(w, status, music.UserMessage(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
