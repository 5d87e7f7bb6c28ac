// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/Shaxzodbek16/TinglaBot/internal/models"
)

type UsersHandler struct {
	store *models.UserStore
}

func NewUsersHandler(store *models.UserStore) *UsersHandler {
	return &UsersHandler{store: store}
}

func (h *UsersHandler) Routes(r chi.Router) {
	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/language", h.SetLanguage)
		r.Post("/credits", h.AddCredits)
	})
}

type userResponse struct {
	ID            int64  `json:"id"`
	Username      string `json:"username"`
	Language      string `json:"language"`
	RequestsLeft  int    `json:"requestsLeft"`
	DownloadCount int    `json:"downloadCount"`
}

func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := h.store.Get(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Int64("userID", userID).Msg("Failed to load user")
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	writeJSON(w, http.StatusOK, userResponse{
		ID:            user.ID,
		Username:      user.Username,
		Language:      user.Language,
		RequestsLeft:  user.RequestsLeft,
		DownloadCount: user.DownloadCount,
	})
}

type setLanguageRequest struct {
	Language string `json:"language"`
}

func (h *UsersHandler) SetLanguage(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req setLanguageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Language == "" {
		writeError(w, http.StatusBadRequest, "language is required")
		return
	}

	if err := h.store.SetLanguage(r.Context(), userID, req.Language); err != nil {
		log.Error().Err(err).Int64("userID", userID).Msg("Failed to set language")
		writeError(w, http.StatusInternalServerError, "failed to set language")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type addCreditsRequest struct {
	Amount int `json:"amount"`
}

func (h *UsersHandler) AddCredits(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req addCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	if err := h.store.AddRequests(r.Context(), userID, req.Amount); err != nil {
		log.Error().Err(err).Int64("userID", userID).Msg("Failed to add credits")
		writeError(w, http.StatusInternalServerError, "failed to add credits")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
