// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/Shaxzodbek16/TinglaBot/internal/config"
	"github.com/Shaxzodbek16/TinglaBot/internal/domain"
)

type routeKey struct {
	Method string
	Path   string
}

var expectedRoutes = []routeKey{
	{Method: http.MethodGet, Path: "/health"},
	{Method: http.MethodPost, Path: "/api/search"},
	{Method: http.MethodGet, Path: "/api/results/{userID}"},
	{Method: http.MethodPost, Path: "/api/select"},
	{Method: http.MethodPost, Path: "/api/download"},
	{Method: http.MethodPost, Path: "/api/recognize"},
	{Method: http.MethodGet, Path: "/api/users/{userID}"},
	{Method: http.MethodPut, Path: "/api/users/{userID}/language"},
	{Method: http.MethodPost, Path: "/api/users/{userID}/credits"},
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	return NewServer(&Dependencies{
		Config: &config.AppConfig{
			Config: &domain.Config{
				Host: "localhost",
				Port: 0,
			},
		},
		Version: "test",
	})
}

func TestRoutesRegistered(t *testing.T) {
	server := newTestServer(t)
	router := server.Handler()

	actual := make(map[routeKey]struct{})
	err := chi.Walk(router, func(method string, path string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if path != "/" {
			path = strings.TrimSuffix(path, "/")
		}
		actual[routeKey{Method: strings.ToUpper(method), Path: path}] = struct{}{}
		return nil
	})
	require.NoError(t, err)

	expected := make(map[routeKey]struct{}, len(expectedRoutes))
	for _, route := range expectedRoutes {
		expected[route] = struct{}{}
		require.Contains(t, actual, route, "missing route %s %s", route.Method, route.Path)
	}
	for route := range actual {
		require.Contains(t, expected, route, "unexpected route %s %s", route.Method, route.Path)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "test", body["version"])
}
