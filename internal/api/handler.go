// D-Back - Discord Presence and Chat Relay
// Copyright 2026 NNTin
// SPDX-License-Identifier: MIT
// https://github.com/NNTin/d-back

// Package api is the HTTP surface: websocket admission, the version endpoint,
// metrics, and static file serving, all on one port.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/NNTin/d-back/internal/auth"
	"github.com/NNTin/d-back/internal/config"
	"github.com/NNTin/d-back/internal/logging"
	"github.com/NNTin/d-back/internal/relay"
)

// Handler carries the collaborators the HTTP endpoints need.
type Handler struct {
	cfg       *config.Config
	hub       *relay.Hub
	validator *auth.Validator
	version   string
}

// NewHandler creates the endpoint handler.
func NewHandler(cfg *config.Config, hub *relay.Hub, validator *auth.Validator, version string) *Handler {
	return &Handler{cfg: cfg, hub: hub, validator: validator, version: version}
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout against slow-client attacks.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates WebSocket connection origins. An absent
// Origin header is allowed: bots and scripted viewers connect without one,
// and same-origin browser clients are covered by the configured list.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if h.cfg == nil {
		return true
	}
	for _, allowed := range h.cfg.Security.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().Str("origin", origin).Msg("websocket connection rejected from unauthorized origin")
	return false
}

// WebSocket admits one viewer connection: resolve identity, upgrade, register
// with the hub, start the pumps.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := h.validator.Resolve(r.Context(), bearerToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("websocket upgrade error")
		return
	}

	client := relay.NewClient(h.hub, conn, identity)
	h.hub.Register <- client
	client.Start()
}

// bearerToken extracts the OAuth2 token from the Authorization header or the
// token query parameter. Browser WebSocket clients cannot set headers, so the
// query form is the common path.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return token
		}
	}
	return r.URL.Query().Get("token")
}

// versionResponse is the /api/version body.
type versionResponse struct {
	Version string `json:"version"`
}

// Version reports the running server version.
func (h *Handler) Version(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(versionResponse{Version: h.version}); err != nil {
		logging.Error().Err(err).Msg("failed to encode version response")
	}
}

// OAuthInfo exposes the OAuth2 application id so front ends can start the
// authorization flow. Empty when auth is not configured.
func (h *Handler) OAuthInfo(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	body := struct {
		ClientID string `json:"clientId"`
		Mode     string `json:"mode"`
	}{
		ClientID: h.validator.ClientID(),
		Mode:     string(h.validator.Mode()),
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error().Err(err).Msg("failed to encode oauth info response")
	}
}
