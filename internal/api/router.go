// D-Back - Discord Presence and Chat Relay
// Copyright 2026 NNTin
// SPDX-License-Identifier: MIT
// https://github.com/NNTin/d-back

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NNTin/d-back/internal/config"
)

// NewRouter assembles the full HTTP surface.
//
// Global middleware applies to every route; the API group additionally gets
// per-IP rate limiting. The websocket route sits outside the rate limiter so
// reconnect storms are bounded by the hub, not dropped at the door.
func NewRouter(cfg *config.Config, handler *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Security.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/ws", handler.WebSocket)

	r.Route("/api", func(r chi.Router) {
		if !cfg.Security.RateLimitDisabled {
			r.Use(httprate.LimitByIP(cfg.Security.RateLimitReqs, cfg.Security.RateLimitWindow))
		}
		r.Get("/version", handler.Version)
		r.Get("/oauth", handler.OAuthInfo)
	})

	r.Handle("/metrics", promhttp.Handler())

	// Everything else is the static front end.
	r.NotFound(handler.serveStaticOrIndex)

	return r
}
