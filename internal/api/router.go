// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

// Package api exposes the radar over HTTP: the events read model, the
// editorial feedback write path, the live websocket stream and the
// operational endpoints.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vigiadados/radar/internal/broadcast"
	"github.com/vigiadados/radar/internal/config"
	"github.com/vigiadados/radar/internal/database"
	"github.com/vigiadados/radar/internal/feedback"
	"github.com/vigiadados/radar/internal/profile"
)

// NewRouter builds the chi routing tree. CORS runs globally so OPTIONS
// preflights are answered before rate limiting kicks in.
func NewRouter(
	cfg *config.Config,
	db *database.DB,
	registry *profile.Registry,
	sink *feedback.Sink,
	hub *broadcast.Hub,
	broadcaster *broadcast.Broadcaster,
) http.Handler {
	h := &Handler{cfg: cfg, db: db, registry: registry, sink: sink, broadcaster: broadcaster}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.HealthLive)
	r.Get("/readyz", h.HealthReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Server.RateLimitReqs > 0 {
			r.Use(httprate.LimitByIP(cfg.Server.RateLimitReqs, cfg.Server.RateLimitWindow))
		}

		r.Get("/events", h.ListEvents)
		r.Get("/events/{id}", h.GetEvent)
		r.Get("/events/{id}/history", h.EventHistory)
		r.Get("/events/{id}/feedback", h.EventFeedback)
		r.Post("/feedback", h.PostFeedback)
		r.Get("/sources", h.ListSources)

		r.Get("/ws", hub.ServeWS)
	})

	return r
}
