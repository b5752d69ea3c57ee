// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the HTTP surface of the daemon: video registration,
// encode and upscale submission, status lookups, HLS key delivery, and the
// health and metrics endpoints.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/streamvault/internal/api/middleware"
	"github.com/ManuGH/streamvault/internal/auth"
	"github.com/ManuGH/streamvault/internal/config"
	"github.com/ManuGH/streamvault/internal/ffmpeg"
	"github.com/ManuGH/streamvault/internal/health"
	"github.com/ManuGH/streamvault/internal/paths"
	"github.com/ManuGH/streamvault/internal/queue"
	"github.com/ManuGH/streamvault/internal/store"
)

// Prober reads source properties at registration time.
type Prober interface {
	Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error)
}

// Deps holds all dependencies for the API server.
type Deps struct {
	Store  store.UnitOfWork
	Queue  queue.Queue
	Prober Prober
	Paths  *paths.Resolver
	Health *health.Manager
}

// Settings are the restart-only HTTP settings.
type Settings struct {
	// APIToken guards /api/v1 when non-empty.
	APIToken string
	// DRMEndpoint is the path prefix of key URIs, without slashes.
	DRMEndpoint string
	// DRMToken guards key delivery when non-empty.
	DRMToken           string
	RateLimitPerMinute int
	MaxUploadBytes     int64
	// TracingService names HTTP spans; empty disables HTTP tracing.
	TracingService string
}

// SettingsFromConfig extracts the HTTP settings from cfg.
func SettingsFromConfig(cfg config.Config) Settings {
	s := Settings{
		APIToken:           cfg.API.Token,
		DRMEndpoint:        cfg.DRM.Endpoint,
		DRMToken:           cfg.DRM.Token,
		RateLimitPerMinute: cfg.API.RateLimit,
		MaxUploadBytes:     int64(cfg.API.MaxUploadMB) << 20,
	}
	if cfg.Telemetry.Enabled {
		s.TracingService = "streamvault-api"
	}
	return s
}

// Server serves the HTTP API.
type Server struct {
	deps     Deps
	settings Settings
	handler  http.Handler
	now      func() time.Time
}

// New builds the server and its routes.
func New(deps Deps, settings Settings) *Server {
	if deps.Health == nil {
		deps.Health = health.NewManager("")
	}
	settings.DRMEndpoint = strings.Trim(settings.DRMEndpoint, "/")
	if settings.DRMEndpoint == "" {
		settings.DRMEndpoint = "drm"
	}
	if settings.MaxUploadBytes <= 0 {
		settings.MaxUploadBytes = 4 << 30
	}
	s := &Server{
		deps:     deps,
		settings: settings,
		now:      time.Now,
	}
	s.handler = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        s.settings.TracingService,
		EnableLogging:         true,
	})

	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.settings.RateLimitPerMinute > 0 {
			r.Use(middleware.APIRateLimit(s.settings.RateLimitPerMinute))
		}
		r.Use(requireToken(s.settings.APIToken, auth.ScopeAPI, false))

		r.Post("/videos", s.handleRegisterVideo)
		r.Get("/videos/{id}", s.handleGetVideo)
		r.Post("/videos/{id}/encode", s.handleEncodeVideo)
		r.Post("/videos/{id}/upscales", s.handleCreateUpscale)
		r.Get("/videos/{id}/upscales", s.handleListUpscales)
		r.Get("/upscales/{id}", s.handleGetUpscale)
		r.Get("/models", s.handleListModels)
	})

	// Players fetch keys once per variant; no rate limit here.
	r.With(requireToken(s.settings.DRMToken, auth.ScopeDRM, true)).
		Get("/"+s.settings.DRMEndpoint+"/{streamID}", s.handleKey)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		RespondError(w, r, http.StatusNotFound, &APIError{Code: "NOT_FOUND", Message: "Not found"}, "")
	})
	return r
}
