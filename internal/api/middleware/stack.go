// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package middleware provides the HTTP ingress stack shared by the API routes.
package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// StackConfig selects the optional layers of the ingress stack.
type StackConfig struct {
	EnableSecurityHeaders bool
	// CSP overrides DefaultCSP.
	CSP           string
	EnableMetrics bool
	EnableLogging bool
	// TracingService names server spans; empty disables tracing.
	TracingService string
	// RateLimitPerMinute limits requests per client IP; zero disables limiting.
	RateLimitPerMinute int
}

// NewRouter returns a chi router with the ingress stack installed.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(Stack(cfg)...)
	return r
}

// Stack lists the middlewares in order, outermost first. Recovery wraps
// everything; the request ID is assigned before anything logs; the access log
// sits inside tracing so it can carry the span IDs.
func Stack(cfg StackConfig) []func(http.Handler) http.Handler {
	mws := []func(http.Handler) http.Handler{Recoverer, RequestID}
	if cfg.EnableSecurityHeaders {
		mws = append(mws, SecurityHeaders(cfg.CSP))
	}
	if cfg.EnableMetrics {
		mws = append(mws, Metrics())
	}
	if cfg.TracingService != "" {
		mws = append(mws, Tracing(cfg.TracingService))
	}
	if cfg.EnableLogging {
		mws = append(mws, AccessLog)
	}
	if cfg.RateLimitPerMinute > 0 {
		mws = append(mws, APIRateLimit(cfg.RateLimitPerMinute))
	}
	return mws
}
