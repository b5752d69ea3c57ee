// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/ManuGH/streamvault/internal/log"
)

// RateLimitConfig describes a sliding window limiter.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	// KeyFunc partitions clients. Nil means per remote IP.
	KeyFunc func(r *http.Request) (string, error)
}

// RateLimit rejects requests beyond cfg.Requests per cfg.Window and key with
// a 429 problem response.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	keyFn := cfg.KeyFunc
	if keyFn == nil {
		keyFn = httprate.KeyByIP
	}
	retryAfter := strconv.Itoa(max(1, int(cfg.Window.Round(time.Second).Seconds())))

	return httprate.Limit(cfg.Requests, cfg.Window,
		httprate.WithKeyFuncs(keyFn),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			logger := log.WithComponentFromContext(r.Context(), "ratelimit")
			logger.Warn().
				Str(log.FieldEvent, "http.rate_limited").
				Str(log.FieldPath, r.URL.Path).
				Msg("request throttled")
			w.Header().Set("Retry-After", retryAfter)
			writeProblem(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
		}),
	)
}

// APIRateLimit allows perMinute requests per client IP and minute.
func APIRateLimit(perMinute int) func(http.Handler) http.Handler {
	return RateLimit(RateLimitConfig{Requests: perMinute, Window: time.Minute})
}
