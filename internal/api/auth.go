// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/ManuGH/streamvault/internal/auth"
	"github.com/ManuGH/streamvault/internal/log"
)

// requireToken enforces a static bearer token when one is configured and
// stores the caller's principal in the request context. allowQuery admits
// ?token= for clients that cannot set headers.
func requireToken(token, scope string, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				ctx := auth.WithPrincipal(r.Context(), auth.NewPrincipal("", scope))
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			logger := log.WithComponentFromContext(r.Context(), "auth")
			reqToken, src := auth.ExtractToken(r, allowQuery)
			if reqToken == "" {
				logger.Warn().Str(log.FieldEvent, "auth.missing_token").Str("scope", scope).Msg("authorization token missing")
				w.Header().Set("WWW-Authenticate", `Bearer realm="streamvault"`)
				RespondError(w, r, http.StatusUnauthorized, ErrUnauthorized, "")
				return
			}
			if !auth.AuthorizeToken(reqToken, token) {
				logger.Warn().
					Str(log.FieldEvent, "auth.invalid_token").
					Str("scope", scope).
					Str("source", string(src)).
					Msg("invalid token")
				w.Header().Set("WWW-Authenticate", `Bearer realm="streamvault", error="invalid_token"`)
				RespondError(w, r, http.StatusUnauthorized, ErrUnauthorized, "")
				return
			}

			ctx := auth.WithPrincipal(r.Context(), auth.NewPrincipal(reqToken, scope))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// principalID returns the caller id for logging.
func principalID(r *http.Request) string {
	if p := auth.PrincipalFromContext(r.Context()); p != nil {
		return p.ID
	}
	return auth.AnonymousID
}
