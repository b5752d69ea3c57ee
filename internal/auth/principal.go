// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"
)

// Scopes granted by the two static tokens.
const (
	ScopeAPI = "api"
	ScopeDRM = "drm"
)

// AnonymousID identifies callers when no token is configured.
const AnonymousID = "anonymous"

// Principal represents the authenticated identity of a caller.
type Principal struct {
	// ID is a stable identifier derived from the token, safe to log.
	ID string

	// Scopes are the permissions granted to this principal.
	Scopes []string
}

// NewPrincipal derives a Principal from a token. An empty token yields the
// anonymous principal.
func NewPrincipal(token string, scopes ...string) *Principal {
	id := AnonymousID
	if token != "" {
		hash := sha256.Sum256([]byte(token))
		id = "t_" + hex.EncodeToString(hash[:])[:16]
	}
	return &Principal{ID: id, Scopes: scopes}
}

// HasScope reports whether p was granted scope.
func (p *Principal) HasScope(scope string) bool {
	return slices.Contains(p.Scopes, scope)
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by WithPrincipal, if any.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
