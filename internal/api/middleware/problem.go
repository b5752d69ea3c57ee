// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ManuGH/streamvault/internal/log"
)

// writeProblem emits the same problem+json shape as the API handlers for
// responses produced before a route runs.
func writeProblem(w http.ResponseWriter, r *http.Request, status int, code, title string) {
	reqID := log.RequestIDFromContext(r.Context())
	if reqID == "" {
		reqID = w.Header().Get(HeaderRequestID)
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":      "error/" + strings.ToLower(code),
		"title":     title,
		"status":    status,
		"code":      code,
		"instance":  r.URL.EscapedPath(),
		"requestId": reqID,
	})
}
