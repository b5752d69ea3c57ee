// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ManuGH/streamvault/internal/api/middleware"
	"github.com/ManuGH/streamvault/internal/log"
)

// APIError is a stable machine-readable error code with its human label.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

var (
	ErrUnauthorized = &APIError{
		Code:    "UNAUTHORIZED",
		Message: "Authentication required",
	}
	ErrInvalidInput = &APIError{
		Code:    "INVALID_INPUT",
		Message: "Invalid request",
	}
	ErrVideoNotFound = &APIError{
		Code:    "VIDEO_NOT_FOUND",
		Message: "Video not found",
	}
	ErrUpscaleNotFound = &APIError{
		Code:    "UPSCALE_NOT_FOUND",
		Message: "Upscale request not found",
	}
	ErrModelNotFound = &APIError{
		Code:    "MODEL_NOT_FOUND",
		Message: "Model not found",
	}
	ErrStreamNotFound = &APIError{
		Code:    "STREAM_NOT_FOUND",
		Message: "Stream not found",
	}
	ErrSourceUnreadable = &APIError{
		Code:    "SOURCE_UNREADABLE",
		Message: "Source video could not be probed",
	}
	ErrPayloadTooLarge = &APIError{
		Code:    "PAYLOAD_TOO_LARGE",
		Message: "Upload exceeds the configured limit",
	}
	ErrQueueUnavailable = &APIError{
		Code:    "QUEUE_UNAVAILABLE",
		Message: "Job queue unavailable, retry later",
	}
	ErrInternal = &APIError{
		Code:    "INTERNAL_ERROR",
		Message: "Internal server error",
	}
)

// writeJSON writes a JSON response with the given status code.
// If encoding fails, headers are already sent so we can't change the status code,
// but we log the error for debugging.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.L().Error().
			Err(err).
			Int("status", code).
			Msg("failed to encode JSON response - client may receive partial data")
	}
}

// RespondError writes an RFC 7807 problem response for apiErr. detail, when
// non-empty, explains the specific failure.
func RespondError(w http.ResponseWriter, r *http.Request, status int, apiErr *APIError, detail string) {
	reqID := log.RequestIDFromContext(r.Context())
	if reqID == "" {
		reqID = w.Header().Get(middleware.HeaderRequestID)
	}

	res := map[string]any{
		"type":      "error/" + strings.ToLower(apiErr.Code),
		"title":     apiErr.Message,
		"status":    status,
		"code":      apiErr.Code,
		"instance":  r.URL.EscapedPath(),
		"requestId": reqID,
	}
	if detail != "" {
		res["detail"] = detail
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		log.L().Error().
			Err(err).
			Str("code", apiErr.Code).
			Int("status", status).
			Msg("failed to encode problem response")
	}
}
