// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/streamvault/internal/keys"
	"github.com/ManuGH/streamvault/internal/log"
	"github.com/ManuGH/streamvault/internal/media"
	"github.com/ManuGH/streamvault/internal/metrics"
)

// handleKey implements GET /<drm-endpoint>/{streamID}: the raw 16-byte
// AES-128 key referenced by the stream's playlist.
func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamID")
	logger := log.WithComponentFromContext(r.Context(), "drm").With().Str(log.FieldStreamID, streamID).Logger()

	stream, err := s.deps.Store.Streams().Get(r.Context(), streamID)
	if errors.Is(err, media.ErrStreamNotFound) {
		metrics.RecordKeyDelivery("not_found")
		RespondError(w, r, http.StatusNotFound, ErrStreamNotFound, "")
		return
	}
	if err != nil {
		metrics.RecordKeyDelivery("error")
		logger.Error().Err(err).Msg("load stream failed")
		RespondError(w, r, http.StatusInternalServerError, ErrInternal, "")
		return
	}

	key, err := keys.DecodeHex(stream.Key)
	if err != nil {
		metrics.RecordKeyDelivery("error")
		logger.Error().Err(err).Msg("stored key is malformed")
		RespondError(w, r, http.StatusInternalServerError, ErrInternal, "")
		return
	}

	metrics.RecordKeyDelivery("ok")
	logger.Debug().Str(log.FieldEvent, "drm.key_delivered").Str("principal", principalID(r)).Msg("key delivered")
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(key)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(key)
}
