// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ManuGH/streamvault/internal/log"
	"github.com/ManuGH/streamvault/internal/media"
	"github.com/ManuGH/streamvault/internal/queue"
)

type createUpscaleRequest struct {
	ModelID string `json:"modelId"`
}

// handleCreateUpscale implements POST /api/v1/videos/{id}/upscales.
func (s *Server) handleCreateUpscale(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")

	var req createUpscaleRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil || strings.TrimSpace(req.ModelID) == "" {
		RespondError(w, r, http.StatusBadRequest, ErrInvalidInput, "body must be JSON with modelId")
		return
	}

	video, ok := s.loadVideo(w, r)
	if !ok {
		return
	}
	if _, err := s.deps.Store.Models().Get(r.Context(), req.ModelID); err != nil {
		if errors.Is(err, media.ErrModelNotFound) {
			RespondError(w, r, http.StatusUnprocessableEntity, ErrModelNotFound, req.ModelID)
			return
		}
		logger.Error().Err(err).Str(log.FieldModelID, req.ModelID).Msg("load model failed")
		RespondError(w, r, http.StatusInternalServerError, ErrInternal, "")
		return
	}

	now := s.now().UTC()
	up := &media.VideoUpscale{
		ID:        uuid.NewString(),
		VideoID:   video.ID,
		ModelID:   req.ModelID,
		Status:    media.UpscaleQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.deps.Store.Upscales().Add(r.Context(), up); err != nil {
		logger.Error().Err(err).Str(log.FieldVideoID, video.ID).Msg("persist upscale failed")
		RespondError(w, r, http.StatusInternalServerError, ErrInternal, "")
		return
	}

	job, ok := s.enqueue(w, r, queue.KindUpscale, up.ID)
	if !ok {
		return
	}
	logger.Info().
		Str(log.FieldEvent, "upscale.requested").
		Str(log.FieldUpscaleID, up.ID).
		Str(log.FieldVideoID, video.ID).
		Str(log.FieldModelID, up.ModelID).
		Str(log.FieldJobID, job.ID).
		Str("principal", principalID(r)).
		Msg("upscale requested")
	writeJSON(w, http.StatusAccepted, jobAccepted{JobID: job.ID, Upscale: up})
}

// handleListUpscales implements GET /api/v1/videos/{id}/upscales.
func (s *Server) handleListUpscales(w http.ResponseWriter, r *http.Request) {
	video, ok := s.loadVideo(w, r)
	if !ok {
		return
	}
	ups := video.Upscales
	if ups == nil {
		ups = []*media.VideoUpscale{}
	}
	writeJSON(w, http.StatusOK, ups)
}

// handleGetUpscale implements GET /api/v1/upscales/{id}.
func (s *Server) handleGetUpscale(w http.ResponseWriter, r *http.Request) {
	up, err := s.deps.Store.Upscales().Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, media.ErrUpscaleNotFound) {
		RespondError(w, r, http.StatusNotFound, ErrUpscaleNotFound, "")
		return
	}
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Msg("load upscale failed")
		RespondError(w, r, http.StatusInternalServerError, ErrInternal, "")
		return
	}
	writeJSON(w, http.StatusOK, up)
}

// handleListModels implements GET /api/v1/models.
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.deps.Store.Models().List(r.Context())
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Msg("list models failed")
		RespondError(w, r, http.StatusInternalServerError, ErrInternal, "")
		return
	}
	if models == nil {
		models = []media.OnnxModel{}
	}
	writeJSON(w, http.StatusOK, models)
}
