// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ManuGH/streamvault/internal/log"
	"github.com/ManuGH/streamvault/internal/media"
	"github.com/ManuGH/streamvault/internal/queue"
)

// uploadMemory is the part of a multipart body parsed into memory; the rest spills to disk.
const uploadMemory = 32 << 20

// enqueueTimeout bounds a push to a full or unreachable queue.
const enqueueTimeout = 5 * time.Second

type registerVideoRequest struct {
	// RawPath is relative to the web root, or absolute inside it.
	RawPath string `json:"rawPath"`
}

type jobAccepted struct {
	JobID   string              `json:"job_id"`
	Video   *media.Video        `json:"video,omitempty"`
	Upscale *media.VideoUpscale `json:"upscale,omitempty"`
}

// handleRegisterVideo implements POST /api/v1/videos. The body is either
// JSON naming a file already under the web root, or a multipart upload with
// a "file" part.
func (s *Server) handleRegisterVideo(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")
	videoID := uuid.NewString()

	var (
		rawPath string
		cleanup func()
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		rel, status, apiErr, detail := s.receiveUpload(w, r, videoID)
		if apiErr != nil {
			RespondError(w, r, status, apiErr, detail)
			return
		}
		rawPath = rel
		cleanup = func() { _ = os.RemoveAll(s.deps.Paths.VideoDir(videoID)) }
	} else {
		var req registerVideoRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			RespondError(w, r, http.StatusBadRequest, ErrInvalidInput, "body must be JSON with rawPath")
			return
		}
		rel, err := s.sourcePath(req.RawPath)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, ErrInvalidInput, err.Error())
			return
		}
		rawPath = rel
		cleanup = func() {}
	}

	abs, err := s.deps.Paths.Abs(rawPath)
	if err != nil {
		cleanup()
		RespondError(w, r, http.StatusBadRequest, ErrInvalidInput, err.Error())
		return
	}
	probe, err := s.deps.Prober.Probe(r.Context(), abs)
	if err != nil {
		cleanup()
		logger.Warn().Err(err).Str(log.FieldPath, rawPath).Msg("source probe failed")
		RespondError(w, r, http.StatusUnprocessableEntity, ErrSourceUnreadable, err.Error())
		return
	}

	now := s.now().UTC()
	video := &media.Video{
		ID:         videoID,
		RawPath:    rawPath,
		Status:     media.VideoQueued,
		Resolution: media.ClassifyCeiling(probe.Height),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.deps.Store.Videos().Add(r.Context(), video); err != nil {
		cleanup()
		logger.Error().Err(err).Str(log.FieldVideoID, videoID).Msg("persist video failed")
		RespondError(w, r, http.StatusInternalServerError, ErrInternal, "")
		return
	}

	job, ok := s.enqueue(w, r, queue.KindEncode, videoID)
	if !ok {
		return
	}
	logger.Info().
		Str(log.FieldEvent, "video.registered").
		Str(log.FieldVideoID, videoID).
		Str(log.FieldJobID, job.ID).
		Str(log.FieldResolution, video.Resolution.String()).
		Int(log.FieldWidth, probe.Width).
		Int(log.FieldHeight, probe.Height).
		Str("principal", principalID(r)).
		Msg("video registered")
	writeJSON(w, http.StatusAccepted, jobAccepted{JobID: job.ID, Video: video})
}

// sourcePath validates a client-supplied source location and returns its
// persisted, web-root-relative form.
func (s *Server) sourcePath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", errors.New("rawPath is required")
	}
	var (
		rel string
		err error
	)
	if filepath.IsAbs(p) {
		rel, err = s.deps.Paths.Rel(filepath.Clean(p))
	} else {
		var abs string
		if abs, err = s.deps.Paths.Abs(p); err == nil {
			rel, err = s.deps.Paths.Rel(abs)
		}
	}
	if err != nil {
		return "", err
	}
	abs, _ := s.deps.Paths.Abs(rel)
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("source %q not found", rel)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("source %q is not a regular file", rel)
	}
	return rel, nil
}

// receiveUpload stores the "file" part under the video's directory.
func (s *Server) receiveUpload(w http.ResponseWriter, r *http.Request, videoID string) (string, int, *APIError, string) {
	r.Body = http.MaxBytesReader(w, r.Body, s.settings.MaxUploadBytes)
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return "", http.StatusRequestEntityTooLarge, ErrPayloadTooLarge, fmt.Sprintf("limit is %d bytes", s.settings.MaxUploadBytes)
		}
		return "", http.StatusBadRequest, ErrInvalidInput, err.Error()
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", http.StatusBadRequest, ErrInvalidInput, "file field is required"
	}
	defer func() { _ = file.Close() }()

	dir := s.deps.Paths.VideoDir(videoID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", http.StatusInternalServerError, ErrInternal, ""
	}
	dst := filepath.Join(dir, "source"+uploadExt(header.Filename))
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", http.StatusInternalServerError, ErrInternal, ""
	}
	if _, err := io.Copy(out, file); err != nil {
		_ = out.Close()
		_ = os.RemoveAll(dir)
		return "", http.StatusInternalServerError, ErrInternal, ""
	}
	if err := out.Close(); err != nil {
		_ = os.RemoveAll(dir)
		return "", http.StatusInternalServerError, ErrInternal, ""
	}
	rel, err := s.deps.Paths.Rel(dst)
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", http.StatusInternalServerError, ErrInternal, ""
	}
	return rel, 0, nil, ""
}

// uploadExt keeps a short alphanumeric extension from the client file name.
func uploadExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) < 2 || len(ext) > 6 {
		return ".bin"
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ".bin"
		}
	}
	return ext
}

// handleGetVideo implements GET /api/v1/videos/{id}.
func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	video, ok := s.loadVideo(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, video)
}

// handleEncodeVideo implements POST /api/v1/videos/{id}/encode. Encoding is
// idempotent, so this also retries failed videos and fills in rungs after a
// ceiling change.
func (s *Server) handleEncodeVideo(w http.ResponseWriter, r *http.Request) {
	video, ok := s.loadVideo(w, r)
	if !ok {
		return
	}
	if video.Status == media.VideoFailed {
		video.Status = media.VideoQueued
		video.Error = ""
		video.UpdatedAt = s.now().UTC()
		if err := s.deps.Store.Videos().Update(r.Context(), video); err != nil {
			logger := log.WithComponentFromContext(r.Context(), "api")
			logger.Error().Err(err).Str(log.FieldVideoID, video.ID).Msg("requeue video failed")
			RespondError(w, r, http.StatusInternalServerError, ErrInternal, "")
			return
		}
	}
	job, ok := s.enqueue(w, r, queue.KindEncode, video.ID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusAccepted, jobAccepted{JobID: job.ID, Video: video})
}

func (s *Server) loadVideo(w http.ResponseWriter, r *http.Request) (*media.Video, bool) {
	video, err := s.deps.Store.Videos().Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, media.ErrVideoNotFound) {
		RespondError(w, r, http.StatusNotFound, ErrVideoNotFound, "")
		return nil, false
	}
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Msg("load video failed")
		RespondError(w, r, http.StatusInternalServerError, ErrInternal, "")
		return nil, false
	}
	return video, true
}

// enqueue pushes a job and writes the error response itself on failure.
func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, kind queue.Kind, target string) (queue.Job, bool) {
	job := queue.NewJob(kind, target)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), enqueueTimeout)
	defer cancel()
	if err := s.deps.Queue.Enqueue(ctx, job); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Err(err).
			Str(log.FieldJobKind, string(kind)).
			Str("target_id", target).
			Msg("enqueue failed")
		RespondError(w, r, http.StatusServiceUnavailable, ErrQueueUnavailable, "")
		return queue.Job{}, false
	}
	return job, true
}
