// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/streamvault/internal/ffmpeg"
	"github.com/ManuGH/streamvault/internal/health"
	"github.com/ManuGH/streamvault/internal/media"
	"github.com/ManuGH/streamvault/internal/paths"
	"github.com/ManuGH/streamvault/internal/queue"
	"github.com/ManuGH/streamvault/internal/store/sqlite"
)

type fakeProber struct {
	mu     sync.Mutex
	result ffmpeg.ProbeResult
	err    error
	paths  []string
}

func (p *fakeProber) Probe(_ context.Context, path string) (*ffmpeg.ProbeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, path)
	if p.err != nil {
		return nil, p.err
	}
	res := p.result
	return &res, nil
}

type apiHarness struct {
	t        *testing.T
	store    *sqlite.Store
	queue    *queue.MemoryQueue
	prober   *fakeProber
	paths    *paths.Resolver
	settings Settings
	server   *Server
}

func newAPIHarness(t *testing.T, mutate ...func(*Settings)) *apiHarness {
	t.Helper()
	root := t.TempDir()
	st, err := sqlite.New(filepath.Join(root, "data", "streamvault.db"), sqlite.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	resolver, err := paths.NewResolver(filepath.Join(root, "www"), filepath.Join(root, "tmp"), "videos")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(resolver.WebRoot, 0o750))

	q := queue.NewMemoryQueue(16)
	t.Cleanup(func() { _ = q.Close() })

	h := &apiHarness{
		t:      t,
		store:  st,
		queue:  q,
		prober: &fakeProber{result: ffmpeg.ProbeResult{Width: 1280, Height: 720, FrameRate: "25/1", FPS: 25, HasAudio: true}},
		paths:  resolver,
		settings: Settings{
			DRMEndpoint:    "drm",
			MaxUploadBytes: 1 << 20,
		},
	}
	for _, fn := range mutate {
		fn(&h.settings)
	}
	h.server = New(Deps{
		Store:  st,
		Queue:  q,
		Prober: h.prober,
		Paths:  resolver,
		Health: health.NewManager("test"),
	}, h.settings)
	return h
}

func (h *apiHarness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (h *apiHarness) postJSON(path string, body any) *httptest.ResponseRecorder {
	b, err := json.Marshal(body)
	require.NoError(h.t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return h.do(req)
}

func (h *apiHarness) get(path string) *httptest.ResponseRecorder {
	return h.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (h *apiHarness) writeSource(rel string) {
	h.t.Helper()
	abs := filepath.Join(h.paths.WebRoot, filepath.FromSlash(rel))
	require.NoError(h.t, os.MkdirAll(filepath.Dir(abs), 0o750))
	require.NoError(h.t, os.WriteFile(abs, []byte("raw"), 0o640))
}

func (h *apiHarness) dequeue() queue.Job {
	h.t.Helper()
	job, err := h.queue.Dequeue(context.Background(), 100*time.Millisecond)
	require.NoError(h.t, err)
	return job
}

func (h *apiHarness) seedVideo(id string, status media.VideoStatus) *media.Video {
	h.t.Helper()
	now := time.Now().UTC()
	v := &media.Video{ID: id, RawPath: "uploads/" + id + ".mp4", Status: status, Resolution: media.R720, CreatedAt: now, UpdatedAt: now}
	require.NoError(h.t, h.store.Videos().Add(context.Background(), v))
	return v
}

func (h *apiHarness) seedStream(videoID, streamID, key string) {
	h.t.Helper()
	require.NoError(h.t, h.store.Streams().Add(context.Background(), &media.VideoStream{
		ID:           streamID,
		VideoID:      videoID,
		Resolution:   media.R360,
		PlaylistPath: "videos/" + videoID + "/360p/index.m3u8",
		Key:          key,
		IV:           strings.Repeat("0", 32),
		Width:        640,
		Height:       360,
		CreatedAt:    time.Now().UTC(),
	}))
}

type problem struct {
	Code      string `json:"code"`
	Status    int    `json:"status"`
	Detail    string `json:"detail"`
	RequestID string `json:"requestId"`
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p problem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	assert.Equal(t, rec.Code, p.Status)
	return p
}

func decodeAccepted(t *testing.T, rec *httptest.ResponseRecorder) jobAccepted {
	t.Helper()
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var out jobAccepted
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestRegisterVideo_FromWebRoot(t *testing.T) {
	h := newAPIHarness(t)
	h.writeSource("uploads/movie.mp4")

	out := decodeAccepted(t, h.postJSON("/api/v1/videos", map[string]string{"rawPath": "uploads/movie.mp4"}))

	require.NotNil(t, out.Video)
	assert.Equal(t, media.VideoQueued, out.Video.Status)
	assert.Equal(t, media.R720, out.Video.Resolution)
	assert.Equal(t, "uploads/movie.mp4", out.Video.RawPath)
	assert.Equal(t, []string{filepath.Join(h.paths.WebRoot, "uploads", "movie.mp4")}, h.prober.paths)

	stored, err := h.store.Videos().Get(context.Background(), out.Video.ID)
	require.NoError(t, err)
	assert.Equal(t, media.VideoQueued, stored.Status)

	job := h.dequeue()
	assert.Equal(t, out.JobID, job.ID)
	assert.Equal(t, queue.KindEncode, job.Kind)
	assert.Equal(t, out.Video.ID, job.TargetID)
}

func TestRegisterVideo_CeilingFollowsProbedHeight(t *testing.T) {
	tests := []struct {
		height int
		want   media.Resolution
	}{
		{2160, media.R2160},
		{1088, media.R1080},
		{719, media.R480},
		{240, media.ResolutionNone},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			h := newAPIHarness(t)
			h.writeSource("a.mkv")
			h.prober.result.Height = tt.height

			out := decodeAccepted(t, h.postJSON("/api/v1/videos", map[string]string{"rawPath": "a.mkv"}))
			assert.Equal(t, tt.want, out.Video.Resolution)
		})
	}
}

func TestRegisterVideo_AbsolutePathInsideWebRoot(t *testing.T) {
	h := newAPIHarness(t)
	h.writeSource("in/clip.mov")

	out := decodeAccepted(t, h.postJSON("/api/v1/videos", map[string]string{
		"rawPath": filepath.Join(h.paths.WebRoot, "in", "clip.mov"),
	}))
	assert.Equal(t, "in/clip.mov", out.Video.RawPath)
}

func TestRegisterVideo_RejectsBadSources(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"missing field", map[string]string{}},
		{"outside web root", map[string]string{"rawPath": "../secret.mp4"}},
		{"absolute outside web root", map[string]string{"rawPath": "/etc/passwd"}},
		{"not found", map[string]string{"rawPath": "nope.mp4"}},
		{"directory", map[string]string{"rawPath": "videos"}},
		{"not json", "rawPath=x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newAPIHarness(t)
			require.NoError(t, os.MkdirAll(filepath.Join(h.paths.WebRoot, "videos"), 0o750))

			rec := h.postJSON("/api/v1/videos", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, ErrInvalidInput.Code, decodeProblem(t, rec).Code)
			assert.Empty(t, h.prober.paths)
		})
	}
}

func TestRegisterVideo_ProbeFailure(t *testing.T) {
	h := newAPIHarness(t)
	h.writeSource("broken.mp4")
	h.prober.err = ffmpeg.ErrNoVideoStream

	rec := h.postJSON("/api/v1/videos", map[string]string{"rawPath": "broken.mp4"})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, ErrSourceUnreadable.Code, p.Code)
	assert.Contains(t, p.Detail, "no video stream")
	n, err := h.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestRegisterVideo_MultipartUpload(t *testing.T) {
	h := newAPIHarness(t)
	body, ctype := multipartBody(t, "file", "Holiday.MP4", []byte("video-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/videos", body)
	req.Header.Set("Content-Type", ctype)

	out := decodeAccepted(t, h.do(req))

	want := "videos/" + out.Video.ID + "/source.mp4"
	assert.Equal(t, want, out.Video.RawPath)
	data, err := os.ReadFile(filepath.Join(h.paths.WebRoot, filepath.FromSlash(want)))
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(data))
	assert.Equal(t, queue.KindEncode, h.dequeue().Kind)
}

func TestRegisterVideo_MultipartErrors(t *testing.T) {
	t.Run("too large", func(t *testing.T) {
		h := newAPIHarness(t, func(s *Settings) { s.MaxUploadBytes = 64 })
		body, ctype := multipartBody(t, "file", "a.mp4", bytes.Repeat([]byte("x"), 1024))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/videos", body)
		req.Header.Set("Content-Type", ctype)

		rec := h.do(req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, ErrPayloadTooLarge.Code, decodeProblem(t, rec).Code)
	})

	t.Run("missing file part", func(t *testing.T) {
		h := newAPIHarness(t)
		body, ctype := multipartBody(t, "video", "a.mp4", []byte("x"))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/videos", body)
		req.Header.Set("Content-Type", ctype)

		rec := h.do(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("probe failure removes upload", func(t *testing.T) {
		h := newAPIHarness(t)
		h.prober.err = errors.New("moov atom not found")
		body, ctype := multipartBody(t, "file", "a.mp4", []byte("x"))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/videos", body)
		req.Header.Set("Content-Type", ctype)

		rec := h.do(req)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		entries, err := os.ReadDir(filepath.Join(h.paths.WebRoot, "videos"))
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestUploadExt(t *testing.T) {
	assert.Equal(t, ".mp4", uploadExt("a.MP4"))
	assert.Equal(t, ".mkv", uploadExt("dir/b.mkv"))
	assert.Equal(t, ".bin", uploadExt("noext"))
	assert.Equal(t, ".bin", uploadExt("x.m p4"))
	assert.Equal(t, ".bin", uploadExt("x.toolongext"))
}

func TestRegisterVideo_QueueUnavailable(t *testing.T) {
	h := newAPIHarness(t)
	h.writeSource("a.mp4")
	require.NoError(t, h.queue.Close())

	rec := h.postJSON("/api/v1/videos", map[string]string{"rawPath": "a.mp4"})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, ErrQueueUnavailable.Code, decodeProblem(t, rec).Code)
}

func TestGetVideo(t *testing.T) {
	h := newAPIHarness(t)
	h.seedVideo("v1", media.VideoReady)
	h.seedStream("v1", "s1", strings.Repeat("ab", 16))

	rec := h.get("/api/v1/videos/v1")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), strings.Repeat("ab", 16), "key material must not leak")
	var v media.Video
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	assert.Equal(t, "v1", v.ID)
	require.Len(t, v.Streams, 1)
	assert.Equal(t, "s1", v.Streams[0].ID)
}

func TestGetVideo_NotFound(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.get("/api/v1/videos/missing")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, ErrVideoNotFound.Code, p.Code)
	assert.NotEmpty(t, p.RequestID)
}

func TestEncodeVideo_RequeuesFailedVideo(t *testing.T) {
	h := newAPIHarness(t)
	v := h.seedVideo("v1", media.VideoFailed)
	v.Error = "encode failed"
	require.NoError(t, h.store.Videos().Update(context.Background(), v))

	out := decodeAccepted(t, h.do(httptest.NewRequest(http.MethodPost, "/api/v1/videos/v1/encode", nil)))

	assert.Equal(t, media.VideoQueued, out.Video.Status)
	stored, err := h.store.Videos().Get(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, media.VideoQueued, stored.Status)
	assert.Empty(t, stored.Error)
	assert.Equal(t, "v1", h.dequeue().TargetID)
}

func TestEncodeVideo_ReadyVideoKeepsStatus(t *testing.T) {
	h := newAPIHarness(t)
	h.seedVideo("v1", media.VideoReady)

	decodeAccepted(t, h.do(httptest.NewRequest(http.MethodPost, "/api/v1/videos/v1/encode", nil)))

	stored, err := h.store.Videos().Get(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, media.VideoReady, stored.Status)
}

func TestEncodeVideo_NotFound(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(httptest.NewRequest(http.MethodPost, "/api/v1/videos/nope/encode", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateUpscale(t *testing.T) {
	h := newAPIHarness(t)
	h.seedVideo("v1", media.VideoReady)
	require.NoError(t, h.store.Models().Upsert(context.Background(), media.OnnxModel{ID: "x2", Path: "/models/x2.onnx", Scale: 2}))

	out := decodeAccepted(t, h.postJSON("/api/v1/videos/v1/upscales", map[string]string{"modelId": "x2"}))

	require.NotNil(t, out.Upscale)
	assert.Equal(t, media.UpscaleQueued, out.Upscale.Status)
	assert.Equal(t, "v1", out.Upscale.VideoID)
	assert.Equal(t, "x2", out.Upscale.ModelID)

	job := h.dequeue()
	assert.Equal(t, queue.KindUpscale, job.Kind)
	assert.Equal(t, out.Upscale.ID, job.TargetID)

	rec := h.get("/api/v1/upscales/" + out.Upscale.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	var got media.VideoUpscale
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, out.Upscale.ID, got.ID)

	rec = h.get("/api/v1/videos/v1/upscales")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []media.VideoUpscale
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 1)
}

func TestCreateUpscale_Errors(t *testing.T) {
	h := newAPIHarness(t)
	h.seedVideo("v1", media.VideoReady)

	rec := h.postJSON("/api/v1/videos/v1/upscales", map[string]string{"modelId": "ghost"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, ErrModelNotFound.Code, decodeProblem(t, rec).Code)

	rec = h.postJSON("/api/v1/videos/v1/upscales", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.postJSON("/api/v1/videos/nope/upscales", map[string]string{"modelId": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	n, err := h.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGetUpscale_NotFound(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.get("/api/v1/upscales/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrUpscaleNotFound.Code, decodeProblem(t, rec).Code)
}

func TestListModels(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.get("/api/v1/models")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	require.NoError(t, h.store.Models().Upsert(context.Background(), media.OnnxModel{ID: "x4", Path: "/m/x4.onnx", Scale: 4}))
	rec = h.get("/api/v1/models")
	var models []media.OnnxModel
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&models))
	require.Len(t, models, 1)
	assert.Equal(t, 4, models[0].Scale)
}

func TestKeyDelivery(t *testing.T) {
	h := newAPIHarness(t)
	h.seedVideo("v1", media.VideoReady)
	h.seedStream("v1", "s1", "000102030405060708090a0b0c0d0e0f")

	rec := h.get("/drm/s1")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, rec.Body.Bytes())

	rec = h.get("/drm/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrStreamNotFound.Code, decodeProblem(t, rec).Code)
}

func TestKeyDelivery_CustomEndpointAndToken(t *testing.T) {
	h := newAPIHarness(t, func(s *Settings) {
		s.DRMEndpoint = "/keys/"
		s.DRMToken = "drm-secret"
	})
	h.seedVideo("v1", media.VideoReady)
	h.seedStream("v1", "s1", "000102030405060708090a0b0c0d0e0f")

	assert.Equal(t, http.StatusNotFound, h.get("/drm/s1").Code)

	rec := h.get("/keys/s1")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	assert.Equal(t, http.StatusOK, h.get("/keys/s1?token=drm-secret").Code)

	req := httptest.NewRequest(http.MethodGet, "/keys/s1", nil)
	req.Header.Set("Authorization", "Bearer drm-secret")
	assert.Equal(t, http.StatusOK, h.do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/keys/s1", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, h.do(req).Code)
}

func TestAPIToken(t *testing.T) {
	h := newAPIHarness(t, func(s *Settings) { s.APIToken = "api-secret" })
	h.seedVideo("v1", media.VideoReady)

	rec := h.get("/api/v1/videos/v1")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, ErrUnauthorized.Code, decodeProblem(t, rec).Code)

	// Query tokens are only accepted for key delivery.
	assert.Equal(t, http.StatusUnauthorized, h.get("/api/v1/videos/v1?token=api-secret").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/videos/v1", nil)
	req.Header.Set("Authorization", "Bearer api-secret")
	assert.Equal(t, http.StatusOK, h.do(req).Code)

	// Probes and key delivery are outside the API token.
	assert.Equal(t, http.StatusOK, h.get("/healthz").Code)
}

func TestRateLimitAppliesToAPIOnly(t *testing.T) {
	h := newAPIHarness(t, func(s *Settings) { s.RateLimitPerMinute = 1 })
	h.seedVideo("v1", media.VideoReady)
	h.seedStream("v1", "s1", "000102030405060708090a0b0c0d0e0f")

	assert.Equal(t, http.StatusOK, h.get("/api/v1/videos/v1").Code)
	assert.Equal(t, http.StatusTooManyRequests, h.get("/api/v1/videos/v1").Code)
	for range 3 {
		assert.Equal(t, http.StatusOK, h.get("/drm/s1").Code)
	}
}

func TestProbesAndMetrics(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.get("/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = h.get("/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.get("/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "streamvault_http_requests_in_flight")
}

func TestUnknownRouteIsProblem(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.get("/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeProblem(t, rec).Code)
}
