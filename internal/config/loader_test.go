// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, filepath.Join("/var/lib/streamvault", "web"), cfg.Paths.WebRoot)
	assert.Equal(t, filepath.Join("/var/lib/streamvault", "streamvault.db"), cfg.Database.Path)
	assert.Equal(t, 1, cfg.Inference.FrameConcurrency)
	assert.Equal(t, 15, cfg.FFmpeg.SegmentSeconds)
	assert.Equal(t, "h264_nvenc", cfg.FFmpeg.VideoEncoder)
	assert.Equal(t, "drm", cfg.DRM.Endpoint)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
dataDir: /srv/sv
logLevel: debug
ffmpeg:
  videoEncoder: libx264
  stallTimeout: 30s
inference:
  provider: cuda
  frameConcurrency: 2
models:
  - id: x4
    path: /models/x4.onnx
    scale: 4
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, filepath.Join("/srv/sv", "web"), cfg.Paths.WebRoot)
	assert.Equal(t, "libx264", cfg.FFmpeg.VideoEncoder)
	assert.Equal(t, "aac", cfg.FFmpeg.AudioCodec, "unset keys keep defaults")
	assert.Equal(t, 30*time.Second, cfg.FFmpeg.StallTimeout)
	assert.Equal(t, "cuda", cfg.Inference.Provider)
	assert.Equal(t, 2, cfg.Inference.FrameConcurrency)
	require.Len(t, cfg.Models, 1)
	assert.Equal(t, "float32", cfg.Models[0].ElementType)
	assert.Equal(t, 4, cfg.Models[0].Scale)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "inference:\n  frameConcurrency: 2\napi:\n  listenAddr: \":9000\"\n")
	t.Setenv("STREAMVAULT_FRAME_CONCURRENCY", "6")
	t.Setenv("STREAMVAULT_API_TOKEN", "secret")
	t.Setenv("STREAMVAULT_REDIS_ADDR", "127.0.0.1:6379")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Inference.FrameConcurrency)
	assert.Equal(t, ":9000", cfg.API.ListenAddr)
	assert.Equal(t, "secret", cfg.API.Token)
	assert.Equal(t, "127.0.0.1:6379", cfg.Redis.Addr)
}

func TestLoad_InvalidEnvFallsBack(t *testing.T) {
	t.Setenv("STREAMVAULT_WORKER_CONCURRENCY", "many")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Worker.Concurrency)
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	path := writeConfig(t, "inference:\n  frameConcurency: 2\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownConfigField))
}

func TestLoad_MultipleDocumentsRejected(t *testing.T) {
	path := writeConfig(t, "logLevel: info\n---\nlogLevel: debug\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Defaults().FFmpeg, cfg.FFmpeg)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
