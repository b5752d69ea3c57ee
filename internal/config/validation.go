// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

var (
	validProviders = map[string]bool{"auto": true, "cpu": true, "cuda": true, "directml": true}
	validExporters = map[string]bool{"grpc": true, "http": true, "noop": true}
	validElemTypes = map[string]bool{"float32": true, "float16": true}
)

// Validate reports every problem in cfg, joined, each wrapping ErrInvalidConfig.
func Validate(cfg Config) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err != nil {
		fail("logLevel %q", cfg.LogLevel)
	}
	if cfg.Paths.WebRoot == "" {
		fail("paths.webRoot is required")
	}
	if cfg.Paths.TempDir == "" {
		fail("paths.tempDir is required")
	}
	if cfg.Paths.VideosDir == "" || strings.Contains(cfg.Paths.VideosDir, "..") {
		fail("paths.videosDir %q must be a plain relative directory", cfg.Paths.VideosDir)
	}
	if cfg.Database.Path == "" {
		fail("database.path is required")
	}
	if cfg.Database.MaxOpenConns < 1 {
		fail("database.maxOpenConns must be >= 1")
	}
	if cfg.Redis.Addr != "" && cfg.Redis.QueueKey == "" {
		fail("redis.queueKey is required when redis.addr is set")
	}

	if cfg.FFmpeg.Bin == "" || cfg.FFmpeg.FFprobeBin == "" {
		fail("ffmpeg.bin and ffmpeg.ffprobeBin are required")
	}
	if cfg.FFmpeg.VideoEncoder == "" {
		fail("ffmpeg.videoEncoder is required")
	}
	if cfg.FFmpeg.SegmentSeconds < 1 {
		fail("ffmpeg.segmentSeconds must be >= 1")
	}
	if cfg.FFmpeg.StallTimeout <= 0 {
		fail("ffmpeg.stallTimeout must be positive")
	}

	if !validProviders[strings.ToLower(cfg.Inference.Provider)] {
		fail("inference.provider %q (want auto, cpu, cuda or directml)", cfg.Inference.Provider)
	}
	if cfg.Inference.MaxResidentModels < 1 {
		fail("inference.maxResidentModels must be >= 1")
	}
	if cfg.Inference.FrameConcurrency < 1 {
		fail("inference.frameConcurrency must be >= 1")
	}

	if cfg.Worker.Concurrency < 1 {
		fail("worker.concurrency must be >= 1")
	}
	if cfg.Worker.PollTimeout <= 0 {
		fail("worker.pollTimeout must be positive")
	}
	if cfg.API.ListenAddr == "" {
		fail("api.listenAddr is required")
	}
	if cfg.API.RateLimit < 0 {
		fail("api.rateLimit must be >= 0")
	}
	if cfg.API.MaxUploadMB < 1 {
		fail("api.maxUploadMB must be >= 1")
	}
	if strings.Trim(cfg.DRM.Endpoint, "/") == "" || strings.Contains(cfg.DRM.Endpoint, "..") {
		fail("drm.endpoint %q", cfg.DRM.Endpoint)
	}

	if cfg.Telemetry.Enabled {
		if !validExporters[cfg.Telemetry.Exporter] {
			fail("telemetry.exporter %q (want grpc, http or noop)", cfg.Telemetry.Exporter)
		}
		if cfg.Telemetry.Endpoint == "" {
			fail("telemetry.endpoint is required when telemetry is enabled")
		}
	}
	if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
		fail("telemetry.samplingRate must be within [0, 1]")
	}

	seen := make(map[string]bool, len(cfg.Models))
	for i, m := range cfg.Models {
		switch {
		case m.ID == "":
			fail("models[%d].id is required", i)
		case seen[m.ID]:
			fail("models[%d].id %q is duplicated", i, m.ID)
		}
		seen[m.ID] = true
		if m.Path == "" {
			fail("models[%d].path is required", i)
		}
		if m.Scale < 1 {
			fail("models[%d].scale must be >= 1", i)
		}
		if m.ElementType != "" && !validElemTypes[m.ElementType] {
			fail("models[%d].elementType %q", i, m.ElementType)
		}
	}

	return errors.Join(errs...)
}
