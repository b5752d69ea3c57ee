// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ManuGH/streamvault/internal/media"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.resolveDerived()
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	assert.NoError(t, Validate(validConfig()))
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"frame concurrency", func(c *Config) { c.Inference.FrameConcurrency = 0 }},
		{"resident models", func(c *Config) { c.Inference.MaxResidentModels = 0 }},
		{"provider", func(c *Config) { c.Inference.Provider = "tpu" }},
		{"segment seconds", func(c *Config) { c.FFmpeg.SegmentSeconds = 0 }},
		{"videos dir escape", func(c *Config) { c.Paths.VideosDir = "../x" }},
		{"drm endpoint", func(c *Config) { c.DRM.Endpoint = "/" }},
		{"worker", func(c *Config) { c.Worker.Concurrency = 0 }},
		{"upload limit", func(c *Config) { c.API.MaxUploadMB = 0 }},
		{"sampling", func(c *Config) { c.Telemetry.SamplingRate = 2 }},
		{"exporter", func(c *Config) { c.Telemetry.Enabled = true; c.Telemetry.Exporter = "zipkin" }},
		{"model scale", func(c *Config) { c.Models = []media.OnnxModel{{ID: "m", Path: "/m", Scale: 0}} }},
		{"model dup", func(c *Config) {
			c.Models = []media.OnnxModel{{ID: "m", Path: "/a", Scale: 2}, {ID: "m", Path: "/b", Scale: 2}}
		}},
		{"model element", func(c *Config) { c.Models = []media.OnnxModel{{ID: "m", Path: "/a", Scale: 2, ElementType: "int8"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := Validate(cfg)
			assert.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestValidate_CollectsAll(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "loud"
	cfg.Worker.Concurrency = 0
	err := Validate(cfg)
	assert.ErrorContains(t, err, "logLevel")
	assert.ErrorContains(t, err, "worker.concurrency")
}
