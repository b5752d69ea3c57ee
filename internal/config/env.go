// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/streamvault/internal/log"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STREAMVAULT_"

// lookupEnv returns the variable's value and whether it is set non-empty.
func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	return v, ok && v != ""
}

func isSecretKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "token") || strings.Contains(k, "password")
}

// ParseString returns the variable's value, or def when unset or empty.
func ParseString(key, def string) string {
	v, ok := lookupEnv(key)
	if !ok {
		return def
	}
	logger := log.WithComponent("config")
	evt := logger.Debug().Str("key", key).Str("source", "environment")
	if isSecretKey(key) {
		evt = evt.Bool("sensitive", true)
	} else {
		evt = evt.Str("value", v)
	}
	evt.Msg("using environment variable")
	return v
}

// parseTyped converts a set variable with parse, keeping def and warning
// when the value does not parse.
func parseTyped[T any](key string, def T, parse func(string) (T, error)) T {
	raw, ok := lookupEnv(key)
	if !ok {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		logger := log.WithComponent("config")
		logger.Warn().
			Str("key", key).
			Str("value", raw).
			Interface("default", def).
			Msg("unparsable environment variable, using default")
		return def
	}
	return v
}

// ParseInt reads a base-10 integer.
func ParseInt(key string, def int) int {
	return parseTyped(key, def, strconv.Atoi)
}

// ParseDuration reads a Go duration such as "90s".
func ParseDuration(key string, def time.Duration) time.Duration {
	return parseTyped(key, def, time.ParseDuration)
}

// ParseFloat reads a 64-bit float.
func ParseFloat(key string, def float64) float64 {
	return parseTyped(key, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

// ParseBool accepts true/false, 1/0 and yes/no in any case.
func ParseBool(key string, def bool) bool {
	return parseTyped(key, def, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
		return false, fmt.Errorf("not a boolean: %q", s)
	})
}

// applyEnv overlays STREAMVAULT_* variables on cfg.
func applyEnv(cfg *Config) {
	e := func(name string) string { return EnvPrefix + name }

	cfg.DataDir = ParseString(e("DATA_DIR"), cfg.DataDir)
	cfg.LogLevel = ParseString(e("LOG_LEVEL"), cfg.LogLevel)

	cfg.Paths.WebRoot = ParseString(e("WEB_ROOT"), cfg.Paths.WebRoot)
	cfg.Paths.TempDir = ParseString(e("TEMP_DIR"), cfg.Paths.TempDir)
	cfg.Paths.VideosDir = ParseString(e("VIDEOS_DIR"), cfg.Paths.VideosDir)

	cfg.Database.Path = ParseString(e("DB_PATH"), cfg.Database.Path)
	cfg.Database.BusyTimeout = ParseDuration(e("DB_BUSY_TIMEOUT"), cfg.Database.BusyTimeout)

	cfg.Redis.Addr = ParseString(e("REDIS_ADDR"), cfg.Redis.Addr)
	cfg.Redis.Password = ParseString(e("REDIS_PASSWORD"), cfg.Redis.Password)
	cfg.Redis.DB = ParseInt(e("REDIS_DB"), cfg.Redis.DB)
	cfg.Redis.QueueKey = ParseString(e("REDIS_QUEUE_KEY"), cfg.Redis.QueueKey)

	cfg.FFmpeg.Bin = ParseString(e("FFMPEG_BIN"), cfg.FFmpeg.Bin)
	cfg.FFmpeg.FFprobeBin = ParseString(e("FFPROBE_BIN"), cfg.FFmpeg.FFprobeBin)
	cfg.FFmpeg.VideoEncoder = ParseString(e("VIDEO_ENCODER"), cfg.FFmpeg.VideoEncoder)
	cfg.FFmpeg.StallTimeout = ParseDuration(e("FFMPEG_STALL_TIMEOUT"), cfg.FFmpeg.StallTimeout)

	cfg.Inference.SharedLibraryPath = ParseString(e("ORT_LIBRARY"), cfg.Inference.SharedLibraryPath)
	cfg.Inference.Provider = ParseString(e("INFERENCE_PROVIDER"), cfg.Inference.Provider)
	cfg.Inference.DeviceID = ParseInt(e("INFERENCE_DEVICE_ID"), cfg.Inference.DeviceID)
	cfg.Inference.MaxResidentModels = ParseInt(e("MAX_RESIDENT_MODELS"), cfg.Inference.MaxResidentModels)
	cfg.Inference.FrameConcurrency = ParseInt(e("FRAME_CONCURRENCY"), cfg.Inference.FrameConcurrency)

	cfg.Worker.Concurrency = ParseInt(e("WORKER_CONCURRENCY"), cfg.Worker.Concurrency)
	cfg.Worker.JobTimeout = ParseDuration(e("JOB_TIMEOUT"), cfg.Worker.JobTimeout)

	cfg.API.ListenAddr = ParseString(e("LISTEN"), cfg.API.ListenAddr)
	cfg.API.Token = ParseString(e("API_TOKEN"), cfg.API.Token)
	cfg.API.RateLimit = ParseInt(e("RATE_LIMIT"), cfg.API.RateLimit)
	cfg.API.MaxUploadMB = ParseInt(e("MAX_UPLOAD_MB"), cfg.API.MaxUploadMB)

	cfg.DRM.Endpoint = ParseString(e("DRM_ENDPOINT"), cfg.DRM.Endpoint)
	cfg.DRM.Token = ParseString(e("DRM_TOKEN"), cfg.DRM.Token)

	cfg.Telemetry.Enabled = ParseBool(e("TELEMETRY_ENABLED"), cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = ParseString(e("OTLP_EXPORTER"), cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = ParseString(e("OTLP_ENDPOINT"), cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = ParseFloat(e("TRACE_SAMPLING_RATE"), cfg.Telemetry.SamplingRate)
}
