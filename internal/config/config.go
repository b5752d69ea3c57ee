// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/ManuGH/streamvault/internal/media"
)

// Config is the full daemon configuration.
type Config struct {
	DataDir   string            `yaml:"dataDir"`
	LogLevel  string            `yaml:"logLevel"`
	Paths     PathsConfig       `yaml:"paths"`
	Database  DatabaseConfig    `yaml:"database"`
	Redis     RedisConfig       `yaml:"redis"`
	FFmpeg    FFmpegConfig      `yaml:"ffmpeg"`
	Inference InferenceConfig   `yaml:"inference"`
	Worker    WorkerConfig      `yaml:"worker"`
	API       APIConfig         `yaml:"api"`
	DRM       DRMConfig         `yaml:"drm"`
	Telemetry TelemetryConfig   `yaml:"telemetry"`
	Models    []media.OnnxModel `yaml:"models"`
}

// PathsConfig locates published and scratch data.
type PathsConfig struct {
	// WebRoot is the publicly served tree; stored playlist paths are relative to it.
	WebRoot string `yaml:"webRoot"`
	// TempDir holds per-job working directories.
	TempDir string `yaml:"tempDir"`
	// VideosDir is the subdirectory of WebRoot that holds per-video output.
	VideosDir string `yaml:"videosDir"`
}

type DatabaseConfig struct {
	Path         string        `yaml:"path"`
	BusyTimeout  time.Duration `yaml:"busyTimeout"`
	MaxOpenConns int           `yaml:"maxOpenConns"`
}

// RedisConfig configures the job queue. An empty Addr selects the in-memory queue.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	QueueKey string `yaml:"queueKey"`
}

type FFmpegConfig struct {
	Bin            string        `yaml:"bin"`
	FFprobeBin     string        `yaml:"ffprobeBin"`
	VideoEncoder   string        `yaml:"videoEncoder"`
	AudioCodec     string        `yaml:"audioCodec"`
	AudioBitrate   string        `yaml:"audioBitrate"`
	SegmentSeconds int           `yaml:"segmentSeconds"`
	UpscaleBitrate string        `yaml:"upscaleBitrate"`
	StallTimeout   time.Duration `yaml:"stallTimeout"`
	KillGrace      time.Duration `yaml:"killGrace"`
}

type InferenceConfig struct {
	// SharedLibraryPath points at the onnxruntime shared library.
	SharedLibraryPath string `yaml:"sharedLibraryPath"`
	// Provider is one of auto, cpu, cuda, directml.
	Provider          string `yaml:"provider"`
	DeviceID          int    `yaml:"deviceID"`
	MaxResidentModels int    `yaml:"maxResidentModels"`
	// FrameConcurrency bounds frames in flight per upscale job. Hot-reloadable.
	FrameConcurrency int `yaml:"frameConcurrency"`
}

type WorkerConfig struct {
	Concurrency int           `yaml:"concurrency"`
	PollTimeout time.Duration `yaml:"pollTimeout"`
	// JobTimeout caps a single job; zero means no limit.
	JobTimeout time.Duration `yaml:"jobTimeout"`
}

type APIConfig struct {
	ListenAddr string `yaml:"listenAddr"`
	// Token, when set, is required as a bearer token on /api/v1.
	Token string `yaml:"token"`
	// RateLimit is requests per minute per client IP; zero disables limiting.
	RateLimit int `yaml:"rateLimit"`
	// MaxUploadMB bounds multipart uploads to POST /api/v1/videos.
	MaxUploadMB int `yaml:"maxUploadMB"`
}

// DRMConfig configures key delivery.
type DRMConfig struct {
	// Endpoint is the path prefix playlists reference for key retrieval.
	Endpoint string `yaml:"endpoint"`
	// Token, when set, is required as a bearer token on key requests.
	Token string `yaml:"token"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		DataDir:  "/var/lib/streamvault",
		LogLevel: "info",
		Paths: PathsConfig{
			VideosDir: "videos",
		},
		Database: DatabaseConfig{
			BusyTimeout:  5 * time.Second,
			MaxOpenConns: 4,
		},
		Redis: RedisConfig{
			QueueKey: "streamvault:jobs",
		},
		FFmpeg: FFmpegConfig{
			Bin:            "ffmpeg",
			FFprobeBin:     "ffprobe",
			VideoEncoder:   "h264_nvenc",
			AudioCodec:     "aac",
			AudioBitrate:   "128k",
			SegmentSeconds: 15,
			UpscaleBitrate: "12M",
			StallTimeout:   2 * time.Minute,
			KillGrace:      5 * time.Second,
		},
		Inference: InferenceConfig{
			Provider:          "auto",
			MaxResidentModels: 2,
			FrameConcurrency:  1,
		},
		Worker: WorkerConfig{
			Concurrency: 1,
			PollTimeout: 5 * time.Second,
		},
		API: APIConfig{
			ListenAddr:  ":8080",
			RateLimit:   120,
			MaxUploadMB: 4096,
		},
		DRM: DRMConfig{
			Endpoint: "drm",
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}

// resolveDerived fills paths that default relative to DataDir.
func (c *Config) resolveDerived() {
	if c.Paths.WebRoot == "" {
		c.Paths.WebRoot = filepath.Join(c.DataDir, "web")
	}
	if c.Paths.TempDir == "" {
		c.Paths.TempDir = filepath.Join(os.TempDir(), "streamvault")
	}
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.DataDir, "streamvault.db")
	}
	for i := range c.Models {
		if c.Models[i].ElementType == "" {
			c.Models[i].ElementType = "float32"
		}
	}
}
