// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/streamvault/internal/config"
	"github.com/ManuGH/streamvault/internal/log"
)

// lookPath is replaced in tests.
var lookPath = exec.LookPath

// PerformStartupChecks validates the environment and dependencies before starting the server.
func PerformStartupChecks(ctx context.Context, cfg config.Config) error {
	logger := log.WithComponentFromContext(ctx, "startup-check")
	logger.Info().Msg("Running pre-flight startup checks...")

	// 1. Writable trees
	for _, dir := range []struct{ name, path string }{
		{"data", cfg.DataDir},
		{"web root", cfg.Paths.WebRoot},
		{"temp", cfg.Paths.TempDir},
	} {
		if err := ensureDir(logger, dir.path); err != nil {
			return fmt.Errorf("%s directory check failed: %w", dir.name, err)
		}
	}

	// 2. Targeted Validations
	if err := checkTargetedValidations(logger, cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	logger.Info().Msg("All startup checks passed")
	return nil
}

func ensureDir(logger zerolog.Logger, path string) error {
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return err
	}
	if err := checkWritableDir(path); err != nil {
		return err
	}
	logger.Info().Str("path", path).Msg("directory is writable")
	return nil
}

func checkWritableDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	f, err := os.CreateTemp(path, ".write_test-*")
	if err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return nil
}

// checkTargetedValidations performs runtime-critical validations
func checkTargetedValidations(logger zerolog.Logger, cfg config.Config) error {
	// a. Listen Address (Parseable)
	if cfg.API.ListenAddr != "" {
		_, port, err := net.SplitHostPort(cfg.API.ListenAddr)
		if err != nil {
			return fmt.Errorf("invalid API listen address %q: %w", cfg.API.ListenAddr, err)
		}
		portNum, err := strconv.Atoi(port)
		if err != nil || portNum < 0 || portNum > 65535 {
			return fmt.Errorf("invalid API listen port %q in %q", port, cfg.API.ListenAddr)
		}
		logger.Info().Str("addr", cfg.API.ListenAddr).Msg("API listen address is valid")
	}

	// b. Media tools
	for _, bin := range []string{cfg.FFmpeg.Bin, cfg.FFmpeg.FFprobeBin} {
		bin = strings.TrimSpace(bin)
		if bin == "" {
			continue
		}
		if _, err := lookPath(bin); err != nil {
			return fmt.Errorf("binary not found (%s): %w", bin, err)
		}
	}
	logger.Info().Str("ffmpeg", cfg.FFmpeg.Bin).Str("ffprobe", cfg.FFmpeg.FFprobeBin).Msg("media tools available")

	// c. Inference runtime library
	if cfg.Inference.SharedLibraryPath != "" {
		if err := checkFileReadable(cfg.Inference.SharedLibraryPath); err != nil {
			return fmt.Errorf("onnxruntime library error: %w", err)
		}
	}

	// d. Model files
	for _, m := range cfg.Models {
		if err := checkFileReadable(m.Path); err != nil {
			logger.Warn().Err(err).Str(log.FieldModelID, m.ID).Msg("model file unreadable; upscales with it will fail")
		}
	}

	tempDir := filepath.Clean(os.TempDir())
	dataDir := filepath.Clean(cfg.DataDir)
	if tempDir != "." && (dataDir == tempDir || strings.HasPrefix(dataDir, tempDir+string(filepath.Separator))) {
		logger.Warn().
			Str("data_dir", cfg.DataDir).
			Msg("data directory is under temp; the database may be lost on reboot")
	}

	return nil
}

func checkFileReadable(path string) error {
	f, err := os.Open(path) // #nosec G304 -- path comes from operator config; verifying readability is expected
	if err != nil {
		return err
	}
	return f.Close()
}
