// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/streamvault/internal/log"
	"github.com/ManuGH/streamvault/internal/paths"
)

// workDir is a job-scoped scratch directory. Cleanup never fails the job.
type workDir struct {
	root   string
	logger zerolog.Logger
}

func newWorkDir(r *paths.Resolver, prefix string, logger zerolog.Logger) (*workDir, error) {
	root, err := r.NewWorkDir(prefix)
	if err != nil {
		return nil, err
	}
	return &workDir{root: root, logger: logger}, nil
}

func (w *workDir) path(elem ...string) string {
	return filepath.Join(append([]string{w.root}, elem...)...)
}

func (w *workDir) mkdir(name string) (string, error) {
	dir := w.path(name)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	return dir, nil
}

func (w *workDir) cleanup() {
	if err := os.RemoveAll(w.root); err != nil {
		w.logger.Warn().Err(err).Str(xglog.FieldWorkDir, w.root).Msg("failed to remove work dir")
		return
	}
	w.logger.Debug().Str(xglog.FieldWorkDir, w.root).Msg("work dir removed")
}
