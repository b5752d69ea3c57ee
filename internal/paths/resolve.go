// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package paths resolves where pipeline artifacts live on disk. Everything
// persisted is relative to the web root; everything handed to ffmpeg or the
// inference runtime is absolute.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	// DefaultVideosDir is the category folder under the web root holding HLS output.
	DefaultVideosDir = "videos"
	// MasterName is the file name of every master manifest.
	MasterName = "master.m3u8"
	// VariantName is the file name of every variant manifest.
	VariantName = "index.m3u8"
)

// Resolver maps entity ids to filesystem locations.
type Resolver struct {
	WebRoot   string
	TempRoot  string
	VideosDir string
}

// NewResolver validates and normalizes the configured roots.
func NewResolver(webRoot, tempRoot, videosDir string) (*Resolver, error) {
	webRoot = normalizePath(webRoot)
	if err := validateRoot(webRoot); err != nil {
		return nil, fmt.Errorf("web root: %w", err)
	}
	if tempRoot = strings.TrimSpace(tempRoot); tempRoot == "" {
		tempRoot = os.TempDir()
	}
	tempRoot = normalizePath(tempRoot)
	if videosDir = strings.Trim(strings.TrimSpace(videosDir), `/\`); videosDir == "" {
		videosDir = DefaultVideosDir
	}
	return &Resolver{WebRoot: webRoot, TempRoot: tempRoot, VideosDir: videosDir}, nil
}

// VideoDir is the absolute directory holding a video's master manifest and variants.
func (r *Resolver) VideoDir(videoID string) string {
	return filepath.Join(r.WebRoot, r.VideosDir, videoID)
}

// MasterPath is the absolute master manifest location for a video.
func (r *Resolver) MasterPath(videoID string) string {
	return filepath.Join(r.VideoDir(videoID), MasterName)
}

// VariantDir is the absolute directory of one variant (label is e.g. "720p").
func (r *Resolver) VariantDir(videoID, label string) string {
	return filepath.Join(r.VideoDir(videoID), label)
}

// VariantPlaylist is the absolute variant manifest location.
func (r *Resolver) VariantPlaylist(videoID, label string) string {
	return filepath.Join(r.VariantDir(videoID, label), VariantName)
}

// UpscaleOutput is the absolute location of the muxed upscale result.
func (r *Resolver) UpscaleOutput(videoID, upscaleID string) string {
	return filepath.Join(r.VideoDir(videoID), "upscales", upscaleID+".mp4")
}

// Rel converts an absolute path under the web root into its persisted form.
func (r *Resolver) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(r.WebRoot, abs)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes web root %q", abs, r.WebRoot)
	}
	return filepath.ToSlash(rel), nil
}

// Abs converts a persisted relative path back into an absolute one.
func (r *Resolver) Abs(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("persisted path %q is absolute", rel)
	}
	abs := filepath.Join(r.WebRoot, filepath.FromSlash(rel))
	if _, err := r.Rel(abs); err != nil {
		return "", err
	}
	return abs, nil
}

// NewWorkDir creates a uniquely named job working directory under the temp root.
func (r *Resolver) NewWorkDir(prefix string) (string, error) {
	if err := os.MkdirAll(r.TempRoot, 0o750); err != nil {
		return "", fmt.Errorf("create temp root: %w", err)
	}
	dir := filepath.Join(r.TempRoot, prefix+"-"+uuid.NewString())
	if err := os.Mkdir(dir, 0o750); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	return dir, nil
}

func normalizePath(p string) string {
	return filepath.Clean(strings.TrimSpace(p))
}

func validateRoot(path string) error {
	if path == "" || path == "." || path == string(filepath.Separator) {
		return fmt.Errorf("invalid root path: %q", path)
	}
	return nil
}
