// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ManuGH/streamvault/internal/ffmpeg"
	"github.com/ManuGH/streamvault/internal/hls"
	"github.com/ManuGH/streamvault/internal/keys"
)

// segmentPattern is the segment file name template inside a variant dir.
const segmentPattern = "segment_%05d.ts"

// resetDir recreates dir empty. Leftovers from an interrupted run are discarded.
func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clear %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}

// writeKeyInfo stages the variant key for the HLS muxer. The key tag URI is
// the delivery endpoint from the start.
func writeKeyInfo(dir, drmEndpoint, streamID string, kp keys.KeyPair) (string, error) {
	key, err := kp.KeyBytes()
	if err != nil {
		return "", err
	}
	return ffmpeg.WriteKeyInfo(dir, hls.KeyURI(drmEndpoint, streamID), key, kp.IV)
}

// finalizeVariant deletes the key material staged for the muxer, makes sure
// the key tag points at the delivery endpoint and checks the result is a
// complete VOD playlist.
func finalizeVariant(playlist, drmEndpoint, streamID string) error {
	if err := ffmpeg.RemoveKeyInfo(filepath.Dir(playlist)); err != nil {
		return fmt.Errorf("remove key material: %w", err)
	}
	if _, err := hls.RewriteKeyURI(playlist, hls.KeyURI(drmEndpoint, streamID)); err != nil {
		return err
	}

	// #nosec G304 - playlist is inside the variant dir we just produced
	data, err := os.ReadFile(playlist)
	if err != nil {
		return fmt.Errorf("read variant playlist: %w", err)
	}
	truth, err := hls.ExtractSegmentTruth(string(data))
	if err != nil {
		return fmt.Errorf("validate variant playlist: %w", err)
	}
	if !truth.IsVOD {
		return fmt.Errorf("variant playlist %s is not a finished VOD playlist", playlist)
	}
	if truth.SegmentCount == 0 {
		return fmt.Errorf("variant playlist %s has no segments", playlist)
	}
	return nil
}
