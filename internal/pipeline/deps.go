// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"

	"github.com/ManuGH/streamvault/internal/ffmpeg"
	"github.com/ManuGH/streamvault/internal/inference"
	"github.com/ManuGH/streamvault/internal/keys"
	"github.com/ManuGH/streamvault/internal/media"
	"github.com/ManuGH/streamvault/internal/paths"
	"github.com/ManuGH/streamvault/internal/store"
)

// Prober reports the properties of a source file.
type Prober interface {
	Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error)
}

// KeyGenerator produces per-variant AES-128 key material.
type KeyGenerator interface {
	Generate() (keys.KeyPair, error)
}

// Sessions hands out inference sessions by model.
type Sessions interface {
	Acquire(ctx context.Context, model media.OnnxModel) (*inference.Lease, error)
}

// Deps are the collaborators shared by both orchestrators.
type Deps struct {
	Store  store.UnitOfWork
	Paths  *paths.Resolver
	Runner ffmpeg.Runner
	Keys   KeyGenerator
	Locks  *VideoLocks
}

// Settings are the encoding parameters shared by both orchestrators.
type Settings struct {
	VideoEncoder   string
	AudioCodec     string
	AudioBitrate   string
	SegmentSeconds int
	// DRMEndpoint is the path prefix key URIs are rewritten to.
	DRMEndpoint string
}

func (d Deps) withDefaults() Deps {
	if d.Keys == nil {
		d.Keys = keys.NewGenerator()
	}
	if d.Locks == nil {
		d.Locks = NewVideoLocks()
	}
	return d
}
