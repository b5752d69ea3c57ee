// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package store defines the persistence boundary for videos, streams,
// upscale requests and models. Writes that must become visible together go
// through a Tx obtained from UnitOfWork.Begin.
package store

import (
	"context"
	"errors"

	"github.com/ManuGH/streamvault/internal/media"
)

// ErrDuplicateStream is returned when a (video, resolution) pair already has a stream.
var ErrDuplicateStream = errors.New("stream already exists for resolution")

type VideoRepository interface {
	// Get returns the video with its streams and upscales, or media.ErrVideoNotFound.
	Get(ctx context.Context, id string) (*media.Video, error)
	Add(ctx context.Context, v *media.Video) error
	// Update persists scalar fields; streams and upscales have their own repositories.
	Update(ctx context.Context, v *media.Video) error
}

type StreamRepository interface {
	Get(ctx context.Context, id string) (*media.VideoStream, error)
	Add(ctx context.Context, s *media.VideoStream) error
	// ListByVideo returns streams in insertion order.
	ListByVideo(ctx context.Context, videoID string) ([]*media.VideoStream, error)
}

type UpscaleRepository interface {
	Get(ctx context.Context, id string) (*media.VideoUpscale, error)
	Add(ctx context.Context, u *media.VideoUpscale) error
	Update(ctx context.Context, u *media.VideoUpscale) error
	ListByVideo(ctx context.Context, videoID string) ([]*media.VideoUpscale, error)
}

type ModelRepository interface {
	Get(ctx context.Context, id string) (*media.OnnxModel, error)
	List(ctx context.Context) ([]media.OnnxModel, error)
	Upsert(ctx context.Context, m media.OnnxModel) error
	Delete(ctx context.Context, id string) error
}

// Repositories groups the repositories bound to one connection or transaction.
type Repositories interface {
	Videos() VideoRepository
	Streams() StreamRepository
	Upscales() UpscaleRepository
	Models() ModelRepository
}

// Tx scopes repositories to a transaction. Rollback after Commit is a no-op.
type Tx interface {
	Repositories
	Commit() error
	Rollback() error
}

// UnitOfWork exposes auto-committed repositories and starts transactions.
type UnitOfWork interface {
	Repositories
	Begin(ctx context.Context) (Tx, error)
}
