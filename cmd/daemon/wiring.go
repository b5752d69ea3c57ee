// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ManuGH/streamvault/internal/config"
	"github.com/ManuGH/streamvault/internal/inference"
	"github.com/ManuGH/streamvault/internal/media"
	"github.com/ManuGH/streamvault/internal/queue"
)

// buildQueue connects to Redis when an address is configured and falls back
// to the in-process queue otherwise.
func buildQueue(ctx context.Context, cfg config.RedisConfig) (queue.Queue, error) {
	if cfg.Addr == "" {
		return queue.NewMemoryQueue(memoryQueueCapacity), nil
	}
	q, err := queue.NewRedisQueue(ctx, queue.RedisConfig{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		Key:      cfg.QueueKey,
	})
	if err != nil {
		return nil, fmt.Errorf("connect queue: %w", err)
	}
	return q, nil
}

// runtimeCloser is the inference runtime as seen by the daemon.
type runtimeCloser interface {
	inference.Runtime
	Close() error
}

// sessionBackend hands out inference sessions, or the reason there are none.
type sessionBackend struct {
	cache   *inference.SessionCache
	runtime runtimeCloser
	err     error
}

// Acquire implements pipeline.Sessions.
func (b *sessionBackend) Acquire(ctx context.Context, model media.OnnxModel) (*inference.Lease, error) {
	if b.cache == nil {
		return nil, b.err
	}
	return b.cache.Acquire(ctx, model)
}

// Close closes the cache before the runtime it loaded sessions from.
func (b *sessionBackend) Close() error {
	var errs []error
	if b.cache != nil {
		errs = append(errs, b.cache.Close())
	}
	if b.runtime != nil {
		errs = append(errs, b.runtime.Close())
	}
	return errors.Join(errs...)
}

var newRuntime = func(cfg inference.ONNXConfig) (runtimeCloser, error) {
	return inference.NewONNXRuntime(cfg)
}

// buildSessions initializes the inference runtime. A missing runtime keeps
// the daemon up for encoding; upscale jobs then fail with the load error.
// A hardware provider that was asked for explicitly but is absent is fatal.
func buildSessions(cfg config.InferenceConfig, logger zerolog.Logger) (*sessionBackend, error) {
	preferred, err := inference.ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	rt, err := newRuntime(inference.ONNXConfig{
		SharedLibraryPath: cfg.SharedLibraryPath,
		DeviceID:          cfg.DeviceID,
	})
	if err != nil {
		logger.Warn().
			Err(err).
			Str("event", "inference.unavailable").
			Msg("inference runtime unavailable; upscale jobs will fail")
		return &sessionBackend{err: err}, nil
	}

	provider, err := inference.DetectProvider(rt.Capabilities(), preferred)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("inference provider: %w", err)
	}
	logger.Info().
		Str("event", "inference.ready").
		Str("provider", string(provider)).
		Int("max_resident", cfg.MaxResidentModels).
		Int("frame_concurrency", cfg.FrameConcurrency).
		Msg("inference runtime initialized")

	return &sessionBackend{
		cache:   inference.NewSessionCache(rt, provider, cfg.MaxResidentModels),
		runtime: rt,
	}, nil
}
