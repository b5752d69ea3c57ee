// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/streamvault/internal/log"
)

// Holder owns the active configuration. Only logLevel and
// inference.frameConcurrency change at runtime; other edits are reported and
// wait for a restart.
type Holder struct {
	path     string
	logger   zerolog.Logger
	debounce time.Duration

	mu        sync.RWMutex
	current   Config
	listeners []chan<- Config
	watcher   *fsnotify.Watcher
}

// NewHolder wraps initial. path may be empty for env-only setups.
func NewHolder(initial Config, path string) *Holder {
	return &Holder{
		current:  initial,
		path:     path,
		logger:   xglog.WithComponent("config"),
		debounce: 500 * time.Millisecond,
	}
}

// Get returns a snapshot of the active configuration.
func (h *Holder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// FrameConcurrency returns the live per-job inference admission limit.
func (h *Holder) FrameConcurrency() int {
	return h.Get().Inference.FrameConcurrency
}

// Reload re-reads the file and applies the hot subset. A file that fails to
// load or validate leaves the active configuration untouched.
func (h *Holder) Reload(_ context.Context) error {
	loaded, err := Load(h.path)
	if err != nil {
		h.logger.Error().Err(err).Str(xglog.FieldEvent, "config.reload_failed").Msg("keeping previous configuration")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	prev := h.current
	h.current.LogLevel = loaded.LogLevel
	h.current.Inference.FrameConcurrency = loaded.Inference.FrameConcurrency
	next := h.current
	listeners := slices.Clone(h.listeners)
	h.mu.Unlock()

	h.report(prev, next, loaded)
	for _, ch := range listeners {
		select {
		case ch <- next:
		default:
			h.logger.Warn().Str(xglog.FieldEvent, "config.listener_busy").Msg("reload listener not ready; snapshot dropped")
		}
	}
	return nil
}

// RegisterListener subscribes ch to applied snapshots. Sends never block;
// the caller owns ch.
func (h *Holder) RegisterListener(ch chan<- Config) {
	h.mu.Lock()
	h.listeners = append(h.listeners, ch)
	h.mu.Unlock()
}

// StartWatcher reloads on changes to the config file. The parent directory
// is watched so editors that save by rename are seen. Without a path this
// is a no-op.
func (h *Holder) StartWatcher(ctx context.Context) error {
	if h.path == "" {
		h.logger.Info().Str(xglog.FieldEvent, "config.watch_skipped").Msg("no config file; hot reload disabled")
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(h.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(h.path), err)
	}
	h.mu.Lock()
	h.watcher = w
	h.mu.Unlock()

	h.logger.Info().Str(xglog.FieldEvent, "config.watching").Str(xglog.FieldPath, h.path).Msg("watching config file")
	go h.watch(ctx, w)
	return nil
}

// watch coalesces bursts of write events into one reload per debounce
// window. Reloads run on this goroutine, so they never overlap.
func (h *Holder) watch(ctx context.Context, w *fsnotify.Watcher) {
	target := filepath.Clean(h.path)
	timer := time.NewTimer(h.debounce)
	timer.Stop()
	defer timer.Stop()
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) == target && (ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				timer.Reset(h.debounce)
			}
		case <-timer.C:
			_ = h.Reload(ctx)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			h.logger.Warn().Err(err).Str(xglog.FieldEvent, "config.watch_error").Msg("config watcher error")
		}
	}
}

// Stop closes the watcher, if running.
func (h *Holder) Stop() {
	h.mu.Lock()
	w := h.watcher
	h.watcher = nil
	h.mu.Unlock()
	if w != nil {
		_ = w.Close()
	}
}

func (h *Holder) report(prev, next, loaded Config) {
	if prev.LogLevel != next.LogLevel || prev.Inference.FrameConcurrency != next.Inference.FrameConcurrency {
		h.logger.Info().
			Str(xglog.FieldEvent, "config.reloaded").
			Str("log_level", next.LogLevel).
			Int("frame_concurrency", next.Inference.FrameConcurrency).
			Msg("runtime configuration updated")
	}
	if prev.Worker != loaded.Worker || prev.API != loaded.API || prev.Paths != loaded.Paths || prev.FFmpeg != loaded.FFmpeg {
		h.logger.Warn().Str(xglog.FieldEvent, "config.restart_required").Msg("changes outside logLevel and frameConcurrency apply after restart")
	}
}
