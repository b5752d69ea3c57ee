// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/streamvault/internal/api"
	"github.com/ManuGH/streamvault/internal/config"
	"github.com/ManuGH/streamvault/internal/ffmpeg"
	"github.com/ManuGH/streamvault/internal/health"
	"github.com/ManuGH/streamvault/internal/jobs"
	xglog "github.com/ManuGH/streamvault/internal/log"
	"github.com/ManuGH/streamvault/internal/paths"
	"github.com/ManuGH/streamvault/internal/pipeline"
	"github.com/ManuGH/streamvault/internal/queue"
	"github.com/ManuGH/streamvault/internal/store"
	"github.com/ManuGH/streamvault/internal/store/sqlite"
	"github.com/ManuGH/streamvault/internal/telemetry"
	"github.com/ManuGH/streamvault/internal/version"
)

const (
	memoryQueueCapacity = 1024
	checkTimeout        = 2 * time.Second
	shutdownTimeout     = 15 * time.Second
)

// app owns every long-lived component of the daemon.
type app struct {
	cfg       config.Config
	holder    *config.Holder
	telemetry *telemetry.Provider
	store     *sqlite.Store
	queue     queue.Queue
	sessions  *sessionBackend
	worker    *jobs.Worker
	server    *http.Server
	logger    zerolog.Logger

	closeOnce sync.Once
}

func newApp(ctx context.Context, cfg config.Config, configPath string) (_ *app, err error) {
	a := &app{
		cfg:    cfg,
		holder: config.NewHolder(cfg, configPath),
		logger: xglog.WithComponent("daemon"),
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.telemetry, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "streamvault",
		ServiceVersion: version.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		return nil, fmt.Errorf("startup checks: %w", err)
	}

	resolver, err := paths.NewResolver(cfg.Paths.WebRoot, cfg.Paths.TempDir, cfg.Paths.VideosDir)
	if err != nil {
		return nil, fmt.Errorf("paths: %w", err)
	}

	a.store, err = sqlite.New(cfg.Database.Path, sqlite.Config{
		BusyTimeout:  cfg.Database.BusyTimeout,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	removed, err := store.SyncModels(ctx, a.store.Models(), cfg.Models)
	if err != nil {
		return nil, fmt.Errorf("sync models: %w", err)
	}
	a.logger.Info().
		Str("event", "models.synced").
		Int("configured", len(cfg.Models)).
		Strs("removed", removed).
		Msg("model registry synchronized")

	a.queue, err = buildQueue(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}

	a.sessions, err = buildSessions(cfg.Inference, a.logger)
	if err != nil {
		return nil, err
	}

	prober := ffmpeg.NewProber(cfg.FFmpeg.FFprobeBin)
	deps := pipeline.Deps{
		Store: a.store,
		Paths: resolver,
		Runner: ffmpeg.NewExecutor(ffmpeg.ExecutorConfig{
			FFmpegBin:    cfg.FFmpeg.Bin,
			StallTimeout: cfg.FFmpeg.StallTimeout,
			KillGrace:    cfg.FFmpeg.KillGrace,
		}),
		Locks: pipeline.NewVideoLocks(),
	}
	settings := pipeline.Settings{
		VideoEncoder:   cfg.FFmpeg.VideoEncoder,
		AudioCodec:     cfg.FFmpeg.AudioCodec,
		AudioBitrate:   cfg.FFmpeg.AudioBitrate,
		SegmentSeconds: cfg.FFmpeg.SegmentSeconds,
		DRMEndpoint:    cfg.DRM.Endpoint,
	}
	encoder := pipeline.NewEncoder(deps, settings)
	upscaler := pipeline.NewUpscaler(deps, pipeline.UpscaleSettings{
		Settings:         settings,
		Bitrate:          cfg.FFmpeg.UpscaleBitrate,
		FrameConcurrency: a.holder.FrameConcurrency,
	}, prober, a.sessions)

	a.worker = jobs.NewWorker(jobs.WorkerConfig{
		Concurrency: cfg.Worker.Concurrency,
		PollTimeout: cfg.Worker.PollTimeout,
		JobTimeout:  cfg.Worker.JobTimeout,
	}, a.queue, encoder, upscaler)

	hm := a.healthManager()

	srv := api.New(api.Deps{
		Store:  a.store,
		Queue:  a.queue,
		Prober: prober,
		Paths:  resolver,
		Health: hm,
	}, api.SettingsFromConfig(cfg))

	a.server = &http.Server{
		Addr:              cfg.API.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return a, nil
}

func (a *app) healthManager() *health.Manager {
	hm := health.NewManager(version.Version)
	hm.RegisterChecker(health.NewPingChecker("database", checkTimeout, a.store.Ping))
	hm.RegisterChecker(health.NewPingChecker("queue", checkTimeout, a.queue.Ping))
	hm.RegisterChecker(health.NewDirChecker("web_root", a.cfg.Paths.WebRoot))
	hm.RegisterChecker(health.NewDirChecker("temp_dir", a.cfg.Paths.TempDir))
	if a.cfg.Inference.SharedLibraryPath != "" {
		hm.RegisterChecker(health.NewFileChecker("onnxruntime", a.cfg.Inference.SharedLibraryPath))
	}
	hm.RegisterChecker(health.NewLastRunChecker(a.worker.Manager().LastRun))
	return hm
}

// run serves the API and consumes the queue until ctx is cancelled or a
// component fails.
func (a *app) run(ctx context.Context) error {
	if err := a.holder.StartWatcher(ctx); err != nil {
		a.logger.Warn().Err(err).Str("event", "config.watcher_failed").Msg("config hot reload unavailable")
	}
	reloads := make(chan config.Config, 1)
	a.holder.RegisterListener(reloads)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.worker.Run(gctx)
	})

	g.Go(func() error {
		a.logger.Info().Str("event", "api.listen").Str("addr", a.server.Addr).Msg("API listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		a.logger.Info().Str("event", "api.shutdown").Msg("shutting down API server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api shutdown: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		applyReloads(gctx, reloads, a.logger)
		return nil
	})

	return g.Wait()
}

// applyReloads applies the log level of each reloaded config until ctx ends.
func applyReloads(ctx context.Context, reloads <-chan config.Config, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-reloads:
			if err := xglog.SetLevel(cfg.LogLevel); err != nil {
				logger.Warn().Err(err).Str("level", cfg.LogLevel).Msg("ignoring invalid log level")
				continue
			}
			logger.Info().
				Str("event", "config.applied").
				Str("log_level", cfg.LogLevel).
				Int("frame_concurrency", cfg.Inference.FrameConcurrency).
				Msg("runtime settings updated")
		}
	}
}

// close releases resources in reverse order of acquisition. Safe to call
// more than once and on a partially built app.
func (a *app) close() {
	a.closeOnce.Do(func() {
		a.holder.Stop()
		if a.queue != nil {
			if err := a.queue.Close(); err != nil {
				a.logger.Warn().Err(err).Msg("failed to close queue")
			}
		}
		if a.sessions != nil {
			if err := a.sessions.Close(); err != nil {
				a.logger.Warn().Err(err).Msg("failed to close inference sessions")
			}
		}
		if a.store != nil {
			if err := a.store.Close(); err != nil {
				a.logger.Warn().Err(err).Msg("failed to close database")
			}
		}
		if a.telemetry != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.telemetry.Shutdown(ctx); err != nil {
				a.logger.Warn().Err(err).Msg("failed to flush traces")
			}
		}
	})
}
