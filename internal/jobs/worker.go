// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	xglog "github.com/ManuGH/streamvault/internal/log"
	"github.com/ManuGH/streamvault/internal/queue"
)

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	// Concurrency is the number of jobs processed at once.
	Concurrency int
	// PollTimeout bounds each blocking dequeue.
	PollTimeout time.Duration
	// JobTimeout bounds each job; zero means unbounded.
	JobTimeout time.Duration
	// ErrorBackoff is the pause after a queue error.
	ErrorBackoff time.Duration
}

// Worker consumes the queue and dispatches jobs to the orchestrators.
type Worker struct {
	cfg      WorkerConfig
	queue    queue.Queue
	encoder  Encoder
	upscaler Upscaler
	manager  *Manager
	logger   zerolog.Logger
}

// NewWorker returns a Worker with defaults applied.
func NewWorker(cfg WorkerConfig, q queue.Queue, enc Encoder, up Upscaler) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	logger := xglog.WithComponent("worker")
	return &Worker{
		cfg:      cfg,
		queue:    q,
		encoder:  enc,
		upscaler: up,
		manager:  NewManager(cfg.JobTimeout, logger),
		logger:   logger,
	}
}

// Manager exposes the run registry, e.g. for readiness reporting.
func (w *Worker) Manager() *Manager {
	return w.manager
}

// Run consumes jobs until ctx is done. Jobs still running at that point are
// cancelled and awaited.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().
		Int("concurrency", w.cfg.Concurrency).
		Dur("poll_timeout", w.cfg.PollTimeout).
		Msg("worker started")

	stop := context.AfterFunc(ctx, w.manager.CancelAll)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for i := range w.cfg.Concurrency {
		g.Go(func() error {
			return w.consume(gctx, i)
		})
	}
	err := g.Wait()

	w.manager.CancelAll()
	_ = w.manager.Wait(context.Background())
	w.logger.Info().Msg("worker stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) consume(ctx context.Context, slot int) error {
	logger := w.logger.With().Int("slot", slot).Logger()
	for {
		if ctx.Err() != nil {
			return nil
		}
		job, err := w.queue.Dequeue(ctx, w.cfg.PollTimeout)
		switch {
		case err == nil:
		case errors.Is(err, queue.ErrEmpty):
			continue
		case errors.Is(err, queue.ErrClosed), ctx.Err() != nil:
			return nil
		case errors.Is(err, queue.ErrInvalidJob):
			logger.Warn().Err(err).Msg("dropping invalid job")
			continue
		default:
			logger.Error().Err(err).Msg("dequeue failed")
			select {
			case <-time.After(w.cfg.ErrorBackoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		w.process(ctx, job, logger)
	}
}

// process runs job to completion. A job whose target is already running
// waits for that run and then runs itself.
func (w *Worker) process(ctx context.Context, job queue.Job, logger zerolog.Logger) {
	jobCtx := xglog.ContextWithJobID(ctx, job.ID)
	for {
		run, isNew := w.manager.Ensure(jobCtx, job, w.dispatch)
		if run == nil {
			return
		}
		// Shutdown reaches runs through CancelAll; wait them out.
		err := run.Wait(context.Background())
		if isNew {
			if err != nil {
				logger.Warn().
					Err(err).
					Str(xglog.FieldJobID, job.ID).
					Str(xglog.FieldJobKind, string(job.Kind)).
					Msg("job failed")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, job queue.Job) error {
	switch job.Kind {
	case queue.KindEncode:
		return w.encoder.Encode(ctx, job.TargetID)
	case queue.KindUpscale:
		return w.upscaler.Upscale(ctx, job.TargetID)
	default:
		return fmt.Errorf("%w: unknown kind %q", queue.ErrInvalidJob, job.Kind)
	}
}
