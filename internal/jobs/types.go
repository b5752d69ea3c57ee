// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package jobs runs queued pipeline jobs.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/streamvault/internal/queue"
)

// Encoder is the encode orchestrator as seen by the worker.
type Encoder interface {
	Encode(ctx context.Context, videoID string) error
}

// Upscaler is the upscale orchestrator as seen by the worker.
type Upscaler interface {
	Upscale(ctx context.Context, upscaleID string) error
}

// WorkFunc is the unit of execution for the manager.
type WorkFunc func(ctx context.Context, job queue.Job) error

// Run is an active or completed job execution.
type Run struct {
	Job       queue.Job
	StartedAt time.Time

	// Done is closed when the job finishes (success, failure or panic).
	Done chan struct{}

	// Cancel stops the job.
	Cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

// Err is set once Done is closed.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Run) setError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Wait blocks until the run finishes or ctx is done.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.Done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
