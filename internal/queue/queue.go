// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package queue carries pipeline jobs from the API to the workers.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrEmpty is returned by Dequeue when nothing arrived within the timeout.
	ErrEmpty = errors.New("queue empty")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("queue closed")
	// ErrInvalidJob is returned for payloads that do not decode to a valid Job.
	ErrInvalidJob = errors.New("invalid job payload")
)

// Kind selects the orchestrator a job is dispatched to.
type Kind string

const (
	KindEncode  Kind = "encode"
	KindUpscale Kind = "upscale"
)

// Job is one unit of queued work. TargetID is a video id for encode jobs and
// an upscale request id for upscale jobs.
type Job struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	TargetID   string    `json:"target_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewJob returns a job with a fresh id.
func NewJob(kind Kind, targetID string) Job {
	return Job{ID: uuid.NewString(), Kind: kind, TargetID: targetID, EnqueuedAt: time.Now().UTC()}
}

// Validate checks the fields every consumer relies on.
func (j Job) Validate() error {
	switch {
	case j.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidJob)
	case j.TargetID == "":
		return fmt.Errorf("%w: missing target", ErrInvalidJob)
	case j.Kind != KindEncode && j.Kind != KindUpscale:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidJob, j.Kind)
	}
	return nil
}

// Queue is a FIFO of jobs shared by producers and workers.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Dequeue blocks up to timeout and returns ErrEmpty if nothing arrived.
	Dequeue(ctx context.Context, timeout time.Duration) (Job, error)
	Len(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}
