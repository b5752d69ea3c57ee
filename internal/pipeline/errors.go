// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/streamvault/internal/ffmpeg"
	"github.com/ManuGH/streamvault/internal/inference"
	"github.com/ManuGH/streamvault/internal/media"
)

// ErrorKind classifies job failures.
type ErrorKind string

const (
	KindMissingEntity   ErrorKind = "missing_entity"
	KindExternalProcess ErrorKind = "external_process"
	KindInference       ErrorKind = "inference"
	KindPersistence     ErrorKind = "persistence"
	KindFilesystem      ErrorKind = "filesystem"
	KindCancelled       ErrorKind = "cancelled"
)

// JobError is returned by every failed job.
type JobError struct {
	Kind  ErrorKind
	Stage string
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// Retryable reports whether re-running the job could succeed.
func (e *JobError) Retryable() bool {
	switch e.Kind {
	case KindMissingEntity, KindInference:
		return false
	default:
		return true
	}
}

// jobErr wraps err for stage. The kind is derived from err when it is one
// of the known sentinel or typed errors, otherwise fallback is used.
func jobErr(stage string, fallback ErrorKind, err error) *JobError {
	var je *JobError
	if errors.As(err, &je) {
		return je
	}
	return &JobError{Kind: classify(err, fallback), Stage: stage, Err: err}
}

func classify(err error, fallback ErrorKind) ErrorKind {
	var exitErr *ffmpeg.ExitError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.Is(err, media.ErrVideoNotFound), errors.Is(err, media.ErrModelNotFound),
		errors.Is(err, media.ErrUpscaleNotFound), errors.Is(err, media.ErrStreamNotFound):
		return KindMissingEntity
	case errors.As(err, &exitErr), errors.Is(err, ffmpeg.ErrMissingOutput), errors.Is(err, ffmpeg.ErrStalled):
		return KindExternalProcess
	case errors.Is(err, inference.ErrRuntimeUnavailable), errors.Is(err, inference.ErrProviderUnavailable),
		errors.Is(err, inference.ErrUnsupportedElementType), errors.Is(err, inference.ErrTensorShape):
		return KindInference
	default:
		return fallback
	}
}
