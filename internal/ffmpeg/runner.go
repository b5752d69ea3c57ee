// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/streamvault/internal/log"
	"github.com/ManuGH/streamvault/internal/metrics"
	"github.com/ManuGH/streamvault/internal/procgroup"
)

// Invocation is one ffmpeg run.
type Invocation struct {
	Stage string
	Args  []string
	// Outputs must exist and be non-empty after a successful exit.
	Outputs []string
}

// Runner executes ffmpeg invocations.
type Runner interface {
	Run(ctx context.Context, inv Invocation) error
}

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	FFmpegBin    string
	StallTimeout time.Duration
	KillGrace    time.Duration
	StderrLines  int
}

// Executor runs ffmpeg as a child process group with a progress watchdog.
type Executor struct {
	bin          string
	stallTimeout time.Duration
	killGrace    time.Duration
	stderrLines  int
	tick         time.Duration
}

// NewExecutor returns an Executor with defaults applied.
func NewExecutor(cfg ExecutorConfig) *Executor {
	e := &Executor{
		bin:          cfg.FFmpegBin,
		stallTimeout: cfg.StallTimeout,
		killGrace:    cfg.KillGrace,
		stderrLines:  cfg.StderrLines,
		tick:         time.Second,
	}
	if e.bin == "" {
		e.bin = "ffmpeg"
	}
	if e.stallTimeout <= 0 {
		e.stallTimeout = 2 * time.Minute
	}
	if e.killGrace <= 0 {
		e.killGrace = 5 * time.Second
	}
	if e.stderrLines <= 0 {
		e.stderrLines = 20
	}
	return e
}

// Run executes inv and blocks until ffmpeg exits, ctx is cancelled, or the
// watchdog declares the process stalled.
func (e *Executor) Run(ctx context.Context, inv Invocation) error {
	logger := xglog.WithComponentFromContext(ctx, "ffmpeg").With().Str(xglog.FieldStage, inv.Stage).Logger()

	start := time.Now()
	err := e.run(ctx, inv, logger)
	if err == nil {
		err = RequireOutputs(inv.Outputs...)
	}

	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrStalled):
		result = "stalled"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		result = "cancelled"
	default:
		result = "error"
	}
	metrics.RecordFFmpeg(inv.Stage, result, time.Since(start))

	if err != nil {
		logger.Warn().Err(err).Dur("duration", time.Since(start)).Msg("ffmpeg run failed")
		return err
	}
	logger.Debug().Dur("duration", time.Since(start)).Msg("ffmpeg run completed")
	return nil
}

func (e *Executor) run(ctx context.Context, inv Invocation, logger zerolog.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	args := append([]string{"-nostdin", "-nostats", "-progress", "pipe:1"}, inv.Args...)
	// #nosec G204 - binary comes from config; args are built by this package
	cmd := exec.Command(e.bin, args...)
	procgroup.Set(cmd)

	progress := newProgressTracker(nil)
	stderr := NewRingBuffer(e.stderrLines)
	cmd.Stdout = progress
	cmd.Stderr = stderr

	logger.Debug().Strs("args", args).Msg("starting ffmpeg")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", e.bin, err)
	}

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	for {
		select {
		case err := <-waitCh:
			if err == nil {
				return nil
			}
			return e.exitError(inv.Stage, err, stderr)

		case <-ctx.Done():
			logger.Info().Msg("context cancelled, terminating ffmpeg")
			_ = procgroup.Terminate(cmd, waitCh, e.killGrace)
			return ctx.Err()

		case <-ticker.C:
			last, advancedAt := progress.snapshot()
			if time.Since(advancedAt) <= e.stallTimeout {
				continue
			}
			logger.Error().
				Dur("stall_timeout", e.stallTimeout).
				Int64("out_time_us", last.OutTimeUs).
				Int("frame", last.Frame).
				Msg("ffmpeg stalled, terminating")
			metrics.IncFFmpegStall(inv.Stage)
			_ = procgroup.Terminate(cmd, waitCh, e.killGrace)
			return fmt.Errorf("%s: %w (no progress for %s)", inv.Stage, ErrStalled, e.stallTimeout)
		}
	}
}

func (e *Executor) exitError(stage string, err error, stderr *RingBuffer) error {
	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	return &ExitError{
		Stage:    stage,
		Binary:   e.bin,
		ExitCode: code,
		Stderr:   stderr.Lines(),
		Err:      err,
	}
}

// RequireOutputs checks that every path exists as a non-empty regular file.
func RequireOutputs(paths ...string) error {
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrMissingOutput, p)
		}
		if !info.Mode().IsRegular() || info.Size() == 0 {
			return fmt.Errorf("%w: %s is empty", ErrMissingOutput, p)
		}
	}
	return nil
}
