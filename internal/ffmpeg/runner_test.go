// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build linux

package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func newTestExecutor(bin string) *Executor {
	e := NewExecutor(ExecutorConfig{
		FFmpegBin:    bin,
		StallTimeout: 300 * time.Millisecond,
		KillGrace:    200 * time.Millisecond,
		StderrLines:  5,
	})
	e.tick = 50 * time.Millisecond
	return e
}

func TestExecutor_Success(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.bin")
	bin := writeScript(t, `echo "out_time_us=100"
echo "progress=end"
echo data > "`+out+`"
exit 0`)

	err := newTestExecutor(bin).Run(context.Background(), Invocation{Stage: "test", Outputs: []string{out}})
	require.NoError(t, err)
}

func TestExecutor_MissingOutput(t *testing.T) {
	bin := writeScript(t, `exit 0`)
	err := newTestExecutor(bin).Run(context.Background(), Invocation{
		Stage:   "test",
		Outputs: []string{filepath.Join(t.TempDir(), "never.bin")},
	})
	assert.ErrorIs(t, err, ErrMissingOutput)
}

func TestExecutor_NonZeroExit(t *testing.T) {
	bin := writeScript(t, `echo "first line" >&2
echo "Conversion failed!" >&2
exit 3`)

	err := newTestExecutor(bin).Run(context.Background(), Invocation{Stage: "encode"})
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.ExitCode)
	assert.Equal(t, "encode", exitErr.Stage)
	assert.Equal(t, []string{"first line", "Conversion failed!"}, exitErr.Stderr)
	assert.Contains(t, exitErr.Error(), "Conversion failed!")
}

func TestExecutor_StallIsKilled(t *testing.T) {
	bin := writeScript(t, `sleep 30`)

	start := time.Now()
	err := newTestExecutor(bin).Run(context.Background(), Invocation{Stage: "stall"})
	assert.ErrorIs(t, err, ErrStalled)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestExecutor_ContextCancel(t *testing.T) {
	bin := writeScript(t, `while true; do echo "out_time_us=$(date +%s%N)"; echo "progress=continue"; sleep 0.05; done`)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := newTestExecutor(bin).Run(ctx, Invocation{Stage: "cancel"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecutor_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newTestExecutor("/nonexistent").Run(ctx, Invocation{Stage: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRequireOutputs(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "full")
	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(full, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	assert.NoError(t, RequireOutputs(full))
	assert.ErrorIs(t, RequireOutputs(full, empty), ErrMissingOutput)
	assert.ErrorIs(t, RequireOutputs(filepath.Join(dir, "nope")), ErrMissingOutput)
	assert.ErrorIs(t, RequireOutputs(dir), ErrMissingOutput)
}
