// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingOutput is returned when a run exits 0 but an expected output is absent or empty.
	ErrMissingOutput = errors.New("expected output missing")
	// ErrStalled is returned when the progress watchdog kills a run.
	ErrStalled = errors.New("ffmpeg stalled")
)

// ExitError carries the exit status and the stderr tail of a failed run.
type ExitError struct {
	Stage    string
	Binary   string
	ExitCode int
	Stderr   []string
	Err      error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s (%s) exited with code %d", e.Binary, e.Stage, e.ExitCode)
	if len(e.Stderr) > 0 {
		msg += ": " + strings.Join(e.Stderr, " | ")
	}
	return msg
}

func (e *ExitError) Unwrap() error {
	return e.Err
}
