// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"
)

func healthy(msg string) CheckResult {
	return CheckResult{Status: StatusHealthy, Message: msg}
}

func unhealthy(err string, msg string) CheckResult {
	return CheckResult{Status: StatusUnhealthy, Error: err, Message: msg}
}

// FileChecker requires a non-empty regular file, e.g. the onnxruntime
// shared library. An empty path is reported healthy as unconfigured.
type FileChecker struct {
	name string
	path string
}

func NewFileChecker(name, path string) *FileChecker {
	return &FileChecker{name: name, path: path}
}

func (c *FileChecker) Name() string { return c.name }

func (c *FileChecker) Check(context.Context) CheckResult {
	if c.path == "" {
		return healthy("not configured (optional)")
	}
	info, err := os.Stat(c.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return unhealthy("file not found", c.path)
	case err != nil:
		return unhealthy(err.Error(), c.path)
	case info.IsDir():
		return unhealthy("expected file, got directory", c.path)
	case info.Size() == 0:
		return CheckResult{Status: StatusDegraded, Message: "file is empty"}
	}
	return healthy("file exists and readable")
}

// PingChecker reports a dependency as unhealthy when its ping fails.
type PingChecker struct {
	name    string
	timeout time.Duration
	ping    func(ctx context.Context) error
}

// NewPingChecker wraps ping. A positive timeout bounds each call.
func NewPingChecker(name string, timeout time.Duration, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, timeout: timeout, ping: ping}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := c.ping(ctx); err != nil {
		return unhealthy(err.Error(), "")
	}
	return healthy("")
}

// DirChecker checks that a directory exists and accepts new files.
type DirChecker struct {
	name string
	path string
}

func NewDirChecker(name, path string) *DirChecker {
	return &DirChecker{name: name, path: path}
}

func (c *DirChecker) Name() string { return c.name }

func (c *DirChecker) Check(context.Context) CheckResult {
	if err := checkWritableDir(c.path); err != nil {
		return unhealthy(err.Error(), c.path)
	}
	return healthy("writable")
}

// LastRunChecker reports the outcome of the most recent job. A worker that
// has not finished a job yet is healthy; a failed last job degrades it.
type LastRunChecker struct {
	lastRun func() (time.Time, string)
}

func NewLastRunChecker(lastRun func() (time.Time, string)) *LastRunChecker {
	return &LastRunChecker{lastRun: lastRun}
}

func (c *LastRunChecker) Name() string { return "last_job_run" }

func (c *LastRunChecker) Check(context.Context) CheckResult {
	at, lastErr := c.lastRun()
	switch {
	case at.IsZero():
		return healthy("no job finished yet")
	case lastErr != "":
		return CheckResult{Status: StatusDegraded, Error: lastErr, Message: "last job run failed"}
	default:
		return healthy("last job run successful")
	}
}
