// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"bytes"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Progress is one flushed block of `-progress pipe:1` output.
type Progress struct {
	Frame     int
	OutTimeUs int64
	TotalSize int64
	Speed     string
}

func (p Progress) hasAdvanced(prev Progress) bool {
	return p.OutTimeUs > prev.OutTimeUs || p.TotalSize > prev.TotalSize || p.Frame > prev.Frame
}

// progressTracker is the stdout sink for ffmpeg's key=value progress stream.
type progressTracker struct {
	mu         sync.Mutex
	partial    bytes.Buffer
	current    Progress
	last       Progress
	advancedAt time.Time
	now        func() time.Time
}

func newProgressTracker(now func() time.Time) *progressTracker {
	if now == nil {
		now = time.Now
	}
	return &progressTracker{now: now, advancedAt: now()}
}

func (t *progressTracker) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.partial.Write(p)
	for {
		data := t.partial.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSpace(string(data[:idx]))
		t.partial.Next(idx + 1)
		t.parseLine(line)
	}
	return len(p), nil
}

func (t *progressTracker) parseLine(line string) {
	key, val, ok := strings.Cut(line, "=")
	if !ok {
		return
	}
	key, val = strings.TrimSpace(key), strings.TrimSpace(val)

	switch key {
	case "frame":
		if v, err := strconv.Atoi(val); err == nil {
			t.current.Frame = v
		}
	case "out_time_us":
		if v, err := strconv.ParseInt(val, 10, 64); err == nil {
			t.current.OutTimeUs = v
		}
	case "total_size":
		if v, err := strconv.ParseInt(val, 10, 64); err == nil {
			t.current.TotalSize = v
		}
	case "speed":
		t.current.Speed = val
	case "progress":
		// "progress=continue|end" terminates a block.
		if t.current.hasAdvanced(t.last) {
			t.last = t.current
			t.advancedAt = t.now()
		}
	}
}

// snapshot returns the last flushed progress and when it last advanced.
func (t *progressTracker) snapshot() (Progress, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.advancedAt
}
