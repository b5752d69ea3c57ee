// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"bytes"
	"sync"
)

// RingBuffer keeps the last N lines written to it.
type RingBuffer struct {
	mu      sync.Mutex
	lines   []string
	pos     int
	full    bool
	partial bytes.Buffer
}

// NewRingBuffer returns a buffer holding at most size lines.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1
	}
	return &RingBuffer{lines: make([]string, size)}
}

// Write splits p into lines; it never fails.
func (r *RingBuffer) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.partial.Write(p)
	for {
		data := r.partial.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := string(bytes.TrimRight(data[:idx], "\r"))
		r.partial.Next(idx + 1)
		if line != "" {
			r.add(line)
		}
	}
	return len(p), nil
}

// Add appends a single line.
func (r *RingBuffer) Add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.add(line)
}

func (r *RingBuffer) add(line string) {
	r.lines[r.pos] = line
	r.pos = (r.pos + 1) % len(r.lines)
	if r.pos == 0 {
		r.full = true
	}
}

// Lines returns the retained lines, oldest first, including an unterminated tail.
func (r *RingBuffer) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []string
	if !r.full {
		res = append([]string(nil), r.lines[:r.pos]...)
	} else {
		res = make([]string, len(r.lines))
		copy(res, r.lines[r.pos:])
		copy(res[len(r.lines)-r.pos:], r.lines[:r.pos])
	}
	if r.partial.Len() > 0 {
		res = append(res, r.partial.String())
	}
	return res
}
