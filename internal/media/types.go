// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package media

import (
	"errors"
	"time"
)

var (
	ErrVideoNotFound   = errors.New("video not found")
	ErrStreamNotFound  = errors.New("video stream not found")
	ErrUpscaleNotFound = errors.New("upscale request not found")
	ErrModelNotFound   = errors.New("model not found")
)

// VideoStatus is the lifecycle of a source video.
type VideoStatus string

const (
	VideoQueued   VideoStatus = "queued"
	VideoEncoding VideoStatus = "encoding"
	VideoReady    VideoStatus = "ready"
	VideoFailed   VideoStatus = "failed"
)

// UpscaleStatus is the lifecycle of an upscale request.
type UpscaleStatus string

const (
	UpscaleQueued     UpscaleStatus = "queued"
	UpscaleProcessing UpscaleStatus = "processing"
	UpscaleReady      UpscaleStatus = "ready"
	UpscaleFailed     UpscaleStatus = "failed"
)

// Video is one uploaded source asset. Paths are relative to the web root.
type Video struct {
	ID         string          `json:"id"`
	RawPath    string          `json:"raw_path"`
	MasterPath string          `json:"master_path,omitempty"`
	Status     VideoStatus     `json:"status"`
	Resolution Resolution      `json:"resolution"`
	Error      string          `json:"error,omitempty"`
	Streams    []*VideoStream  `json:"streams,omitempty"`
	Upscales   []*VideoUpscale `json:"upscales,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// VideoStream is one encrypted HLS variant. Key and IV are 32 hex chars each
// and never leave the database except through the key delivery endpoint.
type VideoStream struct {
	ID           string     `json:"id"`
	VideoID      string     `json:"video_id"`
	Resolution   Resolution `json:"resolution"`
	PlaylistPath string     `json:"playlist_path"`
	Key          string     `json:"-"`
	IV           string     `json:"-"`
	Width        int        `json:"width,omitempty"`
	Height       int        `json:"height,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// VideoUpscale is one request to run a video through a super-resolution model.
type VideoUpscale struct {
	ID         string        `json:"id"`
	VideoID    string        `json:"video_id"`
	ModelID    string        `json:"model_id"`
	Status     UpscaleStatus `json:"status"`
	OutputPath string        `json:"output_path,omitempty"`
	StreamID   string        `json:"stream_id,omitempty"`
	Error      string        `json:"error,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// OnnxModel is a registered super-resolution model. Read-only to the pipeline.
type OnnxModel struct {
	ID          string `json:"id" yaml:"id"`
	Path        string `json:"path" yaml:"path"`
	Scale       int    `json:"scale" yaml:"scale"`
	ElementType string `json:"element_type" yaml:"elementType"`
}

// StreamFor returns the stream already registered for r, if any.
func (v *Video) StreamFor(r Resolution) *VideoStream {
	for _, s := range v.Streams {
		if s.Resolution == r {
			return s
		}
	}
	return nil
}

// AddStream registers s unless the video already has a stream for the same
// resolution, in which case the existing stream is returned and added is false.
func (v *Video) AddStream(s *VideoStream) (stream *VideoStream, added bool) {
	if existing := v.StreamFor(s.Resolution); existing != nil {
		return existing, false
	}
	s.VideoID = v.ID
	v.Streams = append(v.Streams, s)
	return s, true
}

// RemoveStream drops a stream from the in-memory collection (rollback helper).
func (v *Video) RemoveStream(id string) {
	out := v.Streams[:0]
	for _, s := range v.Streams {
		if s.ID != id {
			out = append(out, s)
		}
	}
	v.Streams = out
}
