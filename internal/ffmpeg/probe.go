// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/streamvault/internal/metrics"
)

// ErrNoVideoStream is returned when a source has no decodable video track.
var ErrNoVideoStream = errors.New("no video stream")

// ProbeResult describes the parts of a source the pipelines depend on.
type ProbeResult struct {
	Width      int
	Height     int
	VideoCodec string
	// FrameRate is the rational frame rate as reported ("30000/1001").
	FrameRate string
	FPS       float64
	Duration  float64
	HasAudio  bool
}

// Prober runs ffprobe.
type Prober struct {
	bin string
}

// NewProber returns a Prober using bin, or "ffprobe" when empty.
func NewProber(bin string) *Prober {
	if bin == "" {
		bin = "ffprobe"
	}
	return &Prober{bin: bin}
}

// Probe inspects path and returns its video geometry, frame rate and audio presence.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	start := time.Now()
	// #nosec G204 - binary comes from config; path is opaque
	cmd := exec.CommandContext(ctx, p.bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		metrics.RecordFFmpeg(StageProbe, "error", time.Since(start))
		errStr := stderr.String()
		if len(errStr) > 4096 {
			errStr = errStr[:4096] + "..."
		}
		return nil, fmt.Errorf("ffprobe failed: %w (stderr: %s)", err, errStr)
	}

	res, err := ParseProbe(out)
	if err != nil {
		metrics.RecordFFmpeg(StageProbe, "error", time.Since(start))
		return nil, err
	}
	metrics.RecordFFmpeg(StageProbe, "success", time.Since(start))
	return res, nil
}

// ParseProbe decodes ffprobe's JSON output.
func ParseProbe(data []byte) (*ProbeResult, error) {
	var pd probeData
	if err := json.Unmarshal(data, &pd); err != nil {
		return nil, fmt.Errorf("json decode: %w", err)
	}

	res := &ProbeResult{}
	foundVideo := false
	for _, s := range pd.Streams {
		switch s.CodecType {
		case "video":
			if foundVideo || s.CodecName == "" || s.Disposition.AttachedPic == 1 {
				continue
			}
			foundVideo = true
			res.VideoCodec = s.CodecName
			res.Width = s.Width
			res.Height = s.Height
			res.FrameRate, res.FPS = pickFrameRate(s.AvgFrameRate, s.RFrameRate)
			if s.Duration != "" {
				if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
					res.Duration = d
				}
			}
		case "audio":
			if s.CodecName != "" {
				res.HasAudio = true
			}
		}
	}

	if !foundVideo || res.Width <= 0 || res.Height <= 0 {
		return nil, ErrNoVideoStream
	}
	if res.Duration == 0 && pd.Format.Duration != "" {
		if d, err := strconv.ParseFloat(pd.Format.Duration, 64); err == nil {
			res.Duration = d
		}
	}
	if res.FPS <= 0 {
		return nil, fmt.Errorf("ffprobe reported no usable frame rate")
	}
	return res, nil
}

func pickFrameRate(candidates ...string) (string, float64) {
	for _, c := range candidates {
		if fps := parseRational(c); fps > 0 {
			return c, fps
		}
	}
	return "", 0
}

func parseRational(s string) float64 {
	if s == "" || s == "0/0" {
		return 0
	}
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d <= 0 {
		return 0
	}
	return n / d
}

type probeData struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width,omitempty"`
		Height       int    `json:"height,omitempty"`
		Duration     string `json:"duration,omitempty"`
		AvgFrameRate string `json:"avg_frame_rate,omitempty"`
		RFrameRate   string `json:"r_frame_rate,omitempty"`
		Disposition  struct {
			AttachedPic int `json:"attached_pic"`
		} `json:"disposition"`
	} `json:"streams"`
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}
