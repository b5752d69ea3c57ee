// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SegmentTruth is the metadata a produced variant playlist must satisfy.
type SegmentTruth struct {
	IsVOD         bool
	SegmentCount  int
	TotalDuration time.Duration
	MaxDuration   time.Duration
	TargetSeconds int
	KeyURIs       []string
}

// ExtractSegmentTruth parses a variant playlist. It rejects malformed
// durations and target durations smaller than any segment.
func ExtractSegmentTruth(playlist string) (*SegmentTruth, error) {
	scanner := bufio.NewScanner(strings.NewReader(playlist))
	truth := &SegmentTruth{}

	var (
		nextDuration time.Duration
		hasEndList   bool
		typeVOD      bool
		first        = true
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if first {
			if line != Header {
				return nil, fmt.Errorf("missing %s header", Header)
			}
			first = false
			continue
		}

		switch {
		case strings.HasPrefix(line, "#EXT-X-PLAYLIST-TYPE:"):
			typeVOD = strings.TrimPrefix(line, "#EXT-X-PLAYLIST-TYPE:") == "VOD"
		case line == "#EXT-X-ENDLIST":
			hasEndList = true
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			v, err := strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"))
			if err != nil {
				return nil, fmt.Errorf("invalid target duration: %s", line)
			}
			truth.TargetSeconds = v
		case strings.HasPrefix(line, keyTag):
			if m := uriAttr.FindString(line); m != "" {
				truth.KeyURIs = append(truth.KeyURIs, strings.TrimSuffix(strings.TrimPrefix(m, `URI="`), `"`))
			}
		case strings.HasPrefix(line, "#EXTINF:"):
			durPart := strings.TrimPrefix(line, "#EXTINF:")
			if idx := strings.Index(durPart, ","); idx != -1 {
				durPart = durPart[:idx]
			}
			secs, err := strconv.ParseFloat(durPart, 64)
			if err != nil || secs < 0 {
				return nil, fmt.Errorf("invalid EXTINF duration: %s", durPart)
			}
			nextDuration = time.Duration(secs * float64(time.Second))
		case !strings.HasPrefix(line, "#"):
			truth.SegmentCount++
			truth.TotalDuration += nextDuration
			if nextDuration > truth.MaxDuration {
				truth.MaxDuration = nextDuration
			}
			nextDuration = 0
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if first {
		return nil, fmt.Errorf("empty playlist")
	}

	truth.IsVOD = typeVOD || hasEndList
	if truth.TargetSeconds > 0 {
		limit := time.Duration(truth.TargetSeconds)*time.Second + 500*time.Millisecond
		if truth.MaxDuration > limit {
			return nil, fmt.Errorf("segment duration %s exceeds target %ds", truth.MaxDuration, truth.TargetSeconds)
		}
	}
	return truth, nil
}
