// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package media

import (
	"fmt"
	"math"
)

// Resolution is one rung of the encoding ladder, or the Upscaled marker.
// The string form is what gets persisted.
type Resolution string

const (
	ResolutionNone Resolution = ""
	R360           Resolution = "360p"
	R480           Resolution = "480p"
	R720           Resolution = "720p"
	R1080          Resolution = "1080p"
	R1440          Resolution = "1440p"
	R2160          Resolution = "2160p"
	Upscaled       Resolution = "upscaled"
)

// ladder is ordered highest first; encoding walks it in this order.
var ladder = []Resolution{R2160, R1440, R1080, R720, R480, R360}

var rungHeights = map[Resolution]int{
	R360:  360,
	R480:  480,
	R720:  720,
	R1080: 1080,
	R1440: 1440,
	R2160: 2160,
}

// VariantInfo is what the master manifest advertises for a variant.
type VariantInfo struct {
	Bandwidth int
	Width     int
	Height    int
}

// DefaultVariantInfo is used for labels the lookup does not know.
var DefaultVariantInfo = VariantInfo{Bandwidth: 2_800_000, Width: 1280, Height: 720}

var variantInfo = map[Resolution]VariantInfo{
	R360:  {Bandwidth: 800_000, Width: 640, Height: 360},
	R480:  {Bandwidth: 1_400_000, Width: 854, Height: 480},
	R720:  {Bandwidth: 2_800_000, Width: 1280, Height: 720},
	R1080: {Bandwidth: 5_000_000, Width: 1920, Height: 1080},
	R1440: {Bandwidth: 8_000_000, Width: 2560, Height: 1440},
	R2160: {Bandwidth: 14_000_000, Width: 3840, Height: 2160},
}

// Ladder returns the encodable rungs, highest first.
func Ladder() []Resolution {
	out := make([]Resolution, len(ladder))
	copy(out, ladder)
	return out
}

// ParseResolution validates a persisted label.
func ParseResolution(s string) (Resolution, error) {
	r := Resolution(s)
	if r == Upscaled || r == ResolutionNone {
		return r, nil
	}
	if _, ok := rungHeights[r]; ok {
		return r, nil
	}
	return ResolutionNone, fmt.Errorf("unknown resolution %q", s)
}

// Height returns the rung height, or 0 for the Upscaled marker and unknown labels.
func (r Resolution) Height() int {
	return rungHeights[r]
}

// IsRung reports whether r is an encodable ladder rung.
func (r Resolution) IsRung() bool {
	_, ok := rungHeights[r]
	return ok
}

func (r Resolution) String() string {
	return string(r)
}

// ClassifyCeiling picks the highest rung whose height does not exceed the
// source height. Sources below the lowest rung yield ResolutionNone.
func ClassifyCeiling(sourceHeight int) Resolution {
	for _, r := range ladder {
		if rungHeights[r] <= sourceHeight {
			return r
		}
	}
	return ResolutionNone
}

// RungsAtOrBelow lists every rung at or below ceiling, highest first.
func RungsAtOrBelow(ceiling Resolution) []Resolution {
	max, ok := rungHeights[ceiling]
	if !ok {
		return nil
	}
	var out []Resolution
	for _, r := range ladder {
		if rungHeights[r] <= max {
			out = append(out, r)
		}
	}
	return out
}

// WidthForHeight returns the 16:9 width for h rounded to the nearest even
// integer; hardware encoders reject odd dimensions.
func WidthForHeight(h int) int {
	w := float64(h) * 16 / 9
	return int(math.Round(w/2)) * 2
}

// EvenFloor rounds v down to an even number.
func EvenFloor(v int) int {
	return v &^ 1
}

// VariantInfoFor resolves the bandwidth and pixel dimensions advertised for
// a stream. Upscaled streams carry their real dimensions; their bandwidth is
// borrowed from the closest rung at or below their height.
func VariantInfoFor(s *VideoStream) VariantInfo {
	if s == nil {
		return DefaultVariantInfo
	}
	if info, ok := variantInfo[s.Resolution]; ok {
		return info
	}
	if s.Resolution == Upscaled && s.Width > 0 && s.Height > 0 {
		info := DefaultVariantInfo
		if c := ClassifyCeiling(s.Height); c != ResolutionNone {
			info = variantInfo[c]
		}
		info.Width = s.Width
		info.Height = s.Height
		return info
	}
	return DefaultVariantInfo
}
