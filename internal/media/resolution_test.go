// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package media

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyCeiling(t *testing.T) {
	tests := []struct {
		height int
		want   Resolution
	}{
		{height: 2160, want: R2160},
		{height: 4320, want: R2160},
		{height: 1080, want: R1080},
		{height: 1079, want: R720},
		{height: 800, want: R720},
		{height: 360, want: R360},
		{height: 359, want: ResolutionNone},
		{height: 0, want: ResolutionNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyCeiling(tt.height), "height %d", tt.height)
	}
}

func TestRungsAtOrBelow(t *testing.T) {
	got := RungsAtOrBelow(R1080)
	want := []Resolution{R1080, R720, R480, R360}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("rungs mismatch (-want +got):\n%s", diff)
	}

	assert.Empty(t, RungsAtOrBelow(ResolutionNone))
	assert.Empty(t, RungsAtOrBelow(Upscaled))
	assert.Len(t, RungsAtOrBelow(R2160), len(Ladder()))
}

func TestRungCountMatchesCeiling(t *testing.T) {
	for i, ceiling := range Ladder() {
		assert.Len(t, RungsAtOrBelow(ceiling), len(Ladder())-i, "ceiling %s", ceiling)
	}
}

func TestWidthForHeightIsEven(t *testing.T) {
	cases := map[int]int{360: 640, 480: 854, 720: 1280, 1080: 1920, 1440: 2560, 2160: 3840}
	for h, w := range cases {
		assert.Equal(t, w, WidthForHeight(h), "height %d", h)
	}
	for h := 100; h < 2200; h++ {
		require.Zero(t, WidthForHeight(h)%2, "odd width for height %d", h)
	}
}

func TestVariantInfoFor(t *testing.T) {
	assert.Equal(t, 5_000_000, VariantInfoFor(&VideoStream{Resolution: R1080}).Bandwidth)
	assert.Equal(t, DefaultVariantInfo, VariantInfoFor(&VideoStream{Resolution: "999p"}))
	assert.Equal(t, DefaultVariantInfo, VariantInfoFor(nil))

	up := VariantInfoFor(&VideoStream{Resolution: Upscaled, Width: 2560, Height: 1440})
	assert.Equal(t, VariantInfo{Bandwidth: 8_000_000, Width: 2560, Height: 1440}, up)

	upNoDims := VariantInfoFor(&VideoStream{Resolution: Upscaled})
	assert.Equal(t, DefaultVariantInfo, upNoDims)
}

func TestParseResolution(t *testing.T) {
	r, err := ParseResolution("720p")
	require.NoError(t, err)
	assert.Equal(t, R720, r)

	r, err = ParseResolution("upscaled")
	require.NoError(t, err)
	assert.Equal(t, Upscaled, r)

	_, err = ParseResolution("8k")
	assert.Error(t, err)
}

func TestAddStreamIsIdempotentPerResolution(t *testing.T) {
	v := &Video{ID: "v1"}
	first, added := v.AddStream(&VideoStream{ID: "s1", Resolution: R720})
	require.True(t, added)
	assert.Equal(t, "v1", first.VideoID)

	again, added := v.AddStream(&VideoStream{ID: "s2", Resolution: R720})
	assert.False(t, added)
	assert.Same(t, first, again)
	assert.Len(t, v.Streams, 1)

	v.RemoveStream("s1")
	assert.Empty(t, v.Streams)
}
