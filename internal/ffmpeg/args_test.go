// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func argValue(args []string, flag string) (string, bool) {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1], true
		}
	}
	return "", false
}

func TestHLSVariantArgs(t *testing.T) {
	args := HLSVariantArgs(HLSVariantInput{
		InputPath:      "/in/raw.mp4",
		PlaylistPath:   "/out/720p/index.m3u8",
		SegmentPattern: "/out/720p/seg_%05d.ts",
		Width:          1280,
		Height:         720,
		VideoEncoder:   "h264_nvenc",
		AudioCodec:     "aac",
		AudioBitrate:   "128k",
		SegmentSeconds: 15,
		KeyInfoPath:    "/out/720p/enc.keyinfo",
	})

	checks := map[string]string{
		"-i":                    "/in/raw.mp4",
		"-vf":                   "scale=1280:720",
		"-c:v":                  "h264_nvenc",
		"-hls_time":             "15",
		"-hls_playlist_type":    "vod",
		"-hls_segment_filename": "/out/720p/seg_%05d.ts",
		"-hls_key_info_file":    "/out/720p/enc.keyinfo",
		"-force_key_frames":     "expr:gte(t,n_forced*15)",
		"-movflags":             "+faststart",
		"-f":                    "hls",
	}
	for flag, want := range checks {
		got, ok := argValue(args, flag)
		assert.True(t, ok, "missing %s", flag)
		assert.Equal(t, want, got, flag)
	}
	assert.Equal(t, "/out/720p/index.m3u8", args[len(args)-1], "playlist must be the final positional argument")
	for _, flag := range []string{"-hls_enc", "-hls_enc_key", "-hls_enc_iv"} {
		assert.NotContains(t, args, flag, "the muxer takes -hls_enc_key verbatim, not as hex")
	}
}

func TestHLSVariantArgs_DefaultSegmentDuration(t *testing.T) {
	args := HLSVariantArgs(HLSVariantInput{InputPath: "a", PlaylistPath: "b"})
	v, _ := argValue(args, "-hls_time")
	assert.Equal(t, "15", v)
}

func TestSegmentCopyArgs(t *testing.T) {
	args := SegmentCopyArgs(SegmentCopyInput{
		InputPath:      "/w/out.mp4",
		PlaylistPath:   "/v/upscaled-1/index.m3u8",
		SegmentPattern: "/v/upscaled-1/seg_%05d.ts",
		KeyInfoPath:    "/v/upscaled-1/enc.keyinfo",
	})
	v, _ := argValue(args, "-c")
	assert.Equal(t, "copy", v)
	_, hasEncoder := argValue(args, "-c:v")
	assert.False(t, hasEncoder, "segmenting must not re-encode")
	v, _ = argValue(args, "-hls_key_info_file")
	assert.Equal(t, "/v/upscaled-1/enc.keyinfo", v)
}

func TestWriteKeyInfo(t *testing.T) {
	dir := t.TempDir()
	key := []byte("0123456789abcdef")
	iv := strings.Repeat("cd", 16)

	infoPath, err := WriteKeyInfo(dir, "/drm/s1", key, iv)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, KeyInfoFileName), infoPath)

	info, err := os.ReadFile(infoPath)
	require.NoError(t, err)
	keyPath := filepath.Join(dir, KeyFileName)
	assert.Equal(t, "/drm/s1\n"+keyPath+"\n"+iv+"\n", string(info))

	raw, err := os.ReadFile(keyPath)
	require.NoError(t, err)
	assert.Equal(t, key, raw, "key file holds raw bytes")

	require.NoError(t, RemoveKeyInfo(dir))
	assert.NoFileExists(t, keyPath)
	assert.NoFileExists(t, infoPath)
	assert.NoError(t, RemoveKeyInfo(dir), "removing twice is fine")
}

func TestWriteKeyInfo_RejectsBadMaterial(t *testing.T) {
	dir := t.TempDir()
	_, err := WriteKeyInfo(dir, "/drm/s1", []byte("short"), strings.Repeat("cd", 16))
	assert.Error(t, err)
	_, err = WriteKeyInfo(dir, "/drm/s1", make([]byte, 16), strings.Repeat("ab", 16)+"00")
	assert.Error(t, err)
	_, err = WriteKeyInfo(dir, "/drm/s1", make([]byte, 16), "zz")
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, KeyFileName))
}

func TestExtractFramesArgs(t *testing.T) {
	args := ExtractFramesArgs("/in.mp4", "/w/frames/"+FramePattern, "30000/1001")
	v, _ := argValue(args, "-r")
	assert.Equal(t, "30000/1001", v)
	assert.Equal(t, "/w/frames/%08d.png", args[len(args)-1])
}

func TestAssembleFramesArgs(t *testing.T) {
	args := AssembleFramesArgs(AssembleInput{
		FramePattern: "/w/up/%08d.png",
		FrameRate:    "25/1",
		Width:        2560,
		Height:       1440,
		VideoEncoder: "hevc_nvenc",
		Bitrate:      "12M",
		OutputPath:   "/w/video.mp4",
	})
	v, _ := argValue(args, "-framerate")
	assert.Equal(t, "25/1", v)
	v, _ = argValue(args, "-b:v")
	assert.Equal(t, "12M", v)
	v, _ = argValue(args, "-vf")
	assert.Equal(t, "scale=2560:1440", v)
}

func TestMuxArgs(t *testing.T) {
	t.Run("with_audio", func(t *testing.T) {
		args := MuxArgs("/w/v.mp4", "/w/a.m4a", "/out.mp4")
		assert.Contains(t, args, "/w/a.m4a")
		assert.Contains(t, args, "1:a:0")
	})
	t.Run("video_only", func(t *testing.T) {
		args := MuxArgs("/w/v.mp4", "", "/out.mp4")
		assert.NotContains(t, args, "1:a:0")
		v, _ := argValue(args, "-c")
		assert.Equal(t, "copy", v)
	})
}
