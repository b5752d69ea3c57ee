// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"fmt"
	"strconv"
)

// Stage labels used for metrics and logs.
const (
	StageEncodeVariant = "encode_variant"
	StageExtractFrames = "extract_frames"
	StageExtractAudio  = "extract_audio"
	StageAssemble      = "assemble_frames"
	StageMux           = "mux"
	StageSegment       = "segment"
	StageProbe         = "probe"
)

// FramePattern is the fixed-width sequential name used for extracted frames.
const FramePattern = "%08d.png"

func baseArgs() []string {
	return []string{"-y", "-hide_banner", "-loglevel", "error"}
}

// HLSVariantInput describes one encrypted HLS rendition.
type HLSVariantInput struct {
	InputPath      string
	PlaylistPath   string
	SegmentPattern string
	Width          int
	Height         int
	VideoEncoder   string
	AudioCodec     string
	AudioBitrate   string
	SegmentSeconds int
	// KeyInfoPath is a file written by WriteKeyInfo.
	KeyInfoPath string
}

// HLSVariantArgs decodes, scales, encodes and segments into an AES-128
// encrypted VOD playlist with constant-duration segments.
func HLSVariantArgs(in HLSVariantInput) []string {
	seconds := in.SegmentSeconds
	if seconds <= 0 {
		seconds = 15
	}
	segTime := strconv.Itoa(seconds)

	args := baseArgs()
	args = append(args,
		"-i", in.InputPath,
		"-map", "0:v:0",
		"-map", "0:a:0?",
		"-vf", fmt.Sprintf("scale=%d:%d", in.Width, in.Height),
		"-c:v", in.VideoEncoder,
		// Keyframe on every segment boundary keeps segment durations constant.
		"-force_key_frames", fmt.Sprintf("expr:gte(t,n_forced*%d)", seconds),
		"-c:a", in.AudioCodec,
		"-b:a", in.AudioBitrate,
		"-ac", "2",
		"-f", "hls",
		"-hls_time", segTime,
		"-hls_playlist_type", "vod",
		"-hls_flags", "independent_segments",
		"-hls_segment_filename", in.SegmentPattern,
		"-hls_key_info_file", in.KeyInfoPath,
		"-movflags", "+faststart",
		in.PlaylistPath,
	)
	return args
}

// SegmentCopyInput describes packaging an existing file as encrypted HLS without re-encoding.
type SegmentCopyInput struct {
	InputPath      string
	PlaylistPath   string
	SegmentPattern string
	SegmentSeconds int
	KeyInfoPath    string
}

// SegmentCopyArgs packages InputPath as an encrypted VOD playlist via stream copy.
func SegmentCopyArgs(in SegmentCopyInput) []string {
	seconds := in.SegmentSeconds
	if seconds <= 0 {
		seconds = 15
	}
	args := baseArgs()
	args = append(args,
		"-i", in.InputPath,
		"-c", "copy",
		"-f", "hls",
		"-hls_time", strconv.Itoa(seconds),
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", in.SegmentPattern,
		"-hls_key_info_file", in.KeyInfoPath,
		in.PlaylistPath,
	)
	return args
}

// ExtractFramesArgs writes every frame as a PNG at a constant frame rate.
func ExtractFramesArgs(inputPath, outputPattern, frameRate string) []string {
	args := baseArgs()
	args = append(args,
		"-i", inputPath,
		"-map", "0:v:0",
		"-fps_mode", "cfr",
		"-r", frameRate,
		"-pix_fmt", "rgb24",
		"-f", "image2",
		outputPattern,
	)
	return args
}

// ExtractAudioArgs pulls the first audio track into a high-bitrate AAC file.
func ExtractAudioArgs(inputPath, outputPath string) []string {
	args := baseArgs()
	args = append(args,
		"-i", inputPath,
		"-map", "0:a:0",
		"-vn",
		"-c:a", "aac",
		"-b:a", "320k",
		outputPath,
	)
	return args
}

// AssembleInput describes re-encoding upscaled frames into a video stream.
type AssembleInput struct {
	FramePattern string
	FrameRate    string
	Width        int
	Height       int
	VideoEncoder string
	Bitrate      string
	OutputPath   string
}

// AssembleFramesArgs reads frames at the source frame rate and encodes them.
func AssembleFramesArgs(in AssembleInput) []string {
	args := baseArgs()
	args = append(args,
		"-framerate", in.FrameRate,
		"-i", in.FramePattern,
		"-vf", fmt.Sprintf("scale=%d:%d", in.Width, in.Height),
		"-c:v", in.VideoEncoder,
		"-b:v", in.Bitrate,
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		in.OutputPath,
	)
	return args
}

// MuxArgs combines a video stream with an optional audio track by stream copy.
func MuxArgs(videoPath, audioPath, outputPath string) []string {
	args := baseArgs()
	args = append(args, "-i", videoPath)
	if audioPath != "" {
		args = append(args, "-i", audioPath, "-map", "0:v:0", "-map", "1:a:0")
	}
	args = append(args,
		"-c", "copy",
		"-movflags", "+faststart",
		outputPath,
	)
	return args
}
