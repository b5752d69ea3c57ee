// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// Job attributes
	JobIDKey   = "job.id"
	JobTypeKey = "job.type"

	// Media attributes
	VideoIDKey    = "video.id"
	StreamIDKey   = "stream.id"
	UpscaleIDKey  = "upscale.id"
	ResolutionKey = "media.resolution"
	WidthKey      = "media.width"
	HeightKey     = "media.height"

	// Transcoding attributes
	TranscodeStageKey   = "transcode.stage"
	TranscodeEncoderKey = "transcode.encoder"

	// Inference attributes
	ModelIDKey     = "inference.model_id"
	ProviderKey    = "inference.provider"
	ScaleKey       = "inference.scale"
	FramesKey      = "inference.frames"
	ConcurrencyKey = "inference.concurrency"
)

// JobAttributes creates job span attributes.
func JobAttributes(jobID, jobType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(JobIDKey, jobID),
		attribute.String(JobTypeKey, jobType),
	}
}

// VariantAttributes describes one rendition being produced.
func VariantAttributes(videoID, resolution string, width, height int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(VideoIDKey, videoID),
		attribute.String(ResolutionKey, resolution),
		attribute.Int(WidthKey, width),
		attribute.Int(HeightKey, height),
	}
}

// InferenceAttributes describes an upscale run.
func InferenceAttributes(modelID, provider string, scale, concurrency int) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if modelID != "" {
		attrs = append(attrs, attribute.String(ModelIDKey, modelID))
	}
	if provider != "" {
		attrs = append(attrs, attribute.String(ProviderKey, provider))
	}
	attrs = append(attrs,
		attribute.Int(ScaleKey, scale),
		attribute.Int(ConcurrencyKey, concurrency),
	)
	return attrs
}
