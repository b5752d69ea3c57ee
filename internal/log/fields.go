// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"
	FieldJobKind   = "job_kind"
	FieldVideoID   = "video_id"
	FieldStreamID  = "stream_id"
	FieldUpscaleID = "upscale_id"
	FieldModelID   = "model_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStage     = "stage"

	// Media fields
	FieldResolution = "resolution"
	FieldWidth      = "width"
	FieldHeight     = "height"
	FieldFPS        = "fps"
	FieldEncoder    = "encoder"
	FieldProvider   = "provider"
	FieldFrames     = "frames"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path fields
	FieldPath         = "path"
	FieldPlaylistPath = "playlist_path"
	FieldWorkDir      = "work_dir"
)
