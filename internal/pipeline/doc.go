// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package pipeline orchestrates the two media jobs.
//
// Encoder turns a raw video into one encrypted HLS variant per ladder rung at
// or below the video's ceiling, plus a master manifest. Upscaler runs a video
// through a super-resolution model frame by frame, packages the result as an
// additional encrypted variant and appends it to the master manifest.
//
// Both jobs write their database changes in one transaction. On failure the
// transaction is rolled back, files produced by the job are removed, the
// owning entity is marked failed with the error message, and a *JobError is
// returned. Jobs touching the same video are serialized by VideoLocks.
package pipeline
