// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/streamvault/internal/ffmpeg"
	"github.com/ManuGH/streamvault/internal/hls"
	xglog "github.com/ManuGH/streamvault/internal/log"
	"github.com/ManuGH/streamvault/internal/media"
	"github.com/ManuGH/streamvault/internal/metrics"
	"github.com/ManuGH/streamvault/internal/store"
	"github.com/ManuGH/streamvault/internal/telemetry"
)

const kindEncode = "encode"

// Encoder produces the encrypted HLS ladder and master manifest of a video.
type Encoder struct {
	deps     Deps
	settings Settings
	tracer   trace.Tracer
	now      func() time.Time
}

// NewEncoder returns an Encoder.
func NewEncoder(deps Deps, settings Settings) *Encoder {
	return &Encoder{
		deps:     deps.withDefaults(),
		settings: settings,
		tracer:   telemetry.Tracer("streamvault/pipeline"),
		now:      time.Now,
	}
}

// encodeRun is the state of one Encode call that failure handling unwinds.
type encodeRun struct {
	video *media.Video
	// prior is the status the video had when the job picked it up.
	prior   media.VideoStatus
	tx      store.Tx
	master  *hls.Snapshot
	created []*media.VideoStream
	dirs    []string
}

// Encode produces one variant per ladder rung at or below the video's
// ceiling and rewrites the master manifest. Rungs that already have a
// stream are kept as they are.
func (e *Encoder) Encode(ctx context.Context, videoID string) (err error) {
	start := time.Now()
	done := metrics.JobStarted(kindEncode)
	defer done()

	logger := xglog.WithComponentFromContext(ctx, "encoder").With().Str(xglog.FieldVideoID, videoID).Logger()
	ctx, span := e.tracer.Start(ctx, "encode", trace.WithAttributes(telemetry.JobAttributes(xglog.JobIDFromContext(ctx), kindEncode)...))
	defer func() {
		result := "ok"
		if err != nil {
			result = "failed"
			span.RecordError(err)
		}
		span.End()
		metrics.RecordJob(kindEncode, result, time.Since(start))
	}()

	unlock, err := e.deps.Locks.Lock(ctx, videoID)
	if err != nil {
		return jobErr("lock", KindCancelled, err)
	}
	defer unlock()

	video, err := e.deps.Store.Videos().Get(ctx, videoID)
	if err != nil {
		return jobErr("load", KindPersistence, err)
	}

	run := &encodeRun{video: video}
	if je := e.encode(ctx, run, logger); je != nil {
		e.fail(ctx, run, je, logger)
		return je
	}

	logger.Info().
		Str(xglog.FieldEvent, "encode.ready").
		Int("streams", len(video.Streams)).
		Int("created", len(run.created)).
		Dur("duration", time.Since(start)).
		Msg("video encoded")
	return nil
}

func (e *Encoder) encode(ctx context.Context, run *encodeRun, logger zerolog.Logger) *JobError {
	video := run.video
	fromState := video.Status
	run.prior = fromState
	video.Status = media.VideoEncoding
	video.Error = ""
	video.UpdatedAt = e.now().UTC()
	if err := e.deps.Store.Videos().Update(ctx, video); err != nil {
		return jobErr("mark_encoding", KindPersistence, err)
	}
	logger.Info().
		Str(xglog.FieldOldState, string(fromState)).
		Str(xglog.FieldNewState, string(media.VideoEncoding)).
		Str(xglog.FieldResolution, video.Resolution.String()).
		Msg("encoding started")

	source, err := e.deps.Paths.Abs(video.RawPath)
	if err != nil {
		return jobErr("resolve_source", KindFilesystem, err)
	}

	for _, r := range media.RungsAtOrBelow(video.Resolution) {
		if existing := video.StreamFor(r); existing != nil {
			logger.Debug().
				Str(xglog.FieldResolution, r.String()).
				Str(xglog.FieldStreamID, existing.ID).
				Msg("variant already present")
			continue
		}
		if _, err := e.encodeVariant(ctx, run, source, r, logger); err != nil {
			return jobErr(ffmpeg.StageEncodeVariant, KindExternalProcess, err)
		}
	}

	masterPath := e.deps.Paths.MasterPath(video.ID)
	snap, err := hls.TakeSnapshot(masterPath)
	if err != nil {
		return jobErr("write_master", KindFilesystem, err)
	}
	run.master = snap
	if err := hls.WriteMaster(masterPath, video.Streams, e.deps.Paths); err != nil {
		return jobErr("write_master", KindFilesystem, err)
	}
	rel, err := e.deps.Paths.Rel(masterPath)
	if err != nil {
		return jobErr("write_master", KindFilesystem, err)
	}

	// The write transaction opens only once every variant is on disk, so no
	// ffmpeg run happens while SQLite's write lock is held.
	tx, err := e.deps.Store.Begin(ctx)
	if err != nil {
		return jobErr("begin", KindPersistence, err)
	}
	run.tx = tx
	for _, stream := range run.created {
		if err := tx.Streams().Add(ctx, stream); err != nil {
			return jobErr("persist_stream", KindPersistence, err)
		}
	}

	video.MasterPath = rel
	video.Status = media.VideoReady
	video.UpdatedAt = e.now().UTC()
	if err := tx.Videos().Update(ctx, video); err != nil {
		return jobErr("persist_video", KindPersistence, err)
	}
	if err := tx.Commit(); err != nil {
		return jobErr("commit", KindPersistence, err)
	}
	run.tx = nil
	return nil
}

func (e *Encoder) encodeVariant(ctx context.Context, run *encodeRun, source string, r media.Resolution, logger zerolog.Logger) (_ *media.VideoStream, err error) {
	video := run.video
	height := r.Height()
	width := media.WidthForHeight(height)

	ctx, end := telemetry.StartStage(ctx, e.tracer, ffmpeg.StageEncodeVariant,
		telemetry.VariantAttributes(video.ID, r.String(), width, height)...)
	defer func() { end(err) }()

	kp, err := e.deps.Keys.Generate()
	if err != nil {
		return nil, jobErr("generate_key", KindFilesystem, err)
	}
	streamID := uuid.NewString()

	dir := e.deps.Paths.VariantDir(video.ID, r.String())
	if err := resetDir(dir); err != nil {
		return nil, jobErr(ffmpeg.StageEncodeVariant, KindFilesystem, err)
	}
	run.dirs = append(run.dirs, dir)

	keyInfo, err := writeKeyInfo(dir, e.settings.DRMEndpoint, streamID, kp)
	if err != nil {
		return nil, jobErr("write_key_info", KindFilesystem, err)
	}

	playlist := e.deps.Paths.VariantPlaylist(video.ID, r.String())
	inv := ffmpeg.Invocation{
		Stage: ffmpeg.StageEncodeVariant,
		Args: ffmpeg.HLSVariantArgs(ffmpeg.HLSVariantInput{
			InputPath:      source,
			PlaylistPath:   playlist,
			SegmentPattern: filepath.Join(dir, segmentPattern),
			Width:          width,
			Height:         height,
			VideoEncoder:   e.settings.VideoEncoder,
			AudioCodec:     e.settings.AudioCodec,
			AudioBitrate:   e.settings.AudioBitrate,
			SegmentSeconds: e.settings.SegmentSeconds,
			KeyInfoPath:    keyInfo,
		}),
		Outputs: []string{playlist},
	}
	if err := e.deps.Runner.Run(ctx, inv); err != nil {
		return nil, jobErr(ffmpeg.StageEncodeVariant, KindExternalProcess, err)
	}
	if err := finalizeVariant(playlist, e.settings.DRMEndpoint, streamID); err != nil {
		return nil, jobErr("finalize_variant", KindFilesystem, err)
	}
	rel, err := e.deps.Paths.Rel(playlist)
	if err != nil {
		return nil, jobErr("finalize_variant", KindFilesystem, err)
	}

	stream := &media.VideoStream{
		ID:           streamID,
		Resolution:   r,
		PlaylistPath: rel,
		Key:          kp.Key,
		IV:           kp.IV,
		Width:        width,
		Height:       height,
		CreatedAt:    e.now().UTC(),
	}
	stream, added := video.AddStream(stream)
	if !added {
		return nil, jobErr("register_stream", KindPersistence, fmt.Errorf("%w: %s", store.ErrDuplicateStream, r))
	}
	run.created = append(run.created, stream)

	logger.Info().
		Str(xglog.FieldEvent, "encode.variant_ready").
		Str(xglog.FieldStreamID, streamID).
		Str(xglog.FieldResolution, r.String()).
		Int(xglog.FieldWidth, width).
		Int(xglog.FieldHeight, height).
		Str(xglog.FieldPlaylistPath, rel).
		Msg("variant encoded")
	return stream, nil
}

// fail undoes everything the run produced and records the failure on the
// video. It runs detached from ctx so a cancelled job still gets marked.
func (e *Encoder) fail(ctx context.Context, run *encodeRun, je *JobError, logger zerolog.Logger) {
	ctx = context.WithoutCancel(ctx)
	video := run.video

	if run.tx != nil {
		if err := run.tx.Rollback(); err != nil {
			logger.Error().Err(err).Msg("rollback failed")
		}
	}
	for _, s := range run.created {
		video.RemoveStream(s.ID)
	}
	for _, dir := range run.dirs {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn().Err(err).Str(xglog.FieldPath, dir).Msg("failed to remove variant dir")
		}
	}
	if run.master != nil {
		if err := run.master.Restore(); err != nil {
			logger.Error().Err(err).Msg("failed to restore master manifest")
		}
	}

	// A video that was Ready keeps its committed variants and restored master,
	// so it stays playable; only the error is recorded.
	video.Status = media.VideoFailed
	if run.prior == media.VideoReady {
		video.Status = media.VideoReady
	}
	video.Error = je.Error()
	video.UpdatedAt = e.now().UTC()
	if err := e.deps.Store.Videos().Update(ctx, video); err != nil && !errors.Is(err, media.ErrVideoNotFound) {
		logger.Error().Err(err).Msg("failed to persist failed status")
	}

	logger.Error().
		Err(je.Err).
		Str(xglog.FieldEvent, "encode.failed").
		Str(xglog.FieldStage, je.Stage).
		Str("kind", string(je.Kind)).
		Str(xglog.FieldNewState, string(video.Status)).
		Msg("encoding failed")
}
