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
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/ManuGH/streamvault/internal/ffmpeg"
	"github.com/ManuGH/streamvault/internal/hls"
	"github.com/ManuGH/streamvault/internal/inference"
	xglog "github.com/ManuGH/streamvault/internal/log"
	"github.com/ManuGH/streamvault/internal/media"
	"github.com/ManuGH/streamvault/internal/metrics"
	"github.com/ManuGH/streamvault/internal/store"
	"github.com/ManuGH/streamvault/internal/telemetry"
)

const kindUpscale = "upscale"

// UpscaleSettings extends Settings with the upscale-only parameters.
type UpscaleSettings struct {
	Settings
	// Bitrate is the target bitrate of the reassembled video, e.g. "12M".
	Bitrate string
	// FrameConcurrency is read at job start; it may change between jobs.
	FrameConcurrency func() int
}

// Upscaler runs videos through super-resolution models and publishes the
// result as an additional variant.
type Upscaler struct {
	deps     Deps
	settings UpscaleSettings
	prober   Prober
	sessions Sessions
	tracer   trace.Tracer
	now      func() time.Time
}

// NewUpscaler returns an Upscaler.
func NewUpscaler(deps Deps, settings UpscaleSettings, prober Prober, sessions Sessions) *Upscaler {
	return &Upscaler{
		deps:     deps.withDefaults(),
		settings: settings,
		prober:   prober,
		sessions: sessions,
		tracer:   telemetry.Tracer("streamvault/pipeline"),
		now:      time.Now,
	}
}

func (u *Upscaler) frameConcurrency() int {
	n := 1
	if u.settings.FrameConcurrency != nil {
		n = u.settings.FrameConcurrency()
	}
	if n < 1 {
		n = 1
	}
	return n
}

// upscaleRun is the state of one Upscale call that failure handling unwinds.
type upscaleRun struct {
	upscale    *media.VideoUpscale
	video      *media.Video
	tx         store.Tx
	stream     *media.VideoStream
	masterPath string
	masterSize int64
	appended   bool
	variantDir string
	outputPath string
}

// Upscale processes one upscale request. A request that is already Ready is
// a no-op.
func (u *Upscaler) Upscale(ctx context.Context, upscaleID string) (err error) {
	start := time.Now()
	done := metrics.JobStarted(kindUpscale)
	defer done()

	logger := xglog.WithComponentFromContext(ctx, "upscaler").With().Str(xglog.FieldUpscaleID, upscaleID).Logger()
	ctx, span := u.tracer.Start(ctx, "upscale", trace.WithAttributes(telemetry.JobAttributes(xglog.JobIDFromContext(ctx), kindUpscale)...))
	defer func() {
		result := "ok"
		if err != nil {
			result = "failed"
			span.RecordError(err)
		}
		span.End()
		metrics.RecordJob(kindUpscale, result, time.Since(start))
	}()

	up, err := u.deps.Store.Upscales().Get(ctx, upscaleID)
	if err != nil {
		return jobErr("load", KindPersistence, err)
	}

	unlock, err := u.deps.Locks.Lock(ctx, up.VideoID)
	if err != nil {
		return jobErr("lock", KindCancelled, err)
	}
	defer unlock()

	// Re-read under the lock; a concurrent run may have finished it.
	if up, err = u.deps.Store.Upscales().Get(ctx, upscaleID); err != nil {
		return jobErr("load", KindPersistence, err)
	}
	if up.Status == media.UpscaleReady {
		logger.Info().Str(xglog.FieldStreamID, up.StreamID).Msg("upscale already ready")
		return nil
	}
	logger = logger.With().Str(xglog.FieldVideoID, up.VideoID).Str(xglog.FieldModelID, up.ModelID).Logger()

	run := &upscaleRun{upscale: up}
	if je := u.upscale(ctx, run, logger); je != nil {
		u.fail(ctx, run, je, logger)
		return je
	}

	logger.Info().
		Str(xglog.FieldEvent, "upscale.ready").
		Str(xglog.FieldStreamID, up.StreamID).
		Dur("duration", time.Since(start)).
		Msg("upscale ready")
	return nil
}

func (u *Upscaler) upscale(ctx context.Context, run *upscaleRun, logger zerolog.Logger) *JobError {
	up := run.upscale

	video, err := u.deps.Store.Videos().Get(ctx, up.VideoID)
	if err != nil {
		return jobErr("load_video", KindPersistence, err)
	}
	run.video = video
	model, err := u.deps.Store.Models().Get(ctx, up.ModelID)
	if err != nil {
		return jobErr("load_model", KindPersistence, err)
	}

	fromState := up.Status
	up.Status = media.UpscaleProcessing
	up.Error = ""
	up.UpdatedAt = u.now().UTC()
	if err := u.deps.Store.Upscales().Update(ctx, up); err != nil {
		return jobErr("mark_processing", KindPersistence, err)
	}
	logger.Info().
		Str(xglog.FieldOldState, string(fromState)).
		Str(xglog.FieldNewState, string(media.UpscaleProcessing)).
		Msg("upscale started")

	if existing := video.StreamFor(media.Upscaled); existing != nil {
		return u.linkExisting(ctx, run, existing, logger)
	}

	lease, err := u.sessions.Acquire(ctx, *model)
	if err != nil {
		return jobErr("load_session", KindInference, err)
	}
	defer lease.Release()

	source, err := u.deps.Paths.Abs(video.RawPath)
	if err != nil {
		return jobErr("resolve_source", KindFilesystem, err)
	}
	probe, err := u.prober.Probe(ctx, source)
	if err != nil {
		return jobErr(ffmpeg.StageProbe, KindExternalProcess, err)
	}
	if model.Scale < 1 {
		return jobErr("load_model", KindInference, fmt.Errorf("model %s has invalid scale %d", model.ID, model.Scale))
	}
	outW := media.EvenFloor(probe.Width * model.Scale)
	outH := media.EvenFloor(probe.Height * model.Scale)
	logger.Info().
		Int(xglog.FieldWidth, outW).
		Int(xglog.FieldHeight, outH).
		Float64(xglog.FieldFPS, probe.FPS).
		Bool("audio", probe.HasAudio).
		Msg("source probed")

	work, err := newWorkDir(u.deps.Paths, "upscale", logger)
	if err != nil {
		return jobErr("work_dir", KindFilesystem, err)
	}
	defer work.cleanup()

	framesDir, err := work.mkdir("frames")
	if err != nil {
		return jobErr("work_dir", KindFilesystem, err)
	}
	upscaledDir, err := work.mkdir("upscaled")
	if err != nil {
		return jobErr("work_dir", KindFilesystem, err)
	}

	audioPath, err := u.extract(ctx, source, probe, framesDir, work)
	if err != nil {
		return jobErr(ffmpeg.StageExtractFrames, KindExternalProcess, err)
	}

	frames, err := listFrames(framesDir)
	if err != nil {
		return jobErr(ffmpeg.StageExtractFrames, KindExternalProcess, err)
	}

	inferCtx, end := telemetry.StartStage(ctx, u.tracer, "infer_frames",
		telemetry.InferenceAttributes(model.ID, string(u.providerOf()), model.Scale, u.frameConcurrency())...)
	err = u.inferFrames(inferCtx, lease, framesDir, upscaledDir, frames, logger)
	end(err)
	if err != nil {
		return jobErr("infer_frames", KindInference, err)
	}

	assembled := work.path("video.mp4")
	if err := u.deps.Runner.Run(ctx, ffmpeg.Invocation{
		Stage: ffmpeg.StageAssemble,
		Args: ffmpeg.AssembleFramesArgs(ffmpeg.AssembleInput{
			FramePattern: filepath.Join(upscaledDir, ffmpeg.FramePattern),
			FrameRate:    probe.FrameRate,
			Width:        outW,
			Height:       outH,
			VideoEncoder: u.settings.VideoEncoder,
			Bitrate:      u.settings.Bitrate,
			OutputPath:   assembled,
		}),
		Outputs: []string{assembled},
	}); err != nil {
		return jobErr(ffmpeg.StageAssemble, KindExternalProcess, err)
	}

	output := u.deps.Paths.UpscaleOutput(video.ID, up.ID)
	if err := os.MkdirAll(filepath.Dir(output), 0o750); err != nil {
		return jobErr(ffmpeg.StageMux, KindFilesystem, err)
	}
	run.outputPath = output
	if err := u.deps.Runner.Run(ctx, ffmpeg.Invocation{
		Stage:   ffmpeg.StageMux,
		Args:    ffmpeg.MuxArgs(assembled, audioPath, output),
		Outputs: []string{output},
	}); err != nil {
		return jobErr(ffmpeg.StageMux, KindExternalProcess, err)
	}

	stream, je := u.packageOutput(ctx, run, output, outW, outH)
	if je != nil {
		return je
	}
	return u.publish(ctx, run, stream, output, logger)
}

// extract pulls frames and, when present, the audio track in parallel.
// It returns the audio path, or "" for silent sources.
func (u *Upscaler) extract(ctx context.Context, source string, probe *ffmpeg.ProbeResult, framesDir string, work *workDir) (string, error) {
	var audioPath string
	if probe.HasAudio {
		audioPath = work.path("audio.m4a")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return u.deps.Runner.Run(gctx, ffmpeg.Invocation{
			Stage: ffmpeg.StageExtractFrames,
			Args:  ffmpeg.ExtractFramesArgs(source, filepath.Join(framesDir, ffmpeg.FramePattern), probe.FrameRate),
		})
	})
	if audioPath != "" {
		g.Go(func() error {
			return u.deps.Runner.Run(gctx, ffmpeg.Invocation{
				Stage:   ffmpeg.StageExtractAudio,
				Args:    ffmpeg.ExtractAudioArgs(source, audioPath),
				Outputs: []string{audioPath},
			})
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return audioPath, nil
}

// listFrames returns the extracted frame names in temporal order.
func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	frames := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".png") {
			frames = append(frames, e.Name())
		}
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: no frames in %s", ffmpeg.ErrMissingOutput, dir)
	}
	// os.ReadDir sorts by name; the zero-padded pattern makes that temporal order.
	return frames, nil
}

// inferFrames runs every frame through the model with at most
// frameConcurrency frames in flight.
func (u *Upscaler) inferFrames(ctx context.Context, lease *inference.Lease, inDir, outDir string, frames []string, logger zerolog.Logger) error {
	limit := u.frameConcurrency()
	sem := semaphore.NewWeighted(int64(limit))
	g, gctx := errgroup.WithContext(ctx)

	var completed atomic.Int64
	progress := rate.Sometimes{Interval: 10 * time.Second}
	start := time.Now()

	logger.Info().
		Int(xglog.FieldFrames, len(frames)).
		Int("concurrency", limit).
		Msg("inference started")

	for _, name := range frames {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			metrics.FramesInFlight.Inc()
			defer metrics.FramesInFlight.Dec()

			if err := upscaleFrame(gctx, lease, filepath.Join(inDir, name), filepath.Join(outDir, name)); err != nil {
				return fmt.Errorf("frame %s: %w", name, err)
			}
			n := completed.Add(1)
			progress.Do(func() {
				logger.Info().
					Int64("completed", n).
					Int(xglog.FieldFrames, len(frames)).
					Msg("inference progress")
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	logger.Info().
		Int(xglog.FieldFrames, len(frames)).
		Dur("duration", time.Since(start)).
		Msg("inference finished")
	return nil
}

func upscaleFrame(ctx context.Context, lease *inference.Lease, in, out string) error {
	img, err := inference.ReadFrame(in)
	if err != nil {
		return err
	}
	result, err := lease.Run(ctx, inference.ImageToTensor(img))
	if err != nil {
		return err
	}
	upscaled, err := inference.TensorToImage(result)
	if err != nil {
		return err
	}
	return inference.WriteFrame(out, upscaled)
}

// packageOutput segments the muxed file into an encrypted variant.
func (u *Upscaler) packageOutput(ctx context.Context, run *upscaleRun, output string, width, height int) (*media.VideoStream, *JobError) {
	video := run.video
	kp, err := u.deps.Keys.Generate()
	if err != nil {
		return nil, jobErr("generate_key", KindFilesystem, err)
	}
	streamID := uuid.NewString()

	label := string(media.Upscaled) + "-" + streamID[:8]
	dir := u.deps.Paths.VariantDir(video.ID, label)
	if err := resetDir(dir); err != nil {
		return nil, jobErr(ffmpeg.StageSegment, KindFilesystem, err)
	}
	run.variantDir = dir

	keyInfo, err := writeKeyInfo(dir, u.settings.DRMEndpoint, streamID, kp)
	if err != nil {
		return nil, jobErr("write_key_info", KindFilesystem, err)
	}

	playlist := u.deps.Paths.VariantPlaylist(video.ID, label)
	if err := u.deps.Runner.Run(ctx, ffmpeg.Invocation{
		Stage: ffmpeg.StageSegment,
		Args: ffmpeg.SegmentCopyArgs(ffmpeg.SegmentCopyInput{
			InputPath:      output,
			PlaylistPath:   playlist,
			SegmentPattern: filepath.Join(dir, segmentPattern),
			SegmentSeconds: u.settings.SegmentSeconds,
			KeyInfoPath:    keyInfo,
		}),
		Outputs: []string{playlist},
	}); err != nil {
		return nil, jobErr(ffmpeg.StageSegment, KindExternalProcess, err)
	}
	if err := finalizeVariant(playlist, u.settings.DRMEndpoint, streamID); err != nil {
		return nil, jobErr("finalize_variant", KindFilesystem, err)
	}
	rel, err := u.deps.Paths.Rel(playlist)
	if err != nil {
		return nil, jobErr("finalize_variant", KindFilesystem, err)
	}
	return &media.VideoStream{
		ID:           streamID,
		Resolution:   media.Upscaled,
		PlaylistPath: rel,
		Key:          kp.Key,
		IV:           kp.IV,
		Width:        width,
		Height:       height,
		CreatedAt:    u.now().UTC(),
	}, nil
}

// publish appends the new variant to the master manifest and commits the
// stream, upscale and video together.
func (u *Upscaler) publish(ctx context.Context, run *upscaleRun, stream *media.VideoStream, output string, logger zerolog.Logger) *JobError {
	video, up := run.video, run.upscale

	if _, added := video.AddStream(stream); !added {
		return jobErr("register_stream", KindPersistence, fmt.Errorf("%w: %s", store.ErrDuplicateStream, media.Upscaled))
	}
	run.stream = stream

	masterPath := u.deps.Paths.MasterPath(video.ID)
	size, err := hls.Size(masterPath)
	if err != nil {
		return jobErr("append_master", KindFilesystem, err)
	}
	run.masterPath, run.masterSize = masterPath, size
	if err := hls.AppendVariant(masterPath, stream, u.deps.Paths); err != nil {
		return jobErr("append_master", KindFilesystem, err)
	}
	run.appended = true

	masterRel, err := u.deps.Paths.Rel(masterPath)
	if err != nil {
		return jobErr("append_master", KindFilesystem, err)
	}
	outputRel, err := u.deps.Paths.Rel(output)
	if err != nil {
		return jobErr("persist_upscale", KindFilesystem, err)
	}

	tx, err := u.deps.Store.Begin(ctx)
	if err != nil {
		return jobErr("begin", KindPersistence, err)
	}
	run.tx = tx

	if err := tx.Streams().Add(ctx, stream); err != nil {
		return jobErr("persist_stream", KindPersistence, err)
	}
	now := u.now().UTC()
	up.OutputPath = outputRel
	up.StreamID = stream.ID
	up.Status = media.UpscaleReady
	up.UpdatedAt = now
	if err := tx.Upscales().Update(ctx, up); err != nil {
		return jobErr("persist_upscale", KindPersistence, err)
	}
	video.MasterPath = masterRel
	video.UpdatedAt = now
	if err := tx.Videos().Update(ctx, video); err != nil {
		return jobErr("persist_video", KindPersistence, err)
	}
	if err := tx.Commit(); err != nil {
		return jobErr("commit", KindPersistence, err)
	}
	run.tx = nil

	logger.Info().
		Str(xglog.FieldEvent, "upscale.variant_ready").
		Str(xglog.FieldStreamID, stream.ID).
		Int(xglog.FieldWidth, stream.Width).
		Int(xglog.FieldHeight, stream.Height).
		Str(xglog.FieldPlaylistPath, stream.PlaylistPath).
		Msg("upscaled variant published")
	return nil
}

// linkExisting completes a request against the video's existing upscaled
// variant; a video carries at most one.
func (u *Upscaler) linkExisting(ctx context.Context, run *upscaleRun, existing *media.VideoStream, logger zerolog.Logger) *JobError {
	up := run.upscale
	for _, other := range run.video.Upscales {
		if other.StreamID == existing.ID && other.OutputPath != "" {
			up.OutputPath = other.OutputPath
			break
		}
	}
	up.StreamID = existing.ID
	up.Status = media.UpscaleReady
	up.UpdatedAt = u.now().UTC()
	if err := u.deps.Store.Upscales().Update(ctx, up); err != nil {
		return jobErr("persist_upscale", KindPersistence, err)
	}
	logger.Info().
		Str(xglog.FieldStreamID, existing.ID).
		Msg("video already has an upscaled variant, linked")
	return nil
}

// fail undoes everything the run produced and records the failure on the
// request. It runs detached from ctx so a cancelled job still gets marked.
func (u *Upscaler) fail(ctx context.Context, run *upscaleRun, je *JobError, logger zerolog.Logger) {
	ctx = context.WithoutCancel(ctx)
	up := run.upscale

	if run.tx != nil {
		if err := run.tx.Rollback(); err != nil {
			logger.Error().Err(err).Msg("rollback failed")
		}
	}
	if run.stream != nil && run.video != nil {
		run.video.RemoveStream(run.stream.ID)
	}
	if run.appended {
		if err := hls.Truncate(run.masterPath, run.masterSize); err != nil {
			logger.Error().Err(err).Msg("failed to restore master manifest")
		}
	}
	if run.variantDir != "" {
		if err := os.RemoveAll(run.variantDir); err != nil {
			logger.Warn().Err(err).Str(xglog.FieldPath, run.variantDir).Msg("failed to remove variant dir")
		}
	}
	if run.outputPath != "" {
		if err := os.Remove(run.outputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn().Err(err).Str(xglog.FieldPath, run.outputPath).Msg("failed to remove upscale output")
		}
	}

	up.Status = media.UpscaleFailed
	up.Error = je.Error()
	up.OutputPath = ""
	up.StreamID = ""
	up.UpdatedAt = u.now().UTC()
	if err := u.deps.Store.Upscales().Update(ctx, up); err != nil && !errors.Is(err, media.ErrUpscaleNotFound) {
		logger.Error().Err(err).Msg("failed to persist failed status")
	}

	logger.Error().
		Err(je.Err).
		Str(xglog.FieldEvent, "upscale.failed").
		Str(xglog.FieldStage, je.Stage).
		Str("kind", string(je.Kind)).
		Msg("upscale failed")
}

func (u *Upscaler) providerOf() inference.Provider {
	if p, ok := u.sessions.(interface{ Provider() inference.Provider }); ok {
		return p.Provider()
	}
	return ""
}
