// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ManuGH/streamvault/internal/ffmpeg"
	"github.com/ManuGH/streamvault/internal/hls"
	"github.com/ManuGH/streamvault/internal/inference"
	"github.com/ManuGH/streamvault/internal/media"
	"github.com/ManuGH/streamvault/internal/paths"
	"github.com/ManuGH/streamvault/internal/store"
	"github.com/ManuGH/streamvault/internal/store/sqlite"
)

// fakeRunner stands in for ffmpeg. It writes plausible outputs for every
// stage and can be told to fail a stage.
type fakeRunner struct {
	mu     sync.Mutex
	calls  []ffmpeg.Invocation
	counts map[string]int

	failStage string
	failAfter int // number of successful calls of failStage before it fails
	hook      func(inv ffmpeg.Invocation)

	frames         int
	frameW, frameH int

	assembledW, assembledH int

	// keys maps each variant playlist to the raw key its muxer encrypted with.
	keys map[string][]byte
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{counts: map[string]int{}, keys: map[string][]byte{}, frames: 3, frameW: 4, frameH: 2}
}

func (r *fakeRunner) keyFor(playlist string) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keys[playlist]
}

func (r *fakeRunner) Run(ctx context.Context, inv ffmpeg.Invocation) error {
	r.mu.Lock()
	r.calls = append(r.calls, inv)
	n := r.counts[inv.Stage]
	r.counts[inv.Stage]++
	fail := inv.Stage == r.failStage && n >= r.failAfter
	hook := r.hook
	r.mu.Unlock()

	if hook != nil {
		hook(inv)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if fail {
		return &ffmpeg.ExitError{Stage: inv.Stage, Binary: "ffmpeg", ExitCode: 1, Stderr: []string{"boom"}, Err: errors.New("exit status 1")}
	}

	out := inv.Args[len(inv.Args)-1]
	var err error
	switch inv.Stage {
	case ffmpeg.StageEncodeVariant, ffmpeg.StageSegment:
		var key []byte
		key, err = writeVariant(out, argAfter(inv.Args, "-hls_segment_filename"), argAfter(inv.Args, "-hls_key_info_file"))
		if err == nil {
			r.mu.Lock()
			r.keys[out] = key
			r.mu.Unlock()
		}
	case ffmpeg.StageExtractFrames:
		err = r.writeFrames(out)
	case ffmpeg.StageAssemble:
		err = r.checkFrames(argAfter(inv.Args, "-i"))
		if err == nil {
			err = os.WriteFile(out, []byte("video"), 0o644)
		}
	default:
		err = os.WriteFile(out, []byte(inv.Stage), 0o644)
	}
	if err != nil {
		return err
	}
	return ffmpeg.RequireOutputs(inv.Outputs...)
}

func (r *fakeRunner) count(stage string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[stage]
}

func (r *fakeRunner) invocations(stage string) []ffmpeg.Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ffmpeg.Invocation
	for _, inv := range r.calls {
		if inv.Stage == stage {
			out = append(out, inv)
		}
	}
	return out
}

func (r *fakeRunner) writeFrames(pattern string) error {
	img := image.NewNRGBA(image.Rect(0, 0, r.frameW, r.frameH))
	for y := 0; y < r.frameH; y++ {
		for x := 0; x < r.frameW; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(40 * x), G: uint8(80 * y), B: 200, A: 255})
		}
	}
	for i := 1; i <= r.frames; i++ {
		if err := inference.WriteFrame(fmt.Sprintf(pattern, i), img); err != nil {
			return err
		}
	}
	return nil
}

// checkFrames records the dimensions of the frames about to be assembled.
func (r *fakeRunner) checkFrames(pattern string) error {
	first := fmt.Sprintf(pattern, 1)
	f, err := os.Open(first)
	if err != nil {
		return fmt.Errorf("upscaled frame missing: %w", err)
	}
	defer func() { _ = f.Close() }()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.assembledW, r.assembledH = cfg.Width, cfg.Height
	r.mu.Unlock()
	return nil
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

// writeVariant mimics ffmpeg's HLS muxer driven by -hls_key_info_file: it
// reads the raw key from the file the info names, writes one segment and a
// key tag carrying the info's URI and IV. It returns the key bytes it read.
func writeVariant(playlist, segmentPattern, keyInfoPath string) ([]byte, error) {
	info, err := os.ReadFile(keyInfoPath)
	if err != nil {
		return nil, fmt.Errorf("key info: %w", err)
	}
	lines := strings.Split(strings.TrimSpace(string(info)), "\n")
	if len(lines) != 3 {
		return nil, fmt.Errorf("key info has %d lines", len(lines))
	}
	key, err := os.ReadFile(lines[1])
	if err != nil {
		return nil, fmt.Errorf("key file: %w", err)
	}
	if len(key) != 16 {
		return nil, fmt.Errorf("key file holds %d bytes", len(key))
	}

	segment := fmt.Sprintf(segmentPattern, 0)
	if err := os.WriteFile(segment, []byte("ts"), 0o644); err != nil {
		return nil, err
	}
	content := "#EXTM3U\n" +
		"#EXT-X-VERSION:3\n" +
		"#EXT-X-TARGETDURATION:15\n" +
		"#EXT-X-MEDIA-SEQUENCE:0\n" +
		"#EXT-X-PLAYLIST-TYPE:VOD\n" +
		`#EXT-X-KEY:METHOD=AES-128,URI="` + lines[0] + `",IV=0x` + lines[2] + "\n" +
		"#EXTINF:15.000000,\n" +
		filepath.Base(segment) + "\n" +
		"#EXT-X-ENDLIST\n"
	return key, os.WriteFile(playlist, []byte(content), 0o644)
}

type fakeProber struct {
	result ffmpeg.ProbeResult
	err    error
}

func (p *fakeProber) Probe(context.Context, string) (*ffmpeg.ProbeResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	res := p.result
	return &res, nil
}

// scaleRuntime loads sessions that upscale by nearest neighbour and records
// how many runs overlap.
type scaleRuntime struct {
	active    atomic.Int32
	maxActive atomic.Int32
	runs      atomic.Int32
	delay     time.Duration
	failRun   bool
}

func (r *scaleRuntime) Capabilities() inference.Capabilities { return inference.Capabilities{} }

func (r *scaleRuntime) Load(m media.OnnxModel, _ inference.Provider) (inference.Session, error) {
	return &scaleSession{rt: r, scale: m.Scale}, nil
}

type scaleSession struct {
	rt    *scaleRuntime
	scale int
}

func (s *scaleSession) Run(ctx context.Context, in inference.Tensor) (inference.Tensor, error) {
	n := s.rt.active.Add(1)
	defer s.rt.active.Add(-1)
	for {
		m := s.rt.maxActive.Load()
		if n <= m || s.rt.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	s.rt.runs.Add(1)
	if s.rt.delay > 0 {
		time.Sleep(s.rt.delay)
	}
	if s.rt.failRun {
		return inference.Tensor{}, fmt.Errorf("%w: bad output", inference.ErrTensorShape)
	}
	if err := ctx.Err(); err != nil {
		return inference.Tensor{}, err
	}

	h, w := in.Height(), in.Width()
	out := inference.NewTensor(1, 3, h*s.scale, w*s.scale)
	outPlane, inPlane := h*w*s.scale*s.scale, h*w
	for c := 0; c < 3; c++ {
		for y := 0; y < h*s.scale; y++ {
			for x := 0; x < w*s.scale; x++ {
				out.Data[c*outPlane+y*w*s.scale+x] = in.Data[c*inPlane+(y/s.scale)*w+x/s.scale]
			}
		}
	}
	return out, nil
}

func (s *scaleSession) Close() error { return nil }

// harness wires real storage and paths under a temp dir to the fakes.
type harness struct {
	t        *testing.T
	store    *sqlite.Store
	uow      store.UnitOfWork
	paths    *paths.Resolver
	runner   *fakeRunner
	prober   *fakeProber
	runtime  *scaleRuntime
	sessions *inference.SessionCache
	locks    *VideoLocks

	frameConcurrency atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	r, err := paths.NewResolver(filepath.Join(root, "web"), filepath.Join(root, "tmp"), "videos")
	require.NoError(t, err)
	st, err := sqlite.New(filepath.Join(root, "db", "streamvault.db"), sqlite.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	rt := &scaleRuntime{}
	sessions := inference.NewSessionCache(rt, inference.ProviderCPU, 2)
	t.Cleanup(func() { _ = sessions.Close() })

	h := &harness{
		t:        t,
		store:    st,
		uow:      st,
		paths:    r,
		runner:   newFakeRunner(),
		prober:   &fakeProber{result: ffmpeg.ProbeResult{Width: 4, Height: 2, VideoCodec: "h264", FrameRate: "25/1", FPS: 25, Duration: 3, HasAudio: true}},
		runtime:  rt,
		sessions: sessions,
		locks:    NewVideoLocks(),
	}
	h.frameConcurrency.Store(1)
	return h
}

func (h *harness) deps() Deps {
	return Deps{Store: h.uow, Paths: h.paths, Runner: h.runner, Locks: h.locks}
}

func (h *harness) settings() Settings {
	return Settings{VideoEncoder: "h264_nvenc", AudioCodec: "aac", AudioBitrate: "128k", SegmentSeconds: 15, DRMEndpoint: "drm"}
}

func (h *harness) encoder() *Encoder {
	return NewEncoder(h.deps(), h.settings())
}

func (h *harness) upscaler() *Upscaler {
	return NewUpscaler(h.deps(), UpscaleSettings{
		Settings:         h.settings(),
		Bitrate:          "12M",
		FrameConcurrency: func() int { return int(h.frameConcurrency.Load()) },
	}, h.prober, h.sessions)
}

func (h *harness) seedVideo(id string, ceiling media.Resolution) *media.Video {
	h.t.Helper()
	rawRel := "raw/" + id + ".mp4"
	raw, err := h.paths.Abs(rawRel)
	require.NoError(h.t, err)
	require.NoError(h.t, os.MkdirAll(filepath.Dir(raw), 0o750))
	require.NoError(h.t, os.WriteFile(raw, []byte("raw"), 0o644))

	v := &media.Video{ID: id, RawPath: rawRel, Status: media.VideoQueued, Resolution: ceiling}
	require.NoError(h.t, h.store.Videos().Add(context.Background(), v))
	return v
}

func (h *harness) seedModel(id string, scale int) media.OnnxModel {
	h.t.Helper()
	m := media.OnnxModel{ID: id, Path: "/models/" + id + ".onnx", Scale: scale, ElementType: "float32"}
	require.NoError(h.t, h.store.Models().Upsert(context.Background(), m))
	return m
}

func (h *harness) seedUpscale(id, videoID, modelID string) *media.VideoUpscale {
	h.t.Helper()
	u := &media.VideoUpscale{ID: id, VideoID: videoID, ModelID: modelID, Status: media.UpscaleQueued}
	require.NoError(h.t, h.store.Upscales().Add(context.Background(), u))
	return u
}

func (h *harness) video(id string) *media.Video {
	h.t.Helper()
	v, err := h.store.Videos().Get(context.Background(), id)
	require.NoError(h.t, err)
	return v
}

func (h *harness) upscale(id string) *media.VideoUpscale {
	h.t.Helper()
	u, err := h.store.Upscales().Get(context.Background(), id)
	require.NoError(h.t, err)
	return u
}

func (h *harness) readMaster(videoID string) string {
	h.t.Helper()
	data, err := os.ReadFile(h.paths.MasterPath(videoID))
	require.NoError(h.t, err)
	return string(data)
}

func (h *harness) masterEntries(videoID string) []hls.Entry {
	h.t.Helper()
	entries, err := hls.ParseMaster(h.readMaster(videoID))
	require.NoError(h.t, err)
	return entries
}

// requireNoWorkDirs asserts every job working directory was removed.
func (h *harness) requireNoWorkDirs() {
	h.t.Helper()
	entries, err := os.ReadDir(h.paths.TempRoot)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	require.NoError(h.t, err)
	require.Empty(h.t, entries, "work dirs left behind")
}

func keyURIs(t *testing.T, playlist string) []string {
	t.Helper()
	data, err := os.ReadFile(playlist)
	require.NoError(t, err)
	truth, err := hls.ExtractSegmentTruth(string(data))
	require.NoError(t, err)
	return truth.KeyURIs
}

// failingStore fails the first upscale update made inside a transaction.
type failingStore struct {
	*sqlite.Store
}

func (s failingStore) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return failingTx{Tx: tx}, nil
}

type failingTx struct {
	store.Tx
}

func (t failingTx) Upscales() store.UpscaleRepository {
	return failingUpscales{UpscaleRepository: t.Tx.Upscales()}
}

type failingUpscales struct {
	store.UpscaleRepository
}

func (failingUpscales) Update(context.Context, *media.VideoUpscale) error {
	return errors.New("disk I/O error")
}
