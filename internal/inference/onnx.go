// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build onnx

package inference

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	xglog "github.com/ManuGH/streamvault/internal/log"
	"github.com/ManuGH/streamvault/internal/media"
)

// ONNXConfig configures the ONNX Runtime backend.
type ONNXConfig struct {
	SharedLibraryPath string
	DeviceID          int
}

// ONNXRuntime loads models through ONNX Runtime.
type ONNXRuntime struct {
	deviceID int

	capsOnce sync.Once
	caps     Capabilities
}

// NewONNXRuntime initializes the process-wide ONNX Runtime environment.
func NewONNXRuntime(cfg ONNXConfig) (*ONNXRuntime, error) {
	if cfg.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRuntimeUnavailable, err)
		}
	}
	return &ONNXRuntime{deviceID: cfg.DeviceID}, nil
}

// Capabilities probes which hardware providers can be attached to a session.
func (r *ONNXRuntime) Capabilities() Capabilities {
	r.capsOnce.Do(func() {
		r.caps = Capabilities{
			CUDA:     r.probe(ProviderCUDA),
			DirectML: r.probe(ProviderDirectML),
		}
		logger := xglog.WithComponent("inference")
		logger.Info().
			Bool("cuda", r.caps.CUDA).
			Bool("directml", r.caps.DirectML).
			Msg("execution provider capabilities")
	})
	return r.caps
}

func (r *ONNXRuntime) probe(p Provider) bool {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return false
	}
	defer func() { _ = opts.Destroy() }()
	return r.attach(opts, p) == nil
}

func (r *ONNXRuntime) attach(opts *ort.SessionOptions, p Provider) error {
	switch p {
	case ProviderCPU:
		return nil
	case ProviderCUDA:
		cudaOpts, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return err
		}
		defer func() { _ = cudaOpts.Destroy() }()
		if err := cudaOpts.Update(map[string]string{"device_id": strconv.Itoa(r.deviceID)}); err != nil {
			return err
		}
		return opts.AppendExecutionProviderCUDA(cudaOpts)
	case ProviderDirectML:
		return opts.AppendExecutionProviderDirectML(r.deviceID)
	default:
		return fmt.Errorf("unknown execution provider %q", p)
	}
}

// Load creates a session for model on provider.
func (r *ONNXRuntime) Load(model media.OnnxModel, provider Provider) (Session, error) {
	if model.ElementType != "" && model.ElementType != "float32" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedElementType, model.ElementType)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(model.Path)
	if err != nil {
		return nil, fmt.Errorf("read model io: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("model %s: want one input and one output, got %d/%d", model.ID, len(inputs), len(outputs))
	}
	for _, info := range []ort.InputOutputInfo{inputs[0], outputs[0]} {
		if info.DataType != ort.TensorElementDataTypeFloat {
			return nil, fmt.Errorf("%w: %s is %v", ErrUnsupportedElementType, info.Name, info.DataType)
		}
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer func() { _ = opts.Destroy() }()
	if err := r.attach(opts, provider); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, provider, err)
	}

	sess, err := ort.NewDynamicAdvancedSession(model.Path,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &onnxSession{sess: sess, scale: model.Scale}, nil
}

// Close tears down the ONNX Runtime environment.
func (r *ONNXRuntime) Close() error {
	if ort.IsInitialized() {
		return ort.DestroyEnvironment()
	}
	return nil
}

type onnxSession struct {
	sess  *ort.DynamicAdvancedSession
	scale int
}

func (s *onnxSession) Run(ctx context.Context, in Tensor) (Tensor, error) {
	if err := ctx.Err(); err != nil {
		return Tensor{}, err
	}
	if err := in.Validate(); err != nil {
		return Tensor{}, err
	}

	shape := ort.NewShape(int64(in.Shape[0]), int64(in.Shape[1]), int64(in.Shape[2]), int64(in.Shape[3]))
	input, err := ort.NewTensor(shape, in.Data)
	if err != nil {
		return Tensor{}, fmt.Errorf("input tensor: %w", err)
	}
	defer func() { _ = input.Destroy() }()

	outputs := []ort.Value{nil}
	if err := s.sess.Run([]ort.Value{input}, outputs); err != nil {
		return Tensor{}, fmt.Errorf("run session: %w", err)
	}
	defer func() { _ = outputs[0].Destroy() }()

	result, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return Tensor{}, fmt.Errorf("%w: output is not float32", ErrUnsupportedElementType)
	}
	dims := result.GetShape()
	if len(dims) != 4 {
		return Tensor{}, fmt.Errorf("%w: output rank %d", ErrTensorShape, len(dims))
	}

	out := Tensor{
		Shape: [4]int{int(dims[0]), int(dims[1]), int(dims[2]), int(dims[3])},
		Data:  append([]float32(nil), result.GetData()...),
	}
	if err := out.Validate(); err != nil {
		return Tensor{}, err
	}
	return out, nil
}

func (s *onnxSession) Close() error {
	return s.sess.Destroy()
}
