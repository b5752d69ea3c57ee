// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !onnx

package inference

import (
	"github.com/ManuGH/streamvault/internal/media"
)

// ONNXConfig configures the ONNX Runtime backend.
type ONNXConfig struct {
	SharedLibraryPath string
	DeviceID          int
}

// ONNXRuntime is unavailable in builds without the "onnx" tag.
type ONNXRuntime struct{}

// NewONNXRuntime always fails without the "onnx" build tag.
func NewONNXRuntime(ONNXConfig) (*ONNXRuntime, error) {
	return nil, ErrRuntimeUnavailable
}

func (r *ONNXRuntime) Capabilities() Capabilities { return Capabilities{} }

func (r *ONNXRuntime) Load(media.OnnxModel, Provider) (Session, error) {
	return nil, ErrRuntimeUnavailable
}

func (r *ONNXRuntime) Close() error { return nil }
