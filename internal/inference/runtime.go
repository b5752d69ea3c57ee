// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuGH/streamvault/internal/media"
)

var (
	// ErrRuntimeUnavailable is returned when no inference backend is compiled in or it failed to initialize.
	ErrRuntimeUnavailable = errors.New("inference runtime unavailable")
	// ErrProviderUnavailable is returned when an explicitly requested provider cannot be used.
	ErrProviderUnavailable = errors.New("execution provider unavailable")
	// ErrUnsupportedElementType is returned for models whose tensors are not float32.
	ErrUnsupportedElementType = errors.New("unsupported model element type")
	// ErrTensorShape is returned when a tensor's data does not match its shape.
	ErrTensorShape = errors.New("tensor shape mismatch")
)

// Provider is an execution provider.
type Provider string

const (
	// ProviderAuto is a preference only: pick the best available provider.
	ProviderAuto     Provider = "auto"
	ProviderCPU      Provider = "cpu"
	ProviderCUDA     Provider = "cuda"
	ProviderDirectML Provider = "directml"
)

// ParseProvider parses a configured preference.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderAuto, ProviderCPU, ProviderCUDA, ProviderDirectML:
		return p, nil
	case "":
		return ProviderAuto, nil
	default:
		return "", fmt.Errorf("unknown execution provider %q", s)
	}
}

// Capabilities reports which hardware providers a runtime can initialize.
// CPU is always available.
type Capabilities struct {
	CUDA     bool
	DirectML bool
}

// Has reports whether p is usable.
func (c Capabilities) Has(p Provider) bool {
	switch p {
	case ProviderCPU:
		return true
	case ProviderCUDA:
		return c.CUDA
	case ProviderDirectML:
		return c.DirectML
	default:
		return false
	}
}

// DetectProvider resolves a preference against the runtime's capabilities.
// Auto prefers CUDA, then DirectML, then CPU. An explicit hardware preference
// the host cannot satisfy is an error.
func DetectProvider(caps Capabilities, preferred Provider) (Provider, error) {
	switch preferred {
	case ProviderAuto, "":
		for _, p := range []Provider{ProviderCUDA, ProviderDirectML} {
			if caps.Has(p) {
				return p, nil
			}
		}
		return ProviderCPU, nil
	case ProviderCPU, ProviderCUDA, ProviderDirectML:
		if caps.Has(preferred) {
			return preferred, nil
		}
		return "", fmt.Errorf("%w: %s", ErrProviderUnavailable, preferred)
	default:
		return "", fmt.Errorf("unknown execution provider %q", preferred)
	}
}

// Runtime loads models.
type Runtime interface {
	// Capabilities is probed once and stable for the runtime's lifetime.
	Capabilities() Capabilities
	Load(model media.OnnxModel, provider Provider) (Session, error)
}

// Session is a loaded model. Run must be safe for concurrent use.
type Session interface {
	Run(ctx context.Context, in Tensor) (Tensor, error)
	Close() error
}
