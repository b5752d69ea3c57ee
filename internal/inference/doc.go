// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package inference runs super-resolution models on single frames.
//
// A Runtime loads a model into a Session for one execution Provider. The
// provider is chosen once from the runtime's Capabilities by DetectProvider;
// loading never falls back silently. Sessions are shared across jobs through
// a SessionCache that bounds how many models stay resident.
//
// The ONNX Runtime backend is compiled in with the "onnx" build tag. Without
// it, NewONNXRuntime returns ErrRuntimeUnavailable.
package inference
