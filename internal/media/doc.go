// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package media holds the persisted entities of the encoding pipeline
// (videos, their HLS variants, upscale requests and registered models)
// together with the resolution ladder shared by the encoder and the
// playlist assembler.
package media
