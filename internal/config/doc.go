// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the daemon configuration.
//
// Precedence is ENV > file > defaults. The YAML file is parsed strictly:
// unknown keys are rejected with ErrUnknownConfigField. A Holder keeps the
// active snapshot and hot-reloads the runtime-tunable subset when the file
// changes on disk.
package config
