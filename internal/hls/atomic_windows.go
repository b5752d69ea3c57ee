// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build windows

package hls

import "os"

// renameio does not support Windows.
func writeAtomic(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}
