// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"errors"
	"fmt"
	"os"
)

// Snapshot is the content of a manifest before it was rewritten.
type Snapshot struct {
	path    string
	data    []byte
	existed bool
}

// TakeSnapshot records the manifest at path so a failed rewrite can be undone.
func TakeSnapshot(path string) (*Snapshot, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Snapshot{path: path}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot manifest: %w", err)
	}
	return &Snapshot{path: path, data: data, existed: true}, nil
}

// Restore puts the recorded content back, or removes the manifest if there
// was none.
func (s *Snapshot) Restore() error {
	if !s.existed {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove manifest: %w", err)
		}
		return nil
	}
	return writeAtomic(s.path, s.data)
}
