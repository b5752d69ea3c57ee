// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// File names of the key material handed to the HLS muxer. Both live next to
// the variant playlist only while ffmpeg runs.
const (
	KeyFileName     = "enc.key"
	KeyInfoFileName = "enc.keyinfo"
)

// KeyInfo is one -hls_key_info_file: the URI the muxer writes into the key
// tag, the file holding the raw 16-byte key, and the IV as hex.
type KeyInfo struct {
	URI     string
	KeyPath string
	IVHex   string
}

// String renders the three-line file format the HLS muxer reads.
func (k KeyInfo) String() string {
	return k.URI + "\n" + k.KeyPath + "\n" + k.IVHex + "\n"
}

// WriteKeyInfo writes the raw key and the info file pointing at it into dir
// and returns the info file path. The muxer reads the key file as bytes, so
// key must be the decoded key, never its hex text.
func WriteKeyInfo(dir, uri string, key []byte, ivHex string) (string, error) {
	if len(key) != 16 {
		return "", fmt.Errorf("key is %d bytes, want 16", len(key))
	}
	if iv, err := hex.DecodeString(ivHex); err != nil || len(iv) != 16 {
		return "", fmt.Errorf("iv %q is not 32 hex digits", ivHex)
	}
	keyPath := filepath.Join(dir, KeyFileName)
	if err := os.WriteFile(keyPath, key, 0o600); err != nil {
		return "", fmt.Errorf("write key file: %w", err)
	}
	infoPath := filepath.Join(dir, KeyInfoFileName)
	info := KeyInfo{URI: uri, KeyPath: keyPath, IVHex: ivHex}
	if err := os.WriteFile(infoPath, []byte(info.String()), 0o600); err != nil {
		return "", fmt.Errorf("write key info file: %w", err)
	}
	return infoPath, nil
}

// RemoveKeyInfo deletes the key material WriteKeyInfo left in dir.
func RemoveKeyInfo(dir string) error {
	var errs []error
	for _, name := range []string{KeyFileName, KeyInfoFileName} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
