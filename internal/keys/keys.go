// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package keys generates per-variant AES-128 key material for encrypted HLS.
package keys

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// Size is the AES-128 key and IV length in bytes.
const Size = 16

// KeyPair is a hex-encoded AES-128 key and IV (32 lowercase hex chars each).
type KeyPair struct {
	Key string
	IV  string
}

// Generator produces key pairs from an entropy source.
type Generator struct {
	rand io.Reader
}

// NewGenerator returns a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{rand: rand.Reader}
}

// Generate returns a fresh key pair.
func (g *Generator) Generate() (KeyPair, error) {
	buf := make([]byte, 2*Size)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return KeyPair{}, fmt.Errorf("read entropy: %w", err)
	}
	return KeyPair{
		Key: hex.EncodeToString(buf[:Size]),
		IV:  hex.EncodeToString(buf[Size:]),
	}, nil
}

// Generate returns a fresh key pair from crypto/rand.
func Generate() (KeyPair, error) {
	return NewGenerator().Generate()
}

// KeyBytes decodes the key for delivery to players.
func (k KeyPair) KeyBytes() ([]byte, error) {
	return DecodeHex(k.Key)
}

// DecodeHex decodes a 32-char hex key or IV.
func DecodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode key material: %w", err)
	}
	if len(b) != Size {
		return nil, fmt.Errorf("key material is %d bytes, want %d", len(b), Size)
	}
	return b, nil
}
