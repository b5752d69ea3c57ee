// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package keys

import (
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lowerHex32 = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestGenerateFormat(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)
	assert.Regexp(t, lowerHex32, kp.Key)
	assert.Regexp(t, lowerHex32, kp.IV)

	b, err := kp.KeyBytes()
	require.NoError(t, err)
	assert.Len(t, b, Size)
}

func TestGenerateNoCollisions(t *testing.T) {
	const trials = 10000
	seen := make(map[string]struct{}, trials*2)
	for i := 0; i < trials; i++ {
		kp, err := Generate()
		require.NoError(t, err)
		require.NotEqual(t, kp.Key, kp.IV)
		for _, v := range []string{kp.Key, kp.IV} {
			_, dup := seen[v]
			require.False(t, dup, "duplicate key material after %d trials", i)
			seen[v] = struct{}{}
		}
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

func TestGenerateEntropyFailure(t *testing.T) {
	g := &Generator{rand: failingReader{}}
	_, err := g.Generate()
	assert.ErrorContains(t, err, "no entropy")
}

func TestDecodeHexRejectsWrongLength(t *testing.T) {
	_, err := DecodeHex("abcd")
	assert.Error(t, err)
	_, err = DecodeHex("zz")
	assert.Error(t, err)
}
