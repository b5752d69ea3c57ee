// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	Configure(Config{Level: level, Output: &buf, Service: "sv-test", Version: "v0.0.1"})
	t.Cleanup(func() { Configure(Config{Level: "info"}) })
	return &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestConfigure_StampsServiceAndVersion(t *testing.T) {
	buf := captureLogs(t, "debug")

	logger := WithComponent("encoder")
	logger.Info().Str(FieldVideoID, "v1").Msg("hello")

	line := decodeLine(t, buf)
	assert.Equal(t, "sv-test", line["service"])
	assert.Equal(t, "v0.0.1", line["version"])
	assert.Equal(t, "encoder", line[FieldComponent])
	assert.Equal(t, "v1", line[FieldVideoID])
	assert.Contains(t, line, "time")
}

func TestConfigure_UnknownLevelFallsBackToInfo(t *testing.T) {
	buf := captureLogs(t, "chatty")

	L().Debug().Msg("hidden")
	assert.Zero(t, buf.Len())
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestSetLevel(t *testing.T) {
	buf := captureLogs(t, "info")

	require.NoError(t, SetLevel("warn"))
	L().Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	assert.Error(t, SetLevel("nope"))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}

func TestDerive(t *testing.T) {
	buf := captureLogs(t, "info")

	derived := Derive(func(c *zerolog.Context) { *c = c.Str(FieldStage, "segment") })
	derived.Info().Msg("x")
	assert.Equal(t, "segment", decodeLine(t, buf)[FieldStage])

	buf.Reset()
	plain := Derive(nil)
	plain.Info().Msg("y")
	assert.NotContains(t, decodeLine(t, buf), FieldStage)
}
