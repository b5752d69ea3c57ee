// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHolder_ReloadAppliesTunableSubset(t *testing.T) {
	path := writeConfig(t, "logLevel: info\ninference:\n  frameConcurrency: 1\napi:\n  listenAddr: \":8080\"\n")
	initial, err := Load(path)
	require.NoError(t, err)

	h := NewHolder(initial, path)
	ch := make(chan Config, 1)
	h.RegisterListener(ch)

	require.NoError(t, os.WriteFile(path, []byte("logLevel: debug\ninference:\n  frameConcurrency: 4\napi:\n  listenAddr: \":9999\"\n"), 0o600))
	require.NoError(t, h.Reload(context.Background()))

	got := h.Get()
	assert.Equal(t, 4, got.Inference.FrameConcurrency)
	assert.Equal(t, 4, h.FrameConcurrency())
	assert.Equal(t, "debug", got.LogLevel)
	assert.Equal(t, ":8080", got.API.ListenAddr, "non-tunable settings need a restart")

	select {
	case c := <-ch:
		assert.Equal(t, 4, c.Inference.FrameConcurrency)
	default:
		t.Fatal("listener not notified")
	}
}

func TestHolder_InvalidReloadKeepsCurrent(t *testing.T) {
	path := writeConfig(t, "inference:\n  frameConcurrency: 3\n")
	initial, err := Load(path)
	require.NoError(t, err)
	h := NewHolder(initial, path)

	require.NoError(t, os.WriteFile(path, []byte("inference:\n  frameConcurrency: 0\n"), 0o600))
	assert.Error(t, h.Reload(context.Background()))
	assert.Equal(t, 3, h.FrameConcurrency())
}

func TestHolder_WatcherReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "inference:\n  frameConcurrency: 1\n")
	initial, err := Load(path)
	require.NoError(t, err)

	h := NewHolder(initial, path)
	h.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.StartWatcher(ctx))
	defer h.Stop()

	require.NoError(t, os.WriteFile(path, []byte("inference:\n  frameConcurrency: 8\n"), 0o600))

	require.Eventually(t, func() bool {
		return h.FrameConcurrency() == 8
	}, 5*time.Second, 20*time.Millisecond)
}

func TestHolder_WatcherDisabledWithoutPath(t *testing.T) {
	h := NewHolder(Defaults(), "")
	assert.NoError(t, h.StartWatcher(context.Background()))
	h.Stop()
}
