// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package manager

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Window(t *testing.T) {
	l := NewRateLimiter()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < WriteLimit; i++ {
		ok, _ := l.Allow("dhw_target_temp", t0.Add(time.Duration(i)*time.Minute))
		require.True(t, ok, "write %d", i+1)
	}

	ok, retryAt := l.Allow("dhw_target_temp", t0.Add(30*time.Minute))
	assert.False(t, ok)
	assert.Equal(t, t0.Add(WriteWindow), retryAt)

	// One second before the oldest write expires the budget is still spent
	ok, _ = l.Allow("dhw_target_temp", t0.Add(WriteWindow-time.Second))
	assert.False(t, ok)

	ok, _ = l.Allow("dhw_target_temp", t0.Add(WriteWindow))
	assert.True(t, ok)
	assert.Equal(t, WriteLimit, l.Count("dhw_target_temp", t0.Add(WriteWindow)))

	assert.Equal(t, 0, l.Count("quiet_mode", t0))
}

func TestRateLimiter_Refund(t *testing.T) {
	l := NewRateLimiter()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	ok, _ := l.Allow("quiet_mode", t0)
	require.True(t, ok)
	ok, _ = l.Allow("quiet_mode", t0.Add(time.Second))
	require.True(t, ok)

	l.Refund("quiet_mode", t0.Add(time.Second))
	assert.Equal(t, 1, l.Count("quiet_mode", t0.Add(2*time.Second)))

	// Unknown stamps are ignored
	l.Refund("quiet_mode", t0.Add(time.Hour))
	assert.Equal(t, 1, l.Count("quiet_mode", t0.Add(2*time.Second)))
}

func TestRateLimiter_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "writes.cbor")
	now := time.Now()

	l, err := LoadRateLimiter(path)
	require.NoError(t, err)
	for i := 0; i < WriteLimit; i++ {
		ok, _ := l.Allow("hp_status", now.Add(-time.Duration(WriteLimit-i)*time.Minute))
		require.True(t, ok)
	}
	require.NoError(t, l.Persist())

	// A second process sees the same budget
	restored, err := LoadRateLimiter(path)
	require.NoError(t, err)
	assert.Equal(t, WriteLimit, restored.Count("hp_status", now))
	ok, _ := restored.Allow("hp_status", now)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte{0xFF, 0x00}, 0o644))
	_, err = LoadRateLimiter(path)
	assert.Error(t, err)
}

func TestRateLimiter_PersistWithoutPath(t *testing.T) {
	assert.NoError(t, NewRateLimiter().Persist())
}
