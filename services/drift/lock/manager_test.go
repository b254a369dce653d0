// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lock

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, opts ...ManagerOption) *Manager {
	t.Helper()
	m := NewManager(opts...)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestManager_AcquireRelease(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "design.md")
	require.NoError(t, os.WriteFile(doc, []byte("x"), 0o644))

	m := newTestManager(t)
	release, err := m.Acquire(context.Background(), doc, "test")
	require.NoError(t, err)

	// The sidecar records the holder while the lock is held.
	data, err := os.ReadFile(doc + sidecarSuffix)
	require.NoError(t, err)
	var info Info
	require.NoError(t, json.Unmarshal(data, &info))
	assert.Equal(t, os.Getpid(), info.PID)
	assert.Equal(t, "test", info.Reason)

	release()
	_, err = os.Stat(doc + sidecarSuffix)
	assert.True(t, os.IsNotExist(err))

	// Release is idempotent.
	release()
}

func TestManager_SerializesSamePath(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "design.md")
	require.NoError(t, os.WriteFile(doc, []byte("x"), 0o644))

	m := newTestManager(t)
	const workers = 8

	var mu sync.Mutex
	inCritical := 0
	maxInCritical := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := m.Acquire(context.Background(), doc, "worker")
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			inCritical--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInCritical, "lock must admit one holder at a time")
}

func TestManager_AcquireContextCancel(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "design.md")
	require.NoError(t, os.WriteFile(doc, []byte("x"), 0o644))

	m := newTestManager(t)
	release, err := m.Acquire(context.Background(), doc, "holder")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = m.Acquire(ctx, doc, "blocked")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInfo_Expired(t *testing.T) {
	now := time.Now()
	assert.False(t, Info{AcquiredAt: now, TTLSeconds: 60}.Expired(now))
	assert.True(t, Info{AcquiredAt: now.Add(-2 * time.Minute), TTLSeconds: 60}.Expired(now))
	// Zero TTL never expires.
	assert.False(t, Info{AcquiredAt: now.Add(-24 * time.Hour)}.Expired(now))
}

func TestManager_CleanStale(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t)

	stale := Info{
		PID:        999999,
		Reason:     "crashed run",
		AcquiredAt: time.Now().Add(-time.Hour).UTC(),
		TTLSeconds: 60,
	}
	data, err := json.Marshal(stale)
	require.NoError(t, err)
	sidecar := filepath.Join(dir, "design.md"+sidecarSuffix)
	require.NoError(t, os.WriteFile(sidecar, data, 0o644))

	fresh := stale
	fresh.AcquiredAt = time.Now().UTC()
	data, err = json.Marshal(fresh)
	require.NoError(t, err)
	freshSidecar := filepath.Join(dir, "other.md"+sidecarSuffix)
	require.NoError(t, os.WriteFile(freshSidecar, data, 0o644))

	removed, err := m.CleanStale(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(sidecar)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(freshSidecar)
	assert.NoError(t, err)
}
