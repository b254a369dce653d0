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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/driftline/driftline/pkg/logging"
)

// sidecarSuffix names the lock sidecar next to the locked document.
const sidecarSuffix = ".driftlock"

// defaultTTL is how long a lock is honored before a reclaimer may treat
// it as stale.
const defaultTTL = 10 * time.Minute

// acquirePollInterval is how often a blocked Acquire re-probes a lock
// held by another process.
const acquirePollInterval = 100 * time.Millisecond

// Info is the holder metadata stored in the sidecar file.
type Info struct {
	PID        int       `json:"pid"`
	Host       string    `json:"host"`
	Reason     string    `json:"reason"`
	AcquiredAt time.Time `json:"acquired_at"`
	TTLSeconds int       `json:"ttl_seconds"`
}

// Expired reports whether the holder's TTL has elapsed.
func (i Info) Expired(now time.Time) bool {
	if i.TTLSeconds <= 0 {
		return false
	}
	return now.After(i.AcquiredAt.Add(time.Duration(i.TTLSeconds) * time.Second))
}

// Manager hands out per-path exclusive locks.
//
// Thread Safety: safe for concurrent use. A single Manager should be
// shared per process so in-process callers serialize on the same
// semaphores.
type Manager struct {
	locker FileLocker
	ttl    time.Duration
	log    *logging.Logger

	mu    sync.Mutex
	paths map[string]chan struct{}

	watcher   *fsnotify.Watcher
	watchOnce sync.Once

	watchMu sync.Mutex
	watched map[string]bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTTL overrides the stale-lock TTL.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) { m.ttl = ttl }
}

// WithManagerLogger attaches a logger.
func WithManagerLogger(log *logging.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// NewManager builds a lock manager over the platform file locker.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		locker:  NewFileLocker(),
		ttl:     defaultTTL,
		log:     logging.Default(),
		paths:   make(map[string]chan struct{}),
		watched: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire takes the exclusive lock for path, blocking until it is
// available or ctx is done. The returned release function must be
// called exactly once.
//
// While the lock is held the document is watched and any external
// modification is logged as a warning; the analyzer's own writes go
// through Persist under this same lock and are expected.
func (m *Manager) Acquire(ctx context.Context, path, reason string) (func(), error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve lock path: %w", err)
	}

	sem := m.semaphore(abs)
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	// From here on, failure must put the semaphore slot back.

	sidecar := abs + sidecarSuffix
	f, err := os.OpenFile(sidecar, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		<-sem
		return nil, fmt.Errorf("open lock sidecar: %w", err)
	}

	if err := m.lockWithContext(ctx, f); err != nil {
		f.Close()
		<-sem
		return nil, err
	}

	if err := m.writeInfo(f, reason); err != nil {
		m.locker.Unlock(f)
		f.Close()
		<-sem
		return nil, err
	}

	m.watchPath(abs)

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		m.unwatchPath(abs)
		if err := f.Truncate(0); err == nil {
			os.Remove(sidecar)
		}
		if err := m.locker.Unlock(f); err != nil {
			m.log.Warn("failed to release file lock", "path", abs, "error", err)
		}
		f.Close()
		<-sem
	}
	return release, nil
}

func (m *Manager) semaphore(abs string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	sem, ok := m.paths[abs]
	if !ok {
		sem = make(chan struct{}, 1)
		m.paths[abs] = sem
	}
	return sem
}

// lockWithContext probes the advisory lock until it is acquired, a
// stale holder is reclaimed, or ctx is done.
func (m *Manager) lockWithContext(ctx context.Context, f *os.File) error {
	for {
		ok, err := m.locker.TryLock(f)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		if info, err := readInfo(f); err == nil && info.Expired(time.Now()) {
			m.log.Warn("waiting on expired lock, holder presumed dead",
				"path", f.Name(), "holder_pid", info.PID, "acquired_at", info.AcquiredAt)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for lock on %s: %w", f.Name(), ctx.Err())
		case <-time.After(acquirePollInterval):
		}
	}
}

func (m *Manager) writeInfo(f *os.File, reason string) error {
	host, _ := os.Hostname()
	info := Info{
		PID:        os.Getpid(),
		Host:       host,
		Reason:     reason,
		AcquiredAt: time.Now().UTC(),
		TTLSeconds: int(m.ttl / time.Second),
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode lock info: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock sidecar: %w", err)
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		return fmt.Errorf("write lock info: %w", err)
	}
	return nil
}

func readInfo(f *os.File) (Info, error) {
	var info Info
	data, err := os.ReadFile(f.Name())
	if err != nil {
		return info, err
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return info, err
	}
	return info, nil
}

// CleanStale removes abandoned lock sidecars under dir. A sidecar is
// stale when no process holds its advisory lock and its TTL elapsed.
// Returns the number of sidecars removed.
func (m *Manager) CleanStale(dir string) (int, error) {
	removed := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, sidecarSuffix) {
			return err
		}

		f, err := os.OpenFile(path, os.O_RDWR, 0o644)
		if err != nil {
			return nil
		}
		defer f.Close()

		ok, err := m.locker.TryLock(f)
		if err != nil || !ok {
			return nil
		}
		defer m.locker.Unlock(f)

		info, err := readInfo(f)
		if err != nil || info.Expired(time.Now()) {
			if rmErr := os.Remove(path); rmErr == nil {
				removed++
				m.log.Info("removed stale lock sidecar",
					"path", path, "holder_pid", info.PID)
			}
		}
		return nil
	})
	return removed, err
}

// --- External-change watching ------------------------------------------

func (m *Manager) ensureWatcher() {
	m.watchOnce.Do(func() {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			m.log.Warn("external-change watching disabled", "error", err)
			return
		}
		m.watcher = w
		go m.watchLoop()
	})
}

func (m *Manager) watchLoop() {
	for {
		select {
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			m.watchMu.Lock()
			tracked := m.watched[ev.Name]
			m.watchMu.Unlock()
			if tracked {
				m.log.Warn("locked document modified externally",
					"path", ev.Name, "op", ev.Op.String())
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.log.Warn("document watcher error", "error", err)
		}
	}
}

func (m *Manager) watchPath(abs string) {
	m.ensureWatcher()
	if m.watcher == nil {
		return
	}
	m.watchMu.Lock()
	m.watched[abs] = true
	m.watchMu.Unlock()
	// Watch the directory: editors replace files by rename, which
	// drops a direct file watch.
	if err := m.watcher.Add(filepath.Dir(abs)); err != nil {
		m.log.Warn("cannot watch locked document", "path", abs, "error", err)
	}
}

// Suppress pauses external-change warnings for path while the holder
// performs its own write. The returned function resumes watching.
func (m *Manager) Suppress(path string) func() {
	abs, err := filepath.Abs(path)
	if err != nil {
		return func() {}
	}
	m.watchMu.Lock()
	wasWatched := m.watched[abs]
	delete(m.watched, abs)
	m.watchMu.Unlock()
	return func() {
		if !wasWatched {
			return
		}
		m.watchMu.Lock()
		m.watched[abs] = true
		m.watchMu.Unlock()
	}
}

func (m *Manager) unwatchPath(abs string) {
	if m.watcher == nil {
		return
	}
	m.watchMu.Lock()
	delete(m.watched, abs)
	m.watchMu.Unlock()
}

// Close stops the external-change watcher.
func (m *Manager) Close() error {
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}
