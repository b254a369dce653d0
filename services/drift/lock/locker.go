// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package lock serializes design-document mutation across goroutines
// and across processes.
//
// In-process callers are serialized by a per-path mutex; other
// processes are excluded by an OS advisory lock on a sidecar file. The
// sidecar also records holder metadata so stale locks left by crashed
// processes can be reclaimed.
package lock

import "os"

// FileLocker applies an OS-level advisory lock to an open file.
type FileLocker interface {
	// Lock acquires an exclusive lock, blocking until available.
	Lock(f *os.File) error
	// TryLock acquires the lock without blocking. It returns false
	// when another process holds it.
	TryLock(f *os.File) (bool, error)
	// Unlock releases the lock.
	Unlock(f *os.File) error
}
