// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package docstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/driftline/driftline/pkg/logging"
	"github.com/driftline/driftline/services/drift/lock"
)

// Store reads and rewrites diagram blocks under the process lock
// manager, so concurrent workflow units never interleave writes to one
// document.
//
// Thread Safety: safe for concurrent use.
type Store struct {
	locks *lock.Manager
	log   *logging.Logger
}

// NewStore builds a Store over the given lock manager.
func NewStore(locks *lock.Manager, log *logging.Logger) *Store {
	if log == nil {
		log = logging.Default()
	}
	return &Store{locks: locks, log: log}
}

// Locate verifies that the referenced mermaid block exists in the
// document without reading it out.
func Locate(docPath string, ref BlockRef) error {
	data, err := os.ReadFile(docPath)
	if err != nil {
		return fmt.Errorf("read design doc: %w", err)
	}
	if _, ok := resolve(findBlocks(splitLines(string(data))), ref); !ok {
		return &BlockNotFoundError{Doc: docPath, Ref: ref}
	}
	return nil
}

// Load returns the text of the referenced mermaid block.
func (s *Store) Load(docPath string, ref BlockRef) (string, error) {
	data, err := os.ReadFile(docPath)
	if err != nil {
		return "", fmt.Errorf("read design doc: %w", err)
	}

	lines := splitLines(string(data))
	b, ok := resolve(findBlocks(lines), ref)
	if !ok {
		return "", &BlockNotFoundError{Doc: docPath, Ref: ref}
	}
	return strings.Join(lines[b.startLine+1:b.endLine], "\n"), nil
}

// Persist replaces the referenced block's content with newText,
// taking the document lock for the duration.
//
// The write is atomic (temp file plus rename) and idempotent: when the
// block already holds newText the document is left untouched and
// Persist reports false. Persisting the same diagram twice therefore
// mutates the document exactly once.
func (s *Store) Persist(ctx context.Context, docPath string, ref BlockRef, newText string) (bool, error) {
	release, err := s.locks.Acquire(ctx, docPath, "persist diagram "+ref.String())
	if err != nil {
		return false, err
	}
	defer release()

	data, err := os.ReadFile(docPath)
	if err != nil {
		return false, fmt.Errorf("read design doc: %w", err)
	}

	lines := splitLines(string(data))
	b, ok := resolve(findBlocks(lines), ref)
	if !ok {
		return false, &BlockNotFoundError{Doc: docPath, Ref: ref}
	}

	newLines := splitLines(strings.TrimRight(newText, "\n"))
	current := lines[b.startLine+1 : b.endLine]
	if equalLines(current, newLines) {
		s.log.Debug("diagram block already current", "doc", docPath, "ref", ref.String())
		return false, nil
	}

	updated := make([]string, 0, len(lines)-len(current)+len(newLines))
	updated = append(updated, lines[:b.startLine+1]...)
	updated = append(updated, newLines...)
	updated = append(updated, lines[b.endLine:]...)

	resume := s.locks.Suppress(docPath)
	defer resume()
	if err := writeAtomic(docPath, strings.Join(updated, "\n")); err != nil {
		return false, err
	}

	s.log.Info("design doc updated", "doc", docPath, "ref", ref.String())
	return true, nil
}

// writeAtomic writes content to a temp file in the target directory and
// renames it over path, preserving the original file mode.
func writeAtomic(path, content string) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp doc: %w", err)
	}
	tmpName := tmp.Name()

	_, werr := tmp.WriteString(content)
	if werr == nil {
		werr = tmp.Sync()
	}
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write temp doc: %w", werr)
	}

	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp doc: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace design doc: %w", err)
	}
	return nil
}

// splitLines splits on \n, tolerating \r\n documents.
func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if strings.TrimRight(a[i], " \t") != strings.TrimRight(b[i], " \t") {
			return false
		}
	}
	return true
}
