// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline runs the end-to-end impact analysis: match the
// changeset against the registry, diff each affected workflow's
// diagram, validate the rendered diff, and persist accepted updates.
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/driftline/driftline/services/drift/match"
)

// ChangeSet is an ordered, deduplicated list of changed repository
// paths, normalized to forward slashes.
type ChangeSet struct {
	paths []string
}

// FromPaths builds a changeset from explicit paths, preserving first
// occurrence order.
func FromPaths(paths []string) ChangeSet {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		n := match.NormalizePath(p)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return ChangeSet{paths: out}
}

// FromUnifiedDiff extracts changed paths from a unified diff stream, as
// produced by git diff. Renames contribute both sides; /dev/null
// entries are dropped.
func FromUnifiedDiff(r io.Reader) (ChangeSet, error) {
	reader := diff.NewMultiFileDiffReader(r)
	paths := make([]string, 0)
	for {
		fd, err := reader.ReadFile()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return ChangeSet{}, fmt.Errorf("parse unified diff: %w", err)
		}
		for _, name := range []string{fd.OrigName, fd.NewName} {
			if p := stripDiffPrefix(name); p != "" {
				paths = append(paths, p)
			}
		}
	}
	return FromPaths(paths), nil
}

// stripDiffPrefix removes git's a/ and b/ prefixes and filters the
// /dev/null placeholder.
func stripDiffPrefix(name string) string {
	if name == "" || name == "/dev/null" {
		return ""
	}
	for _, prefix := range []string{"a/", "b/"} {
		if rest, ok := strings.CutPrefix(name, prefix); ok {
			return rest
		}
	}
	return name
}

// Paths returns the changed paths in order. The returned slice must
// not be mutated.
func (c ChangeSet) Paths() []string { return c.paths }

// Empty reports whether the changeset has no paths.
func (c ChangeSet) Empty() bool { return len(c.paths) == 0 }

// Len returns the number of distinct changed paths.
func (c ChangeSet) Len() int { return len(c.paths) }
