// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package match compiles workflow path patterns and evaluates changesets
// against them.
//
// Patterns come in two forms. A pattern without glob metacharacters is a
// path prefix: it matches the path itself and everything beneath it, on
// segment boundaries only. A pattern containing metacharacters is a
// glob: * and ? and [...] match within one path segment, ** spans
// segments.
package match

import (
	"fmt"
	"path/filepath"
	"strings"
)

// PatternError reports a registry pattern that cannot be compiled.
type PatternError struct {
	Pattern string
	Reason  string
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid path pattern %q: %s", e.Pattern, e.Reason)
}

type patternKind int

const (
	kindPrefix patternKind = iota
	kindGlob
)

// Pattern is a compiled path pattern. Compiled patterns are immutable
// and safe for concurrent use.
type Pattern struct {
	raw      string
	kind     patternKind
	prefix   string   // kindPrefix: normalized prefix without trailing slash
	segments []string // kindGlob: pattern split on /
}

// String returns the source pattern text.
func (p Pattern) String() string { return p.raw }

// Compile parses a single pattern. Malformed patterns fail compilation
// rather than silently matching nothing.
func Compile(pattern string) (Pattern, error) {
	if strings.TrimSpace(pattern) == "" {
		return Pattern{}, &PatternError{Pattern: pattern, Reason: "empty pattern"}
	}
	if strings.ContainsAny(pattern, "{}") {
		return Pattern{}, &PatternError{Pattern: pattern, Reason: "brace expansion is not supported"}
	}

	norm := NormalizePath(pattern)

	if !strings.ContainsAny(norm, "*?[") {
		return Pattern{
			raw:    pattern,
			kind:   kindPrefix,
			prefix: strings.TrimSuffix(norm, "/"),
		}, nil
	}

	segments := strings.Split(strings.TrimSuffix(norm, "/"), "/")
	for _, seg := range segments {
		if seg == "**" {
			continue
		}
		// filepath.Match validates the segment syntax; the probe
		// result is irrelevant.
		if _, err := filepath.Match(seg, "probe"); err != nil {
			return Pattern{}, &PatternError{Pattern: pattern, Reason: fmt.Sprintf("segment %q: %v", seg, err)}
		}
	}

	return Pattern{raw: pattern, kind: kindGlob, segments: segments}, nil
}

// CompileAll compiles every pattern, failing on the first bad one.
func CompileAll(patterns []string) ([]Pattern, error) {
	out := make([]Pattern, 0, len(patterns))
	for _, raw := range patterns {
		p, err := Compile(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Match reports whether the normalized path matches the pattern.
func (p Pattern) Match(path string) bool {
	path = NormalizePath(path)
	switch p.kind {
	case kindPrefix:
		if path == p.prefix {
			return true
		}
		return strings.HasPrefix(path, p.prefix+"/")
	default:
		return matchSegments(p.segments, strings.Split(path, "/"))
	}
}

// matchSegments matches glob segments against path segments. A ** glob
// segment consumes zero or more path segments.
func matchSegments(pat, path []string) bool {
	if len(pat) == 0 {
		return len(path) == 0
	}
	if pat[0] == "**" {
		for skip := 0; skip <= len(path); skip++ {
			if matchSegments(pat[1:], path[skip:]) {
				return true
			}
		}
		return false
	}
	if len(path) == 0 {
		return false
	}
	ok, err := filepath.Match(pat[0], path[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pat[1:], path[1:])
}

// NormalizePath converts a path to forward slashes and strips a leading
// "./" so that patterns and changeset paths compare in one form.
func NormalizePath(path string) string {
	path = filepath.ToSlash(strings.TrimSpace(path))
	for strings.HasPrefix(path, "./") {
		path = path[2:]
	}
	return path
}
