// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package match

// Target is one workflow's compiled pattern set.
type Target struct {
	ID       string
	Patterns []Pattern
}

// Evidence records why one workflow matched: the pattern that fired and
// the changed files it matched. One Evidence is produced per
// (workflow, pattern) with at least one matching file.
type Evidence struct {
	WorkflowID string
	Pattern    string
	Files      []string
}

// Match evaluates every changed path against every target.
//
// Results are deterministic: evidence follows target declaration order,
// then pattern declaration order within a target, and Files preserves
// the input path order. A workflow with no matching pattern produces no
// evidence at all.
func Match(paths []string, targets []Target) []Evidence {
	normalized := make([]string, len(paths))
	for i, p := range paths {
		normalized[i] = NormalizePath(p)
	}

	out := make([]Evidence, 0)
	for _, t := range targets {
		for _, pat := range t.Patterns {
			var files []string
			for i, p := range normalized {
				if pat.Match(p) {
					files = append(files, paths[i])
				}
			}
			if len(files) > 0 {
				out = append(out, Evidence{
					WorkflowID: t.ID,
					Pattern:    pat.String(),
					Files:      files,
				})
			}
		}
	}
	return out
}

// AffectedIDs returns the distinct workflow IDs present in evidence,
// preserving first-seen order.
func AffectedIDs(evidence []Evidence) []string {
	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, ev := range evidence {
		if !seen[ev.WorkflowID] {
			seen[ev.WorkflowID] = true
			ids = append(ids, ev.WorkflowID)
		}
	}
	return ids
}
