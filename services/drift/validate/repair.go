// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validate

import (
	"fmt"
	"strings"
)

// Repair is one mechanical fix-up applied to rejected diagram text.
// Apply returns the repaired text and whether anything changed.
type Repair struct {
	Name  string
	Apply func(text string) (string, bool)
}

// DefaultRepairs returns the repair sequence tried against checker
// rejections, in order of likelihood.
func DefaultRepairs() []Repair {
	return []Repair{
		{Name: "escape-html-entities", Apply: escapeHTMLEntities},
		{Name: "quote-bare-labels", Apply: quoteBareLabels},
		{Name: "dedupe-node-ids", Apply: dedupeNodeIDs},
	}
}

// escapeHTMLEntities replaces raw angle brackets in label positions.
// Checkers frequently reject them as unclosed HTML.
func escapeHTMLEntities(text string) (string, bool) {
	if !strings.ContainsAny(text, "<>") {
		return text, false
	}
	lines := strings.Split(text, "\n")
	changed := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		// Structural lines never carry angle brackets legitimately in
		// the dialect subset this tool emits.
		if trimmed == "" || strings.HasPrefix(trimmed, "%%") {
			continue
		}
		repl := strings.ReplaceAll(line, "<", "#lt;")
		repl = strings.ReplaceAll(repl, ">", "#gt;")
		// Arrow tokens contain ">" and must survive the pass.
		for _, arrow := range []string{"--#gt;#gt;", "-#gt;#gt;", "--#gt;", "-#gt;", "==#gt;", "-.-#gt;"} {
			orig := strings.ReplaceAll(arrow, "#gt;", ">")
			repl = strings.ReplaceAll(repl, arrow, orig)
		}
		if repl != line {
			lines[i] = repl
			changed = true
		}
	}
	if !changed {
		return text, false
	}
	return strings.Join(lines, "\n"), true
}

// labelDelims are the flow shape delimiters whose inner text is a
// label, matched longest opener first.
var labelDelims = []struct{ open, close string }{
	{"((", "))"},
	{"([", "])"},
	{"[[", "]]"},
	{"[", "]"},
	{"(", ")"},
	{"{", "}"},
}

// quoteBareLabels wraps unquoted flow labels containing characters the
// checker treats as syntax.
func quoteBareLabels(text string) (string, bool) {
	lines := strings.Split(text, "\n")
	changed := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "%%") || strings.HasPrefix(trimmed, "subgraph") {
			continue
		}
		if repl, ok := quoteLineLabels(line); ok {
			lines[i] = repl
			changed = true
		}
	}
	if !changed {
		return text, false
	}
	return strings.Join(lines, "\n"), true
}

func quoteLineLabels(line string) (string, bool) {
	changed := false
	for _, d := range labelDelims {
		start := 0
		for {
			open := strings.Index(line[start:], d.open)
			if open < 0 {
				break
			}
			open += start
			inner := open + len(d.open)
			end := strings.Index(line[inner:], d.close)
			if end < 0 {
				break
			}
			end += inner

			label := line[inner:end]
			if needsQuoting(label) {
				quoted := `"` + strings.ReplaceAll(label, `"`, "#quot;") + `"`
				line = line[:inner] + quoted + line[end:]
				end = inner + len(quoted)
				changed = true
			}
			start = end + len(d.close)
		}
	}
	return line, changed
}

func needsQuoting(label string) bool {
	if label == "" || strings.HasPrefix(label, `"`) {
		return false
	}
	return strings.ContainsAny(label, "|:;,")
}

// dedupeNodeIDs renames later conflicting flow node definitions so one
// ID never carries two labels.
func dedupeNodeIDs(text string) (string, bool) {
	lines := strings.Split(text, "\n")
	defs := make(map[string]string)
	changed := false

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "%%") || strings.HasPrefix(trimmed, "subgraph") {
			continue
		}
		id, label, ok := leadingNodeDef(trimmed)
		if !ok {
			continue
		}
		prev, seen := defs[id]
		if !seen {
			defs[id] = label
			continue
		}
		if prev == label {
			continue
		}
		alias := id + "_2"
		for n := 3; ; n++ {
			if _, taken := defs[alias]; !taken {
				break
			}
			alias = fmt.Sprintf("%s_%d", id, n)
		}
		defs[alias] = label
		lines[i] = strings.Replace(line, id, alias, 1)
		changed = true
	}
	if !changed {
		return text, false
	}
	return strings.Join(lines, "\n"), true
}

// leadingNodeDef extracts "id<open>label<close>" at the start of a
// statement, if present.
func leadingNodeDef(s string) (id, label string, ok bool) {
	n := 0
	for n < len(s) {
		c := s[n]
		if c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			n++
			continue
		}
		break
	}
	if n == 0 {
		return "", "", false
	}
	id, rest := s[:n], s[n:]
	for _, d := range labelDelims {
		if strings.HasPrefix(rest, d.open) {
			end := strings.Index(rest[len(d.open):], d.close)
			if end < 0 {
				return "", "", false
			}
			return id, rest[len(d.open) : len(d.open)+end], true
		}
	}
	return "", "", false
}
