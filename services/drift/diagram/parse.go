// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package diagram

import (
	"strings"
)

// Parse converts diagram text into a Graph.
//
// The dialect is detected from the header line: "sequenceDiagram" for
// the sequence dialect, "flowchart" or "graph" for the flow dialect.
// Malformed input yields a *ParseError with the offending line; an
// unrecognized header yields ErrUnknownDialect.
func Parse(text string) (*Graph, error) {
	lines := strings.Split(text, "\n")

	headerIdx := -1
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "%%") {
			continue
		}
		headerIdx = i
		break
	}
	if headerIdx < 0 {
		return nil, parseErrorf(1, "empty diagram")
	}

	header := strings.TrimSpace(lines[headerIdx])
	switch {
	case header == "sequenceDiagram":
		return parseSequence(lines, headerIdx)
	case strings.HasPrefix(header, "flowchart") || strings.HasPrefix(header, "graph"):
		return parseFlow(lines, headerIdx)
	default:
		return nil, ErrUnknownDialect
	}
}

// isIdentRune reports whether r may appear in a mermaid node ID.
// Dashes and dots are excluded: they would be indistinguishable from
// the start of an arrow token in "A-->B" or "A-.->B".
func isIdentRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_':
		return true
	default:
		return false
	}
}

// scanIdent consumes a leading identifier from s and returns it with the
// remainder. An empty identifier means s does not start with one.
func scanIdent(s string) (ident, rest string) {
	i := 0
	for i < len(s) && isIdentRune(rune(s[i])) {
		i++
	}
	return s[:i], s[i:]
}

// unquoteLabel strips one level of surrounding double quotes and decodes
// the mermaid #quot; entity.
func unquoteLabel(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return strings.ReplaceAll(s, "#quot;", `"`)
}

// quoteLabel emits a label in canonical quoted form, encoding embedded
// quotes as #quot; the way mermaid expects.
func quoteLabel(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, "#quot;") + `"`
}
