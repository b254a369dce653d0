// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package docstore reads and rewrites the fenced mermaid blocks inside
// markdown design documents.
//
// Blocks are addressed by a BlockRef: either a named anchor declared on
// the fence line ("```mermaid {#anchor}") or a 1-based ordinal over the
// document's mermaid blocks.
package docstore

import (
	"fmt"
	"strconv"
	"strings"
)

// BlockRef addresses one mermaid block. Exactly one of Anchor or
// Ordinal is set; the zero value means the first block.
type BlockRef struct {
	Anchor  string
	Ordinal int
}

func (r BlockRef) String() string {
	if r.Anchor != "" {
		return "#" + r.Anchor
	}
	if r.Ordinal > 0 {
		return "#" + strconv.Itoa(r.Ordinal)
	}
	return "#1"
}

// ParseRef parses a registry diagram reference. "#2" selects the
// second mermaid block, "#flow-overview" the block anchored with that
// name, and "" the first block.
func ParseRef(s string) (BlockRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return BlockRef{Ordinal: 1}, nil
	}
	if !strings.HasPrefix(s, "#") {
		return BlockRef{}, fmt.Errorf("diagram ref %q must start with #", s)
	}
	body := s[1:]
	if body == "" {
		return BlockRef{}, fmt.Errorf("diagram ref %q is empty", s)
	}
	if n, err := strconv.Atoi(body); err == nil {
		if n < 1 {
			return BlockRef{}, fmt.Errorf("diagram ref ordinal %d must be >= 1", n)
		}
		return BlockRef{Ordinal: n}, nil
	}
	return BlockRef{Anchor: body}, nil
}

// BlockNotFoundError reports a reference with no matching block.
type BlockNotFoundError struct {
	Doc string
	Ref BlockRef
}

func (e *BlockNotFoundError) Error() string {
	return fmt.Sprintf("no mermaid block %s in %s", e.Ref, e.Doc)
}

// block is one fenced mermaid region. startLine is the index of the
// opening fence, endLine the index of the closing fence; content lies
// strictly between them.
type block struct {
	startLine int
	endLine   int
	anchor    string
}

// mermaidFence matches the opening fence of a mermaid block and
// extracts an optional "{#anchor}" attribute.
func mermaidFence(line string) (anchor string, ok bool) {
	trimmed := strings.TrimSpace(line)
	rest, found := strings.CutPrefix(trimmed, "```mermaid")
	if !found {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", true
	}
	if strings.HasPrefix(rest, "{#") && strings.HasSuffix(rest, "}") {
		return rest[2 : len(rest)-1], true
	}
	return "", false
}

// findBlocks scans document lines for mermaid blocks in order. An
// unclosed fence terminates the scan; everything before it is still
// returned.
func findBlocks(lines []string) []block {
	blocks := make([]block, 0)
	for i := 0; i < len(lines); i++ {
		anchor, ok := mermaidFence(lines[i])
		if !ok {
			continue
		}
		closed := -1
		for j := i + 1; j < len(lines); j++ {
			if strings.TrimSpace(lines[j]) == "```" {
				closed = j
				break
			}
		}
		if closed < 0 {
			break
		}
		blocks = append(blocks, block{startLine: i, endLine: closed, anchor: anchor})
		i = closed
	}
	return blocks
}

// resolve picks the block addressed by ref.
func resolve(blocks []block, ref BlockRef) (block, bool) {
	if ref.Anchor != "" {
		for _, b := range blocks {
			if b.anchor == ref.Anchor {
				return b, true
			}
		}
		return block{}, false
	}
	ordinal := ref.Ordinal
	if ordinal == 0 {
		ordinal = 1
	}
	if ordinal > len(blocks) {
		return block{}, false
	}
	return blocks[ordinal-1], true
}
