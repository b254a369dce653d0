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

// styleActor marks a participant declared with the actor keyword.
const styleActor = "actor"

// Sequence message styles, stored in Edge.Style. The zero value is a
// solid arrowhead message (->>).
const (
	msgDashed      = "dashed"
	msgLine        = "line"
	msgDashedLine  = "dashedline"
	msgCross       = "cross"
	msgDashedCross = "dashedcross"
	msgAsync       = "async"
	msgDashedAsync = "dashedasync"
)

// sequenceArrows maps message arrow tokens to styles, longest first.
var sequenceArrows = []struct {
	token string
	style string
}{
	{"-->>", msgDashed},
	{"->>", ""},
	{"--x", msgDashedCross},
	{"-x", msgCross},
	{"--)", msgDashedAsync},
	{"-)", msgAsync},
	{"-->", msgDashedLine},
	{"->", msgLine},
}

// sequenceControlKeywords are framing constructs tolerated on parse.
// They group messages visually but declare no nodes or edges, and are
// regenerated (for change regions) at render time.
var sequenceControlKeywords = map[string]bool{
	"autonumber": true, "activate": true, "deactivate": true,
	"Note": true, "note": true,
	"loop": true, "alt": true, "opt": true, "else": true,
	"par": true, "and": true, "critical": true, "break": true,
	"rect": true, "end": true,
}

type sequenceParser struct {
	graph   *Graph
	nodeIdx map[string]int
	nextSeq int

	// frames tracks open framing constructs; rect frames carry the
	// change class their color encodes, every other frame Unchanged.
	frames []ChangeClass
}

func parseSequence(lines []string, headerIdx int) (*Graph, error) {
	p := &sequenceParser{
		graph:   &Graph{Kind: KindSequence},
		nodeIdx: make(map[string]int),
		nextSeq: 1,
	}

	for i := headerIdx + 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		lineNo := i + 1

		switch {
		case line == "" || strings.HasPrefix(line, "%%"):
			continue
		case strings.HasPrefix(line, "participant "):
			if err := p.declare(strings.TrimPrefix(line, "participant "), "", lineNo); err != nil {
				return nil, err
			}
		case strings.HasPrefix(line, "actor "):
			if err := p.declare(strings.TrimPrefix(line, "actor "), styleActor, lineNo); err != nil {
				return nil, err
			}
		case isSequenceControl(line):
			p.control(line)
			continue
		default:
			if err := p.message(line, lineNo); err != nil {
				return nil, err
			}
		}
	}

	return p.graph, nil
}

// isSequenceControl matches on the first whole word, so a participant
// whose ID merely starts with a keyword ("andrew") is not swallowed.
func isSequenceControl(line string) bool {
	word, _, _ := strings.Cut(line, " ")
	return sequenceControlKeywords[word]
}

// control tracks framing constructs so messages inside a change-colored
// rect region can be marked, and recovers per-participant change notes.
// Everything else is tolerated and dropped.
func (p *sequenceParser) control(line string) {
	word, rest, _ := strings.Cut(line, " ")
	switch word {
	case "rect":
		p.frames = append(p.frames, rectClassFromColor(strings.TrimSpace(rest)))
	case "loop", "alt", "opt", "par", "critical", "break":
		p.frames = append(p.frames, Unchanged)
	case "end":
		if len(p.frames) > 0 {
			p.frames = p.frames[:len(p.frames)-1]
		}
	case "Note", "note":
		p.noteDirective(strings.TrimSpace(rest))
	}
}

// rectClassFromColor maps "rgb(r, g, b)" back to the change class the
// renderer encodes with that color.
func rectClassFromColor(s string) ChangeClass {
	s, ok := strings.CutPrefix(s, "rgb(")
	if !ok {
		return Unchanged
	}
	s, ok = strings.CutSuffix(s, ")")
	if !ok {
		return Unchanged
	}
	for _, c := range []ChangeClass{Added, Changed, Removed} {
		if s == rectColor(c) {
			return c
		}
	}
	return Unchanged
}

// noteDirective records "over id: <class>" notes for single
// participants; two-participant notes annotate removed messages, which
// the enclosing rect frame already marks.
func (p *sequenceParser) noteDirective(rest string) {
	rest, ok := strings.CutPrefix(rest, "over ")
	if !ok {
		return
	}
	ids, body, ok := strings.Cut(rest, ":")
	if !ok || strings.Contains(ids, ",") {
		return
	}
	if cl, ok := classFromName(strings.TrimSpace(body)); ok {
		p.graph.Markup.setNode(strings.TrimSpace(ids), cl)
	}
}

// frameClass returns the innermost change class of the open frames.
func (p *sequenceParser) frameClass() ChangeClass {
	for i := len(p.frames) - 1; i >= 0; i-- {
		if p.frames[i] != Unchanged {
			return p.frames[i]
		}
	}
	return Unchanged
}

// declare handles "participant id" and "participant id as Label".
func (p *sequenceParser) declare(rest, style string, lineNo int) error {
	rest = strings.TrimSpace(rest)
	id, tail := scanIdent(rest)
	if id == "" {
		return parseErrorf(lineNo, "invalid participant identifier %q", rest)
	}

	label := id
	tail = strings.TrimSpace(tail)
	if tail != "" {
		alias, ok := strings.CutPrefix(tail, "as ")
		if !ok {
			return parseErrorf(lineNo, "malformed participant declaration %q", rest)
		}
		label = unquoteLabel(alias)
	}

	if idx, seen := p.nodeIdx[id]; seen {
		existing := p.graph.Nodes[idx]
		if existing.Label != label || existing.Style != style {
			return parseErrorf(lineNo, "duplicate participant %q with conflicting declaration", id)
		}
		return nil
	}

	p.nodeIdx[id] = len(p.graph.Nodes)
	p.graph.Nodes = append(p.graph.Nodes, Node{ID: id, Label: label, Style: style})
	return nil
}

// message parses "A->>B: text". Undeclared participants are registered
// on first use, mirroring mermaid's implicit declaration.
func (p *sequenceParser) message(line string, lineNo int) error {
	from, rest := scanIdent(line)
	if from == "" {
		return parseErrorf(lineNo, "expected participant identifier, found %q", line)
	}

	rest = strings.TrimSpace(rest)
	style, tail, ok := matchSequenceArrow(rest)
	if !ok {
		return parseErrorf(lineNo, "expected message arrow, found %q", rest)
	}

	// Activation shorthand (A->>+B:) carries no structural meaning.
	tail = strings.TrimLeft(tail, "+-")

	to, tail := scanIdent(strings.TrimSpace(tail))
	if to == "" {
		return parseErrorf(lineNo, "expected target participant in %q", line)
	}

	tail = strings.TrimSpace(tail)
	label, ok := strings.CutPrefix(tail, ":")
	if !ok {
		return parseErrorf(lineNo, "message %q missing ': text'", line)
	}

	p.implicit(from)
	p.implicit(to)

	p.graph.Edges = append(p.graph.Edges, Edge{
		From:          from,
		To:            to,
		Label:         strings.TrimSpace(label),
		Style:         style,
		SequenceIndex: p.nextSeq,
	})
	p.nextSeq++
	if cl := p.frameClass(); cl != Unchanged {
		p.graph.Markup.setEdge(len(p.graph.Edges)-1, cl)
	}
	return nil
}

func matchSequenceArrow(s string) (style, rest string, ok bool) {
	for _, a := range sequenceArrows {
		if strings.HasPrefix(s, a.token) {
			return a.style, s[len(a.token):], true
		}
	}
	return "", "", false
}

func (p *sequenceParser) implicit(id string) {
	if _, seen := p.nodeIdx[id]; seen {
		return
	}
	p.nodeIdx[id] = len(p.graph.Nodes)
	p.graph.Nodes = append(p.graph.Nodes, Node{ID: id, Label: id})
}
