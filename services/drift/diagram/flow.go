// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package diagram

import (
	"strconv"
	"strings"
)

// Flow node shapes, stored in Node.Style. The zero value is the default
// square box.
const (
	shapeRound      = "round"
	shapeCircle     = "circle"
	shapeDiamond    = "diamond"
	shapeSubroutine = "subroutine"
	shapeStadium    = "stadium"
)

// shapeDelims maps a shape style to its mermaid open/close delimiters.
// Openers are matched longest-first during parsing.
var shapeDelims = []struct {
	style string
	open  string
	close string
}{
	{shapeCircle, "((", "))"},
	{shapeStadium, "([", "])"},
	{shapeSubroutine, "[[", "]]"},
	{"", "[", "]"},
	{shapeRound, "(", ")"},
	{shapeDiamond, "{", "}"},
}

// Flow edge styles, stored in Edge.Style. The zero value is a solid
// arrow (-->).
const (
	edgeDotted = "dotted"
	edgeThick  = "thick"
	edgeOpen   = "open"
)

// flowArrows maps arrow tokens to edge styles, longest token first so
// that "-.->"" is not misread as "-" + ".->".
var flowArrows = []struct {
	token string
	style string
}{
	{"-.->", edgeDotted},
	{"==>", edgeThick},
	{"-->", ""},
	{"---", edgeOpen},
}

var flowDirections = map[string]bool{
	"TB": true, "TD": true, "BT": true, "LR": true, "RL": true,
}

// flowParser accumulates graph state while scanning flow dialect lines.
type flowParser struct {
	graph      *Graph
	nodeIdx    map[string]int
	explicit   map[string]bool
	groupStack []string
}

func parseFlow(lines []string, headerIdx int) (*Graph, error) {
	header := strings.Fields(strings.TrimSpace(lines[headerIdx]))
	direction := "TD"
	if len(header) > 1 {
		direction = header[1]
		if !flowDirections[direction] {
			return nil, parseErrorf(headerIdx+1, "unknown flow direction %q", direction)
		}
	}

	p := &flowParser{
		graph: &Graph{
			Kind:      KindFlow,
			Direction: direction,
		},
		nodeIdx:  make(map[string]int),
		explicit: make(map[string]bool),
	}

	for i := headerIdx + 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		lineNo := i + 1

		switch {
		case line == "" || strings.HasPrefix(line, "%%"):
			continue
		case strings.HasPrefix(line, "classDef ") || strings.HasPrefix(line, "style ") || strings.HasPrefix(line, "click "):
			// Presentation directives are regenerated at render time.
			continue
		case strings.HasPrefix(line, "class "):
			p.classDirective(line)
		case strings.HasPrefix(line, "linkStyle "):
			p.linkStyleDirective(line)
		case strings.HasPrefix(line, "subgraph"):
			if err := p.openSubgraph(line, lineNo); err != nil {
				return nil, err
			}
		case line == "end":
			if len(p.groupStack) == 0 {
				return nil, parseErrorf(lineNo, "end without open subgraph")
			}
			p.groupStack = p.groupStack[:len(p.groupStack)-1]
		default:
			if err := p.statement(line, lineNo); err != nil {
				return nil, err
			}
		}
	}

	if len(p.groupStack) > 0 {
		return nil, parseErrorf(len(lines), "unterminated subgraph %q", p.groupStack[len(p.groupStack)-1])
	}
	return p.graph, nil
}

// classDirective records "class id1,id2 name" assignments whose class
// name is one of the rendered change classes. Other class directives
// carry no structural information and are dropped.
func (p *flowParser) classDirective(line string) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return
	}
	cl, ok := classFromName(fields[2])
	if !ok {
		return
	}
	for _, id := range strings.Split(fields[1], ",") {
		p.graph.Markup.setNode(id, cl)
	}
}

// linkStyleDirective records "linkStyle i stroke:<color>,..." lines
// whose stroke color is one of the rendered change colors.
func (p *flowParser) linkStyleDirective(line string) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return
	}
	idx, err := strconv.Atoi(fields[1])
	if err != nil || idx < 0 {
		return
	}
	for _, prop := range strings.Split(strings.Join(fields[2:], ""), ",") {
		color, ok := strings.CutPrefix(prop, "stroke:")
		if !ok {
			continue
		}
		if cl, ok := classFromStroke(color); ok {
			p.graph.Markup.setEdge(idx, cl)
		}
	}
}

// openSubgraph handles "subgraph id", "subgraph id[Label]".
func (p *flowParser) openSubgraph(line string, lineNo int) error {
	rest := strings.TrimSpace(strings.TrimPrefix(line, "subgraph"))
	if rest == "" {
		return parseErrorf(lineNo, "subgraph requires an identifier")
	}

	id, tail := scanIdent(rest)
	if id == "" {
		return parseErrorf(lineNo, "invalid subgraph identifier %q", rest)
	}

	label := id
	tail = strings.TrimSpace(tail)
	if tail != "" {
		if !strings.HasPrefix(tail, "[") || !strings.HasSuffix(tail, "]") {
			return parseErrorf(lineNo, "malformed subgraph label %q", tail)
		}
		label = unquoteLabel(tail[1 : len(tail)-1])
	}

	for _, g := range p.graph.Groups {
		if g.ID == id {
			return parseErrorf(lineNo, "duplicate subgraph id %q", id)
		}
	}
	p.graph.Groups = append(p.graph.Groups, Group{ID: id, Label: label})
	p.groupStack = append(p.groupStack, id)
	return nil
}

// statement parses a node declaration or an edge chain:
//
//	A["Label"]
//	A --> B
//	A -.->|reads| B(Round) ==> C
func (p *flowParser) statement(line string, lineNo int) error {
	from, rest, err := p.nodeSpec(line, lineNo)
	if err != nil {
		return err
	}

	for {
		rest = strings.TrimSpace(rest)
		if rest == "" {
			return nil
		}

		style, tail, ok := matchArrow(rest)
		if !ok {
			return parseErrorf(lineNo, "expected edge arrow, found %q", rest)
		}

		label := ""
		tail = strings.TrimSpace(tail)
		if strings.HasPrefix(tail, "|") {
			end := strings.Index(tail[1:], "|")
			if end < 0 {
				return parseErrorf(lineNo, "unterminated edge label")
			}
			// #124; is the entity the renderer uses for a literal
			// pipe, which would otherwise terminate the label.
			label = strings.ReplaceAll(unquoteLabel(tail[1:1+end]), "#124;", "|")
			tail = tail[end+2:]
		}

		to, remainder, err := p.nodeSpec(strings.TrimSpace(tail), lineNo)
		if err != nil {
			return err
		}

		p.graph.Edges = append(p.graph.Edges, Edge{
			From:  from,
			To:    to,
			Label: label,
			Style: style,
		})

		from = to
		rest = remainder
	}
}

func matchArrow(s string) (style, rest string, ok bool) {
	for _, a := range flowArrows {
		if strings.HasPrefix(s, a.token) {
			return a.style, s[len(a.token):], true
		}
	}
	return "", "", false
}

// nodeSpec parses one node reference with an optional shape and label,
// registering the node on first sight. Returns the node ID and the
// unconsumed remainder of the line.
func (p *flowParser) nodeSpec(s string, lineNo int) (string, string, error) {
	id, rest := scanIdent(s)
	if id == "" {
		return "", "", parseErrorf(lineNo, "expected node identifier, found %q", s)
	}

	node := Node{ID: id, Label: id}
	explicit := false
	for _, d := range shapeDelims {
		if strings.HasPrefix(rest, d.open) {
			end := strings.Index(rest[len(d.open):], d.close)
			if end < 0 {
				return "", "", parseErrorf(lineNo, "unterminated %q on node %q", d.open, id)
			}
			node.Label = unquoteLabel(rest[len(d.open) : len(d.open)+end])
			node.Style = d.style
			rest = rest[len(d.open)+end+len(d.close):]
			explicit = true
			break
		}
	}

	if err := p.register(node, explicit, lineNo); err != nil {
		return "", "", err
	}
	return id, rest, nil
}

// register adds a node on first sight. Re-references are permitted,
// and a node first seen bare ("A --> B") may still be defined
// explicitly later ("A[Label]"); only two conflicting explicit
// definitions are a ParseError because node IDs must be unique within
// one diagram.
func (p *flowParser) register(node Node, explicit bool, lineNo int) error {
	if idx, seen := p.nodeIdx[node.ID]; seen {
		existing := &p.graph.Nodes[idx]
		if explicit {
			if !p.explicit[node.ID] {
				existing.Label = node.Label
				existing.Style = node.Style
				p.explicit[node.ID] = true
			} else if existing.Label != node.Label || existing.Style != node.Style {
				return parseErrorf(lineNo, "duplicate node id %q with conflicting definition", node.ID)
			}
		}
		// A bare mention inside a subgraph adopts that group.
		if existing.Group == "" && len(p.groupStack) > 0 {
			existing.Group = p.groupStack[len(p.groupStack)-1]
		}
		return nil
	}

	if len(p.groupStack) > 0 {
		node.Group = p.groupStack[len(p.groupStack)-1]
	}
	p.nodeIdx[node.ID] = len(p.graph.Nodes)
	p.explicit[node.ID] = explicit
	p.graph.Nodes = append(p.graph.Nodes, node)
	return nil
}
