// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package diagram

import (
	"fmt"
	"strings"
)

// Change-class colors used in rendered style directives.
const (
	colorAddedFill   = "#d3f9d8"
	colorAddedLine   = "#2f9e44"
	colorChangedFill = "#fff3bf"
	colorChangedLine = "#f08c00"
	colorRemovedFill = "#ffc9c9"
	colorRemovedLine = "#e03131"
)

// removedGroupID is the synthetic subgraph that keeps removed flow
// elements visible in the rendered diff.
const removedGroupID = "removed_elements"

func classLineColor(c ChangeClass) string {
	switch c {
	case Added:
		return colorAddedLine
	case Changed:
		return colorChangedLine
	case Removed:
		return colorRemovedLine
	default:
		return ""
	}
}

// classFromStroke maps a rendered stroke color back to its ChangeClass.
func classFromStroke(color string) (ChangeClass, bool) {
	switch color {
	case colorAddedLine:
		return Added, true
	case colorChangedLine:
		return Changed, true
	case colorRemovedLine:
		return Removed, true
	default:
		return Unchanged, false
	}
}

func classFillColor(c ChangeClass) string {
	switch c {
	case Added:
		return colorAddedFill
	case Changed:
		return colorChangedFill
	case Removed:
		return colorRemovedFill
	default:
		return ""
	}
}

// Render emits canonical diagram text for the graph, annotated with one
// style directive per non-Unchanged element in classes.
//
// Added elements get a green fill, Changed yellow, Removed red. Removed
// elements stay visible: flow nodes move into a "Removed" subgraph and
// sequence messages render inside a red marked region at the end.
//
// Rendering iterates declaration order only, so identical inputs always
// produce byte-identical output. Render with an empty ClassMap is the
// structural inverse of Parse.
func Render(g *Graph, classes ClassMap) string {
	if g.Kind == KindSequence {
		return renderSequence(g, classes)
	}
	return renderFlow(g, classes)
}

func renderFlow(g *Graph, classes ClassMap) string {
	var sb strings.Builder

	direction := g.Direction
	if direction == "" {
		direction = "TD"
	}
	fmt.Fprintf(&sb, "flowchart %s\n", direction)

	// Ungrouped, non-removed nodes first, in declaration order.
	for _, n := range g.Nodes {
		if n.Group == "" && classes.NodeClass(n.ID) != Removed {
			sb.WriteString("    " + flowNodeDef(n) + "\n")
		}
	}

	// Declared subgraphs with their members.
	for _, grp := range g.Groups {
		members := make([]Node, 0)
		for _, n := range g.Nodes {
			if n.Group == grp.ID && classes.NodeClass(n.ID) != Removed {
				members = append(members, n)
			}
		}
		if len(members) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "    subgraph %s[%s]\n", grp.ID, quoteLabel(grp.Label))
		for _, n := range members {
			sb.WriteString("        " + flowNodeDef(n) + "\n")
		}
		sb.WriteString("    end\n")
	}

	// Removed nodes are kept visible in a clearly marked region.
	removed := make([]Node, 0)
	for _, n := range g.Nodes {
		if classes.NodeClass(n.ID) == Removed {
			removed = append(removed, n)
		}
	}
	if len(removed) > 0 {
		fmt.Fprintf(&sb, "    subgraph %s[%s]\n", removedGroupID, quoteLabel("Removed"))
		for _, n := range removed {
			sb.WriteString("        " + flowNodeDef(n) + "\n")
		}
		sb.WriteString("    end\n")
	}

	for _, e := range g.Edges {
		sb.WriteString("    " + flowEdgeDef(e) + "\n")
	}

	renderFlowAnnotations(&sb, g, classes)
	return sb.String()
}

func flowNodeDef(n Node) string {
	for _, d := range shapeDelims {
		if d.style == n.Style {
			return n.ID + d.open + quoteLabel(n.Label) + d.close
		}
	}
	// Unknown shape falls back to the default box.
	return n.ID + "[" + quoteLabel(n.Label) + "]"
}

func flowEdgeDef(e Edge) string {
	arrow := "-->"
	for _, a := range flowArrows {
		if a.style == e.Style {
			arrow = a.token
			break
		}
	}
	if e.Label != "" {
		// A literal pipe would terminate the label delimiter.
		label := strings.ReplaceAll(e.Label, "|", "#124;")
		return fmt.Sprintf("%s %s|%s| %s", e.From, arrow, label, e.To)
	}
	return fmt.Sprintf("%s %s %s", e.From, arrow, e.To)
}

// renderFlowAnnotations emits classDef definitions plus one class
// directive per non-Unchanged node and one linkStyle per non-Unchanged
// edge.
func renderFlowAnnotations(sb *strings.Builder, g *Graph, classes ClassMap) {
	if !classes.HasAnnotations() {
		return
	}

	sb.WriteString("\n")
	fmt.Fprintf(sb, "    classDef added fill:%s,stroke:%s,stroke-width:2px\n", colorAddedFill, colorAddedLine)
	fmt.Fprintf(sb, "    classDef changed fill:%s,stroke:%s,stroke-width:2px\n", colorChangedFill, colorChangedLine)
	fmt.Fprintf(sb, "    classDef removed fill:%s,stroke:%s,stroke-width:2px\n", colorRemovedFill, colorRemovedLine)

	for _, n := range g.Nodes {
		if c := classes.NodeClass(n.ID); c != Unchanged {
			fmt.Fprintf(sb, "    class %s %s\n", n.ID, c)
		}
	}
	for i := range g.Edges {
		if c := classes.EdgeClass(i); c != Unchanged {
			fmt.Fprintf(sb, "    linkStyle %d stroke:%s,stroke-width:2px\n", i, classLineColor(c))
		}
	}
}

func renderSequence(g *Graph, classes ClassMap) string {
	var sb strings.Builder
	sb.WriteString("sequenceDiagram\n")

	for _, n := range g.Nodes {
		keyword := "participant"
		if n.Style == styleActor {
			keyword = "actor"
		}
		if n.Label != n.ID {
			fmt.Fprintf(&sb, "    %s %s as %s\n", keyword, n.ID, n.Label)
		} else {
			fmt.Fprintf(&sb, "    %s %s\n", keyword, n.ID)
		}
	}

	// Participants have no fill in the sequence dialect; a note is the
	// per-element change directive.
	for _, n := range g.Nodes {
		if c := classes.NodeClass(n.ID); c != Unchanged {
			fmt.Fprintf(&sb, "    Note over %s: %s\n", n.ID, c)
		}
	}

	// Live messages in order, each non-Unchanged one inside its own
	// colored region.
	removedIdx := make([]int, 0)
	for i, e := range g.Edges {
		c := classes.EdgeClass(i)
		if c == Removed {
			removedIdx = append(removedIdx, i)
			continue
		}
		if c == Unchanged {
			sb.WriteString("    " + sequenceMessageDef(e) + "\n")
			continue
		}
		fmt.Fprintf(&sb, "    rect rgb(%s)\n", rectColor(c))
		sb.WriteString("    " + sequenceMessageDef(e) + "\n")
		sb.WriteString("    end\n")
	}

	// Removed messages stay visible in a marked region at the end.
	for _, i := range removedIdx {
		e := g.Edges[i]
		fmt.Fprintf(&sb, "    rect rgb(%s)\n", rectColor(Removed))
		fmt.Fprintf(&sb, "    Note over %s,%s: removed\n", e.From, e.To)
		sb.WriteString("    " + sequenceMessageDef(e) + "\n")
		sb.WriteString("    end\n")
	}

	return sb.String()
}

func sequenceMessageDef(e Edge) string {
	arrow := "->>"
	for _, a := range sequenceArrows {
		if a.style == e.Style {
			arrow = a.token
			break
		}
	}
	return fmt.Sprintf("%s%s%s: %s", e.From, arrow, e.To, e.Label)
}

func rectColor(c ChangeClass) string {
	switch c {
	case Added:
		return "211, 249, 216"
	case Changed:
		return "255, 243, 191"
	case Removed:
		return "255, 201, 201"
	default:
		return "255, 255, 255"
	}
}
