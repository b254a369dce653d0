// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package diagram converts mermaid diagram text to and from a typed
// graph representation.
//
// Two dialects are supported: unordered "flow" diagrams (flowchart/graph)
// and ordered "sequence" diagrams (sequenceDiagram). Both parse into the
// same Graph type so the differ and renderer operate on one
// representation with dialect-specific adapters underneath.
//
// # Determinism
//
// Graphs preserve source declaration order for nodes, edges, and groups.
// All iteration in this package is over slices, never over maps, so
// parse and render are byte-deterministic for identical inputs.
//
// # Thread Safety
//
// Graph values are plain data. Parse and Render are pure functions and
// safe for concurrent use.
package diagram

// Kind identifies the diagram dialect.
type Kind string

const (
	// KindFlow is an unordered node/edge diagram (flowchart, graph).
	KindFlow Kind = "flow"

	// KindSequence is an ordered message diagram (sequenceDiagram).
	KindSequence Kind = "sequence"
)

// ChangeClass classifies a diagram element after diffing two versions.
type ChangeClass int

const (
	// Unchanged means the element is identical in both versions.
	Unchanged ChangeClass = iota

	// Added means the element exists only in the new version.
	Added

	// Changed means the element exists in both versions with a
	// differing label, style, or position.
	Changed

	// Removed means the element exists only in the old version.
	Removed
)

// String returns the lowercase class name used in rendered directives.
func (c ChangeClass) String() string {
	switch c {
	case Added:
		return "added"
	case Changed:
		return "changed"
	case Removed:
		return "removed"
	default:
		return "unchanged"
	}
}

// Node is a diagram node: a flowchart box or a sequence participant.
//
// Identity is the structural ID (the mermaid id/alias), never the
// display label. Style carries the dialect-specific shape or role
// ("round", "diamond", "actor", ...); empty means the dialect default.
type Node struct {
	ID    string
	Label string
	Style string

	// Group is the ID of the subgraph containing this node, or empty.
	// Flow dialect only.
	Group string
}

// Edge is a directed connection: a flowchart arrow or a sequence message.
//
// SequenceIndex is the 1-based source-order position of a message and is
// strictly increasing within a sequence diagram. It is 0 for flow edges.
type Edge struct {
	From  string
	To    string
	Label string
	Style string

	SequenceIndex int
}

// Group is a flow-dialect subgraph.
type Group struct {
	ID    string
	Label string
}

// Graph is the structural representation of one parsed diagram.
//
// Invariants maintained by Parse:
//   - node IDs are unique within the graph
//   - every edge references declared node IDs
//   - Nodes, Edges, and Groups preserve source declaration order
type Graph struct {
	Kind      Kind
	Direction string // flow dialect only: TB, TD, BT, LR, RL
	Nodes     []Node
	Edges     []Edge
	Groups    []Group

	// Markup holds change-class directives recovered from annotation
	// lines while parsing a previously rendered diff diagram. Render
	// ignores it; StripMarkup uses it to recover the live structure.
	Markup ClassMap
}

// NodeByID returns the node with the given ID, or nil.
func (g *Graph) NodeByID(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// HasNode reports whether a node with the given ID exists.
func (g *Graph) HasNode(id string) bool {
	return g.NodeByID(id) != nil
}

// IsEmpty reports whether the graph has no nodes and no edges.
// A nil graph is empty.
func (g *Graph) IsEmpty() bool {
	return g == nil || (len(g.Nodes) == 0 && len(g.Edges) == 0)
}

// ClassMap carries per-element change classes for rendering.
//
// Nodes is keyed by node ID; a missing key means Unchanged. Edges is
// aligned by index with Graph.Edges; nil means all edges Unchanged.
type ClassMap struct {
	Nodes map[string]ChangeClass
	Edges []ChangeClass
}

// NodeClass returns the class recorded for a node ID.
func (c ClassMap) NodeClass(id string) ChangeClass {
	if c.Nodes == nil {
		return Unchanged
	}
	return c.Nodes[id]
}

// EdgeClass returns the class recorded for the edge at index i.
func (c ClassMap) EdgeClass(i int) ChangeClass {
	if c.Edges == nil || i < 0 || i >= len(c.Edges) {
		return Unchanged
	}
	return c.Edges[i]
}

// setNode records a class for a node ID, allocating on first use.
func (c *ClassMap) setNode(id string, cl ChangeClass) {
	if c.Nodes == nil {
		c.Nodes = make(map[string]ChangeClass)
	}
	c.Nodes[id] = cl
}

// setEdge records a class for the edge at index i, growing the aligned
// slice as needed.
func (c *ClassMap) setEdge(i int, cl ChangeClass) {
	for len(c.Edges) <= i {
		c.Edges = append(c.Edges, Unchanged)
	}
	c.Edges[i] = cl
}

// classFromName maps a rendered class name back to its ChangeClass.
func classFromName(s string) (ChangeClass, bool) {
	switch s {
	case "added":
		return Added, true
	case "changed":
		return Changed, true
	case "removed":
		return Removed, true
	default:
		return Unchanged, false
	}
}

// HasAnnotations reports whether any element is non-Unchanged.
func (c ClassMap) HasAnnotations() bool {
	for _, cl := range c.Nodes {
		if cl != Unchanged {
			return true
		}
	}
	for _, cl := range c.Edges {
		if cl != Unchanged {
			return true
		}
	}
	return false
}
