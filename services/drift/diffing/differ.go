// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package diffing computes structural deltas between two versions of
// the same logical diagram.
//
// The diff is a pure value: identical inputs always yield identical
// diffs. All iteration is over slices in declaration order; maps are
// used for lookup only, never iterated.
//
// # Element identity
//
// Node identity is structural. When Options.IDMap supplies an explicit
// old-to-new ID mapping, a relabel under a mapped ID classifies as
// Changed. Without a mapping, identity defaults to the (id, label)
// pair, so a relabel reads as Removed plus Added while a style change
// on an otherwise identical node reads as Changed.
//
// Edges are grouped per (from, to) endpoint pair and aligned within
// each pair by longest common subsequence over (label, style). This
// keeps pure message reordering in sequence diagrams from producing
// spurious Changed markings: only truly reordered or rewritten
// messages are flagged.
package diffing

import (
	"errors"

	"github.com/driftline/driftline/services/drift/diagram"
)

// ErrKindMismatch is returned when the two graphs use different
// dialects and neither is empty.
var ErrKindMismatch = errors.New("diagram dialects differ between versions")

// Options configures diff behavior.
type Options struct {
	// IDMap maps old node IDs to new node IDs for nodes the caller
	// knows were renamed or relabeled. Entries for IDs absent from
	// either graph are ignored.
	IDMap map[string]string
}

// Diff is the structural delta between two diagram versions.
type Diff struct {
	// Old and New are the input graphs. Either may be empty.
	Old *diagram.Graph
	New *diagram.Graph

	// Merged contains every element of New in declaration order,
	// followed by removed elements of Old so they stay renderable.
	// Removed nodes whose ID collides with a surviving node are
	// aliased with a _removed suffix to keep node IDs unique.
	Merged *diagram.Graph

	// Classes holds one ChangeClass per Merged element.
	Classes diagram.ClassMap
}

// Stats counts classified elements.
type Stats struct {
	NodesAdded, NodesChanged, NodesRemoved, NodesUnchanged int
	EdgesAdded, EdgesChanged, EdgesRemoved, EdgesUnchanged int
}

// Empty reports whether the delta is purely Unchanged.
func (d *Diff) Empty() bool {
	s := d.Stats()
	return s.NodesAdded+s.NodesChanged+s.NodesRemoved == 0 &&
		s.EdgesAdded+s.EdgesChanged+s.EdgesRemoved == 0
}

// Stats tallies the change classes over the merged graph.
func (d *Diff) Stats() Stats {
	var s Stats
	for _, n := range d.Merged.Nodes {
		switch d.Classes.NodeClass(n.ID) {
		case diagram.Added:
			s.NodesAdded++
		case diagram.Changed:
			s.NodesChanged++
		case diagram.Removed:
			s.NodesRemoved++
		default:
			s.NodesUnchanged++
		}
	}
	for i := range d.Merged.Edges {
		switch d.Classes.EdgeClass(i) {
		case diagram.Added:
			s.EdgesAdded++
		case diagram.Changed:
			s.EdgesChanged++
		case diagram.Removed:
			s.EdgesRemoved++
		default:
			s.EdgesUnchanged++
		}
	}
	return s
}

// Render emits the annotated diff diagram.
func (d *Diff) Render() string {
	return diagram.Render(d.Merged, d.Classes)
}

// Compute diffs old against new.
//
// Nil graphs are treated as empty: Compute(nil, g) marks every element
// of g Added, Compute(g, nil) marks every element Removed, and
// Compute(g, g) yields an all-Unchanged delta.
func Compute(oldG, newG *diagram.Graph, opts Options) (*Diff, error) {
	if oldG == nil {
		oldG = &diagram.Graph{}
	}
	if newG == nil {
		newG = &diagram.Graph{}
	}
	if !oldG.IsEmpty() && !newG.IsEmpty() && oldG.Kind != newG.Kind {
		return nil, ErrKindMismatch
	}

	d := &Diff{Old: oldG, New: newG}

	merged := &diagram.Graph{
		Kind:      newG.Kind,
		Direction: newG.Direction,
		Groups:    append([]diagram.Group(nil), newG.Groups...),
	}
	if newG.IsEmpty() {
		merged.Kind = oldG.Kind
		merged.Direction = oldG.Direction
	}

	nodeClasses := make(map[string]diagram.ChangeClass)

	// --- Node matching ---------------------------------------------------

	// oldToMerged translates old node IDs into the merged namespace.
	oldToMerged := make(map[string]string, len(oldG.Nodes))
	matchedNew := make(map[string]bool)

	// Pass 1: explicit ID mapping, then (id, label) identity.
	for _, on := range oldG.Nodes {
		if mappedID, ok := opts.IDMap[on.ID]; ok {
			if nn := newG.NodeByID(mappedID); nn != nil && !matchedNew[mappedID] {
				matchedNew[mappedID] = true
				oldToMerged[on.ID] = mappedID
				if nn.Label != on.Label || nn.Style != on.Style {
					nodeClasses[mappedID] = diagram.Changed
				} else {
					nodeClasses[mappedID] = diagram.Unchanged
				}
				continue
			}
		}
		if nn := newG.NodeByID(on.ID); nn != nil && !matchedNew[on.ID] && nn.Label == on.Label {
			matchedNew[on.ID] = true
			oldToMerged[on.ID] = on.ID
			if nn.Style != on.Style {
				nodeClasses[on.ID] = diagram.Changed
			} else {
				nodeClasses[on.ID] = diagram.Unchanged
			}
		}
	}

	// New nodes in declaration order; unmatched ones are Added.
	for _, nn := range newG.Nodes {
		if _, ok := nodeClasses[nn.ID]; !ok {
			nodeClasses[nn.ID] = diagram.Added
		}
		merged.Nodes = append(merged.Nodes, nn)
	}

	// Removed old nodes appended, aliased on ID collision. Their group
	// is cleared: the renderer relocates them into the Removed region.
	for _, on := range oldG.Nodes {
		if _, ok := oldToMerged[on.ID]; ok {
			continue
		}
		mergedID := on.ID
		for merged.NodeByID(mergedID) != nil {
			mergedID += "_removed"
		}
		oldToMerged[on.ID] = mergedID
		nodeClasses[mergedID] = diagram.Removed
		merged.Nodes = append(merged.Nodes, diagram.Node{
			ID:    mergedID,
			Label: on.Label,
			Style: on.Style,
		})
	}

	// --- Edge matching ---------------------------------------------------

	type pairKey struct{ from, to string }

	oldPairs := make(map[pairKey][]int)
	newPairs := make(map[pairKey][]int)
	pairOrder := make([]pairKey, 0)
	seenPair := make(map[pairKey]bool)

	notePair := func(k pairKey) {
		if !seenPair[k] {
			seenPair[k] = true
			pairOrder = append(pairOrder, k)
		}
	}

	for i, e := range newG.Edges {
		k := pairKey{e.From, e.To}
		notePair(k)
		newPairs[k] = append(newPairs[k], i)
	}
	for i, e := range oldG.Edges {
		k := pairKey{oldToMerged[e.From], oldToMerged[e.To]}
		notePair(k)
		oldPairs[k] = append(oldPairs[k], i)
	}

	newEdgeClasses := make([]diagram.ChangeClass, len(newG.Edges))
	for i := range newEdgeClasses {
		newEdgeClasses[i] = diagram.Added
	}
	oldEdgeRemoved := make([]bool, len(oldG.Edges))
	for i := range oldEdgeRemoved {
		oldEdgeRemoved[i] = true
	}

	edgeContent := func(e diagram.Edge) string {
		return e.Label + "\x00" + e.Style
	}

	for _, k := range pairOrder {
		oldIdx := oldPairs[k]
		newIdx := newPairs[k]

		oldContent := make([]string, len(oldIdx))
		for i, oi := range oldIdx {
			oldContent[i] = edgeContent(oldG.Edges[oi])
		}
		newContent := make([]string, len(newIdx))
		for i, ni := range newIdx {
			newContent[i] = edgeContent(newG.Edges[ni])
		}

		oldUsed := make([]bool, len(oldIdx))
		newUsed := make([]bool, len(newIdx))

		// LCS-aligned messages kept their relative order: Unchanged.
		for _, p := range lcsPairs(oldContent, newContent) {
			oldUsed[p[0]] = true
			newUsed[p[1]] = true
			newEdgeClasses[newIdx[p[1]]] = diagram.Unchanged
			oldEdgeRemoved[oldIdx[p[0]]] = false
		}

		// Leftovers pair positionally as Changed: reordered when the
		// content matches, rewritten when it does not.
		leftOld := make([]int, 0)
		for i, used := range oldUsed {
			if !used {
				leftOld = append(leftOld, i)
			}
		}
		leftNew := make([]int, 0)
		for i, used := range newUsed {
			if !used {
				leftNew = append(leftNew, i)
			}
		}
		for i := 0; i < len(leftOld) && i < len(leftNew); i++ {
			newEdgeClasses[newIdx[leftNew[i]]] = diagram.Changed
			oldEdgeRemoved[oldIdx[leftOld[i]]] = false
		}
	}

	merged.Edges = append(merged.Edges, newG.Edges...)
	edgeClasses := append([]diagram.ChangeClass(nil), newEdgeClasses...)

	for i, e := range oldG.Edges {
		if !oldEdgeRemoved[i] {
			continue
		}
		merged.Edges = append(merged.Edges, diagram.Edge{
			From:          oldToMerged[e.From],
			To:            oldToMerged[e.To],
			Label:         e.Label,
			Style:         e.Style,
			SequenceIndex: e.SequenceIndex,
		})
		edgeClasses = append(edgeClasses, diagram.Removed)
	}

	d.Merged = merged
	d.Classes = diagram.ClassMap{Nodes: nodeClasses, Edges: edgeClasses}
	return d, nil
}
