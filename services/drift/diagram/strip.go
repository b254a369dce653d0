// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package diagram

// StripMarkup reduces a previously rendered diff diagram to its live
// structure. Elements marked removed are dropped along with the
// synthetic removed-elements subgraph that kept them visible, and all
// recovered markup is cleared. Parsing a persisted annotated diagram
// and stripping it yields the structure of the proposal that produced
// it, so diffing against the same proposal again is a no-op.
//
// A graph without markup passes through structurally unchanged.
func StripMarkup(g *Graph) *Graph {
	if g == nil {
		return nil
	}

	out := &Graph{Kind: g.Kind, Direction: g.Direction}

	dropped := make(map[string]bool)
	for _, n := range g.Nodes {
		if n.Group == removedGroupID || g.Markup.NodeClass(n.ID) == Removed {
			dropped[n.ID] = true
			continue
		}
		out.Nodes = append(out.Nodes, n)
	}

	for _, grp := range g.Groups {
		if grp.ID != removedGroupID {
			out.Groups = append(out.Groups, grp)
		}
	}

	seq := 0
	for i, e := range g.Edges {
		if g.Markup.EdgeClass(i) == Removed || dropped[e.From] || dropped[e.To] {
			continue
		}
		if g.Kind == KindSequence {
			seq++
			e.SequenceIndex = seq
		}
		out.Edges = append(out.Edges, e)
	}

	return out
}
