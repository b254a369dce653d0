// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripMarkup_FlowDiff(t *testing.T) {
	g, err := Parse("flowchart TD\n    A[Keep] --> B[New]\n    A --> gone[Old]\n")
	require.NoError(t, err)

	classes := ClassMap{
		Nodes: map[string]ChangeClass{"B": Added, "gone": Removed},
		Edges: []ChangeClass{Added, Removed},
	}
	parsed, err := Parse(Render(g, classes))
	require.NoError(t, err)

	// The annotation lines are recovered as markup, not structure.
	assert.Equal(t, Added, parsed.Markup.NodeClass("B"))
	assert.Equal(t, Removed, parsed.Markup.NodeClass("gone"))
	assert.Equal(t, Added, parsed.Markup.EdgeClass(0))
	assert.Equal(t, Removed, parsed.Markup.EdgeClass(1))

	live := StripMarkup(parsed)
	require.Len(t, live.Nodes, 2)
	assert.Equal(t, "A", live.Nodes[0].ID)
	assert.Equal(t, "B", live.Nodes[1].ID)
	require.Len(t, live.Edges, 1)
	assert.Equal(t, Edge{From: "A", To: "B"}, live.Edges[0])
	assert.Empty(t, live.Groups)
	assert.False(t, live.Markup.HasAnnotations())
}

func TestStripMarkup_SequenceDiff(t *testing.T) {
	g, err := Parse("sequenceDiagram\n    A->>B: first\n    A->>B: second\n")
	require.NoError(t, err)

	classes := ClassMap{
		Nodes: map[string]ChangeClass{"B": Changed},
		Edges: []ChangeClass{Added, Removed},
	}
	parsed, err := Parse(Render(g, classes))
	require.NoError(t, err)

	assert.Equal(t, Changed, parsed.Markup.NodeClass("B"))
	require.Len(t, parsed.Edges, 2)
	assert.Equal(t, Removed, parsed.Markup.EdgeClass(1))

	live := StripMarkup(parsed)
	require.Len(t, live.Nodes, 2)
	require.Len(t, live.Edges, 1)
	assert.Equal(t, Edge{From: "A", To: "B", Label: "first", SequenceIndex: 1}, live.Edges[0])
}

func TestStripMarkup_PlainDiagram(t *testing.T) {
	g, err := Parse("flowchart LR\n    subgraph s[Stage]\n        A[One]\n    end\n    A --> B[Two]\n")
	require.NoError(t, err)

	live := StripMarkup(g)
	assert.Equal(t, g.Nodes, live.Nodes)
	assert.Equal(t, g.Edges, live.Edges)
	assert.Equal(t, g.Groups, live.Groups)
}
