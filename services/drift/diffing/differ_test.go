// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package diffing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/driftline/services/drift/diagram"
)

func mustParse(t *testing.T, text string) *diagram.Graph {
	t.Helper()
	g, err := diagram.Parse(text)
	require.NoError(t, err)
	return g
}

func TestCompute_Identical(t *testing.T) {
	text := "flowchart TD\n    A[One] --> B[Two]\n"
	d, err := Compute(mustParse(t, text), mustParse(t, text), Options{})
	require.NoError(t, err)

	assert.True(t, d.Empty())
	assert.Equal(t, diagram.Unchanged, d.Classes.NodeClass("A"))
	assert.Equal(t, diagram.Unchanged, d.Classes.NodeClass("B"))
	assert.Equal(t, diagram.Unchanged, d.Classes.EdgeClass(0))
}

func TestCompute_EmptyOld(t *testing.T) {
	d, err := Compute(nil, mustParse(t, "flowchart TD\n    A --> B\n"), Options{})
	require.NoError(t, err)

	s := d.Stats()
	assert.Equal(t, 2, s.NodesAdded)
	assert.Equal(t, 1, s.EdgesAdded)
	assert.False(t, d.Empty())
}

func TestCompute_EmptyNew(t *testing.T) {
	d, err := Compute(mustParse(t, "flowchart TD\n    A --> B\n"), nil, Options{})
	require.NoError(t, err)

	s := d.Stats()
	assert.Equal(t, 2, s.NodesRemoved)
	assert.Equal(t, 1, s.EdgesRemoved)
	// Removed elements stay present in the merged graph.
	assert.Len(t, d.Merged.Nodes, 2)
	assert.Len(t, d.Merged.Edges, 1)
	assert.Equal(t, diagram.KindFlow, d.Merged.Kind)
}

func TestCompute_AddedNodeAndEdge(t *testing.T) {
	oldG := mustParse(t, "flowchart TD\n    A[One] --> B[Two]\n")
	newG := mustParse(t, "flowchart TD\n    A[One] --> B[Two]\n    B --> C[Three]\n")

	d, err := Compute(oldG, newG, Options{})
	require.NoError(t, err)

	assert.Equal(t, diagram.Unchanged, d.Classes.NodeClass("A"))
	assert.Equal(t, diagram.Unchanged, d.Classes.NodeClass("B"))
	assert.Equal(t, diagram.Added, d.Classes.NodeClass("C"))

	require.Len(t, d.Merged.Edges, 2)
	assert.Equal(t, diagram.Unchanged, d.Classes.EdgeClass(0))
	assert.Equal(t, diagram.Added, d.Classes.EdgeClass(1))
}

func TestCompute_RemovedNode(t *testing.T) {
	oldG := mustParse(t, "flowchart TD\n    A[One] --> B[Two]\n    B --> C[Three]\n")
	newG := mustParse(t, "flowchart TD\n    A[One] --> B[Two]\n")

	d, err := Compute(oldG, newG, Options{})
	require.NoError(t, err)

	assert.Equal(t, diagram.Removed, d.Classes.NodeClass("C"))

	// The removed edge keeps its endpoints and lands after new edges.
	require.Len(t, d.Merged.Edges, 2)
	removed := d.Merged.Edges[1]
	assert.Equal(t, "B", removed.From)
	assert.Equal(t, "C", removed.To)
	assert.Equal(t, diagram.Removed, d.Classes.EdgeClass(1))
}

func TestCompute_RelabelWithoutIDMap(t *testing.T) {
	oldG := mustParse(t, "flowchart TD\n    A[Old Name]\n")
	newG := mustParse(t, "flowchart TD\n    A[New Name]\n")

	d, err := Compute(oldG, newG, Options{})
	require.NoError(t, err)

	// Identity is the (id, label) pair: a relabel reads as replace.
	assert.Equal(t, diagram.Added, d.Classes.NodeClass("A"))
	assert.Equal(t, diagram.Removed, d.Classes.NodeClass("A_removed"))

	s := d.Stats()
	assert.Equal(t, 1, s.NodesAdded)
	assert.Equal(t, 1, s.NodesRemoved)
}

func TestCompute_RelabelWithIDMap(t *testing.T) {
	oldG := mustParse(t, "flowchart TD\n    A[Old Name]\n")
	newG := mustParse(t, "flowchart TD\n    A[New Name]\n")

	d, err := Compute(oldG, newG, Options{IDMap: map[string]string{"A": "A"}})
	require.NoError(t, err)

	assert.Equal(t, diagram.Changed, d.Classes.NodeClass("A"))
	assert.Len(t, d.Merged.Nodes, 1)
}

func TestCompute_RenameWithIDMap(t *testing.T) {
	oldG := mustParse(t, "flowchart TD\n    store[Storage] --> api[API]\n")
	newG := mustParse(t, "flowchart TD\n    db[Storage] --> api[API]\n")

	d, err := Compute(oldG, newG, Options{IDMap: map[string]string{"store": "db"}})
	require.NoError(t, err)

	// Same label under the mapped ID: the node survives unchanged and
	// the old edge aligns with the new one.
	assert.Equal(t, diagram.Unchanged, d.Classes.NodeClass("db"))
	assert.Equal(t, diagram.Unchanged, d.Classes.NodeClass("api"))
	assert.True(t, d.Empty())
}

func TestCompute_StyleChange(t *testing.T) {
	oldG := mustParse(t, "flowchart TD\n    A[Gate]\n")
	newG := mustParse(t, "flowchart TD\n    A{Gate}\n")

	d, err := Compute(oldG, newG, Options{})
	require.NoError(t, err)
	assert.Equal(t, diagram.Changed, d.Classes.NodeClass("A"))
}

func TestCompute_SequenceReorder(t *testing.T) {
	oldG := mustParse(t, "sequenceDiagram\n    A->>B: first\n    A->>B: second\n    A->>B: third\n")
	newG := mustParse(t, "sequenceDiagram\n    A->>B: first\n    A->>B: third\n    A->>B: second\n")

	d, err := Compute(oldG, newG, Options{})
	require.NoError(t, err)

	// LCS keeps the stable messages quiet; only the truly reordered
	// one is flagged.
	classes := []diagram.ChangeClass{
		d.Classes.EdgeClass(0),
		d.Classes.EdgeClass(1),
		d.Classes.EdgeClass(2),
	}
	unchanged, changed := 0, 0
	for _, c := range classes {
		switch c {
		case diagram.Unchanged:
			unchanged++
		case diagram.Changed:
			changed++
		}
	}
	assert.Equal(t, 2, unchanged)
	assert.Equal(t, 1, changed)
	assert.Len(t, d.Merged.Edges, 3)
}

func TestCompute_MessageRewrite(t *testing.T) {
	oldG := mustParse(t, "sequenceDiagram\n    A->>B: fetch rows\n")
	newG := mustParse(t, "sequenceDiagram\n    A->>B: fetch rows with retry\n")

	d, err := Compute(oldG, newG, Options{})
	require.NoError(t, err)

	// One message per endpoint pair on each side pairs positionally.
	assert.Equal(t, diagram.Changed, d.Classes.EdgeClass(0))
	assert.Len(t, d.Merged.Edges, 1)
}

func TestCompute_KindMismatch(t *testing.T) {
	oldG := mustParse(t, "flowchart TD\n    A --> B\n")
	newG := mustParse(t, "sequenceDiagram\n    A->>B: x\n")

	_, err := Compute(oldG, newG, Options{})
	assert.ErrorIs(t, err, ErrKindMismatch)
}

func TestCompute_MergedRendersValid(t *testing.T) {
	oldG := mustParse(t, "flowchart TD\n    A[One] --> B[Two]\n    B --> C[Three]\n")
	newG := mustParse(t, "flowchart TD\n    A[One] --> B[Two]\n    A --> D[Four]\n")

	d, err := Compute(oldG, newG, Options{})
	require.NoError(t, err)

	out := d.Render()
	_, err = diagram.Parse(out)
	require.NoError(t, err, "annotated diff must be a valid diagram:\n%s", out)
	assert.Contains(t, out, "class D added")
	assert.Contains(t, out, "class C removed")
}

func TestLCSPairs(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want [][2]int
	}{
		{name: "both empty", a: nil, b: nil, want: nil},
		{name: "identical", a: []string{"x", "y"}, b: []string{"x", "y"}, want: [][2]int{{0, 0}, {1, 1}}},
		{name: "insertion", a: []string{"x", "z"}, b: []string{"x", "y", "z"}, want: [][2]int{{0, 0}, {1, 2}}},
		{name: "disjoint", a: []string{"x"}, b: []string{"y"}, want: [][2]int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lcsPairs(tt.a, tt.b)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
