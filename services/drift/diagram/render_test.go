// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reparse asserts that rendered output is itself parseable and
// structurally equivalent to the input graph.
func reparse(t *testing.T, g *Graph, classes ClassMap) *Graph {
	t.Helper()
	out := Render(g, classes)
	parsed, err := Parse(out)
	require.NoError(t, err, "rendered output must parse:\n%s", out)
	return parsed
}

func TestRender_FlowRoundTrip(t *testing.T) {
	text := `flowchart LR
    reg[Registry] --> matcher([Matcher])
    matcher -->|evidence| differ{Differ}
    subgraph output[Output Layer]
        renderer[[Renderer]]
    end
    differ ==> renderer
`
	g, err := Parse(text)
	require.NoError(t, err)

	got := reparse(t, g, ClassMap{})
	assert.Equal(t, g.Kind, got.Kind)
	assert.Equal(t, g.Direction, got.Direction)
	assert.Equal(t, g.Nodes, got.Nodes)
	assert.Equal(t, g.Edges, got.Edges)
	assert.Equal(t, g.Groups, got.Groups)
}

func TestRender_SequenceRoundTrip(t *testing.T) {
	text := `sequenceDiagram
    participant cli as Driftline CLI
    actor user
    user->>cli: analyze
    cli-->>user: report
`
	g, err := Parse(text)
	require.NoError(t, err)

	got := reparse(t, g, ClassMap{})
	assert.Equal(t, g.Nodes, got.Nodes)
	assert.Equal(t, g.Edges, got.Edges)
}

func TestRender_Deterministic(t *testing.T) {
	g, err := Parse("flowchart TD\n    A[One] --> B[Two]\n    B --> C[Three]\n")
	require.NoError(t, err)

	classes := ClassMap{
		Nodes: map[string]ChangeClass{"C": Added},
		Edges: []ChangeClass{Unchanged, Added},
	}
	first := Render(g, classes)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Render(g, classes))
	}
}

func TestRender_FlowAnnotations(t *testing.T) {
	g, err := Parse("flowchart TD\n    A[Keep] --> B[New]\n    A --> gone[Old]\n")
	require.NoError(t, err)

	classes := ClassMap{
		Nodes: map[string]ChangeClass{"B": Added, "gone": Removed},
		Edges: []ChangeClass{Added, Removed},
	}
	out := Render(g, classes)

	assert.Contains(t, out, "classDef added")
	assert.Contains(t, out, "class B added")
	assert.Contains(t, out, "class gone removed")
	assert.Contains(t, out, "linkStyle 0 stroke:"+colorAddedLine)
	assert.Contains(t, out, "linkStyle 1 stroke:"+colorRemovedLine)

	// Removed nodes stay visible inside the dedicated subgraph.
	assert.Contains(t, out, "subgraph "+removedGroupID)
	idx := strings.Index(out, "subgraph "+removedGroupID)
	assert.Contains(t, out[idx:], `gone["Old"]`)
}

func TestRender_EdgeLabelWithPipe(t *testing.T) {
	g := &Graph{
		Kind:  KindFlow,
		Nodes: []Node{{ID: "A", Label: "A"}, {ID: "B", Label: "B"}},
		Edges: []Edge{{From: "A", To: "B", Label: "split|merge"}},
	}

	out := Render(g, ClassMap{})
	assert.Contains(t, out, "|split#124;merge|")

	parsed, err := Parse(out)
	require.NoError(t, err)
	require.Len(t, parsed.Edges, 1)
	assert.Equal(t, "split|merge", parsed.Edges[0].Label)
}

func TestRender_FlowNoAnnotationsWhenUnchanged(t *testing.T) {
	g, err := Parse("flowchart TD\n    A --> B\n")
	require.NoError(t, err)

	out := Render(g, ClassMap{})
	assert.NotContains(t, out, "classDef")
	assert.NotContains(t, out, "linkStyle")
}

func TestRender_SequenceAnnotations(t *testing.T) {
	g, err := Parse("sequenceDiagram\n    A->>B: first\n    A->>B: second\n")
	require.NoError(t, err)

	classes := ClassMap{
		Nodes: map[string]ChangeClass{"B": Changed},
		Edges: []ChangeClass{Added, Removed},
	}
	out := Render(g, classes)

	assert.Contains(t, out, "Note over B: changed")
	assert.Contains(t, out, "rect rgb(211, 249, 216)")
	assert.Contains(t, out, "rect rgb(255, 201, 201)")
	assert.Contains(t, out, "Note over A,B: removed")

	// The annotated output must still be a valid sequence diagram.
	_, err = Parse(out)
	require.NoError(t, err)
}
