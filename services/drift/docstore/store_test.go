// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package docstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/driftline/services/drift/lock"
)

const sampleDoc = `# Lint Pipeline

Some prose.

` + "```mermaid {#overview}" + `
flowchart TD
    A[Driver] --> B[Lint Pass]
` + "```" + `

More prose.

` + "```mermaid" + `
sequenceDiagram
    A->>B: run
` + "```" + `
`

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "design.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	m := lock.NewManager()
	t.Cleanup(func() { m.Close() })
	return NewStore(m, nil)
}

func TestParseRef(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    BlockRef
		wantErr bool
	}{
		{name: "empty means first", in: "", want: BlockRef{Ordinal: 1}},
		{name: "ordinal", in: "#2", want: BlockRef{Ordinal: 2}},
		{name: "anchor", in: "#overview", want: BlockRef{Anchor: "overview"}},
		{name: "missing hash", in: "overview", wantErr: true},
		{name: "bare hash", in: "#", wantErr: true},
		{name: "zero ordinal", in: "#0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRef(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStore_Load(t *testing.T) {
	path := writeDoc(t, sampleDoc)
	store := newTestStore(t)

	byAnchor, err := store.Load(path, BlockRef{Anchor: "overview"})
	require.NoError(t, err)
	assert.Contains(t, byAnchor, "A[Driver] --> B[Lint Pass]")

	byOrdinal, err := store.Load(path, BlockRef{Ordinal: 2})
	require.NoError(t, err)
	assert.Contains(t, byOrdinal, "sequenceDiagram")

	first, err := store.Load(path, BlockRef{})
	require.NoError(t, err)
	assert.Equal(t, byAnchor, first)
}

func TestStore_LoadNotFound(t *testing.T) {
	path := writeDoc(t, sampleDoc)
	store := newTestStore(t)

	_, err := store.Load(path, BlockRef{Anchor: "missing"})
	var notFound *BlockNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "#missing", notFound.Ref.String())

	_, err = store.Load(path, BlockRef{Ordinal: 5})
	require.ErrorAs(t, err, &notFound)
}

func TestStore_Persist(t *testing.T) {
	path := writeDoc(t, sampleDoc)
	store := newTestStore(t)
	ctx := context.Background()

	newDiagram := "flowchart TD\n    A[Driver] --> B[Lint Pass]\n    B --> C[Report]\n"
	wrote, err := store.Persist(ctx, path, BlockRef{Anchor: "overview"}, newDiagram)
	require.NoError(t, err)
	assert.True(t, wrote)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "B --> C[Report]")
	// Surrounding prose and the other block are untouched.
	assert.Contains(t, content, "Some prose.")
	assert.Contains(t, content, "More prose.")
	assert.Contains(t, content, "A->>B: run")

	got, err := store.Load(path, BlockRef{Anchor: "overview"})
	require.NoError(t, err)
	assert.Equal(t, "flowchart TD\n    A[Driver] --> B[Lint Pass]\n    B --> C[Report]", got)
}

func TestStore_PersistIdempotent(t *testing.T) {
	path := writeDoc(t, sampleDoc)
	store := newTestStore(t)
	ctx := context.Background()

	newDiagram := "flowchart TD\n    X[Only] --> Y[Pair]\n"
	wrote, err := store.Persist(ctx, path, BlockRef{Anchor: "overview"}, newDiagram)
	require.NoError(t, err)
	require.True(t, wrote)

	before, err := os.Stat(path)
	require.NoError(t, err)

	wrote, err = store.Persist(ctx, path, BlockRef{Anchor: "overview"}, newDiagram)
	require.NoError(t, err)
	assert.False(t, wrote)

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestStore_PersistNotFound(t *testing.T) {
	path := writeDoc(t, sampleDoc)
	store := newTestStore(t)

	_, err := store.Persist(context.Background(), path, BlockRef{Anchor: "nope"}, "flowchart TD\n    A\n")
	var notFound *BlockNotFoundError
	require.ErrorAs(t, err, &notFound)

	// The failed persist must leave the document byte-identical.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleDoc, string(data))
}

func TestFindBlocks_UnclosedFence(t *testing.T) {
	doc := "intro\n```mermaid\nflowchart TD\n    A --> B\n"
	blocks := findBlocks(splitLines(doc))
	assert.Empty(t, blocks)

	doc = "```mermaid\nA\n```\n```mermaid\nnever closed\n"
	blocks = findBlocks(splitLines(doc))
	assert.Len(t, blocks, 1)
}
