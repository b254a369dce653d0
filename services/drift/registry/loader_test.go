// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodRegistry = `workflows:
  - id: lint-pipeline
    name: Lint Pipeline
    description: From driver invocation to emitted diagnostics.
    input: crate source
    output: diagnostics
    entry_point: clippy_lints/src/lib.rs
    relevant_files:
      - clippy_lints/src/
      - tests/ui/**
    doc: docs/lint-pipeline.md
    diagrams:
      - ref: "#overview"
  - id: dev-tooling
    name: Dev Tooling
    relevant_files:
      - clippy_dev/
    doc: docs/dev-tooling.md
`

func TestParse_Good(t *testing.T) {
	reg, err := Parse([]byte(goodRegistry))
	require.NoError(t, err)

	workflows := reg.Workflows()
	require.Len(t, workflows, 2)
	assert.Equal(t, "lint-pipeline", workflows[0].ID)
	assert.Equal(t, "dev-tooling", workflows[1].ID)

	w, ok := reg.ByID("lint-pipeline")
	require.True(t, ok)
	assert.Equal(t, "Lint Pipeline", w.Name)
	assert.Equal(t, "docs/lint-pipeline.md", w.DocFor(w.Diagrams[0]))

	targets := reg.Targets()
	require.Len(t, targets, 2)
	assert.True(t, targets[0].Patterns[0].Match("clippy_lints/src/lib.rs"))

	_, ok = reg.ByID("unknown")
	assert.False(t, ok)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "empty document",
			yaml: "",
		},
		{
			name: "no workflows",
			yaml: "workflows: []\n",
		},
		{
			name: "missing id",
			yaml: "workflows:\n  - name: X\n    relevant_files: [src/]\n",
		},
		{
			name: "missing relevant files",
			yaml: "workflows:\n  - id: x\n    name: X\n",
		},
		{
			name: "duplicate id",
			yaml: "workflows:\n  - id: x\n    name: X\n    relevant_files: [a/]\n  - id: x\n    name: Y\n    relevant_files: [b/]\n",
		},
		{
			name: "unknown field",
			yaml: "workflows:\n  - id: x\n    name: X\n    relevant_files: [a/]\n    bogus: true\n",
		},
		{
			name: "diagram without doc",
			yaml: "workflows:\n  - id: x\n    name: X\n    relevant_files: [a/]\n    diagrams:\n      - ref: \"#1\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParse_BadPatternFailsWholeLoad(t *testing.T) {
	yaml := `workflows:
  - id: ok-workflow
    name: OK
    relevant_files:
      - src/
  - id: broken-workflow
    name: Broken
    relevant_files:
      - "src/[unclosed"
`
	_, err := Parse([]byte(yaml))
	require.Error(t, err)

	var werr *WorkflowError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "broken-workflow", werr.WorkflowID)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(goodRegistry), 0o644))

	_, err := Load(path, Options{})
	require.NoError(t, err)

	// Doc verification fails until the referenced docs exist.
	_, err = Load(path, Options{VerifyDocs: true})
	require.Error(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs", "dev-tooling.md"), []byte("# doc\n"), 0o644))

	// The doc must exist and the #overview block must resolve.
	withoutBlock := "# Lint Pipeline\n\nprose only\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs", "lint-pipeline.md"), []byte(withoutBlock), 0o644))
	_, err = Load(path, Options{VerifyDocs: true})
	require.Error(t, err)

	withBlock := "# Lint Pipeline\n\n```mermaid {#overview}\nflowchart TD\n    A --> B\n```\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs", "lint-pipeline.md"), []byte(withBlock), 0o644))
	_, err = Load(path, Options{VerifyDocs: true})
	require.NoError(t, err)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), Options{})
	assert.Error(t, err)
}
