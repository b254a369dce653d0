// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package registry loads and validates the workflow registry.
//
// The registry is a YAML document declaring every known workflow: its
// identity, the file patterns that implicate it, and the design-doc
// diagrams that describe it. A loaded Registry is immutable and safe
// for concurrent use.
package registry

import (
	"github.com/driftline/driftline/services/drift/match"
)

// DiagramRef names one mermaid block inside a design document.
type DiagramRef struct {
	// Doc overrides the workflow-level document path when set.
	Doc string `yaml:"doc,omitempty"`
	// Ref selects the block: "#anchor" for an anchored block, "#N"
	// for the Nth mermaid block (1-based). Empty means the first
	// block in the document.
	Ref string `yaml:"ref,omitempty"`
}

// Workflow is one registered workflow.
type Workflow struct {
	ID            string       `yaml:"id" validate:"required"`
	Name          string       `yaml:"name" validate:"required"`
	Description   string       `yaml:"description,omitempty"`
	Input         string       `yaml:"input,omitempty"`
	Output        string       `yaml:"output,omitempty"`
	EntryPoint    string       `yaml:"entry_point,omitempty"`
	RelevantFiles []string     `yaml:"relevant_files" validate:"required,min=1,dive,required"`
	Doc           string       `yaml:"doc,omitempty"`
	Diagrams      []DiagramRef `yaml:"diagrams,omitempty" validate:"dive"`

	// compiled holds the workflow's patterns after a successful load.
	compiled []match.Pattern
}

// Target returns the workflow's compiled pattern set for matching.
func (w *Workflow) Target() match.Target {
	return match.Target{ID: w.ID, Patterns: w.compiled}
}

// DocFor resolves the document path for a diagram reference, falling
// back to the workflow-level doc.
func (w *Workflow) DocFor(ref DiagramRef) string {
	if ref.Doc != "" {
		return ref.Doc
	}
	return w.Doc
}

type registryFile struct {
	Workflows []Workflow `yaml:"workflows" validate:"required,min=1,dive"`
}

// Registry is the loaded, validated workflow set.
type Registry struct {
	workflows []Workflow
	byID      map[string]int
}

// Workflows returns every workflow in declaration order. The returned
// slice must not be mutated.
func (r *Registry) Workflows() []Workflow { return r.workflows }

// ByID looks a workflow up by its identifier.
func (r *Registry) ByID(id string) (*Workflow, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return &r.workflows[idx], true
}

// Targets returns the compiled pattern set of every workflow, in
// declaration order.
func (r *Registry) Targets() []match.Target {
	out := make([]match.Target, len(r.workflows))
	for i := range r.workflows {
		out[i] = r.workflows[i].Target()
	}
	return out
}
