// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/driftline/driftline/services/drift/docstore"
	"github.com/driftline/driftline/services/drift/match"
)

// maxRegistrySize caps the registry file at 1 MiB. A registry larger
// than this is almost certainly the wrong file.
const maxRegistrySize = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// Options controls registry loading.
type Options struct {
	// VerifyDocs requires every referenced design document to exist,
	// resolved relative to BaseDir.
	VerifyDocs bool
	// BaseDir resolves relative doc paths. Defaults to the registry
	// file's directory.
	BaseDir string
}

// Load reads, parses, and validates a registry file.
//
// The load is all-or-nothing: a single malformed pattern, duplicate
// workflow ID, or schema violation fails the whole registry so a
// half-usable registry never reaches the analyzer.
func Load(path string, opts Options) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat registry: %w", err)
	}
	if info.Size() > maxRegistrySize {
		return nil, fmt.Errorf("registry %s is %d bytes, exceeds %d byte limit", path, info.Size(), maxRegistrySize)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}

	baseDir := opts.BaseDir
	if baseDir == "" {
		baseDir = filepath.Dir(path)
	}
	return parse(data, baseDir, opts.VerifyDocs)
}

// Parse loads a registry from an in-memory document. Doc existence
// checks are skipped; callers with a workspace use Load.
func Parse(data []byte) (*Registry, error) {
	return parse(data, "", false)
}

func parse(data []byte, baseDir string, verifyDocs bool) (*Registry, error) {
	var file registryFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoWorkflows
		}
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	if len(file.Workflows) == 0 {
		return nil, ErrNoWorkflows
	}

	if err := validate.Struct(&file); err != nil {
		return nil, fmt.Errorf("registry schema: %w", err)
	}

	byID := make(map[string]int, len(file.Workflows))
	for i := range file.Workflows {
		w := &file.Workflows[i]

		if _, dup := byID[w.ID]; dup {
			return nil, &DuplicateIDError{ID: w.ID}
		}
		byID[w.ID] = i

		compiled, err := match.CompileAll(w.RelevantFiles)
		if err != nil {
			return nil, &WorkflowError{WorkflowID: w.ID, Err: err}
		}
		w.compiled = compiled

		if len(w.Diagrams) > 0 && w.Doc == "" {
			for _, d := range w.Diagrams {
				if d.Doc == "" {
					return nil, &WorkflowError{
						WorkflowID: w.ID,
						Err:        errors.New("diagram reference has no document: set doc on the workflow or the diagram"),
					}
				}
			}
		}

		if verifyDocs {
			if err := verifyWorkflowDocs(w, baseDir); err != nil {
				return nil, &WorkflowError{WorkflowID: w.ID, Err: err}
			}
		}
	}

	return &Registry{workflows: file.Workflows, byID: byID}, nil
}

// verifyWorkflowDocs checks that every referenced design document
// exists and that every diagram reference resolves to an addressable
// mermaid block inside it.
func verifyWorkflowDocs(w *Workflow, baseDir string) error {
	resolve := func(doc string) string {
		if filepath.IsAbs(doc) {
			return doc
		}
		return filepath.Join(baseDir, doc)
	}

	seen := make(map[string]bool)
	checkExists := func(doc string) error {
		if doc == "" || seen[doc] {
			return nil
		}
		seen[doc] = true
		if _, err := os.Stat(resolve(doc)); err != nil {
			return fmt.Errorf("design doc %s: %w", doc, err)
		}
		return nil
	}

	if err := checkExists(w.Doc); err != nil {
		return err
	}
	for _, d := range w.Diagrams {
		if err := checkExists(d.Doc); err != nil {
			return err
		}
		ref, err := docstore.ParseRef(d.Ref)
		if err != nil {
			return err
		}
		if err := docstore.Locate(resolve(w.DocFor(d)), ref); err != nil {
			return err
		}
	}
	return nil
}
