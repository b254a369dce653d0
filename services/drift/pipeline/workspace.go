// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Workspace is the repository root an analysis run operates in. Design
// documents are resolved relative to it and may never escape it.
type Workspace struct {
	ID   uuid.UUID
	Root string
}

// NewWorkspace validates root and assigns the workspace a run-unique
// identity.
func NewWorkspace(root string) (Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Workspace{}, fmt.Errorf("resolve workspace root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Workspace{}, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return Workspace{}, fmt.Errorf("workspace root %s is not a directory", abs)
	}
	return Workspace{ID: uuid.New(), Root: abs}, nil
}

// Resolve maps a repo-relative path into the workspace, rejecting
// absolute paths and traversal outside the root.
func (w Workspace) Resolve(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("path %q must be workspace-relative", rel)
	}
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("path %q escapes the workspace", rel)
	}
	return filepath.Join(w.Root, rel), nil
}
