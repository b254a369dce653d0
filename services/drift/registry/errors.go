// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

import (
	"errors"
	"fmt"
)

// ErrNoWorkflows is returned for a registry that declares nothing.
var ErrNoWorkflows = errors.New("registry declares no workflows")

// DuplicateIDError reports two workflows sharing one identifier.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate workflow id %q", e.ID)
}

// WorkflowError attaches the owning workflow to a field-level failure
// so registry errors name the entry that caused them.
type WorkflowError struct {
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("workflow %q: %v", e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error { return e.Err }
