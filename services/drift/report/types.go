// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package report assembles the per-run impact report: one entry per
// registered workflow, the evidence that implicated it, and what
// happened to its diagrams. Workflows the changeset never touched get
// an explicit not-affected entry rather than being omitted.
package report

import (
	"time"

	"github.com/driftline/driftline/services/drift/diffing"
	"github.com/driftline/driftline/services/drift/match"
)

// Status is the validation verdict for one workflow's diagram.
type Status string

const (
	// StatusValidated means the rendered diff passed the syntax checker.
	StatusValidated Status = "validated"
	// StatusFailed means validation was exhausted without success.
	StatusFailed Status = "failed"
	// StatusSkipped means no diagram work was attempted.
	StatusSkipped Status = "skipped"
)

// Outcome is what happened to the workflow's design document.
type Outcome string

const (
	// OutcomeUpdated means the design doc was rewritten.
	OutcomeUpdated Outcome = "updated"
	// OutcomeUnchanged means the diagram was already current.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeManualReview means the doc was left untouched and needs
	// a human.
	OutcomeManualReview Outcome = "failed-manual-review"
	// OutcomeSkipped means no proposal existed for the workflow.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeNotAffected means no changed file matched the workflow's
	// patterns.
	OutcomeNotAffected Outcome = "not-affected"
)

// Entry is one workflow's result.
type Entry struct {
	WorkflowID   string           `json:"workflow_id"`
	WorkflowName string           `json:"workflow_name,omitempty"`
	Evidence     []match.Evidence `json:"evidence"`
	Doc          string           `json:"doc,omitempty"`
	Ref          string           `json:"ref,omitempty"`
	Stats        *diffing.Stats   `json:"stats,omitempty"`
	Diagram      string           `json:"diagram,omitempty"`
	Status       Status           `json:"status"`
	Outcome      Outcome          `json:"outcome"`
	Reason       string           `json:"reason,omitempty"`
}

// Report is the full result of one analysis run. Entries follow
// registry declaration order.
type Report struct {
	RunID        string    `json:"run_id"`
	GeneratedAt  time.Time `json:"generated_at"`
	Workspace    string    `json:"workspace,omitempty"`
	ChangedFiles []string  `json:"changed_files"`
	DryRun       bool      `json:"dry_run,omitempty"`
	Entries      []Entry   `json:"entries"`
}

// Impacted returns the entries whose workflow matched the changeset.
func (r *Report) Impacted() []Entry {
	out := make([]Entry, 0, len(r.Entries))
	for _, e := range r.Entries {
		if e.Outcome != OutcomeNotAffected {
			out = append(out, e)
		}
	}
	return out
}

// Affected reports whether any workflow matched the changeset.
func (r *Report) Affected() bool { return len(r.Impacted()) > 0 }

// HasFailures reports whether any entry needs manual review.
func (r *Report) HasFailures() bool {
	for _, e := range r.Entries {
		if e.Outcome == OutcomeManualReview {
			return true
		}
	}
	return false
}

// Updated counts entries whose design doc was rewritten.
func (r *Report) Updated() int {
	n := 0
	for _, e := range r.Entries {
		if e.Outcome == OutcomeUpdated {
			n++
		}
	}
	return n
}
