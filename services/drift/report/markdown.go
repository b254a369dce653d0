// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package report

import (
	"fmt"
	"io"
	"strings"
)

// WriteMarkdown emits the report as a human-readable summary suitable
// for pasting into a PR description.
func (r *Report) WriteMarkdown(w io.Writer) error {
	var sb strings.Builder

	sb.WriteString("# Change Impact Report\n\n")
	fmt.Fprintf(&sb, "Run `%s` at %s\n\n", r.RunID, r.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))
	if r.DryRun {
		sb.WriteString("**Dry run: no documents were modified.**\n\n")
	}

	impacted := r.Impacted()
	fmt.Fprintf(&sb, "%d changed file(s), %d affected workflow(s), %d document(s) updated.\n\n",
		len(r.ChangedFiles), len(impacted), r.Updated())

	if len(impacted) == 0 {
		sb.WriteString("No registered workflow is affected by this changeset.\n\n")
	}

	for _, e := range impacted {
		name := e.WorkflowName
		if name == "" {
			name = e.WorkflowID
		}
		fmt.Fprintf(&sb, "## %s (`%s`)\n\n", name, e.WorkflowID)
		fmt.Fprintf(&sb, "- Status: %s\n- Outcome: %s\n", e.Status, e.Outcome)
		if e.Reason != "" {
			fmt.Fprintf(&sb, "- Reason: %s\n", e.Reason)
		}
		if e.Doc != "" {
			fmt.Fprintf(&sb, "- Document: `%s` (%s)\n", e.Doc, e.Ref)
		}
		if e.Stats != nil {
			fmt.Fprintf(&sb, "- Nodes: +%d ~%d -%d, Edges: +%d ~%d -%d\n",
				e.Stats.NodesAdded, e.Stats.NodesChanged, e.Stats.NodesRemoved,
				e.Stats.EdgesAdded, e.Stats.EdgesChanged, e.Stats.EdgesRemoved)
		}

		sb.WriteString("\nMatched by:\n\n")
		for _, ev := range e.Evidence {
			fmt.Fprintf(&sb, "- `%s`: %s\n", ev.Pattern, strings.Join(ev.Files, ", "))
		}
		sb.WriteString("\n")

		if e.Diagram != "" {
			sb.WriteString("```mermaid\n")
			sb.WriteString(strings.TrimRight(e.Diagram, "\n"))
			sb.WriteString("\n```\n\n")
		}
	}

	// Unmatched workflows are listed explicitly so absence from the
	// sections above is never read as "no impact".
	unaffected := make([]string, 0)
	for _, e := range r.Entries {
		if e.Outcome == OutcomeNotAffected {
			unaffected = append(unaffected, "`"+e.WorkflowID+"`")
		}
	}
	if len(unaffected) > 0 {
		fmt.Fprintf(&sb, "Not affected: %s.\n", strings.Join(unaffected, ", "))
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
