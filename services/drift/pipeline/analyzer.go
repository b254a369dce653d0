// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/driftline/driftline/pkg/logging"
	"github.com/driftline/driftline/services/drift/diagram"
	"github.com/driftline/driftline/services/drift/diffing"
	"github.com/driftline/driftline/services/drift/docstore"
	"github.com/driftline/driftline/services/drift/match"
	"github.com/driftline/driftline/services/drift/registry"
	"github.com/driftline/driftline/services/drift/report"
	"github.com/driftline/driftline/services/drift/validate"
)

// defaultConcurrency bounds parallel workflow units per run.
const defaultConcurrency = 4

// Request describes one analysis run.
type Request struct {
	Registry  *registry.Registry
	Changes   ChangeSet
	Workspace Workspace

	// Proposals maps workflow ID to the proposed replacement diagram
	// text for that workflow's primary diagram.
	Proposals map[string]string

	// IDMaps optionally maps old node IDs to new ones per workflow,
	// so renames classify as Changed instead of Removed plus Added.
	IDMaps map[string]map[string]string

	// FlagUnproposed escalates affected workflows that lack a
	// proposal to manual review instead of skipping them.
	FlagUnproposed bool

	// DryRun runs the full pipeline, validation included, without
	// touching any document.
	DryRun bool

	// Concurrency bounds parallel workflow units. Zero means the
	// default.
	Concurrency int
}

// Analyzer executes analysis runs.
//
// Thread Safety: safe for concurrent use once constructed.
type Analyzer struct {
	validator *validate.Validator
	store     *docstore.Store
	log       *logging.Logger
}

// NewAnalyzer builds an analyzer over the given validator and doc
// store.
func NewAnalyzer(validator *validate.Validator, store *docstore.Store, log *logging.Logger) *Analyzer {
	if log == nil {
		log = logging.Default()
	}
	return &Analyzer{validator: validator, store: store, log: log}
}

// Run executes one analysis run.
//
// Every registered workflow receives an entry: unmatched workflows are
// reported not-affected rather than omitted. Affected units run in
// parallel but the report is assembled in registry declaration order,
// so identical inputs always produce an identically ordered report.
//
// A unit failure that says nothing about the diagram itself (document
// IO, checker unreachable) aborts the run; the report completed so far
// is returned alongside the error, since entries for earlier workflows
// remain valid. Diagram-level failures become manual-review entries and
// never stop sibling units.
func (a *Analyzer) Run(ctx context.Context, req Request) (*report.Report, error) {
	if req.Registry == nil {
		return nil, errors.New("analysis request has no registry")
	}

	start := time.Now()
	runsTotal.Inc()
	defer func() { runDuration.Observe(time.Since(start).Seconds()) }()

	rep := &report.Report{
		RunID:        uuid.NewString(),
		GeneratedAt:  start.UTC(),
		Workspace:    req.Workspace.Root,
		ChangedFiles: req.Changes.Paths(),
		DryRun:       req.DryRun,
	}

	evidence := match.Match(req.Changes.Paths(), req.Registry.Targets())
	byWorkflow := make(map[string][]match.Evidence)
	for _, ev := range evidence {
		byWorkflow[ev.WorkflowID] = append(byWorkflow[ev.WorkflowID], ev)
	}
	affected := match.AffectedIDs(evidence)
	workflowsAffected.Add(float64(len(affected)))

	a.log.Info("changeset matched",
		"run_id", rep.RunID,
		"changed_files", req.Changes.Len(),
		"affected_workflows", len(affected))

	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	workflows := req.Registry.Workflows()
	entries := make([]report.Entry, len(workflows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i := range workflows {
		w := &workflows[i]
		ev := byWorkflow[w.ID]
		if len(ev) == 0 {
			entries[i] = report.Entry{
				WorkflowID:   w.ID,
				WorkflowName: w.Name,
				Status:       report.StatusSkipped,
				Outcome:      report.OutcomeNotAffected,
				Reason:       "no changed file matched",
			}
			continue
		}
		i := i
		g.Go(func() error {
			entry, err := a.runUnit(gctx, req, w, ev)
			if err != nil {
				return fmt.Errorf("workflow %s: %w", w.ID, err)
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Keep the entries that finished; units cut short by the
		// failure are still zero-valued.
		done := make([]report.Entry, 0, len(entries))
		for _, e := range entries {
			if e.WorkflowID != "" {
				done = append(done, e)
			}
		}
		rep.Entries = done
		return rep, err
	}

	rep.Entries = entries
	return rep, nil
}

// runUnit analyzes one affected workflow. The returned error is
// run-fatal; every diagram-level failure is reported in the entry
// instead.
func (a *Analyzer) runUnit(ctx context.Context, req Request, w *registry.Workflow, evidence []match.Evidence) (report.Entry, error) {
	entry := report.Entry{
		WorkflowID:   w.ID,
		WorkflowName: w.Name,
		Evidence:     evidence,
	}

	manualReview := func(status report.Status, reason string) (report.Entry, error) {
		entry.Status = status
		entry.Outcome = report.OutcomeManualReview
		entry.Reason = reason
		a.log.Warn("workflow needs manual review", "workflow", w.ID, "reason", reason)
		return entry, nil
	}

	proposal, hasProposal := req.Proposals[w.ID]
	if !hasProposal {
		if req.FlagUnproposed {
			return manualReview(report.StatusSkipped, "changeset matched but no diagram was proposed")
		}
		entry.Status = report.StatusSkipped
		entry.Outcome = report.OutcomeSkipped
		entry.Reason = "no diagram proposed"
		return entry, nil
	}

	ref, doc, err := primaryDiagram(w)
	if err != nil {
		return manualReview(report.StatusSkipped, err.Error())
	}
	entry.Doc = doc
	entry.Ref = ref.String()

	docPath, err := req.Workspace.Resolve(doc)
	if err != nil {
		return report.Entry{}, err
	}

	oldText, err := a.store.Load(docPath, ref)
	if err != nil {
		var notFound *docstore.BlockNotFoundError
		if errors.As(err, &notFound) {
			return manualReview(report.StatusSkipped, err.Error())
		}
		return report.Entry{}, err
	}

	// An empty block is a diagram being written for the first time;
	// every proposed element diffs as Added.
	var oldGraph *diagram.Graph
	if strings.TrimSpace(oldText) != "" {
		oldGraph, err = diagram.Parse(oldText)
		if err != nil {
			return manualReview(report.StatusSkipped, fmt.Sprintf("current diagram unparseable: %v", err))
		}
		// The stored block may be an annotated diff from an earlier
		// run. Its removed elements are history, not live structure;
		// diffing against them would re-flag a settled change and break
		// rerun idempotence.
		oldGraph = diagram.StripMarkup(oldGraph)
	}
	newGraph, err := diagram.Parse(proposal)
	if err != nil {
		return manualReview(report.StatusSkipped, fmt.Sprintf("proposed diagram unparseable: %v", err))
	}

	d, err := diffing.Compute(oldGraph, newGraph, diffing.Options{IDMap: req.IDMaps[w.ID]})
	if err != nil {
		return manualReview(report.StatusSkipped, err.Error())
	}
	stats := d.Stats()
	entry.Stats = &stats

	if d.Empty() {
		entry.Status = report.StatusSkipped
		entry.Outcome = report.OutcomeUnchanged
		entry.Reason = "proposed diagram is structurally identical"
		return entry, nil
	}

	validated, err := a.validator.Validate(ctx, d.Render())
	if err != nil {
		var invalid *validate.ValidationError
		if errors.As(err, &invalid) {
			validationFailures.Inc()
			return manualReview(report.StatusFailed, err.Error())
		}
		return report.Entry{}, err
	}
	entry.Status = report.StatusValidated
	entry.Diagram = validated

	if req.DryRun {
		entry.Outcome = report.OutcomeUpdated
		entry.Reason = "dry run, document not written"
		return entry, nil
	}

	wrote, err := a.store.Persist(ctx, docPath, ref, validated)
	if err != nil {
		return report.Entry{}, err
	}
	if wrote {
		docsUpdated.Inc()
		entry.Outcome = report.OutcomeUpdated
	} else {
		entry.Outcome = report.OutcomeUnchanged
	}
	return entry, nil
}

// primaryDiagram resolves the workflow's first diagram reference.
func primaryDiagram(w *registry.Workflow) (docstore.BlockRef, string, error) {
	var raw registry.DiagramRef
	if len(w.Diagrams) > 0 {
		raw = w.Diagrams[0]
	}
	doc := w.DocFor(raw)
	if doc == "" {
		return docstore.BlockRef{}, "", fmt.Errorf("workflow %s declares no design document", w.ID)
	}
	ref, err := docstore.ParseRef(raw.Ref)
	if err != nil {
		return docstore.BlockRef{}, "", err
	}
	return ref, doc, nil
}

// RunBatch executes several runs sequentially, each against its own
// workspace. A run failure aborts the batch and returns the reports
// completed so far, the failed run's partial report included.
func (a *Analyzer) RunBatch(ctx context.Context, reqs []Request) ([]*report.Report, error) {
	reports := make([]*report.Report, 0, len(reqs))
	for i, req := range reqs {
		rep, err := a.Run(ctx, req)
		if rep != nil {
			reports = append(reports, rep)
		}
		if err != nil {
			return reports, fmt.Errorf("batch run %d: %w", i, err)
		}
	}
	return reports, nil
}
