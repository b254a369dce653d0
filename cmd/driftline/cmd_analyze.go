// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/driftline/driftline/services/drift/diagram"
	"github.com/driftline/driftline/services/drift/docstore"
	"github.com/driftline/driftline/services/drift/lock"
	"github.com/driftline/driftline/services/drift/pipeline"
	"github.com/driftline/driftline/services/drift/registry"
	"github.com/driftline/driftline/services/drift/report"
	"github.com/driftline/driftline/services/drift/validate"
)

type analyzeFlags struct {
	registryPath   string
	workspace      string
	files          []string
	diffPath       string
	proposalsDir   string
	checkerURL     string
	outPath        string
	asJSON         bool
	asMarkdown     bool
	flagUnproposed bool
	dryRun         bool
	concurrency    int
}

func newAnalyzeCmd() *cobra.Command {
	var flags analyzeFlags

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a changeset and update affected workflow diagrams",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.registryPath, "registry", "", "workflow registry YAML file (required)")
	cmd.Flags().StringVar(&flags.workspace, "workspace", ".", "repository root the design docs live in")
	cmd.Flags().StringSliceVar(&flags.files, "files", nil, "changed file paths (repeatable, comma-separated)")
	cmd.Flags().StringVar(&flags.diffPath, "diff", "", "unified diff file to extract changed paths from, '-' for stdin")
	cmd.Flags().StringVar(&flags.proposalsDir, "proposals", "", "directory of proposed diagrams, one <workflow-id>.mmd per workflow")
	cmd.Flags().StringVar(&flags.checkerURL, "checker-url", "", "mermaid syntax checker endpoint (built-in structural check when empty)")
	cmd.Flags().StringVar(&flags.outPath, "out", "", "write the report to this file instead of stdout")
	cmd.Flags().BoolVar(&flags.asJSON, "json", false, "emit the report as JSON")
	cmd.Flags().BoolVar(&flags.asMarkdown, "markdown", false, "emit the report as markdown (default)")
	cmd.Flags().BoolVar(&flags.flagUnproposed, "flag-unproposed", false, "treat affected workflows without a proposal as manual-review findings")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "run the full pipeline without writing any document")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "parallel workflow units (0 = default)")
	cmd.MarkFlagRequired("registry")

	return cmd
}

func runAnalyze(ctx context.Context, flags analyzeFlags) error {
	reg, err := registry.Load(flags.registryPath, registry.Options{})
	if err != nil {
		return err
	}

	changes, err := buildChangeSet(flags)
	if err != nil {
		return err
	}
	if changes.Empty() {
		return fmt.Errorf("no changed files: pass --files or --diff")
	}

	ws, err := pipeline.NewWorkspace(flags.workspace)
	if err != nil {
		return err
	}

	proposals, err := loadProposals(flags.proposalsDir)
	if err != nil {
		return err
	}

	locks := lock.NewManager(lock.WithManagerLogger(appLog))
	defer locks.Close()

	validator := validate.NewValidator(newChecker(flags.checkerURL), validate.WithLogger(appLog))
	analyzer := pipeline.NewAnalyzer(validator, docstore.NewStore(locks, appLog), appLog)

	rep, runErr := analyzer.Run(ctx, pipeline.Request{
		Registry:       reg,
		Changes:        changes,
		Workspace:      ws,
		Proposals:      proposals,
		FlagUnproposed: flags.flagUnproposed,
		DryRun:         flags.dryRun,
		Concurrency:    flags.concurrency,
	})

	// A run-fatal failure still yields the partial report for the
	// workflows that completed; emit it before surfacing the error.
	if rep != nil {
		if err := emitReport(rep, flags); err != nil && runErr == nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}

	if rep.HasFailures() {
		n := 0
		for _, e := range rep.Entries {
			if e.Outcome == report.OutcomeManualReview {
				n++
			}
		}
		return &manualReviewError{count: n}
	}
	return nil
}

func buildChangeSet(flags analyzeFlags) (pipeline.ChangeSet, error) {
	if flags.diffPath != "" {
		var r io.Reader
		if flags.diffPath == "-" {
			r = os.Stdin
		} else {
			f, err := os.Open(flags.diffPath)
			if err != nil {
				return pipeline.ChangeSet{}, fmt.Errorf("open diff: %w", err)
			}
			defer f.Close()
			r = f
		}
		changes, err := pipeline.FromUnifiedDiff(r)
		if err != nil {
			return pipeline.ChangeSet{}, err
		}
		if len(flags.files) > 0 {
			changes = pipeline.FromPaths(append(changes.Paths(), flags.files...))
		}
		return changes, nil
	}
	return pipeline.FromPaths(flags.files), nil
}

// loadProposals reads one proposed diagram per workflow from
// <workflow-id>.mmd files.
func loadProposals(dir string) (map[string]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read proposals dir: %w", err)
	}

	proposals := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".mmd") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read proposal %s: %w", e.Name(), err)
		}
		id := strings.TrimSuffix(e.Name(), ".mmd")
		proposals[id] = string(data)
	}
	return proposals, nil
}

// newChecker returns the external checker client, or the built-in
// structural check when no endpoint is configured.
func newChecker(url string) validate.SyntaxChecker {
	if url != "" {
		return validate.NewHTTPChecker(url)
	}
	return validate.CheckerFunc(func(ctx context.Context, text string) error {
		if _, err := diagram.Parse(text); err != nil {
			return &validate.CheckError{Message: err.Error()}
		}
		return nil
	})
}

func emitReport(rep *report.Report, flags analyzeFlags) error {
	var w io.Writer = os.Stdout
	if flags.outPath != "" {
		f, err := os.Create(flags.outPath)
		if err != nil {
			return fmt.Errorf("create report file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if flags.asJSON && !flags.asMarkdown {
		return rep.WriteJSON(w)
	}
	return rep.WriteMarkdown(w)
}
