// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command driftline analyzes the impact of a code changeset on the
// registered workflow diagrams and keeps design documents in sync.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftline/driftline/pkg/logging"
)

// Exit codes. Manual-review findings are distinguished from tool
// failures so CI can treat them as a soft gate.
const (
	exitOK           = 0
	exitError        = 1
	exitManualReview = 2
)

var (
	flagLogLevel string
	flagLogDir   string
	flagQuiet    bool

	appLog *logging.Logger
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "driftline",
		Short:         "Change-impact analysis for workflow architecture diagrams",
		Long:          "driftline matches a changeset against the workflow registry, diffs each affected workflow's architecture diagram against a proposed replacement, and persists validated updates into the design documents.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			appLog = logging.New(logging.Config{
				Level:   logging.ParseLevel(flagLogLevel),
				LogDir:  flagLogDir,
				Service: "driftline",
				Quiet:   flagQuiet,
			})
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if appLog != nil {
				appLog.Close()
			}
		},
	}

	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogDir, "log-dir", "", "directory for JSON log files (disabled when empty)")
	root.PersistentFlags().BoolVar(&flagQuiet, "quiet", false, "suppress console logging")

	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newRegistryCmd())
	root.AddCommand(newRenderCmd())
	return root
}

// manualReviewError signals findings that need a human; it maps to
// exit code 2 instead of 1.
type manualReviewError struct {
	count int
}

func (e *manualReviewError) Error() string {
	return fmt.Sprintf("%d workflow(s) need manual review", e.count)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if mr, ok := err.(*manualReviewError); ok {
			fmt.Fprintln(os.Stderr, "driftline:", mr.Error())
			os.Exit(exitManualReview)
		}
		fmt.Fprintln(os.Stderr, "driftline:", err)
		os.Exit(exitError)
	}
	os.Exit(exitOK)
}
