// Copyright (C) 2025 Driftline Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftline/driftline/services/drift/registry"
)

func newRegistryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect and validate the workflow registry",
	}
	cmd.AddCommand(newRegistryValidateCmd())
	return cmd
}

func newRegistryValidateCmd() *cobra.Command {
	var (
		registryPath string
		workspace    string
		verifyDocs   bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the registry schema, patterns, and doc references",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.Load(registryPath, registry.Options{
				VerifyDocs: verifyDocs,
				BaseDir:    workspace,
			})
			if err != nil {
				return err
			}

			workflows := reg.Workflows()
			fmt.Fprintf(os.Stdout, "registry OK: %d workflow(s)\n", len(workflows))
			for _, w := range workflows {
				fmt.Fprintf(os.Stdout, "  %-24s %d pattern(s), %d diagram(s)\n",
					w.ID, len(w.RelevantFiles), len(w.Diagrams))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&registryPath, "registry", "", "workflow registry YAML file (required)")
	cmd.Flags().StringVar(&workspace, "workspace", ".", "repository root for doc existence checks")
	cmd.Flags().BoolVar(&verifyDocs, "verify-docs", false, "require every referenced design doc to exist")
	cmd.MarkFlagRequired("registry")

	return cmd
}
