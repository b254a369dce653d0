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
	"strings"

	"github.com/spf13/cobra"

	"github.com/driftline/driftline/services/drift/diagram"
	"github.com/driftline/driftline/services/drift/diffing"
)

func newRenderCmd() *cobra.Command {
	var (
		oldPath string
		newPath string
		idMap   []string
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Diff two diagram files and print the annotated result",
		RunE: func(cmd *cobra.Command, args []string) error {
			oldGraph, err := parseFile(oldPath)
			if err != nil {
				return err
			}
			newGraph, err := parseFile(newPath)
			if err != nil {
				return err
			}

			mapping, err := parseIDMap(idMap)
			if err != nil {
				return err
			}

			d, err := diffing.Compute(oldGraph, newGraph, diffing.Options{IDMap: mapping})
			if err != nil {
				return err
			}

			stats := d.Stats()
			appLog.Info("diagram diff computed",
				"nodes_added", stats.NodesAdded,
				"nodes_changed", stats.NodesChanged,
				"nodes_removed", stats.NodesRemoved,
				"edges_added", stats.EdgesAdded,
				"edges_changed", stats.EdgesChanged,
				"edges_removed", stats.EdgesRemoved)

			fmt.Fprint(os.Stdout, d.Render())
			return nil
		},
	}

	cmd.Flags().StringVar(&oldPath, "old", "", "current diagram file (empty for a new diagram)")
	cmd.Flags().StringVar(&newPath, "new", "", "proposed diagram file (empty for a deleted diagram)")
	cmd.Flags().StringSliceVar(&idMap, "id-map", nil, "old=new node ID mappings for renamed nodes")

	return cmd
}

func parseFile(path string) (*diagram.Graph, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read diagram: %w", err)
	}
	g, err := diagram.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

func parseIDMap(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		oldID, newID, ok := strings.Cut(pair, "=")
		if !ok || oldID == "" || newID == "" {
			return nil, fmt.Errorf("id-map entry %q must be old=new", pair)
		}
		out[oldID] = newID
	}
	return out, nil
}
