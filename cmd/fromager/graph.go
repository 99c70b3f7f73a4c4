// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fromager-project/fromager/pkg/graph"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func graphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Query and transform a graph.json produced by bootstrap",
	}
	cmd.AddCommand(
		whyCmd(),
		subsetCmd(),
		explainDuplicatesCmd(),
		toConstraintsCmd(),
		toDotCmd(),
		migrateCmd(),
	)
	return cmd
}

func loadGraphFile(path string) (*graph.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	g := graph.New()
	if err := json.Unmarshal(data, g); err != nil {
		return nil, errors.Wrap(err, "parsing graph.json")
	}
	return g, nil
}

func whyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "why GRAPH_FILE NAME==VERSION",
		Short: "Print every dependency path from the root to a package",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraphFile(args[0])
			if err != nil {
				return err
			}
			for _, p := range g.Why(args[1]) {
				fmt.Fprintln(cmd.OutOrStdout(), joinPath(p))
			}
			return nil
		},
	}
}

func joinPath(p graph.Path) string {
	out := ""
	for i, k := range p {
		if i > 0 {
			out += " -> "
		}
		out += k
	}
	return out
}

func subsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "subset GRAPH_FILE NAME==VERSION...",
		Short: "Print the subgraph reachable from the given roots",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraphFile(args[0])
			if err != nil {
				return err
			}
			sub := g.Subset(args[1:])
			data, err := json.MarshalIndent(sub, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func explainDuplicatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explain-duplicates GRAPH_FILE",
		Short: "List names resolved to more than one version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraphFile(args[0])
			if err != nil {
				return err
			}
			for _, d := range g.ExplainDuplicates() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", d.Name, d.Versions)
			}
			return nil
		},
	}
}

func toConstraintsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "to-constraints GRAPH_FILE",
		Short: "Emit a pip-style constraints.txt pinning every resolved version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraphFile(args[0])
			if err != nil {
				return err
			}
			return g.ToConstraints(cmd.OutOrStdout())
		},
	}
}

func toDotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "to-dot GRAPH_FILE",
		Short: "Emit a Graphviz rendering of the dependency graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraphFile(args[0])
			if err != nil {
				return err
			}
			return g.ToDot(cmd.OutOrStdout())
		},
	}
}

func migrateCmd() *cobra.Command {
	var renames map[string]string
	cmd := &cobra.Command{
		Use:   "migrate GRAPH_FILE OLD_NAME=NEW_NAME...",
		Short: "Rewrite canonical package names across the graph",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraphFile(args[0])
			if err != nil {
				return err
			}
			renames = map[string]string{}
			for _, pair := range args[1:] {
				k, v, ok := splitOnce(pair, '=')
				if !ok {
					return errors.Errorf("expected OLD=NEW, got %q", pair)
				}
				renames[k] = v
			}
			if err := g.Migrate(func(name string) (string, bool) {
				n, ok := renames[name]
				return n, ok
			}); err != nil {
				return err
			}
			data, err := json.MarshalIndent(g, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	return cmd
}

func splitOnce(s string, sep byte) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}
