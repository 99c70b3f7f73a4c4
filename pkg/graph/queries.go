// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Path is a chain of node keys from ROOT to a target node, as returned by
// Why.
type Path []string

// Why returns every path from ROOT to targetKey, reporting how a package
// entered the graph (spec.md §4.12 `graph why`).
func (g *Graph) Why(targetKey string) []Path {
	var paths []Path
	var walk func(key string, trail Path, seen map[string]bool)
	walk = func(key string, trail Path, seen map[string]bool) {
		trail = append(trail, key)
		if key == targetKey && len(trail) > 1 {
			cp := make(Path, len(trail))
			copy(cp, trail)
			paths = append(paths, cp)
		}
		if seen[key] {
			return
		}
		seen = cloneSeen(seen, key)
		for _, e := range g.nodes[key].Edges {
			walk(e.TargetKey, trail, seen)
		}
	}
	walk(RootKey, nil, map[string]bool{})
	return paths
}

func cloneSeen(seen map[string]bool, key string) map[string]bool {
	out := make(map[string]bool, len(seen)+1)
	for k := range seen {
		out[k] = true
	}
	out[key] = true
	return out
}

// Subset returns the induced subgraph reachable from roots (spec.md §4.12
// `graph subset`), including every node those roots transitively depend on.
func (g *Graph) Subset(roots []string) *Graph {
	out := New()
	visited := map[string]bool{RootKey: true}
	var visit func(key string)
	visit = func(key string) {
		if visited[key] {
			return
		}
		visited[key] = true
		src := g.nodes[key]
		if src == nil {
			return
		}
		if _, ok := out.nodes[key]; !ok {
			cp := *src
			cp.Edges = nil
			out.nodes[key] = &cp
		}
		for _, e := range src.Edges {
			if _, ok := out.nodes[e.TargetKey]; !ok {
				if t := g.nodes[e.TargetKey]; t != nil {
					tc := *t
					tc.Edges = nil
					out.nodes[e.TargetKey] = &tc
				}
			}
			out.nodes[key].Edges = append(out.nodes[key].Edges, e)
			visit(e.TargetKey)
		}
	}
	for _, r := range roots {
		if _, ok := out.nodes[r]; !ok {
			if src := g.nodes[r]; src != nil {
				cp := *src
				cp.Edges = nil
				out.nodes[r] = &cp
			}
		}
		if err := out.AddEdge(RootKey, Edge{TargetKey: r, RequirementType: "toplevel"}); err != nil {
			// root itself absent from g; skip silently, subset is best effort
			continue
		}
		visit(r)
	}
	return out
}

// Duplicate describes one canonicalized name resolved to more than one
// version within the graph.
type Duplicate struct {
	Name     string
	Versions []string
}

// ExplainDuplicates reports every name with more than one resolved version
// (spec.md §4.12 `graph explain-duplicates`), sorted by name.
func (g *Graph) ExplainDuplicates() []Duplicate {
	byName := map[string]map[string]bool{}
	for key, n := range g.nodes {
		if key == RootKey {
			continue
		}
		if byName[n.CanonicalizedName] == nil {
			byName[n.CanonicalizedName] = map[string]bool{}
		}
		byName[n.CanonicalizedName][n.Version.String()] = true
	}
	var out []Duplicate
	for name, versions := range byName {
		if len(versions) <= 1 {
			continue
		}
		vs := make([]string, 0, len(versions))
		for v := range versions {
			vs = append(vs, v)
		}
		sort.Strings(vs)
		out = append(out, Duplicate{Name: name, Versions: vs})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ToConstraints renders a pip-style constraints.txt pinning every resolved
// package to its single version, or erroring if ExplainDuplicates is
// non-empty (spec.md §4.12 `graph to-constraints`, §7 ConstraintConflict).
func (g *Graph) ToConstraints(w io.Writer) error {
	dups := g.ExplainDuplicates()
	if len(dups) > 0 {
		names := make([]string, len(dups))
		for i, d := range dups {
			names[i] = d.Name
		}
		return fmt.Errorf("cannot emit constraints: duplicate resolutions for %s", strings.Join(names, ", "))
	}
	names := make([]string, 0, len(g.nodes))
	for key, n := range g.nodes {
		if key == RootKey {
			continue
		}
		names = append(names, n.CanonicalizedName)
	}
	sort.Strings(names)
	byName := map[string]*Node{}
	for _, n := range g.nodes {
		if n.CanonicalizedName != "" {
			byName[n.CanonicalizedName] = n
		}
	}
	for _, name := range names {
		fmt.Fprintf(w, "%s==%s\n", name, byName[name].Version.String())
	}
	return nil
}

// ToDot renders the graph in Graphviz dot format for visual inspection
// (spec.md §4.12 `graph to-dot`).
func (g *Graph) ToDot(w io.Writer) error {
	fmt.Fprintln(w, "digraph fromager {")
	keys := make([]string, 0, len(g.nodes))
	for key := range g.nodes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		n := g.nodes[key]
		label := key
		if label == RootKey {
			label = "ROOT"
		}
		edges := append([]Edge(nil), n.Edges...)
		sort.Slice(edges, func(i, j int) bool { return edges[i].TargetKey < edges[j].TargetKey })
		for _, e := range edges {
			target := e.TargetKey
			if target == RootKey {
				target = "ROOT"
			}
			fmt.Fprintf(w, "  %q -> %q [label=%q];\n", label, target, e.RequirementType)
		}
	}
	fmt.Fprintln(w, "}")
	return nil
}

// MigrateKeyFunc remaps a node's canonical name to a new name, for
// `graph migrate`'s override-rename support (spec.md §4.12).
type MigrateKeyFunc func(name string) (newName string, ok bool)

// Migrate rewrites every node whose name matches fn's rename, updating keys
// and all edges that reference them.
func (g *Graph) Migrate(fn MigrateKeyFunc) error {
	renames := map[string]string{}
	for key, n := range g.nodes {
		if key == RootKey {
			continue
		}
		if newName, ok := fn(n.CanonicalizedName); ok && newName != n.CanonicalizedName {
			n.CanonicalizedName = newName
			renames[key] = Key(newName, n.Version)
		}
	}
	for oldKey, newKey := range renames {
		if err := g.Rekey(oldKey, newKey); err != nil {
			return err
		}
	}
	return nil
}
