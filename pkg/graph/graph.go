// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

// Package graph implements the Dependency Graph Store (spec.md §4.12): a
// typed-edge graph keyed by "name==version", its serialization format, and
// the why/subset/explain-duplicates/to-constraints/to-dot/migrate queries.
package graph

import (
	"fmt"
	"sort"

	"github.com/fromager-project/fromager/internal/pep440"
	"github.com/fromager-project/fromager/pkg/requirement"
	"github.com/pkg/errors"
)

// RootKey is the synthetic ROOT node's key (spec.md §3, §6: "a single ""
// key for ROOT").
const RootKey = ""

// Edge is one outgoing edge from a Node.
type Edge struct {
	TargetKey          string
	RequirementType    requirement.Type
	OriginatingRequirement string // raw requirement string
}

// Node is a Package Node (spec.md §3): keyed by (canonical name, resolved
// version) except for the synthetic ROOT node.
type Node struct {
	Key               string
	CanonicalizedName string
	Version           pep440.Version
	DownloadURL       string
	SourceType        requirement.RetrieveMethod
	Prebuilt          bool
	HasPatches        bool
	HasPlugin         bool
	Edges             []Edge
}

// Key computes the "name==version" key for (name, version), or RootKey
// when name is empty.
func Key(name string, version pep440.Version) string {
	if name == "" {
		return RootKey
	}
	return fmt.Sprintf("%s==%s", name, version.String())
}

// ErrNodeNotFound is returned when an edge targets a key absent from the
// store (a violation of spec.md §3's node-existence invariant, surfaced as
// an error rather than silently tolerated).
var ErrNodeNotFound = errors.New("node not found")

// ErrCyclicBuildDependency is fatal per spec.md §3/§7: any cycle containing
// a non-install edge.
var ErrCyclicBuildDependency = errors.New("cyclic build dependency")

// Graph is the in-memory dependency graph store.
type Graph struct {
	nodes map[string]*Node
}

// New returns an empty graph, pre-seeded with the ROOT node.
func New() *Graph {
	g := &Graph{nodes: map[string]*Node{}}
	g.nodes[RootKey] = &Node{Key: RootKey}
	return g
}

// EnsureNode creates the node for (name, version) if absent, returning the
// (possibly pre-existing) node. Nodes are never deleted during bootstrap
// (spec.md §3 lifecycle).
func (g *Graph) EnsureNode(name string, version pep440.Version) *Node {
	key := Key(name, version)
	if n, ok := g.nodes[key]; ok {
		return n
	}
	n := &Node{Key: key, CanonicalizedName: name, Version: version}
	g.nodes[key] = n
	return n
}

// Node returns the node for key, or nil if absent.
func (g *Graph) Node(key string) *Node { return g.nodes[key] }

// EnsureProvisional creates (or returns) a node at a caller-supplied
// provisional key, used for direct-URL requirements whose real
// (name, version) key is unknown until after acquisition (spec.md §4.5,
// §9: "a placeholder key (<name>@<ref>) is used until metadata is read").
func (g *Graph) EnsureProvisional(key, name string) *Node {
	if n, ok := g.nodes[key]; ok {
		return n
	}
	n := &Node{Key: key, CanonicalizedName: name}
	g.nodes[key] = n
	return n
}

// Rekey moves a node from oldKey to newKey, rewriting every pending edge
// that targets oldKey, atomically under the graph's caller-held lock
// (spec.md §4.5, §9: direct-URL provisional keys).
func (g *Graph) Rekey(oldKey, newKey string) error {
	n, ok := g.nodes[oldKey]
	if !ok {
		return errors.Wrapf(ErrNodeNotFound, "rekey source %q", oldKey)
	}
	n.Key = newKey
	delete(g.nodes, oldKey)
	g.nodes[newKey] = n
	for _, other := range g.nodes {
		for i := range other.Edges {
			if other.Edges[i].TargetKey == oldKey {
				other.Edges[i].TargetKey = newKey
			}
		}
	}
	return nil
}

// AddEdge appends an edge from fromKey to toKey of the given type,
// validating that both endpoints exist (spec.md §3 invariant).
func (g *Graph) AddEdge(fromKey string, edge Edge) error {
	from, ok := g.nodes[fromKey]
	if !ok {
		return errors.Wrapf(ErrNodeNotFound, "edge source %q", fromKey)
	}
	if _, ok := g.nodes[edge.TargetKey]; !ok {
		return errors.Wrapf(ErrNodeNotFound, "edge target %q", edge.TargetKey)
	}
	from.Edges = append(from.Edges, edge)
	return nil
}

// Nodes returns every node, including ROOT, in unspecified order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	return out
}

// VersionsOf returns every node whose CanonicalizedName equals name,
// sorted by version ascending.
func (g *Graph) VersionsOf(name string) []*Node {
	var out []*Node
	for _, n := range g.nodes {
		if n.CanonicalizedName == name {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return pep440.Less(out[i].Version, out[j].Version) })
	return out
}

// CheckCycles walks every edge and reports ErrCyclicBuildDependency if any
// cycle contains a non-install edge (spec.md §3 invariant: "Cycles may
// exist only among install edges").
func (g *Graph) CheckCycles() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.nodes))
	var path []string    // keys on the current DFS path
	var pathBuild []bool // pathBuild[i]: the edge into path[i] is a build edge
	var visit func(key string, viaBuildEdge bool) error
	visit = func(key string, viaBuildEdge bool) error {
		switch color[key] {
		case gray:
			// The cycle runs from key down the path to here, closed by this edge.
			build := viaBuildEdge
			for i := len(path) - 1; i >= 0 && path[i] != key; i-- {
				build = build || pathBuild[i]
			}
			if build {
				return errors.Wrapf(ErrCyclicBuildDependency, "cycle reaches %q via a build edge", key)
			}
			return nil
		case black:
			return nil
		}
		color[key] = gray
		path, pathBuild = append(path, key), append(pathBuild, viaBuildEdge)
		n := g.nodes[key]
		for _, e := range n.Edges {
			if err := visit(e.TargetKey, e.RequirementType.IsBuildEdge()); err != nil {
				return err
			}
		}
		path, pathBuild = path[:len(path)-1], pathBuild[:len(pathBuild)-1]
		color[key] = black
		return nil
	}
	for key := range g.nodes {
		if color[key] == white {
			if err := visit(key, false); err != nil {
				return err
			}
		}
	}
	return nil
}
