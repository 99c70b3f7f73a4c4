// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"encoding/json"
	"sort"

	"github.com/fromager-project/fromager/internal/pep440"
	"github.com/fromager-project/fromager/pkg/requirement"
	"github.com/pkg/errors"
)

// wireEdge and wireNode mirror spec.md §6's graph.json shape: a flat object
// keyed by node key, each value carrying its own edges with explicit
// target keys, so the file round-trips byte-for-byte when nothing changed
// (spec.md §8 testable property 4, idempotence).
type wireEdge struct {
	Key             string `json:"key"`
	RequirementType string `json:"req_type"`
	Requirement     string `json:"req"`
}

type wireNode struct {
	Name        string     `json:"name,omitempty"`
	Version     string     `json:"version,omitempty"`
	DownloadURL string     `json:"download_url,omitempty"`
	SourceType  string     `json:"source_type,omitempty"`
	Prebuilt    bool       `json:"prebuilt,omitempty"`
	HasPatches  bool       `json:"has_patches,omitempty"`
	HasPlugin   bool       `json:"has_plugin,omitempty"`
	Edges       []wireEdge `json:"edges"`
}

// MarshalJSON renders the graph in spec.md §6's stable, sorted form: nodes
// sorted by key, and each node's edges sorted by (target key, req type) so
// two runs over identical inputs produce byte-identical graph.json files.
func (g *Graph) MarshalJSON() ([]byte, error) {
	out := make(map[string]wireNode, len(g.nodes))
	for key, n := range g.nodes {
		edges := make([]wireEdge, 0, len(n.Edges))
		for _, e := range n.Edges {
			edges = append(edges, wireEdge{
				Key:             e.TargetKey,
				RequirementType: string(e.RequirementType),
				Requirement:     e.OriginatingRequirement,
			})
		}
		sort.Slice(edges, func(i, j int) bool {
			if edges[i].Key != edges[j].Key {
				return edges[i].Key < edges[j].Key
			}
			return edges[i].RequirementType < edges[j].RequirementType
		})
		version := ""
		if key != RootKey {
			version = n.Version.String()
		}
		out[key] = wireNode{
			Name:        n.CanonicalizedName,
			Version:     version,
			DownloadURL: n.DownloadURL,
			SourceType:  string(n.SourceType),
			Prebuilt:    n.Prebuilt,
			HasPatches:  n.HasPatches,
			HasPlugin:   n.HasPlugin,
			Edges:       edges,
		}
	}
	return json.MarshalIndent(out, "", "  ")
}

// UnmarshalJSON reconstructs a Graph from a previously-written graph.json,
// used by the repeatable-build layer to load the prior run's graph
// (spec.md §4.13's "previous" input).
func (g *Graph) UnmarshalJSON(data []byte) error {
	var raw map[string]wireNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "parsing graph.json")
	}
	g.nodes = make(map[string]*Node, len(raw))
	for key, wn := range raw {
		n := &Node{
			Key:               key,
			CanonicalizedName: wn.Name,
			DownloadURL:       wn.DownloadURL,
			SourceType:        requirement.RetrieveMethod(wn.SourceType),
			Prebuilt:          wn.Prebuilt,
			HasPatches:        wn.HasPatches,
			HasPlugin:         wn.HasPlugin,
		}
		if wn.Version != "" {
			v, err := pep440.Parse(wn.Version)
			if err != nil {
				return errors.Wrapf(err, "parsing version for node %q", key)
			}
			n.Version = v
		}
		g.nodes[key] = n
	}
	for key, wn := range raw {
		n := g.nodes[key]
		for _, we := range wn.Edges {
			n.Edges = append(n.Edges, Edge{
				TargetKey:              we.Key,
				RequirementType:        requirement.Type(we.RequirementType),
				OriginatingRequirement: we.Requirement,
			})
		}
	}
	return nil
}
