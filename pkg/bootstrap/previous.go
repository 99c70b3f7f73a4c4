// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"encoding/json"
	"os"

	"github.com/fromager-project/fromager/pkg/constraints"
	"github.com/fromager-project/fromager/pkg/graph"
	"github.com/fromager-project/fromager/pkg/requirement"
	"github.com/pkg/errors"
)

// Previous wraps a prior run's graph.json for the repeatable-build layer
// (spec.md §4.13: "before calling the resolver for a requirement, the
// Orchestrator checks whether the prior graph contains a version for that
// name satisfying the current requirement and constraints").
type Previous struct {
	Graph       *graph.Graph
	Constraints *constraints.Store
}

// LoadPrevious reads a previously-written graph.json from path.
func LoadPrevious(path string, cs *constraints.Store) (*Previous, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading previous graph %s", path)
	}
	g := graph.New()
	if err := json.Unmarshal(data, g); err != nil {
		return nil, errors.Wrap(err, "parsing previous graph")
	}
	return &Previous{Graph: g, Constraints: cs}, nil
}

// Compatible reports whether the prior graph fixes a version for req's
// canonical name that still satisfies req and any active constraints.
func (p *Previous) Compatible(req requirement.Requirement) (requirement.Candidate, bool) {
	for _, n := range p.Graph.VersionsOf(req.Name) {
		if !req.Satisfies(n.Version, req.AdmitsPrerelease()) {
			continue
		}
		if p.Constraints != nil && !p.Constraints.Allowed(req.Name, n.Version) {
			continue
		}
		return requirement.Candidate{
			Name:           n.CanonicalizedName,
			Version:        n.Version,
			RetrieveURL:    n.DownloadURL,
			RetrieveMethod: n.SourceType,
		}, true
	}
	return requirement.Candidate{}, false
}
