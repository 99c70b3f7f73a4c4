// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

// Package resolve implements the Resolver Provider Registry (spec.md §4.5):
// pluggable backends that, given a requirement, yield descending-version
// candidate lists, and the tie-break logic that picks the highest satisfying
// candidate.
package resolve

import (
	"context"
	"sort"

	"github.com/fromager-project/fromager/internal/pep440"
	"github.com/fromager-project/fromager/pkg/requirement"
	"github.com/pkg/errors"
)

// ErrNoMatchingCandidate is raised when a provider's candidate list has no
// entry satisfying the requirement and constraints (spec.md §4.13, fatal-F
// per §7).
var ErrNoMatchingCandidate = errors.New("no matching candidate")

// Options controls how a Provider enumerates candidates.
type Options struct {
	IncludeSdists   bool
	IncludeWheels   bool
	ServerURL       string
	AllowPrerelease bool
}

// Provider yields candidates for a requirement in descending version order.
// Implementations must only yield pre-release candidates when opts or the
// requirement itself admits them (spec.md §4.5).
type Provider interface {
	Name() string
	Resolve(ctx context.Context, req requirement.Requirement, opts Options) ([]requirement.Candidate, error)
}

// ConstraintChecker answers whether a version is allowed, e.g. a
// constraints.Store.
type ConstraintChecker interface {
	Allowed(name string, version pep440.Version) bool
}

// Registry maps a provider name to its implementation.
type Registry struct {
	providers map[string]Provider
	def       string
}

// NewRegistry builds a Registry with def as the provider used when a
// package's settings do not name one.
func NewRegistry(def string, providers ...Provider) *Registry {
	r := &Registry{providers: map[string]Provider{}, def: def}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Provider looks up a provider by name, falling back to the registry's
// default when name is empty.
func (r *Registry) Provider(name string) (Provider, error) {
	if name == "" {
		name = r.def
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, errors.Errorf("unknown resolver provider %q", name)
	}
	return p, nil
}

// Select calls provider.Resolve and picks the highest-ordered candidate
// that satisfies both req's specifier set and constraints, honoring
// pre-release admission rules from spec.md §4.5: a pre-release is returned
// only if req's specifier set explicitly admits one, or opts.AllowPrerelease
// is set (pkg/assemble sets it when a constraint on the name references a
// pre-release). Select does not ask constraints about pre-releases itself.
func Select(ctx context.Context, p Provider, req requirement.Requirement, constraints ConstraintChecker, opts Options) (requirement.Candidate, error) {
	allowPre := opts.AllowPrerelease || req.AdmitsPrerelease()
	opts.AllowPrerelease = allowPre
	candidates, err := p.Resolve(ctx, req.Requirement, opts)
	if err != nil {
		return requirement.Candidate{}, errors.Wrapf(err, "resolving %s", req.Name)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return pep440.Less(candidates[j].Version, candidates[i].Version) // descending
	})
	var considered []string
	for _, c := range candidates {
		considered = append(considered, c.Version.String())
		if c.Version.IsPrerelease() && !allowPre {
			continue
		}
		if !req.Satisfies(c.Version, allowPre) {
			continue
		}
		if constraints != nil && !constraints.Allowed(req.Name, c.Version) {
			continue
		}
		return c, nil
	}
	return requirement.Candidate{}, errors.Wrapf(ErrNoMatchingCandidate, "%s: considered %v", req.RawRequirement, considered)
}
