// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

// Package requirement defines the graph-facing Requirement, RequirementType,
// and Candidate types from spec.md §3.
package requirement

import (
	"github.com/fromager-project/fromager/internal/pep440"
	"github.com/fromager-project/fromager/internal/pep508"
	"github.com/pkg/errors"
)

// Type tags the origin of a graph edge.
type Type string

const (
	// TypeToplevel indicates the requirement originated from user input.
	TypeToplevel Type = "toplevel"
	// TypeBuildSystem indicates [build-system].requires.
	TypeBuildSystem Type = "build-system"
	// TypeBuildBackend indicates get_requires_for_build_wheel.
	TypeBuildBackend Type = "build-backend"
	// TypeBuildSdist indicates get_requires_for_build_sdist.
	TypeBuildSdist Type = "build-sdist"
	// TypeInstall indicates built-wheel Requires-Dist.
	TypeInstall Type = "install"
)

// IsBuildEdge reports whether edges of this type must be satisfied before
// the depending package's own build (spec.md §3).
func (t Type) IsBuildEdge() bool {
	switch t {
	case TypeBuildSystem, TypeBuildBackend, TypeBuildSdist:
		return true
	default:
		return false
	}
}

// RetrieveMethod is how a Candidate's artifact is obtained.
type RetrieveMethod string

const (
	MethodTarball       RetrieveMethod = "tarball"
	MethodGitHTTPS       RetrieveMethod = "git+https"
	MethodGitSSH         RetrieveMethod = "git+ssh"
	MethodPrebuiltWheel RetrieveMethod = "prebuilt-wheel"
)

// Requirement wraps a parsed PEP 508 requirement plus the edge-type tag
// spec.md §3 attaches to every graph edge. Only toplevel/CLI/constraints
// requirements may carry a non-nil Direct URL (enforced by callers, not by
// this type, since the parser itself is edge-type agnostic).
type Requirement struct {
	pep508.Requirement
	Type Type
}

// Parse parses a raw requirement string and tags it with typ.
func Parse(raw string, typ Type) (Requirement, error) {
	r, err := pep508.Parse(raw)
	if err != nil {
		return Requirement{}, err
	}
	if r.Direct != nil && typ != TypeToplevel {
		return Requirement{}, errors.Errorf("direct-URL requirement %q is only permitted at toplevel", raw)
	}
	return Requirement{Requirement: r, Type: typ}, nil
}

// Candidate is a single resolvable source for a requirement: a concrete
// (name, version) pair plus how and from where to retrieve it.
type Candidate struct {
	Name           string
	Version        pep440.Version
	RetrieveURL    string
	RetrieveMethod RetrieveMethod
}
