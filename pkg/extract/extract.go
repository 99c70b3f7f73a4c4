// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

// Package extract implements the Dependency Extractor (spec.md §4.8): the
// three PEP-517 hook phases plus the install-time metadata read, each
// producing a list of requirements tagged with the edge type that
// generated them, with markers evaluated against the current target
// environment.
package extract

import (
	"bufio"
	"context"
	"strings"

	"github.com/fromager-project/fromager/internal/pep508"
	"github.com/fromager-project/fromager/pkg/requirement"
	"github.com/pkg/errors"
)

// Error kinds from spec.md §7 (node-fatal).
var (
	ErrHookInvocation    = errors.New("hook invocation error")
	ErrMetadataUnreadable = errors.New("metadata unreadable")
)

// Hooks is the black-box PEP-517 build-backend contract (spec.md §1: "the
// actual PEP-517 hook invocation inside a build subprocess is treated as a
// black-box builder"). Implementations run inside the prepared build
// environment's subprocess and return raw PEP 508 requirement strings.
type Hooks interface {
	// GetRequiresForBuildWheel runs the backend's hook of the same name.
	GetRequiresForBuildWheel(ctx context.Context, sourceRoot string) ([]string, error)
	// GetRequiresForBuildSdist runs the backend's hook of the same name.
	GetRequiresForBuildSdist(ctx context.Context, sourceRoot string) ([]string, error)
}

// BuildSystemRequires reads [build-system].requires from the (already
// project_override'd) pyproject.toml, falling back to the default
// setuptools provider per spec.md §4.8 when the table is missing.
func BuildSystemRequires(doc map[string]any) ([]string, error) {
	bs, ok := doc["build-system"].(map[string]any)
	if !ok {
		return []string{"setuptools"}, nil
	}
	raw, _ := bs["requires"].([]any)
	if len(raw) == 0 {
		return []string{"setuptools"}, nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// ParseRequiresDist extracts "Requires-Dist:" lines from a wheel METADATA or
// sdist PKG-INFO document (the two share a format; spec.md §4.8 reads from
// whichever is running-mode appropriate).
func ParseRequiresDist(metadata string) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(strings.NewReader(metadata))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break // metadata header ends at the first blank line (payload follows)
		}
		if rest, ok := strings.CutPrefix(line, "Requires-Dist:"); ok {
			out = append(out, strings.TrimSpace(rest))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(ErrMetadataUnreadable, err.Error())
	}
	return out, nil
}

// ParseVersionHeader extracts the "Version:" header from a PKG-INFO/
// METADATA document. The direct-URL acquisition path uses this to learn a
// requirement's real version straight from its source tree, before any
// candidate has ever been resolved for it (spec.md §4.5, §9).
func ParseVersionHeader(metadata string) (string, error) {
	scanner := bufio.NewScanner(strings.NewReader(metadata))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break // metadata header ends at the first blank line
		}
		if rest, ok := strings.CutPrefix(line, "Version:"); ok {
			return strings.TrimSpace(rest), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", errors.Wrap(ErrMetadataUnreadable, err.Error())
	}
	return "", errors.Wrap(ErrMetadataUnreadable, "no Version header found")
}

// Resolved is one requirement extracted during a phase, already parsed and
// marker-filtered.
type Resolved struct {
	Requirement requirement.Requirement
	Satisfied   bool
}

// ResolvePhase parses each raw requirement string as typ and evaluates its
// marker against env/extra; only requirements whose marker is satisfied (or
// absent) become graph edges (spec.md §4.8).
func ResolvePhase(raw []string, typ requirement.Type, env pep508.Environment, extra string) ([]Resolved, error) {
	out := make([]Resolved, 0, len(raw))
	for _, r := range raw {
		req, err := requirement.Parse(r, typ)
		if err != nil {
			return nil, errors.Wrapf(ErrHookInvocation, "parsing requirement %q: %v", r, err)
		}
		ok, err := pep508.Evaluate(req.Marker, env, extra)
		if err != nil {
			return nil, errors.Wrapf(ErrHookInvocation, "evaluating marker in %q: %v", r, err)
		}
		out = append(out, Resolved{Requirement: req, Satisfied: ok})
	}
	return out, nil
}

// RunBuildBackendPhase invokes hooks.GetRequiresForBuildWheel and resolves
// the result as build-backend edges.
func RunBuildBackendPhase(ctx context.Context, hooks Hooks, sourceRoot string, env pep508.Environment, extra string) ([]Resolved, error) {
	raw, err := hooks.GetRequiresForBuildWheel(ctx, sourceRoot)
	if err != nil {
		return nil, errors.Wrap(ErrHookInvocation, err.Error())
	}
	return ResolvePhase(raw, requirement.TypeBuildBackend, env, extra)
}

// RunBuildSdistPhase invokes hooks.GetRequiresForBuildSdist and resolves the
// result as build-sdist edges.
func RunBuildSdistPhase(ctx context.Context, hooks Hooks, sourceRoot string, env pep508.Environment, extra string) ([]Resolved, error) {
	raw, err := hooks.GetRequiresForBuildSdist(ctx, sourceRoot)
	if err != nil {
		return nil, errors.Wrap(ErrHookInvocation, err.Error())
	}
	return ResolvePhase(raw, requirement.TypeBuildSdist, env, extra)
}

// InstallPhase resolves install-time dependencies read either from a built
// wheel's metadata or, in sdist-only mode, from the sdist's PKG-INFO/
// METADATA (spec.md §4.8).
func InstallPhase(metadata string, env pep508.Environment, extra string) ([]Resolved, error) {
	raw, err := ParseRequiresDist(metadata)
	if err != nil {
		return nil, err
	}
	return ResolvePhase(raw, requirement.TypeInstall, env, extra)
}
