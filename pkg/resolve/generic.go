// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package resolve

import (
	"context"

	"github.com/fromager-project/fromager/pkg/requirement"
)

// VersionSource is a caller-supplied callable yielding every candidate
// version for a package, used by GenericProvider (spec.md §4.5).
type VersionSource func(ctx context.Context, name string) ([]requirement.Candidate, error)

// GenericProvider wraps a caller-supplied version iterator so packages that
// need a bespoke resolution scheme (an internal index, a static list) can
// still participate in the registry.
type GenericProvider struct {
	Source VersionSource
}

func (p GenericProvider) Name() string { return "generic" }

func (p GenericProvider) Resolve(ctx context.Context, req requirement.Requirement, opts Options) ([]requirement.Candidate, error) {
	return p.Source(ctx, req.Name)
}

var _ Provider = GenericProvider{}
