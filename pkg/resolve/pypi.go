// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package resolve

import (
	"context"

	"github.com/fromager-project/fromager/internal/pep440"
	"github.com/fromager-project/fromager/pkg/registry/pypi"
	"github.com/fromager-project/fromager/pkg/requirement"
	"github.com/pkg/errors"
)

// PyPIProvider resolves candidates from a PEP-503 simple index (pypi.org by
// default, or the settings-configured alternate index/server URL).
type PyPIProvider struct {
	Registry pypi.Registry
}

func (p PyPIProvider) Name() string { return "pypi" }

// Resolve lists the simple-index page for req.Name and turns each entry
// that parses as a wheel or sdist into a Candidate.
func (p PyPIProvider) Resolve(ctx context.Context, req requirement.Requirement, opts Options) ([]requirement.Candidate, error) {
	reg := p.Registry
	if opts.ServerURL != "" {
		reg.BaseURL = opts.ServerURL
	}
	links, err := reg.Project(ctx, req.Name)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", req.Name)
	}
	var out []requirement.Candidate
	for _, l := range links {
		if pypi.IsWheel(l.Filename) && !opts.IncludeWheels {
			continue
		}
		if pypi.IsSdist(l.Filename) && !opts.IncludeSdists {
			continue
		}
		if !pypi.IsWheel(l.Filename) && !pypi.IsSdist(l.Filename) {
			continue
		}
		parsed, err := pypi.ParseFilename(l.Filename)
		if err != nil {
			continue
		}
		v, err := pep440.Parse(parsed.Version)
		if err != nil {
			continue
		}
		url, err := pypi.ResolveHref(reg.BaseURL, l.Href)
		if err != nil {
			continue
		}
		method := requirement.MethodTarball
		if parsed.IsWheel {
			method = requirement.MethodPrebuiltWheel
		}
		out = append(out, requirement.Candidate{
			Name:           parsed.Name,
			Version:        v,
			RetrieveURL:    url,
			RetrieveMethod: method,
		})
	}
	return out, nil
}

var _ Provider = PyPIProvider{}
