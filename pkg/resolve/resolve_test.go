// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package resolve

import (
	"context"
	"testing"

	"github.com/fromager-project/fromager/internal/pep440"
	"github.com/fromager-project/fromager/pkg/requirement"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	candidates []requirement.Candidate
}

func (f fakeProvider) Name() string { return "fake" }
func (f fakeProvider) Resolve(ctx context.Context, req requirement.Requirement, opts Options) ([]requirement.Candidate, error) {
	return f.candidates, nil
}

func mustReq(t *testing.T, s string) requirement.Requirement {
	t.Helper()
	r, err := requirement.Parse(s, requirement.TypeInstall)
	require.NoError(t, err)
	return r
}

func candidate(name, version string) requirement.Candidate {
	return requirement.Candidate{Name: name, Version: pep440.MustParse(version), RetrieveMethod: requirement.MethodTarball}
}

func TestSelectPicksHighestNonPrerelease(t *testing.T) {
	p := fakeProvider{candidates: []requirement.Candidate{
		candidate("stevedore", "5.2.0"),
		candidate("stevedore", "5.1.0"),
		candidate("stevedore", "6.0.0a1"),
	}}
	c, err := Select(context.Background(), p, mustReq(t, "stevedore"), nil, Options{})
	require.NoError(t, err)
	require.Equal(t, "5.2.0", c.Version.String())
}

func TestSelectScenarioBPrereleaseViaConstraint(t *testing.T) {
	p := fakeProvider{candidates: []requirement.Candidate{
		candidate("flit-core", "2.0.0"),
		candidate("flit-core", "2.0rc3"),
	}}
	fakeConstraints := allowOnly{version: "2.0rc3"}
	c, err := Select(context.Background(), p, mustReq(t, "flit_core<2.0.1"), fakeConstraints, Options{AllowPrerelease: true})
	require.NoError(t, err)
	require.Equal(t, "2.0rc3", c.Version.String())
}

type allowOnly struct{ version string }

func (a allowOnly) Allowed(name string, v pep440.Version) bool { return v.String() == a.version }

func TestSelectNoMatchingCandidate(t *testing.T) {
	p := fakeProvider{candidates: []requirement.Candidate{candidate("foo", "1.0.0")}}
	_, err := Select(context.Background(), p, mustReq(t, "foo>=2.0"), nil, Options{})
	require.ErrorIs(t, err, ErrNoMatchingCandidate)
}
