// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fromager-project/fromager/internal/pep440"
	"github.com/fromager-project/fromager/internal/pep508"
	"github.com/fromager-project/fromager/pkg/buildenv"
	"github.com/fromager-project/fromager/pkg/graph"
	"github.com/fromager-project/fromager/pkg/requirement"
	"github.com/fromager-project/fromager/pkg/settings"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// fakeComponents implements every Orchestrator seam over an in-memory
// fixture. versions/buildSystemDeps/installDeps are keyed by canonical
// name; directVersions maps a direct-URL ref to the version its acquired
// tree's metadata reports.
type fakeComponents struct {
	versions        map[string]string
	buildSystemDeps map[string][]string
	installDeps     map[string][]string
	directVersions  map[string]string
	cache           map[string]bool
}

func (f *fakeComponents) Resolve(ctx context.Context, req requirement.Requirement, eff settings.Effective) (requirement.Candidate, error) {
	if v, ok := exactPin(req); ok {
		return requirement.Candidate{Name: req.Name, Version: v, RetrieveMethod: requirement.MethodTarball}, nil
	}
	verStr, ok := f.versions[req.Name]
	if !ok {
		return requirement.Candidate{}, errors.Errorf("no fake version for %q", req.Name)
	}
	v, err := pep440.Parse(verStr)
	if err != nil {
		return requirement.Candidate{}, err
	}
	return requirement.Candidate{Name: req.Name, Version: v, RetrieveMethod: requirement.MethodTarball}, nil
}

// exactPin reports whether req's specifier set is a single "==" pin, the
// only shape the fake resolver needs to distinguish two requirements for
// the same canonical name (e.g. under --skip-constraints).
func exactPin(req requirement.Requirement) (pep440.Version, bool) {
	if len(req.SpecifierSet) != 1 || req.SpecifierSet[0].Op != pep440.OpEqual || req.SpecifierSet[0].Prefix {
		return pep440.Version{}, false
	}
	return req.SpecifierSet[0].Version, true
}

func (f *fakeComponents) Acquire(ctx context.Context, c requirement.Candidate, eff settings.Effective) (string, error) {
	return "/src/" + c.Name, nil
}

func (f *fakeComponents) AcquireDirect(ctx context.Context, d *pep508.DirectURL, name string, eff settings.Effective) (string, error) {
	return "/src/" + name + "@" + d.Ref, nil
}

func (f *fakeComponents) Prepare(sourceRoot, name string, version pep440.Version, eff settings.Effective) error {
	return nil
}

func (f *fakeComponents) BuildSystemRequires(ctx context.Context, sourceRoot string) ([]string, error) {
	for name, deps := range f.buildSystemDeps {
		if sourceRoot == "/src/"+name {
			return deps, nil
		}
	}
	return nil, nil
}

func (f *fakeComponents) BuildBackendRequires(ctx context.Context, sourceRoot string, env *buildenv.Environment) ([]string, []string, error) {
	return nil, nil, nil
}

func (f *fakeComponents) InstallRequires(ctx context.Context, artifactPath string) ([]string, error) {
	for name, deps := range f.installDeps {
		if artifactPath == "/src/"+name+".whl" {
			return deps, nil
		}
	}
	return nil, nil
}

func (f *fakeComponents) SourceVersion(ctx context.Context, sourceRoot string) (pep440.Version, error) {
	ref := sourceRoot
	if i := strings.LastIndex(sourceRoot, "@"); i >= 0 {
		ref = sourceRoot[i+1:]
	}
	verStr, ok := f.directVersions[ref]
	if !ok {
		return pep440.Version{}, errors.Errorf("no fake direct version for %q", sourceRoot)
	}
	return pep440.Parse(verStr)
}

func (f *fakeComponents) Build(ctx context.Context, root string, reqs []string) (*buildenv.Environment, error) {
	return &buildenv.Environment{Root: root}, nil
}

func (f *fakeComponents) BuildSdist(ctx context.Context, sourceRoot string, eff settings.Effective) (string, error) {
	return sourceRoot + ".tar.gz", nil
}

func (f *fakeComponents) BuildWheel(ctx context.Context, sourceRoot string, eff settings.Effective, buildTag int) (string, error) {
	return sourceRoot + ".whl", nil
}

func (f *fakeComponents) HasFingerprint(cacheKey string) (string, bool) { return "", false }

func (f *fakeComponents) AddArtifact(path string) (string, error) { return path, nil }

func newOrchestrator(t *testing.T, f *fakeComponents) *Orchestrator {
	t.Helper()
	st, err := settings.Load("", "")
	require.NoError(t, err)
	return &Orchestrator{
		Settings:   st,
		Resolver:   f,
		Acquirer:   f,
		Patcher:    f,
		Extractor:  f,
		EnvBuilder: f,
		Builder:    f,
		Cache:      f,
		Graph:      graph.New(),
	}
}

func TestBootstrapRecursesBuildSystemDeps(t *testing.T) {
	f := &fakeComponents{
		versions:        map[string]string{"a": "1.0", "b": "2.0"},
		buildSystemDeps: map[string][]string{"a": {"b"}},
	}
	o := newOrchestrator(t, f)

	req, err := requirement.Parse("a", requirement.TypeToplevel)
	require.NoError(t, err)

	wc := WorkContext{Context: context.Background(), Environment: pep508.Environment{}}
	err = o.Bootstrap(wc, []requirement.Requirement{req})
	require.NoError(t, err)

	aKey := graph.Key("a", mustV(t, "1.0"))
	bKey := graph.Key("b", mustV(t, "2.0"))
	require.NotNil(t, o.Graph.Node(aKey))
	require.NotNil(t, o.Graph.Node(bKey))

	order, err := o.BuildOrder()
	require.NoError(t, err)
	require.Equal(t, []string{bKey, aKey}, order)
}

// TestBootstrapInstallCycleDoesNotDeadlock covers spec.md §9's "install-
// time dependency cycles are common... naturally harmless": a installs b,
// b installs a. Before the ancestor-stack fix, b's recursion back into a
// would block forever on a's done channel.
func TestBootstrapInstallCycleDoesNotDeadlock(t *testing.T) {
	f := &fakeComponents{
		versions:    map[string]string{"a": "1.0", "b": "2.0"},
		installDeps: map[string][]string{"a": {"b"}, "b": {"a"}},
	}
	o := newOrchestrator(t, f)

	req, err := requirement.Parse("a", requirement.TypeToplevel)
	require.NoError(t, err)

	wc := WorkContext{Context: context.Background(), Environment: pep508.Environment{}}
	done := make(chan error, 1)
	go func() { done <- o.Bootstrap(wc, []requirement.Requirement{req}) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-timeoutChan(t):
		t.Fatal("Bootstrap deadlocked on a mutual install-time cycle")
	}

	aKey := graph.Key("a", mustV(t, "1.0"))
	bKey := graph.Key("b", mustV(t, "2.0"))
	require.NotNil(t, o.Graph.Node(aKey))
	require.NotNil(t, o.Graph.Node(bKey))
}

// TestBootstrapBuildCycleIsFatal confirms a build-edge cycle (a's build
// system requires b, b's build system requires a) still fails fast rather
// than deadlocking or being silently treated as harmless (spec.md §3: only
// install-edge cycles are tolerated).
func TestBootstrapBuildCycleIsFatal(t *testing.T) {
	f := &fakeComponents{
		versions:        map[string]string{"a": "1.0", "b": "2.0"},
		buildSystemDeps: map[string][]string{"a": {"b"}, "b": {"a"}},
	}
	o := newOrchestrator(t, f)

	req, err := requirement.Parse("a", requirement.TypeToplevel)
	require.NoError(t, err)

	wc := WorkContext{Context: context.Background(), Environment: pep508.Environment{}}
	done := make(chan error, 1)
	go func() { done <- o.Bootstrap(wc, []requirement.Requirement{req}) }()

	select {
	case err := <-done:
		require.Error(t, err)
		require.ErrorIs(t, err, ErrCyclicBuildDependency)
	case <-timeoutChan(t):
		t.Fatal("Bootstrap deadlocked on a mutual build-system cycle instead of failing fast")
	}
}

// TestSkipConstraintsAllowsMultipleVersions covers spec.md §8 Scenario C:
// two toplevel requirements pinning different versions of the same
// canonical name both succeed under --skip-constraints, producing two
// distinct graph nodes.
func TestSkipConstraintsAllowsMultipleVersions(t *testing.T) {
	f := &fakeComponents{versions: map[string]string{}}
	o := newOrchestrator(t, f)
	o.SkipConstraints = true

	req1, err := requirement.Parse("django==3.2.0", requirement.TypeToplevel)
	require.NoError(t, err)
	req2, err := requirement.Parse("django==4.0.0", requirement.TypeToplevel)
	require.NoError(t, err)

	wc := WorkContext{Context: context.Background(), Environment: pep508.Environment{}}
	err = o.Bootstrap(wc, []requirement.Requirement{req1, req2})
	require.NoError(t, err)

	require.NotNil(t, o.Graph.Node(graph.Key("django", mustV(t, "3.2.0"))))
	require.NotNil(t, o.Graph.Node(graph.Key("django", mustV(t, "4.0.0"))))
}

// TestSkipConstraintsOffStillRejectsConflicts confirms the default
// (non-skip) behavior is unchanged: a second incompatible requirement for
// an already-resolved canonical name is a fatal constraint conflict.
func TestSkipConstraintsOffStillRejectsConflicts(t *testing.T) {
	f := &fakeComponents{versions: map[string]string{}}
	o := newOrchestrator(t, f)

	req1, err := requirement.Parse("django==3.2.0", requirement.TypeToplevel)
	require.NoError(t, err)
	req2, err := requirement.Parse("django==4.0.0", requirement.TypeToplevel)
	require.NoError(t, err)

	wc := WorkContext{Context: context.Background(), Environment: pep508.Environment{}}
	err = o.Bootstrap(wc, []requirement.Requirement{req1, req2})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrConstraintConflict)
}

// TestBootstrapDirectURLBypassesResolverAndRekeys covers spec.md §4.5/§9:
// a toplevel direct-URL requirement never reaches Resolver.Resolve, and the
// node it produces ends up keyed by the version read from its acquired
// tree's metadata rather than any provisional placeholder.
func TestBootstrapDirectURLBypassesResolverAndRekeys(t *testing.T) {
	f := &fakeComponents{
		directVersions: map[string]string{"v9.9.9": "9.9.9"},
	}
	o := newOrchestrator(t, f)

	req, err := requirement.Parse("stevedore @ git+https://example.com/stevedore @ v9.9.9", requirement.TypeToplevel)
	require.NoError(t, err)
	require.NotNil(t, req.Direct)

	wc := WorkContext{Context: context.Background(), Environment: pep508.Environment{}}
	err = o.Bootstrap(wc, []requirement.Requirement{req})
	require.NoError(t, err)

	finalKey := graph.Key("stevedore", mustV(t, "9.9.9"))
	node := o.Graph.Node(finalKey)
	require.NotNil(t, node, "node should be rekeyed to its real name==version key")
	require.Nil(t, o.Graph.Node("stevedore@v9.9.9"), "provisional key should no longer resolve to a node")

	rootEdges := o.Graph.Node(graph.RootKey).Edges
	require.Len(t, rootEdges, 1)
	require.Equal(t, finalKey, rootEdges[0].TargetKey)
}

func timeoutChan(t *testing.T) <-chan struct{} {
	t.Helper()
	ch := make(chan struct{})
	go func() {
		// generous enough to never legitimately fire against this
		// package's purely in-memory fakes; only a real deadlock trips it.
		<-time.After(5 * time.Second)
		close(ch)
	}()
	return ch
}

func mustV(t *testing.T, s string) pep440.Version {
	t.Helper()
	v, err := pep440.Parse(s)
	require.NoError(t, err)
	return v
}
