// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"bytes"
	"testing"

	"github.com/fromager-project/fromager/internal/pep440"
	"github.com/fromager-project/fromager/pkg/requirement"
	"github.com/stretchr/testify/require"
)

func mustVersion(t *testing.T, s string) pep440.Version {
	t.Helper()
	v, err := pep440.Parse(s)
	require.NoError(t, err)
	return v
}

func TestEnsureNodeAndAddEdge(t *testing.T) {
	g := New()
	g.EnsureNode("stevedore", mustVersion(t, "5.2.0"))
	key := Key("stevedore", mustVersion(t, "5.2.0"))
	require.NoError(t, g.AddEdge(RootKey, Edge{TargetKey: key, RequirementType: requirement.TypeToplevel}))
	require.Len(t, g.Node(RootKey).Edges, 1)
}

func TestAddEdgeMissingTargetErrors(t *testing.T) {
	g := New()
	err := g.AddEdge(RootKey, Edge{TargetKey: "missing==1.0"})
	require.ErrorIs(t, err, ErrNodeNotFound)
}

func TestCheckCyclesAllowsInstallCycle(t *testing.T) {
	g := New()
	a := g.EnsureNode("a", mustVersion(t, "1.0"))
	b := g.EnsureNode("b", mustVersion(t, "1.0"))
	require.NoError(t, g.AddEdge(a.Key, Edge{TargetKey: b.Key, RequirementType: requirement.TypeInstall}))
	require.NoError(t, g.AddEdge(b.Key, Edge{TargetKey: a.Key, RequirementType: requirement.TypeInstall}))
	require.NoError(t, g.CheckCycles())
}

func TestCheckCyclesRejectsBuildCycle(t *testing.T) {
	g := New()
	a := g.EnsureNode("a", mustVersion(t, "1.0"))
	b := g.EnsureNode("b", mustVersion(t, "1.0"))
	require.NoError(t, g.AddEdge(a.Key, Edge{TargetKey: b.Key, RequirementType: requirement.TypeBuildSystem}))
	require.NoError(t, g.AddEdge(b.Key, Edge{TargetKey: a.Key, RequirementType: requirement.TypeInstall}))
	err := g.CheckCycles()
	require.ErrorIs(t, err, ErrCyclicBuildDependency)
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	g := New()
	a := g.EnsureNode("stevedore", mustVersion(t, "5.2.0"))
	require.NoError(t, g.AddEdge(RootKey, Edge{TargetKey: a.Key, RequirementType: requirement.TypeToplevel, OriginatingRequirement: "stevedore"}))

	data, err := g.MarshalJSON()
	require.NoError(t, err)

	g2 := New()
	require.NoError(t, g2.UnmarshalJSON(data))
	require.Equal(t, "stevedore", g2.Node(a.Key).CanonicalizedName)
	require.Len(t, g2.Node(RootKey).Edges, 1)

	data2, err := g2.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, data, data2)
}

func TestWhyFindsPaths(t *testing.T) {
	g := New()
	a := g.EnsureNode("a", mustVersion(t, "1.0"))
	b := g.EnsureNode("b", mustVersion(t, "1.0"))
	require.NoError(t, g.AddEdge(RootKey, Edge{TargetKey: a.Key, RequirementType: requirement.TypeToplevel}))
	require.NoError(t, g.AddEdge(a.Key, Edge{TargetKey: b.Key, RequirementType: requirement.TypeInstall}))

	paths := g.Why(b.Key)
	require.Len(t, paths, 1)
	require.Equal(t, Path{RootKey, a.Key, b.Key}, paths[0])
}

func TestExplainDuplicates(t *testing.T) {
	g := New()
	g.EnsureNode("numpy", mustVersion(t, "1.0"))
	g.EnsureNode("numpy", mustVersion(t, "2.0"))

	dups := g.ExplainDuplicates()
	require.Len(t, dups, 1)
	require.Equal(t, "numpy", dups[0].Name)
	require.Equal(t, []string{"1.0", "2.0"}, dups[0].Versions)
}

func TestToConstraintsRejectsDuplicates(t *testing.T) {
	g := New()
	g.EnsureNode("numpy", mustVersion(t, "1.0"))
	g.EnsureNode("numpy", mustVersion(t, "2.0"))

	var buf bytes.Buffer
	err := g.ToConstraints(&buf)
	require.Error(t, err)
}

func TestToConstraintsSingleVersion(t *testing.T) {
	g := New()
	g.EnsureNode("numpy", mustVersion(t, "1.0"))

	var buf bytes.Buffer
	require.NoError(t, g.ToConstraints(&buf))
	require.Equal(t, "numpy==1.0\n", buf.String())
}

func TestSubsetInducesOnlyReachableNodes(t *testing.T) {
	g := New()
	a := g.EnsureNode("a", mustVersion(t, "1.0"))
	b := g.EnsureNode("b", mustVersion(t, "1.0"))
	c := g.EnsureNode("c", mustVersion(t, "1.0"))
	require.NoError(t, g.AddEdge(RootKey, Edge{TargetKey: a.Key, RequirementType: requirement.TypeToplevel}))
	require.NoError(t, g.AddEdge(RootKey, Edge{TargetKey: c.Key, RequirementType: requirement.TypeToplevel}))
	require.NoError(t, g.AddEdge(a.Key, Edge{TargetKey: b.Key, RequirementType: requirement.TypeInstall}))

	sub := g.Subset([]string{a.Key})
	require.NotNil(t, sub.Node(a.Key))
	require.NotNil(t, sub.Node(b.Key))
	require.Nil(t, sub.Node(c.Key))
}

func TestMigrateRenamesNodeAndEdges(t *testing.T) {
	g := New()
	a := g.EnsureNode("old-name", mustVersion(t, "1.0"))
	require.NoError(t, g.AddEdge(RootKey, Edge{TargetKey: a.Key, RequirementType: requirement.TypeToplevel}))

	err := g.Migrate(func(name string) (string, bool) {
		if name == "old-name" {
			return "new-name", true
		}
		return "", false
	})
	require.NoError(t, err)

	newKey := Key("new-name", mustVersion(t, "1.0"))
	require.NotNil(t, g.Node(newKey))
	require.Equal(t, newKey, g.Node(RootKey).Edges[0].TargetKey)
}
