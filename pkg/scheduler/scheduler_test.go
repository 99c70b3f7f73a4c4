// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/fromager-project/fromager/internal/pep440"
	"github.com/fromager-project/fromager/pkg/graph"
	"github.com/fromager-project/fromager/pkg/requirement"
	"github.com/stretchr/testify/require"
)

func TestWorkersRespectsCPUMemAndMaxJobs(t *testing.T) {
	n := Workers(Limits{CPUCores: 8, MemoryGB: 16, MaxJobs: 3}, PackageLimits{CPUCoresPerJob: 2, MemoryPerJobGB: 4})
	require.Equal(t, 3, n) // floor(8/2)=4, floor(16/4)=4, maxJobs=3 -> 3
}

func TestWorkersFloorsToOne(t *testing.T) {
	n := Workers(Limits{CPUCores: 1, MemoryGB: 1}, PackageLimits{CPUCoresPerJob: 4, MemoryPerJobGB: 4})
	require.Equal(t, 1, n)
}

func mustVersion(t *testing.T, s string) pep440.Version {
	t.Helper()
	v, err := pep440.Parse(s)
	require.NoError(t, err)
	return v
}

func TestRunBuildsInDependencyOrder(t *testing.T) {
	g := graph.New()
	a := g.EnsureNode("a", mustVersion(t, "1.0"))
	b := g.EnsureNode("b", mustVersion(t, "1.0"))
	require.NoError(t, g.AddEdge(graph.RootKey, graph.Edge{TargetKey: a.Key, RequirementType: requirement.TypeToplevel}))
	require.NoError(t, g.AddEdge(graph.RootKey, graph.Edge{TargetKey: b.Key, RequirementType: requirement.TypeToplevel}))
	require.NoError(t, g.AddEdge(a.Key, graph.Edge{TargetKey: b.Key, RequirementType: requirement.TypeBuildSystem}))

	var mu sync.Mutex
	var built []string
	builder := builderFunc(func(ctx context.Context, n *graph.Node, logw *os.File) (string, error) {
		mu.Lock()
		built = append(built, n.Key)
		mu.Unlock()
		return n.Key + ".whl", nil
	})

	s := &Scheduler{
		Graph:   g,
		Builder: builder,
		Limits:  Limits{CPUCores: 4, MemoryGB: 8, MaxJobs: 4},
		LogDir:  t.TempDir(),
	}
	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, summary.Failed)
	require.Len(t, summary.Succeeded, 2)

	// b (the build-edge predecessor) must be built before a.
	bIdx, aIdx := -1, -1
	for i, k := range built {
		if k == b.Key {
			bIdx = i
		}
		if k == a.Key {
			aIdx = i
		}
	}
	require.True(t, bIdx < aIdx)
}

type builderFunc func(ctx context.Context, n *graph.Node, logw *os.File) (string, error)

func (f builderFunc) Build(ctx context.Context, n *graph.Node, logw *os.File) (string, error) {
	return f(ctx, n, logw)
}
