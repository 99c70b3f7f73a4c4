// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package hooks

import (
	"context"
	"testing"

	"github.com/fromager-project/fromager/internal/pep440"
	"github.com/fromager-project/fromager/pkg/requirement"
	"github.com/stretchr/testify/require"
)

func TestFirePostBuildRunsInOrder(t *testing.T) {
	r := New()
	var order []int
	r.OnPostBuild(func(ctx context.Context, bc BuildContext, req requirement.Requirement, distName string, version pep440.Version, sdistPath, wheelPath string) error {
		order = append(order, 1)
		return nil
	})
	r.OnPostBuild(func(ctx context.Context, bc BuildContext, req requirement.Requirement, distName string, version pep440.Version, sdistPath, wheelPath string) error {
		order = append(order, 2)
		return nil
	})

	err := r.FirePostBuild(context.Background(), BuildContext{}, requirement.Requirement{}, "stevedore", pep440.Version{}, "a.tar.gz", "a.whl")
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, order)
}

func TestRegisterAndFetchOverride(t *testing.T) {
	r := New()
	r.RegisterOverride("stevedore", OverrideBuild, "custom-builder")

	impl, ok := r.Override("stevedore", OverrideBuild)
	require.True(t, ok)
	require.Equal(t, "custom-builder", impl)

	_, ok = r.Override("stevedore", OverridePatch)
	require.False(t, ok)

	_, ok = r.Override("other", OverrideBuild)
	require.False(t, ok)
}
