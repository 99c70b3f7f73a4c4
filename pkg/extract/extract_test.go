// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"testing"

	"github.com/fromager-project/fromager/internal/pep508"
	"github.com/fromager-project/fromager/pkg/requirement"
	"github.com/stretchr/testify/require"
)

func TestParseRequiresDist(t *testing.T) {
	meta := "Metadata-Version: 2.1\nName: stevedore\nRequires-Dist: pbr (>=2.0.0,!=2.1.0)\nRequires-Dist: importlib-metadata (>=1.7.0) ; python_version < \"3.8\"\n\nThe long description follows.\n"
	reqs, err := ParseRequiresDist(meta)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
}

func TestResolvePhaseFiltersUnsatisfiedMarkers(t *testing.T) {
	env := pep508.Environment{"python_version": "3.11"}
	resolved, err := ResolvePhase([]string{
		`pbr>=2.0.0`,
		`importlib-metadata>=1.7.0; python_version<"3.8"`,
	}, requirement.TypeInstall, env, "")
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	require.True(t, resolved[0].Satisfied)
	require.False(t, resolved[1].Satisfied)
}

func TestBuildSystemRequiresFallsBackToSetuptools(t *testing.T) {
	reqs, err := BuildSystemRequires(map[string]any{})
	require.NoError(t, err)
	require.Equal(t, []string{"setuptools"}, reqs)
}
