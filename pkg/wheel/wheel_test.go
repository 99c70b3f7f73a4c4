// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package wheel

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAndRenderFilename(t *testing.T) {
	f, err := ParseFilename("stevedore-5.2.0-py3-none-any.whl")
	require.NoError(t, err)
	require.Equal(t, "stevedore", f.Name)
	require.Equal(t, "5.2.0", f.Version)
	require.False(t, f.HasBuildTag)
	require.Equal(t, "stevedore-5.2.0-py3-none-any.whl", f.String())
}

func TestParseFilenameWithBuildTag(t *testing.T) {
	f, err := ParseFilename("stevedore-5.2.0-2-py3-none-any.whl")
	require.NoError(t, err)
	require.True(t, f.HasBuildTag)
	require.Equal(t, 2, f.BuildTag)
}

func TestRetagBuildTagScenarioD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stevedore-5.2.0-py3-none-any.whl")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	newPath, err := RetagBuildTag(path, 2)
	require.NoError(t, err)
	require.Equal(t, "stevedore-5.2.0-2-py3-none-any.whl", filepath.Base(newPath))
}

func TestInjectDistInfoExtras(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stevedore-5.2.0-py3-none-any.whl")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	entry, err := w.Create("stevedore-5.2.0.dist-info/METADATA")
	require.NoError(t, err)
	_, err = entry.Write([]byte("Name: stevedore\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	err = InjectDistInfoExtras(path, DistInfoExtras{
		BuildSettingsYAML:   []byte("env: {}\n"),
		SystemRequirements:  []string{"setuptools"},
		BackendRequirements: nil,
		SdistRequirements:   nil,
	})
	require.NoError(t, err)

	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	require.Contains(t, names, "stevedore-5.2.0.dist-info/fromager-build-settings")
	require.Contains(t, names, "stevedore-5.2.0.dist-info/fromager-build-system-requirements.txt")
}
