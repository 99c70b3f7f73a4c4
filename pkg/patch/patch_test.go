// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fromager-project/fromager/internal/pep440"
	"github.com/fromager-project/fromager/pkg/settings"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// TestCollectPatchesMergedSortOrder builds its fixture tree through an
// osfs-backed billy.Filesystem (rooted at a real temp dir, matching the
// teacher's virtual-filesystem test idiom) rather than raw os calls, since
// CollectPatches itself reads the directories via the real filesystem.
func TestCollectPatchesMergedSortOrder(t *testing.T) {
	dir := t.TempDir()
	fs := osfs.New(dir)
	require.NoError(t, fs.MkdirAll("stevedore-5.2.0/cuda", 0o755))
	require.NoError(t, fs.MkdirAll("stevedore", 0o755))
	require.NoError(t, util.WriteFile(fs, "stevedore/0002-b.patch", []byte("diff"), 0o644))
	require.NoError(t, util.WriteFile(fs, "stevedore-5.2.0/0001-a.patch", []byte("diff"), 0o644))
	require.NoError(t, util.WriteFile(fs, "stevedore-5.2.0/cuda/0003-c.patch", []byte("diff"), 0o644))

	patches, err := CollectPatches(dir, "stevedore", pep440.MustParse("5.2.0"), "cuda")
	require.NoError(t, err)
	wantBases := []string{"0001-a.patch", "0002-b.patch", "0003-c.patch"}
	gotBases := make([]string, len(patches))
	for i, p := range patches {
		gotBases[i] = filepath.Base(p)
	}
	if diff := cmp.Diff(wantBases, gotBases); diff != "" {
		t.Errorf("CollectPatches() base-name order mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateFileRejectsUnsafePath(t *testing.T) {
	dir := t.TempDir()
	err := createFile(dir, "../evil")
	require.ErrorIs(t, err, ErrUnsafePath)
}

func TestEnsurePKGInfoSynthesizesWhenMissing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, ensurePKGInfo(dir, "stevedore", pep440.MustParse("5.2.0")))
	content, err := os.ReadFile(filepath.Join(dir, "PKG-INFO"))
	require.NoError(t, err)
	require.Contains(t, string(content), "Name: stevedore")
	require.Contains(t, string(content), "Version: 5.2.0")
}

func TestApplyProjectOverrideReplacesAllMatchingEntries(t *testing.T) {
	dir := t.TempDir()
	pyproject := `
[build-system]
requires = ["numpy==1.0; python_version<'3.8'", "numpy==1.5; python_version>='3.8' and python_version<'3.10'", "numpy==1.9; sys_platform=='win32'", "numpy"]

[project]
name = "example"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pyproject.toml"), []byte(pyproject), 0o644))
	err := applyProjectOverride(dir, settings.ProjectOverride{UpdateBuildRequires: []string{"numpy==2.0"}})
	require.NoError(t, err)

	out, err := os.ReadFile(filepath.Join(dir, "pyproject.toml"))
	require.NoError(t, err)
	require.Contains(t, string(out), "numpy==2.0")
	require.Equal(t, 1, countOccurrences(string(out), "numpy"))
}

func countOccurrences(s, substr string) int {
	n := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			n++
		}
	}
	return n
}
