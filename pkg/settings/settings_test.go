// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadOverlayOrder(t *testing.T) {
	dir := t.TempDir()
	global := filepath.Join(dir, "global.yaml")
	writeFile(t, dir, "global.yaml", "env:\n  FOO: base\n  BAR: global-only\n")
	perPkg := filepath.Join(dir, "pkgs")
	require.NoError(t, os.MkdirAll(perPkg, 0o755))
	writeFile(t, perPkg, "stevedore.yaml", `
env:
  FOO: pkg
variants:
  cuda:
    env:
      FOO: variant
    versions:
      "5.2.0":
        env:
          FOO: version
        patch:
          - 0001-fix.patch
`)

	s, err := Load(global, perPkg)
	require.NoError(t, err)

	base := s.Get("stevedore", "", "")
	require.Equal(t, "pkg", base.Env["FOO"])
	require.Equal(t, "global-only", base.Env["BAR"])

	cuda := s.Get("stevedore", "cuda", "")
	require.Equal(t, "variant", cuda.Env["FOO"])

	versioned := s.Get("stevedore", "cuda", "5.2.0")
	require.Equal(t, "version", versioned.Env["FOO"])
	require.Equal(t, []string{"0001-fix.patch"}, versioned.Patches)
}

func TestLoadUnknownKeyRejected(t *testing.T) {
	dir := t.TempDir()
	perPkg := filepath.Join(dir, "pkgs")
	require.NoError(t, os.MkdirAll(perPkg, 0o755))
	writeFile(t, perPkg, "foo.yaml", "not_a_real_key: true\n")
	_, err := Load("", perPkg)
	require.ErrorIs(t, err, ErrSchema)
}

func TestExpandEnvPriorLines(t *testing.T) {
	env := map[string]string{
		"A": "${version}",
		"B": "$A-suffix",
	}
	out, err := ExpandEnv(env, []string{"A", "B"}, "foo", "1.2.3", "1.2.3", "", nil)
	require.NoError(t, err)
	require.Equal(t, "1.2.3", out["A"])
	require.Equal(t, "1.2.3-suffix", out["B"])
}

func TestApplicableChangelogCount(t *testing.T) {
	eff := Effective{Changelog: []ChangelogEntry{
		{Version: "", Message: "always"},
		{Version: "5.2.0", Message: "specific"},
		{Version: "5.1.0", Message: "other"},
	}}
	if n := eff.ApplicableChangelog("5.2.0"); n != 2 {
		t.Fatalf("got %d, want 2", n)
	}
}
