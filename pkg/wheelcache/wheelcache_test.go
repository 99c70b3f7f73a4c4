// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package wheelcache

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddArtifactUpdatesSimpleIndex(t *testing.T) {
	dir := t.TempDir()
	c := &Cache{Root: dir}
	require.NoError(t, c.Init())

	src := filepath.Join(dir, "stevedore-5.2.0-py3-none-any.whl")
	require.NoError(t, os.WriteFile(src, []byte("wheel bytes"), 0o644))

	dest, err := c.AddArtifact(src)
	require.NoError(t, err)
	require.FileExists(t, dest)

	index := filepath.Join(c.simpleDir(), "stevedore", "index.html")
	content, err := os.ReadFile(index)
	require.NoError(t, err)
	require.Contains(t, string(content), "stevedore-5.2.0-py3-none-any.whl")
}

func TestMuxServesSimpleIndex(t *testing.T) {
	dir := t.TempDir()
	c := &Cache{Root: dir}
	require.NoError(t, c.Init())
	src := filepath.Join(dir, "stevedore-5.2.0-py3-none-any.whl")
	require.NoError(t, os.WriteFile(src, []byte("wheel bytes"), 0o644))
	_, err := c.AddArtifact(src)
	require.NoError(t, err)

	srv := httptest.NewServer(c.Mux())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/simple/stevedore/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
}
