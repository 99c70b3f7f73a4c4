// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

// Package wheelcache implements the Wheel Cache & Local Simple Index
// (spec.md §4.11): the downloads/prebuilt/build/simple directory trees, and
// the PEP-503 HTTP endpoint consumed by child build environments.
package wheelcache

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fromager-project/fromager/internal/nameutil"
	"github.com/fromager-project/fromager/pkg/registry/pypi"
	"github.com/pkg/errors"
)

// Cache is the four-directory wheel repository layout from spec.md §4.11.
type Cache struct {
	Root string // wheels-repo root

	mu sync.Mutex // serializes simple-index rewrites (spec.md §5)
}

func (c *Cache) downloadsDir() string { return filepath.Join(c.Root, "downloads") }
func (c *Cache) prebuiltDir() string  { return filepath.Join(c.Root, "prebuilt") }
func (c *Cache) buildDir() string     { return filepath.Join(c.Root, "build") }
func (c *Cache) simpleDir() string    { return filepath.Join(c.Root, "simple") }

// Init creates the four directory trees if absent.
func (c *Cache) Init() error {
	for _, d := range []string{c.downloadsDir(), c.prebuiltDir(), c.buildDir(), c.simpleDir()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return errors.Wrapf(err, "creating %s", d)
		}
	}
	return nil
}

// DownloadsDir exposes the downloads/ directory for callers moving freshly
// built artifacts into place.
func (c *Cache) DownloadsDir() string { return c.downloadsDir() }

// PrebuiltDir exposes the prebuilt/ directory.
func (c *Cache) PrebuiltDir() string { return c.prebuiltDir() }

// BuildDir exposes the build/ scratch directory.
func (c *Cache) BuildDir() string { return c.buildDir() }

// AddArtifact moves artifactPath (already produced atomically elsewhere,
// spec.md §4.10) into downloads/ and refreshes the simple index entry for
// its project, so subsequent build environments can resolve it
// immediately (spec.md §4.11, §5 ordering guarantee (a)).
func (c *Cache) AddArtifact(artifactPath string) (string, error) {
	base := filepath.Base(artifactPath)
	dest := filepath.Join(c.downloadsDir(), base)
	if artifactPath != dest {
		if err := os.Rename(artifactPath, dest); err != nil {
			return "", errors.Wrapf(err, "moving %s into downloads", base)
		}
	}
	name, err := projectNameOf(base)
	if err != nil {
		return "", err
	}
	if err := c.refreshIndex(name); err != nil {
		return "", err
	}
	return dest, nil
}

func projectNameOf(filename string) (string, error) {
	if pypi.IsWheel(filename) {
		p, err := pypi.ParseFilename(filename)
		return p.Name, err
	}
	if pypi.IsSdist(filename) {
		p, err := pypi.ParseFilename(filename)
		return p.Name, err
	}
	return "", errors.Errorf("unrecognized artifact filename %q", filename)
}

// refreshIndex rewrites simple/<name>/index.html to list every artifact for
// name currently in downloads/ and prebuilt/, under an exclusive
// lock (spec.md §5: "serialized updates").
func (c *Cache) refreshIndex(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	canonical, err := nameutil.Canonicalize(name)
	if err != nil {
		return err
	}
	dir := filepath.Join(c.simpleDir(), canonical)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	type artifact struct {
		name, dir string
	}
	var artifacts []artifact
	for _, src := range []struct {
		dir  string
		name string
	}{{c.downloadsDir(), "downloads"}, {c.prebuiltDir(), "prebuilt"}} {
		entries, err := os.ReadDir(src.dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			p, err := pypi.ParseFilename(e.Name())
			if err == nil && p.Name == canonical {
				artifacts = append(artifacts, artifact{e.Name(), src.name})
			}
		}
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].name < artifacts[j].name })
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><body>\n")
	for _, a := range artifacts {
		b.WriteString(`<a href="../../` + a.dir + "/" + a.name + `">` + a.name + "</a><br/>\n")
	}
	b.WriteString("</body></html>\n")
	tmp := filepath.Join(dir, "index.html.tmp")
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, "index.html"))
}

// RootIndexHandler serves "/simple/" (the project listing) and
// "/simple/<name>/" (per-project wheel listing), a plain PEP-503-compliant
// HTTP service (spec.md §4.11, §6). Any PEP-503 mirror generator would
// suffice per spec.md §1; this is the minimal one fromager needs for its
// own build environments.
func (c *Cache) RootIndexHandler() http.Handler {
	return http.StripPrefix("/simple/", http.FileServer(http.Dir(c.simpleDir())))
}

// ArtifactHandler serves the actual wheel/sdist bytes referenced by index
// pages, under /downloads/ and /prebuilt/.
func (c *Cache) ArtifactHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/downloads/", http.StripPrefix("/downloads/", http.FileServer(http.Dir(c.downloadsDir()))))
	mux.Handle("/prebuilt/", http.StripPrefix("/prebuilt/", http.FileServer(http.Dir(c.prebuiltDir()))))
	return mux
}

// Mux returns the combined simple-index + artifact-serving handler for
// http.ListenAndServe, matching spec.md §4.11's "runs as a plain HTTP
// service on a bound local port, serving simple/ directly".
func (c *Cache) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/simple/", c.RootIndexHandler())
	mux.Handle("/downloads/", c.ArtifactHandler())
	mux.Handle("/prebuilt/", c.ArtifactHandler())
	return mux
}

// HasFingerprint reports whether a wheel for (name, version) built under
// cacheKey (spec.md §3's fingerprint-derived cache key) already exists in
// downloads/, letting the Orchestrator skip rebuilding (spec.md §4.13 step
// 2, §8 testable property 5).
func (c *Cache) HasFingerprint(cacheKey string) (string, bool) {
	entries, err := os.ReadDir(c.downloadsDir())
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), cacheKey) {
			return filepath.Join(c.downloadsDir(), e.Name()), true
		}
	}
	return "", false
}
