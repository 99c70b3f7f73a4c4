// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

// Package patch implements the Patcher & Source Tree Preparer (spec.md
// §4.7): collects ordered patches for a (name, version, variant), applies
// them, runs the vendor-rust step at the configured point, emits
// create_files, synthesizes PKG-INFO, and applies project_override to
// pyproject.toml.
package patch

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fromager-project/fromager/internal/pep440"
	"github.com/fromager-project/fromager/pkg/settings"
	"github.com/pkg/errors"
)

// Error kinds from spec.md §7 (all node-fatal).
var (
	ErrPatchApply      = errors.New("patch apply error")
	ErrUnsafePath      = errors.New("unsafe path")
	ErrPyProjectMalformed = errors.New("pyproject malformed")
)

// VendorRustFunc runs the vendor-rust step over a source root; nil if the
// package has none. Treated as a black-box collaborator (spec.md §1: the
// actual build-tool invocation is out of scope).
type VendorRustFunc func(sourceRoot string) error

// Applier runs a single patch file against a source root at strip-level 1.
// The default implementation shells out to the system `patch` binary;
// overrides may replace it per-package (spec.md §4.15).
type Applier func(sourceRoot, patchFile string) error

// CollectPatches gathers ordered patch files for (overrideName, version,
// variant) from patchesDir, following spec.md §4.7's directory layout:
// <patchesDir>/<override_name>/, <patchesDir>/<override_name>-<version
// without local segment>/, and each one's <variant>/ subdirectory. All
// matches are merged into a single list sorted lexicographically by file
// base name (spec.md's documented merged-sort order). When a base name
// appears in more than one directory, the directory scanned first wins, in
// the order <override_name>/, its <variant>/, <override_name>-<version>/,
// its <variant>/ (see DESIGN.md).
func CollectPatches(patchesDir, overrideName string, version pep440.Version, variant string) ([]string, error) {
	versionNoLocal := version.WithoutLocal().String()
	dirs := []string{
		filepath.Join(patchesDir, overrideName),
		filepath.Join(patchesDir, overrideName+"-"+versionNoLocal),
	}
	var allDirs []string
	for _, d := range dirs {
		allDirs = append(allDirs, d)
		if variant != "" {
			allDirs = append(allDirs, filepath.Join(d, variant))
		}
	}
	type entry struct {
		base string
		path string
	}
	var entries []entry
	seenBase := map[string]bool{}
	for _, d := range allDirs {
		files, err := os.ReadDir(d)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.Wrapf(err, "reading patch dir %s", d)
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			if seenBase[f.Name()] {
				continue // first directory in iteration order wins on collision
			}
			seenBase[f.Name()] = true
			entries = append(entries, entry{base: f.Name(), path: filepath.Join(d, f.Name())})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].base < entries[j].base })
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.path
	}
	return out, nil
}

// Prepare runs the full source-tree preparation pipeline: apply patches,
// run vendor-rust before or after per VendorRustBeforePatch, emit
// create_files, synthesize PKG-INFO, then apply project_override.
func Prepare(sourceRoot string, patches []string, apply Applier, vendorRust VendorRustFunc, vendorRustBefore bool, createFiles []string, name string, version pep440.Version, buildDir string, override *settings.ProjectOverride) error {
	runVendor := func() error {
		if vendorRust == nil {
			return nil
		}
		return errors.Wrap(vendorRust(sourceRoot), "vendor-rust step")
	}
	if vendorRustBefore {
		if err := runVendor(); err != nil {
			return err
		}
	}
	for _, p := range patches {
		if err := apply(sourceRoot, p); err != nil {
			return errors.Wrapf(ErrPatchApply, "%s: %v", p, err)
		}
	}
	if !vendorRustBefore {
		if err := runVendor(); err != nil {
			return err
		}
	}
	for _, rel := range createFiles {
		if err := createFile(sourceRoot, rel); err != nil {
			return err
		}
	}
	if err := ensurePKGInfo(sourceRoot, name, version); err != nil {
		return err
	}
	if buildDir != "" {
		if err := ensurePKGInfo(buildDir, name, version); err != nil {
			return err
		}
	}
	if override != nil {
		if err := applyProjectOverride(sourceRoot, *override); err != nil {
			return err
		}
	}
	return nil
}

func createFile(sourceRoot, rel string) error {
	if filepath.IsAbs(rel) || strings.Contains(rel, "..") {
		return errors.Wrapf(ErrUnsafePath, "%q", rel)
	}
	target := filepath.Join(sourceRoot, rel)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.Wrap(err, "creating parent dirs")
	}
	if _, err := os.Stat(target); err == nil {
		return nil
	}
	f, err := os.Create(target)
	if err != nil {
		return errors.Wrapf(err, "creating %s", rel)
	}
	return f.Close()
}

func ensurePKGInfo(root, name string, version pep440.Version) error {
	path := filepath.Join(root, "PKG-INFO")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	content := "Metadata-Version: 2.1\nName: " + name + "\nVersion: " + version.String() + "\n"
	if err := os.MkdirAll(root, 0o755); err != nil {
		return errors.Wrap(err, "creating source root")
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// DefaultApplier shells out to the system "patch" binary at strip-level 1,
// the contract spec.md §4.7 describes; sandboxing/process invocation is
// otherwise out of scope (spec.md §1).
var DefaultApplier Applier = func(sourceRoot, patchFile string) error {
	f, err := os.Open(patchFile)
	if err != nil {
		return errors.Wrapf(err, "opening %s", patchFile)
	}
	defer f.Close()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(context.Background(), "patch", "-p1")
	cmd.Dir = sourceRoot
	cmd.Stdin = f
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "patch -p1 < %s: %s", patchFile, stderr.String())
	}
	return nil
}
