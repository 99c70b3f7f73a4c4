// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

// Package buildenv implements the Build Environment Manager (spec.md §4.9):
// constructs an isolated environment installed, only-binary, from the local
// simple index (and optionally a cache URL), and records every package
// actually installed.
package buildenv

import (
	"context"

	"github.com/pkg/errors"
)

// ErrMissingDependency is raised when the installer cannot satisfy a
// requirement from any configured index (spec.md §7; carries the full path
// per spec.md §4.9: which package triggered the need, which index was
// searched).
var ErrMissingDependency = errors.New("missing dependency")

// Installer is the black-box pip-equivalent installer contract (spec.md
// §1: actual wheel installation/execution is out of scope; only the
// only-binary, index-constrained install contract is specified here).
type Installer interface {
	// InstallOnlyBinary installs reqs using only prebuilt wheels, searching
	// indexURLs in order, and returns the (name, version) pairs actually
	// installed.
	InstallOnlyBinary(ctx context.Context, reqs []string, indexURLs []string) ([]InstalledPackage, error)
}

// InstalledPackage is one package the installer resolved and installed.
type InstalledPackage struct {
	Name    string
	Version string
}

// Environment is an isolated build environment, constructed with a
// specific set of requirements, from which a PEP-517 hook subprocess is
// later invoked (the subprocess itself is out of scope, spec.md §1).
type Environment struct {
	Root      string // filesystem root of the environment (e.g. a venv path)
	Installed []InstalledPackage
}

// Manager builds Environments against a local simple index plus an
// optional remote cache URL.
type Manager struct {
	Installer    Installer
	LocalIndexURL string
	CacheURL     string // optional secondary index, consulted after the local one
}

// Build constructs a new Environment at root, installing reqs only from
// prebuilt wheels found in the local simple index (and the cache URL, if
// configured).
func (m Manager) Build(ctx context.Context, root string, reqs []string) (*Environment, error) {
	urls := []string{m.LocalIndexURL}
	if m.CacheURL != "" {
		urls = append(urls, m.CacheURL)
	}
	installed, err := m.Installer.InstallOnlyBinary(ctx, reqs, urls)
	if err != nil {
		return nil, errors.Wrapf(ErrMissingDependency, "building env at %s: %v (searched %v)", root, err, urls)
	}
	return &Environment{Root: root, Installed: installed}, nil
}

// PinnedVersion returns the version the environment actually installed for
// name, supporting the "pin-install-requires-to-build" action (spec.md
// §4.9: "pin downstream wheel metadata").
func (e *Environment) PinnedVersion(name string) (string, bool) {
	for _, p := range e.Installed {
		if p.Name == name {
			return p.Version, true
		}
	}
	return "", false
}
