// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

// Package hooks implements the Hook Dispatcher (spec.md §4.15): a registry
// of process-lifecycle callbacks plus the per-package override-method
// dispatch table that lets a canonical name replace a default component
// implementation.
package hooks

import (
	"context"

	"github.com/fromager-project/fromager/internal/pep440"
	"github.com/fromager-project/fromager/pkg/requirement"
)

// BuildContext is the ambient context threaded through every hook
// invocation, matching the ctx argument spec.md §4.15 gives each callback.
type BuildContext struct {
	WorkDir string
	Env     map[string]string
}

// PostBuildFunc fires after each wheel is built.
type PostBuildFunc func(ctx context.Context, bc BuildContext, req requirement.Requirement, distName string, version pep440.Version, sdistPath, wheelPath string) error

// PrebuiltWheelFunc fires after each prebuilt wheel download.
type PrebuiltWheelFunc func(ctx context.Context, bc BuildContext, req requirement.Requirement, distName string, version pep440.Version, wheelPath string) error

// PostBootstrapFunc fires before a package's install-deps are recursed.
// sdistPath and wheelPath are empty when the corresponding artifact does
// not exist for this package (e.g. prebuilt-only).
type PostBootstrapFunc func(ctx context.Context, bc BuildContext, req requirement.Requirement, distName string, version pep440.Version, sdistPath, wheelPath string) error

// OverridePoint names one of the component seams a per-package override may
// replace (spec.md §4.15: §4.5 resolve, §4.6 acquire, §4.7 patch, §4.8
// extract, §4.10 build).
type OverridePoint string

const (
	OverrideResolve OverridePoint = "resolve"
	OverrideAcquire OverridePoint = "acquire"
	OverridePatch   OverridePoint = "patch"
	OverrideExtract OverridePoint = "extract"
	OverrideBuild   OverridePoint = "build"
)

// Registry holds every registered hook and override, keyed by canonical
// name where applicable (spec.md: "Discovery is via an entry-point
// registry keyed by canonical name").
type Registry struct {
	postBuild      []PostBuildFunc
	prebuiltWheel  []PrebuiltWheelFunc
	postBootstrap  []PostBootstrapFunc
	overrides      map[string]map[OverridePoint]any
}

// New returns an empty hook registry.
func New() *Registry {
	return &Registry{overrides: map[string]map[OverridePoint]any{}}
}

// OnPostBuild registers a post_build callback. Multiple callbacks run in
// registration order.
func (r *Registry) OnPostBuild(fn PostBuildFunc) { r.postBuild = append(r.postBuild, fn) }

// OnPrebuiltWheel registers a prebuilt_wheel callback.
func (r *Registry) OnPrebuiltWheel(fn PrebuiltWheelFunc) {
	r.prebuiltWheel = append(r.prebuiltWheel, fn)
}

// OnPostBootstrap registers a post_bootstrap callback.
func (r *Registry) OnPostBootstrap(fn PostBootstrapFunc) {
	r.postBootstrap = append(r.postBootstrap, fn)
}

// FirePostBuild invokes every registered post_build callback in order,
// stopping at the first error.
func (r *Registry) FirePostBuild(ctx context.Context, bc BuildContext, req requirement.Requirement, distName string, version pep440.Version, sdistPath, wheelPath string) error {
	for _, fn := range r.postBuild {
		if err := fn(ctx, bc, req, distName, version, sdistPath, wheelPath); err != nil {
			return err
		}
	}
	return nil
}

// FirePrebuiltWheel invokes every registered prebuilt_wheel callback.
func (r *Registry) FirePrebuiltWheel(ctx context.Context, bc BuildContext, req requirement.Requirement, distName string, version pep440.Version, wheelPath string) error {
	for _, fn := range r.prebuiltWheel {
		if err := fn(ctx, bc, req, distName, version, wheelPath); err != nil {
			return err
		}
	}
	return nil
}

// FirePostBootstrap invokes every registered post_bootstrap callback.
func (r *Registry) FirePostBootstrap(ctx context.Context, bc BuildContext, req requirement.Requirement, distName string, version pep440.Version, sdistPath, wheelPath string) error {
	for _, fn := range r.postBootstrap {
		if err := fn(ctx, bc, req, distName, version, sdistPath, wheelPath); err != nil {
			return err
		}
	}
	return nil
}

// RegisterOverride installs a replacement implementation for point, scoped
// to canonicalName. impl's concrete type is point-specific and is asserted
// back out by the component that consumes it (resolve.Provider,
// patch.Applier, wheel.Builder, and so on).
func (r *Registry) RegisterOverride(canonicalName string, point OverridePoint, impl any) {
	if r.overrides[canonicalName] == nil {
		r.overrides[canonicalName] = map[OverridePoint]any{}
	}
	r.overrides[canonicalName][point] = impl
}

// Override returns the registered override implementation for
// (canonicalName, point), if any.
func (r *Registry) Override(canonicalName string, point OverridePoint) (any, bool) {
	m, ok := r.overrides[canonicalName]
	if !ok {
		return nil, false
	}
	impl, ok := m[point]
	return impl, ok
}
