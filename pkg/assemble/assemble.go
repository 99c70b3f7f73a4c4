// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

// Package assemble wires the concrete component packages (resolve, acquire,
// patch, extract, buildenv, wheel, wheelcache, procbuild) into the seam
// interfaces pkg/bootstrap.Orchestrator depends on. Kept separate from
// cmd/fromager so the CLI layer stays limited to flag parsing (spec.md §1
// Non-goal).
package assemble

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fromager-project/fromager/internal/nameutil"
	"github.com/fromager-project/fromager/internal/pep440"
	"github.com/fromager-project/fromager/internal/pep508"
	"github.com/fromager-project/fromager/pkg/acquire"
	"github.com/fromager-project/fromager/pkg/buildenv"
	"github.com/fromager-project/fromager/pkg/constraints"
	"github.com/fromager-project/fromager/pkg/extract"
	"github.com/fromager-project/fromager/pkg/patch"
	"github.com/fromager-project/fromager/pkg/procbuild"
	"github.com/fromager-project/fromager/pkg/requirement"
	"github.com/fromager-project/fromager/pkg/resolve"
	"github.com/fromager-project/fromager/pkg/settings"
	"github.com/fromager-project/fromager/pkg/wheel"
	"github.com/fromager-project/fromager/pkg/wheelcache"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// Components bundles every concrete collaborator an Orchestrator needs;
// its methods implement the bootstrap package's Resolver/Acquirer/
// Patcher/Extractor/EnvBuilder/PackageBuilder/ArtifactCache interfaces.
type Components struct {
	Resolvers   *resolve.Registry
	Constraints *constraints.Store
	Acquirer    acquire.Acquirer
	Cache       *wheelcache.Cache
	Runner      procbuild.Runner
	SourcesDir  string // where acquired+patched source trees are unpacked
	PatchesDir  string
}

// Resolve implements bootstrap.Resolver by selecting a provider per eff's
// resolver_dist settings and running the tie-break rules (spec.md §4.5).
func (c *Components) Resolve(ctx context.Context, req requirement.Requirement, eff settings.Effective) (requirement.Candidate, error) {
	providerName := ""
	opts := resolve.Options{IncludeSdists: true}
	if eff.ResolverDist != nil {
		providerName = eff.ResolverDist.Provider
		opts.IncludeSdists = eff.ResolverDist.IncludeSdists
		opts.IncludeWheels = eff.ResolverDist.IncludeWheels
		opts.ServerURL = eff.ResolverDist.SdistServer
	}
	if c.Constraints != nil && c.Constraints.AdmitsPrerelease(req.Name) {
		opts.AllowPrerelease = true
	}
	provider, err := c.Resolvers.Provider(providerName)
	if err != nil {
		return requirement.Candidate{}, err
	}
	return resolve.Select(ctx, provider, req, c.Constraints, opts)
}

// Acquire implements bootstrap.Acquirer: downloads or clones the
// candidate's source, then unpacks it into a fresh directory under
// SourcesDir (spec.md §4.6).
func (c *Components) Acquire(ctx context.Context, cand requirement.Candidate, eff settings.Effective) (string, error) {
	destName := cand.Name + "-" + cand.Version.String()
	destDir := filepath.Join(c.SourcesDir, destName)

	switch cand.RetrieveMethod {
	case requirement.MethodGitHTTPS, requirement.MethodGitSSH:
		res, err := c.Acquirer.GitClone(ctx, cand.RetrieveURL, cand.Version.String(), destName, eff.GitOptions)
		if err != nil {
			return "", err
		}
		return res.Path, nil
	case requirement.MethodPrebuiltWheel:
		res, err := c.Acquirer.PrebuiltWheel(ctx, cand.RetrieveURL, destName+".whl")
		if err != nil {
			return "", err
		}
		return res.Path, nil
	default:
		filename := destName + ".tar.gz"
		res, err := c.Acquirer.Tarball(ctx, cand.RetrieveURL, filename)
		if err != nil {
			return "", err
		}
		if err := acquire.Unpack(res.Path, destDir); err != nil {
			return "", err
		}
		return destDir, nil
	}
}

// AcquireDirect implements bootstrap.Acquirer for direct-URL requirements
// (spec.md §4.5): there is no resolved Candidate, so the destination
// directory is named from the canonical name and ref rather than a version.
func (c *Components) AcquireDirect(ctx context.Context, d *pep508.DirectURL, name string, eff settings.Effective) (string, error) {
	ref := d.Ref
	if ref == "" {
		ref = "HEAD"
	}
	destName := name + "-" + sanitizeRef(ref)
	destDir := filepath.Join(c.SourcesDir, destName)

	switch d.Scheme {
	case pep508.SchemeGitHTTP, pep508.SchemeGitSSH:
		res, err := c.Acquirer.GitClone(ctx, d.URL, d.Ref, destName, eff.GitOptions)
		if err != nil {
			return "", err
		}
		return res.Path, nil
	default:
		filename := destName + ".tar.gz"
		res, err := c.Acquirer.Tarball(ctx, d.URL, filename)
		if err != nil {
			return "", err
		}
		if err := acquire.Unpack(res.Path, destDir); err != nil {
			return "", err
		}
		return destDir, nil
	}
}

func sanitizeRef(ref string) string {
	return strings.NewReplacer("/", "-", ":", "-", "@", "-").Replace(ref)
}

// SourceVersion implements bootstrap.Extractor for direct-URL requirements:
// it reads the version straight out of the acquired tree's own static
// metadata (PKG-INFO if the sdist already carries one, else pyproject.toml's
// PEP 621 static [project].version), since no candidate was ever resolved
// to supply one (spec.md §4.5, §9). A dynamically-computed project version
// (no static [project].version, metadata only available from a build-backend
// hook) is out of scope here, matching spec.md §1's treatment of the PEP-517
// hook invocation itself as a black box.
func (c *Components) SourceVersion(ctx context.Context, sourceRoot string) (pep440.Version, error) {
	data, err := os.ReadFile(filepath.Join(sourceRoot, "PKG-INFO"))
	if err == nil {
		verStr, err := extract.ParseVersionHeader(string(data))
		if err != nil {
			return pep440.Version{}, err
		}
		return pep440.Parse(verStr)
	}
	if !os.IsNotExist(err) {
		return pep440.Version{}, errors.Wrap(err, "reading PKG-INFO")
	}

	raw, err := os.ReadFile(filepath.Join(sourceRoot, "pyproject.toml"))
	if err != nil {
		return pep440.Version{}, errors.Wrap(extract.ErrMetadataUnreadable, err.Error())
	}
	var doc map[string]any
	if err := toml.Unmarshal(raw, &doc); err != nil {
		return pep440.Version{}, errors.Wrap(extract.ErrMetadataUnreadable, err.Error())
	}
	proj, _ := doc["project"].(map[string]any)
	verStr, _ := proj["version"].(string)
	if verStr == "" {
		return pep440.Version{}, errors.Wrap(extract.ErrMetadataUnreadable, "no static [project].version in pyproject.toml")
	}
	return pep440.Parse(verStr)
}

// Prepare implements bootstrap.Patcher by collecting and applying patches,
// running vendor-rust, create_files, and project_override (spec.md §4.7).
func (c *Components) Prepare(sourceRoot, name string, version pep440.Version, eff settings.Effective) error {
	overrideName, err := overridifyName(name)
	if err != nil {
		return err
	}
	patches, err := patch.CollectPatches(c.PatchesDir, overrideName, version, "")
	if err != nil {
		return err
	}
	if len(eff.Patches) > 0 {
		patches = eff.Patches
	}
	return patch.Prepare(sourceRoot, patches, patch.DefaultApplier, nil, eff.VendorRustBeforePatch, eff.CreateFiles, name, version, eff.BuildDir, eff.ProjectOverride)
}

func overridifyName(name string) (string, error) {
	return nameutil.Overridify(name) // patch directories are keyed by the "_" form of the canonical name
}

// BuildSystemRequires implements bootstrap.Extractor by reading
// [build-system].requires from the (already project_override'd)
// pyproject.toml (spec.md §4.8).
func (c *Components) BuildSystemRequires(ctx context.Context, sourceRoot string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(sourceRoot, "pyproject.toml"))
	if err != nil {
		if os.IsNotExist(err) {
			return extract.BuildSystemRequires(nil)
		}
		return nil, errors.Wrap(err, "reading pyproject.toml")
	}
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing pyproject.toml")
	}
	return extract.BuildSystemRequires(doc)
}

// BuildBackendRequires implements bootstrap.Extractor's build-backend and
// build-sdist phases via the subprocess runner (spec.md §4.8).
func (c *Components) BuildBackendRequires(ctx context.Context, sourceRoot string, env *buildenv.Environment) ([]string, []string, error) {
	wheelReqs, err := c.Runner.GetRequiresForBuildWheel(ctx, sourceRoot)
	if err != nil {
		return nil, nil, errors.Wrap(extract.ErrHookInvocation, err.Error())
	}
	sdistReqs, err := c.Runner.GetRequiresForBuildSdist(ctx, sourceRoot)
	if err != nil {
		return nil, nil, errors.Wrap(extract.ErrHookInvocation, err.Error())
	}
	return wheelReqs, sdistReqs, nil
}

// InstallRequires implements bootstrap.Extractor's install-time metadata
// read from a built wheel's METADATA or a built sdist's PKG-INFO.
func (c *Components) InstallRequires(ctx context.Context, artifactPath string) ([]string, error) {
	metadata, err := readArtifactMetadata(artifactPath)
	if err != nil {
		return nil, err
	}
	return extract.ParseRequiresDist(metadata)
}

// Build implements bootstrap.EnvBuilder, delegating to buildenv.Manager
// backed by the local wheel cache's simple index.
func (c *Components) Build(ctx context.Context, root string, reqs []string) (*buildenv.Environment, error) {
	mgr := buildenv.Manager{Installer: c.Runner, LocalIndexURL: "http://127.0.0.1:0/simple/"}
	return mgr.Build(ctx, root, reqs)
}

// BuildSdist implements bootstrap.PackageBuilder.
func (c *Components) BuildSdist(ctx context.Context, sourceRoot string, eff settings.Effective) (string, error) {
	return c.Runner.BuildSdist(ctx, sourceRoot, c.Cache.DownloadsDir())
}

// BuildWheel implements bootstrap.PackageBuilder: builds the wheel, retags
// it with buildTag, and injects the fromager-* dist-info extras (spec.md
// §4.10).
func (c *Components) BuildWheel(ctx context.Context, sourceRoot string, eff settings.Effective, buildTag int) (string, error) {
	path, err := c.Runner.BuildWheel(ctx, sourceRoot, c.Cache.BuildDir())
	if err != nil {
		return "", err
	}
	if buildTag > 0 {
		path, err = wheel.RetagBuildTag(path, buildTag)
		if err != nil {
			return "", err
		}
	}
	settingsYAML, err := wheel.SettingsSnapshot(eff)
	if err != nil {
		return "", err
	}
	native, _ := wheel.NativeDependencies(path)
	if err := wheel.InjectDistInfoExtras(path, wheel.DistInfoExtras{
		BuildSettingsYAML: settingsYAML,
		ELFRequires:       native,
	}); err != nil {
		return "", err
	}
	dest := filepath.Join(c.Cache.DownloadsDir(), filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// HasFingerprint implements bootstrap.ArtifactCache.
func (c *Components) HasFingerprint(cacheKey string) (string, bool) { return c.Cache.HasFingerprint(cacheKey) }

// AddArtifact implements bootstrap.ArtifactCache.
func (c *Components) AddArtifact(path string) (string, error) { return c.Cache.AddArtifact(path) }

func readArtifactMetadata(artifactPath string) (string, error) {
	if filepath.Ext(artifactPath) == ".whl" {
		return readWheelMetadata(artifactPath)
	}
	return readSdistPKGInfo(artifactPath)
}
