// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

// Package settings implements the Settings Store (spec.md §4.3): a global
// YAML file plus a per-package directory of YAML files, overlaid with
// variant and version-specific overrides and resolved through the
// templatex substitution engine.
package settings

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fromager-project/fromager/internal/nameutil"
	"github.com/fromager-project/fromager/internal/templatex"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrSchema is returned when a settings document contains an unknown key.
var ErrSchema = errors.New("settings schema error")

// DownloadSource is the `download_source` settings block: templated URL and
// filename for fetching a package's source archive directly.
type DownloadSource struct {
	URL      string `yaml:"url,omitempty"`
	Filename string `yaml:"filename,omitempty"`
}

// ResolverDist is the `resolver_dist` settings block selecting a resolver
// provider and its flags.
type ResolverDist struct {
	Provider    string   `yaml:"provider,omitempty"`
	SdistServer string   `yaml:"sdist_server_url,omitempty"`
	IncludeSdists bool   `yaml:"include_sdists,omitempty"`
	IncludeWheels bool   `yaml:"include_wheels,omitempty"`
	TagMatcher  string   `yaml:"tag_matcher,omitempty"`
	Args        []string `yaml:"args,omitempty"`
}

// GitOptions controls git-based acquisition (spec.md §4.6).
type GitOptions struct {
	SubmodulePolicy string `yaml:"submodules,omitempty"` // "none", "shallow", "all"
}

// ProjectOverride edits a package's pyproject.toml during patching
// (spec.md §4.7).
type ProjectOverride struct {
	RemoveBuildRequires   []string `yaml:"remove_build_requires,omitempty"`
	UpdateBuildRequires   []string `yaml:"update_build_requires,omitempty"`
	RemoveInstallRequires []string `yaml:"remove_install_requires,omitempty"`
	UpdateInstallRequires []string `yaml:"update_install_requires,omitempty"`
}

// ChangelogEntry is one entry in the `changelog` list; each applicable
// entry raises a wheel's build tag by one (spec.md §3).
type ChangelogEntry struct {
	Version string `yaml:"version,omitempty"`
	Message string `yaml:"message,omitempty"`
}

// VariantOverrides holds the settings overridden by a single variant, plus
// that variant's own version-specific overlays.
type VariantOverrides struct {
	PreBuilt       bool                        `yaml:"pre_built,omitempty"`
	Env            map[string]string           `yaml:"env,omitempty"`
	WheelServerURL string                      `yaml:"wheel_server_url,omitempty"`
	Versions       map[string]VersionOverrides `yaml:"versions,omitempty"`
}

// VersionOverrides holds settings that apply only to one specific version
// within a variant.
type VersionOverrides struct {
	Env             map[string]string `yaml:"env,omitempty"`
	Patches         []string          `yaml:"patch,omitempty"`
	CreateFiles     []string          `yaml:"create_files,omitempty"`
	ProjectOverride *ProjectOverride  `yaml:"project_override,omitempty"`
}

// Record is a single package's settings document, before overlay resolution.
type Record struct {
	Name                string                      `yaml:"-"`
	DownloadSource      *DownloadSource             `yaml:"download_source,omitempty"`
	ResolverDist        *ResolverDist               `yaml:"resolver_dist,omitempty"`
	GitOptions          *GitOptions                 `yaml:"git_options,omitempty"`
	BuildDir            string                      `yaml:"build_dir,omitempty"`
	Env                 map[string]string           `yaml:"env,omitempty"`
	Variants            map[string]VariantOverrides `yaml:"variants,omitempty"`
	ProjectOverride     *ProjectOverride             `yaml:"project_override,omitempty"`
	Patches             []string                    `yaml:"patch,omitempty"`
	CreateFiles         []string                    `yaml:"create_files,omitempty"`
	VendorRustBeforePatch bool                      `yaml:"vendor_rust_before_patch,omitempty"`
	CPUCoresPerJob      float64                     `yaml:"cpu_cores_per_job,omitempty"`
	MemoryPerJobGB      float64                     `yaml:"memory_per_job_gb,omitempty"`
	ExclusiveBuild      bool                        `yaml:"exclusive_build,omitempty"`
	Changelog           []ChangelogEntry            `yaml:"changelog,omitempty"`
}

// known top-level keys; anything else fails schema validation.
var knownKeys = map[string]bool{
	"download_source": true, "resolver_dist": true, "git_options": true,
	"build_dir": true, "env": true, "variants": true, "project_override": true,
	"patch": true, "create_files": true, "vendor_rust_before_patch": true,
	"cpu_cores_per_job": true, "memory_per_job_gb": true, "exclusive_build": true,
	"changelog": true,
}

func validateSchema(raw []byte) error {
	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return errors.Wrap(ErrSchema, err.Error())
	}
	for k := range m {
		if !knownKeys[k] {
			return errors.Wrapf(ErrSchema, "unknown key %q", k)
		}
	}
	return nil
}

func parseRecord(name string, raw []byte) (Record, error) {
	if err := validateSchema(raw); err != nil {
		return Record{}, err
	}
	var r Record
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return Record{}, errors.Wrap(ErrSchema, err.Error())
	}
	r.Name = name
	return r, nil
}

// Store loads a global settings file and a per-package settings directory.
type Store struct {
	Global      Record
	ByName      map[string]Record // keyed by canonical name
}

// Load reads globalPath (if non-empty and present) and every file under
// perPackageDir, lexicographically, filing each by its canonical base name.
func Load(globalPath, perPackageDir string) (*Store, error) {
	s := &Store{ByName: map[string]Record{}}
	if globalPath != "" {
		if raw, err := os.ReadFile(globalPath); err == nil {
			rec, err := parseRecord("", raw)
			if err != nil {
				return nil, errors.Wrapf(err, "global settings %s", globalPath)
			}
			s.Global = rec
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "reading %s", globalPath)
		}
	}
	if perPackageDir != "" {
		entries, err := os.ReadDir(perPackageDir)
		if err != nil {
			if os.IsNotExist(err) {
				return s, nil
			}
			return nil, errors.Wrapf(err, "reading %s", perPackageDir)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, n := range names {
			base := strings.TrimSuffix(n, filepath.Ext(n))
			canonical, err := nameutil.Canonicalize(base)
			if err != nil {
				continue
			}
			raw, err := os.ReadFile(filepath.Join(perPackageDir, n))
			if err != nil {
				return nil, errors.Wrapf(err, "reading %s", n)
			}
			rec, err := parseRecord(canonical, raw)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing %s", n)
			}
			s.ByName[canonical] = rec
		}
	}
	return s, nil
}

// Effective is the resolved settings record for one (name, variant, version),
// after overlaying defaults -> global -> per-package -> variant ->
// version-specific.
type Effective struct {
	DownloadSource        *DownloadSource
	ResolverDist          *ResolverDist
	GitOptions            *GitOptions
	BuildDir              string
	Env                   map[string]string
	ProjectOverride       *ProjectOverride
	Patches               []string
	CreateFiles           []string
	VendorRustBeforePatch bool
	CPUCoresPerJob        float64
	MemoryPerJobGB        float64
	ExclusiveBuild        bool
	PreBuilt              bool
	WheelServerURL        string
	Changelog             []ChangelogEntry
}

// Get computes the effective settings for canonical name at variant and
// version (version may be empty to skip version-specific overlays).
func (s *Store) Get(name, variant, version string) Effective {
	rec := s.ByName[name]
	eff := Effective{
		DownloadSource:        cmpFirstDL(rec.DownloadSource, s.Global.DownloadSource),
		ResolverDist:          cmpFirstRD(rec.ResolverDist, s.Global.ResolverDist),
		GitOptions:            cmpFirstGO(rec.GitOptions, s.Global.GitOptions),
		BuildDir:              rec.BuildDir,
		Env:                   mergeEnv(s.Global.Env, rec.Env),
		ProjectOverride:       rec.ProjectOverride,
		Patches:               rec.Patches,
		CreateFiles:           rec.CreateFiles,
		VendorRustBeforePatch: rec.VendorRustBeforePatch,
		CPUCoresPerJob:        cmpFirstF(rec.CPUCoresPerJob, s.Global.CPUCoresPerJob, 1),
		MemoryPerJobGB:        cmpFirstF(rec.MemoryPerJobGB, s.Global.MemoryPerJobGB, 1),
		ExclusiveBuild:        rec.ExclusiveBuild,
		Changelog:             rec.Changelog,
	}
	if variant != "" {
		if vo, ok := rec.Variants[variant]; ok {
			eff.PreBuilt = vo.PreBuilt
			eff.WheelServerURL = vo.WheelServerURL
			eff.Env = mergeEnv(eff.Env, vo.Env)
			if version != "" {
				if vv, ok := vo.Versions[version]; ok {
					eff.Env = mergeEnv(eff.Env, vv.Env)
					if len(vv.Patches) > 0 {
						eff.Patches = vv.Patches
					}
					if len(vv.CreateFiles) > 0 {
						eff.CreateFiles = vv.CreateFiles
					}
					if vv.ProjectOverride != nil {
						eff.ProjectOverride = vv.ProjectOverride
					}
				}
			}
		}
	}
	return eff
}

// ApplicableChangelog counts the changelog entries whose Version is empty
// (applies to all versions) or equals version exactly, per spec.md §3's
// build-tag invariant.
func (e Effective) ApplicableChangelog(version string) int {
	n := 0
	for _, c := range e.Changelog {
		if c.Version == "" || c.Version == version {
			n++
		}
	}
	return n
}

// Expand runs templatex.Expand over s with the fixed template variables
// spec.md §4.3 defines (${version}, ${version_base_version},
// ${version_post}, ${canonicalized_name}) plus prior/merged env lookup.
func Expand(s, canonicalName, version, baseVersion, postSuffix string, envSoFar map[string]string) (string, error) {
	fixed := map[string]string{
		"version":              version,
		"version_base_version": baseVersion,
		"version_post":         postSuffix,
		"canonicalized_name":   canonicalName,
	}
	lookup := templatex.ChainLookup(templatex.MapLookup(envSoFar), templatex.EnvironLookup())
	out, err := templatex.Expand(s, fixed, lookup)
	if err != nil {
		return "", errors.Wrap(ErrTemplateExpansion, err.Error())
	}
	return out, nil
}

// ErrTemplateExpansion wraps templatex failures with the settings-layer
// error identity from spec.md §4.3/§7.
var ErrTemplateExpansion = errors.New("template expansion error")

// ExpandEnv expands every value in env in declaration order, so each
// expansion can see the already-expanded values of prior keys in the same
// block (spec.md §4.3: "prior lines of the same env block").
func ExpandEnv(env map[string]string, order []string, canonicalName, version, baseVersion, postSuffix string) (map[string]string, error) {
	out := map[string]string{}
	for _, k := range order {
		v, ok := env[k]
		if !ok {
			continue
		}
		expanded, err := Expand(v, canonicalName, version, baseVersion, postSuffix, out)
		if err != nil {
			return nil, errors.Wrapf(err, "expanding env[%s]", k)
		}
		out[k] = expanded
	}
	return out, nil
}

func mergeEnv(base, overlay map[string]string) map[string]string {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

func cmpFirstDL(a, b *DownloadSource) *DownloadSource {
	if a != nil {
		return a
	}
	return b
}
func cmpFirstRD(a, b *ResolverDist) *ResolverDist {
	if a != nil {
		return a
	}
	return b
}
func cmpFirstGO(a, b *GitOptions) *GitOptions {
	if a != nil {
		return a
	}
	return b
}
func cmpFirstF(a, b, fallback float64) float64 {
	if a != 0 {
		return a
	}
	if b != 0 {
		return b
	}
	return fallback
}
