// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"os"
	"path/filepath"

	"github.com/fromager-project/fromager/internal/nameutil"
	"github.com/fromager-project/fromager/pkg/settings"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// applyProjectOverride edits pyproject.toml at sourceRoot per spec.md §4.7:
// load, remove listed build/install requires by canonical name match,
// replace-or-insert updated build/install requires, write back. Both
// build-requires edits (on [build-system].requires) and install-requires
// edits (on [project].dependencies) are applied, matching the
// `project_override.update_build_requires`/`update_install_requires`
// settings shape (spec.md §3).
func applyProjectOverride(sourceRoot string, override settings.ProjectOverride) error {
	path := filepath.Join(sourceRoot, "pyproject.toml")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(ErrPyProjectMalformed, err.Error())
	}
	var doc map[string]any
	if err := toml.Unmarshal(raw, &doc); err != nil {
		return errors.Wrap(ErrPyProjectMalformed, err.Error())
	}

	if bs, ok := doc["build-system"].(map[string]any); ok {
		reqs := toStringSlice(bs["requires"])
		reqs = removeByCanonicalName(reqs, override.RemoveBuildRequires)
		reqs = replaceOrInsert(reqs, override.UpdateBuildRequires)
		bs["requires"] = reqs
		doc["build-system"] = bs
	} else if len(override.UpdateBuildRequires) > 0 {
		doc["build-system"] = map[string]any{"requires": replaceOrInsert(nil, override.UpdateBuildRequires)}
	}

	if proj, ok := doc["project"].(map[string]any); ok {
		reqs := toStringSlice(proj["dependencies"])
		reqs = removeByCanonicalName(reqs, override.RemoveInstallRequires)
		reqs = replaceOrInsert(reqs, override.UpdateInstallRequires)
		proj["dependencies"] = reqs
		doc["project"] = proj
	} else if len(override.UpdateInstallRequires) > 0 {
		doc["project"] = map[string]any{"dependencies": replaceOrInsert(nil, override.UpdateInstallRequires)}
	}

	out, err := toml.Marshal(doc)
	if err != nil {
		return errors.Wrap(ErrPyProjectMalformed, err.Error())
	}
	return os.WriteFile(path, out, 0o644)
}

func toStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// removeByCanonicalName drops every entry from reqs whose canonical package
// name matches any name in names, per spec.md §4.7's "remove listed
// build-requires by canonical name match".
func removeByCanonicalName(reqs []string, names []string) []string {
	if len(names) == 0 {
		return reqs
	}
	drop := map[string]bool{}
	for _, n := range names {
		if c, err := nameutil.Canonicalize(n); err == nil {
			drop[c] = true
		}
	}
	var out []string
	for _, r := range reqs {
		if drop[requirementName(r)] {
			continue
		}
		out = append(out, r)
	}
	return out
}

// replaceOrInsert applies each entry of updates to reqs: every existing
// entry naming the same canonical package is removed, then the new entry is
// appended once. This is what "applying project_override.update_build_
// requires: [numpy==2.0] to a pyproject.toml with four marker-differentiated
// numpy entries replaces all four with the one" (spec.md §8) requires.
func replaceOrInsert(reqs []string, updates []string) []string {
	for _, u := range updates {
		name := requirementName(u)
		var kept []string
		for _, r := range reqs {
			if requirementName(r) != name {
				kept = append(kept, r)
			}
		}
		reqs = append(kept, u)
	}
	return reqs
}

// requirementName extracts the canonical package name from a raw PEP 508
// requirement string without fully parsing it (malformed entries degrade to
// the empty name rather than failing the whole override).
func requirementName(raw string) string {
	i := 0
	for i < len(raw) {
		c := raw[i]
		if c == '[' || c == '(' || c == ';' || c == ' ' || c == '>' || c == '<' || c == '=' || c == '!' || c == '~' || c == '@' {
			break
		}
		i++
	}
	name, err := nameutil.Canonicalize(raw[:i])
	if err != nil {
		return ""
	}
	return name
}
