// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package wheel

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// FingerprintInputs gathers every input spec.md §3 says could affect a
// built wheel: settings YAML hashes, patch file contents in order, variant
// name, active env vars destined for the builder, resolver-provider
// identity, and override-plugin module identity.
type FingerprintInputs struct {
	SettingsYAML    []byte
	PatchContents   [][]byte // in application order
	Variant         string
	Env             map[string]string
	ResolverName    string
	OverridePlugin  string
}

// Fingerprint computes the deterministic digest used to decide whether a
// cached wheel is reusable (spec.md §3, §8 testable property 5).
func Fingerprint(in FingerprintInputs) string {
	h := sha256.New()
	h.Write(in.SettingsYAML)
	for _, p := range in.PatchContents {
		h.Write(p)
	}
	h.Write([]byte(in.Variant))
	keys := make([]string, 0, len(in.Env))
	for k := range in.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte("="))
		h.Write([]byte(in.Env[k]))
		h.Write([]byte("\x00"))
	}
	h.Write([]byte(in.ResolverName))
	h.Write([]byte(in.OverridePlugin))
	return hex.EncodeToString(h.Sum(nil))
}

// FingerprintEnvSubset filters env down to the keys destined for the
// builder subprocess, matching only the keys present in allowed (case
// sensitive, as env vars are on POSIX).
func FingerprintEnvSubset(env map[string]string, allowed []string) map[string]string {
	out := make(map[string]string, len(allowed))
	for _, k := range allowed {
		if v, ok := env[k]; ok {
			out[k] = v
		}
	}
	return out
}

// CacheKey is a human-debuggable cache key combining name, version, variant
// and the fingerprint, used to name entries under the wheel cache.
func CacheKey(name, version, variant, fingerprint string) string {
	parts := []string{name, version}
	if variant != "" {
		parts = append(parts, variant)
	}
	parts = append(parts, fingerprint[:12])
	return strings.Join(parts, "-")
}
