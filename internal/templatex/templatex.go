// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

// Package templatex implements the shell-like template substitution used by
// the Settings Store (spec.md §4.3): "${version}"-style fixed variables
// plus "$NAME", "${NAME}", "${NAME:-default}" shell-style variable
// references, with lookup order: prior lines of the same env block, then
// the merged env map, then the process environment. A literal "$" is
// written "$$". Sub-shell ("$(...)") and extended ("${NAME:+alt}",
// "${NAME#pattern}", etc.) expansions are rejected.
//
// This has no direct analogue in the teacher repo's text/template-based
// pkg/rebuild/flow engine (which expands Go templates, not shell
// variables); the hand-rolled scanner below is a deliberate exception
// justified in DESIGN.md, following the same "small single-pass parser in
// its own file" shape the teacher uses for internal/semver.
package templatex

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnsupportedExpansion is returned for "$(...)" or extended-expansion syntax.
var ErrUnsupportedExpansion = errors.New("unsupported shell expansion")

// Lookup resolves a variable name to a value and whether it is defined.
type Lookup func(name string) (string, bool)

// ChainLookup tries each Lookup in order, returning the first hit.
func ChainLookup(lookups ...Lookup) Lookup {
	return func(name string) (string, bool) {
		for _, l := range lookups {
			if v, ok := l(name); ok {
				return v, true
			}
		}
		return "", false
	}
}

// MapLookup resolves names from a plain map.
func MapLookup(m map[string]string) Lookup {
	return func(name string) (string, bool) {
		v, ok := m[name]
		return v, ok
	}
}

// EnvironLookup resolves names from the process environment.
func EnvironLookup() Lookup {
	return func(name string) (string, bool) {
		return os.LookupEnv(name)
	}
}

// Expand substitutes occurrences of "${version}"-style fixed variables
// (supplied via fixed) and "$NAME"/"${NAME}"/"${NAME:-default}" shell
// variables (resolved via lookup) in s. "$$" is unescaped to a literal "$".
func Expand(s string, fixed map[string]string, lookup Lookup) (string, error) {
	var b strings.Builder
	i := 0
	for i < len(s) {
		c := s[i]
		if c != '$' {
			b.WriteByte(c)
			i++
			continue
		}
		if i+1 < len(s) && s[i+1] == '$' {
			b.WriteByte('$')
			i += 2
			continue
		}
		if i+1 >= len(s) {
			b.WriteByte('$')
			i++
			continue
		}
		if s[i+1] == '(' {
			return "", errors.Wrapf(ErrUnsupportedExpansion, "sub-shell at offset %d in %q", i, s)
		}
		if s[i+1] == '{' {
			end := strings.IndexByte(s[i+2:], '}')
			if end < 0 {
				return "", errors.Errorf("unterminated ${...} at offset %d in %q", i, s)
			}
			body := s[i+2 : i+2+end]
			val, err := expandBraced(body, fixed, lookup)
			if err != nil {
				return "", err
			}
			b.WriteString(val)
			i = i + 2 + end + 1
			continue
		}
		// Bare $NAME: consume identifier chars.
		j := i + 1
		for j < len(s) && isIdentByte(s[j]) {
			j++
		}
		if j == i+1 {
			b.WriteByte('$')
			i++
			continue
		}
		name := s[i+1 : j]
		if v, ok := resolve(name, fixed, lookup); ok {
			b.WriteString(v)
		}
		i = j
	}
	return b.String(), nil
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func expandBraced(body string, fixed map[string]string, lookup Lookup) (string, error) {
	for _, bad := range []string{":+", "#", "%", "/"} {
		if strings.Contains(body, bad) {
			return "", errors.Wrapf(ErrUnsupportedExpansion, "extended expansion ${%s}", body)
		}
	}
	if name, def, ok := strings.Cut(body, ":-"); ok {
		if v, found := resolve(name, fixed, lookup); found && v != "" {
			return v, nil
		}
		expandedDef, err := Expand(def, fixed, lookup)
		if err != nil {
			return "", err
		}
		return expandedDef, nil
	}
	v, _ := resolve(body, fixed, lookup)
	return v, nil
}

func resolve(name string, fixed map[string]string, lookup Lookup) (string, bool) {
	if v, ok := fixed[name]; ok {
		return v, true
	}
	if lookup != nil {
		return lookup(name)
	}
	return "", false
}
