// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

// Package constraints implements the Constraints Store (spec.md §4.4): a
// requirements-file-style document of "name[specifier]" or "name @ URL"
// lines answering "is version V of name N allowed?".
package constraints

import (
	"bufio"
	"io"
	"strings"

	"github.com/fromager-project/fromager/internal/nameutil"
	"github.com/fromager-project/fromager/internal/pep440"
	"github.com/fromager-project/fromager/internal/pep508"
	"github.com/pkg/errors"
)

// ErrDuplicatePin is raised by Parse when two exact "==" pins for the same
// name conflict (spec.md §6). Parse has no mode that suppresses it.
var ErrDuplicatePin = errors.New("conflicting exact version pins")

// Constraint is a single parsed line.
type Constraint struct {
	Name         string // canonical
	SpecifierSet []pep440.Specifier
	Direct       *pep508.DirectURL
}

// Store answers allowed(name, version) queries against a loaded constraints
// document.
type Store struct {
	byName map[string][]Constraint
}

// Parse reads a requirements-file-style document: one constraint per line,
// "#"-prefixed comments and blank lines ignored. Direct-URL constraints are
// accepted only to express a toplevel pin (spec.md §6: "direct-URL only at
// toplevel").
func Parse(r io.Reader) (*Store, error) {
	s := &Store{byName: map[string][]Constraint{}}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		req, err := pep508.Parse(line)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing constraint line %q", line)
		}
		c := Constraint{Name: req.Name, SpecifierSet: req.SpecifierSet, Direct: req.Direct}
		existing := s.byName[c.Name]
		if pin, ok := exactPin(c.SpecifierSet); ok {
			for _, e := range existing {
				if epin, eok := exactPin(e.SpecifierSet); eok && !pep440.Equal(pin, epin) {
					return nil, errors.Wrapf(ErrDuplicatePin, "%s: %s vs %s", c.Name, pin, epin)
				}
			}
		} else if !pep440.Intersects(c.SpecifierSet, unionAllSpecs(existing)) {
			return nil, errors.Wrapf(ErrDuplicatePin, "%s: non-intersecting constraints", c.Name)
		}
		s.byName[c.Name] = append(existing, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading constraints")
	}
	return s, nil
}

func unionAllSpecs(cs []Constraint) []pep440.Specifier {
	var out []pep440.Specifier
	for _, c := range cs {
		out = append(out, c.SpecifierSet...)
	}
	return out
}

func exactPin(specs []pep440.Specifier) (pep440.Version, bool) {
	if len(specs) != 1 || specs[0].Op != pep440.OpEqual || specs[0].Prefix {
		return pep440.Version{}, false
	}
	return specs[0].Version, true
}

// Allowed reports whether version of name satisfies every constraint on
// record for name. A name with no constraints is always allowed.
func (s *Store) Allowed(name string, version pep440.Version) bool {
	name, err := nameutil.Canonicalize(name)
	if err != nil {
		return false
	}
	cs, ok := s.byName[name]
	if !ok {
		return true
	}
	for _, c := range cs {
		if !pep440.Satisfies(version, c.SpecifierSet, true) {
			return false
		}
	}
	return true
}

// Pin returns the exact version pinned for name by an "==" constraint, if
// any. Used to express user version pins when SkipConstraints is active
// (spec.md §4.4).
func (s *Store) Pin(name string) (pep440.Version, bool) {
	for _, c := range s.byName[name] {
		if v, ok := exactPin(c.SpecifierSet); ok {
			return v, true
		}
	}
	return pep440.Version{}, false
}

// AdmitsPrerelease reports whether any constraint on name explicitly
// references a pre-release version (spec.md §4.5).
func (s *Store) AdmitsPrerelease(name string) bool {
	for _, c := range s.byName[name] {
		for _, spec := range c.SpecifierSet {
			if spec.Version.IsPrerelease() {
				return true
			}
		}
	}
	return false
}
