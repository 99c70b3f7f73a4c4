// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

// Package pep508 parses PEP 508 requirement strings, extended with the
// direct-URL forms fromager accepts at the top level: "name @ url" and
// "name[extras] @ url @ ref".
package pep508

import (
	"regexp"
	"strings"

	"github.com/fromager-project/fromager/internal/nameutil"
	"github.com/fromager-project/fromager/internal/pep440"
	"github.com/pkg/errors"
)

// ErrInvalidRequirement is returned for any syntactically invalid requirement string.
var ErrInvalidRequirement = errors.New("invalid requirement")

// DirectURLScheme tags the transport implied by a direct-URL requirement.
type DirectURLScheme string

const (
	SchemeSdist   DirectURLScheme = "sdist"
	SchemeArchive DirectURLScheme = "archive"
	SchemeGitHTTP DirectURLScheme = "git+https"
	SchemeGitSSH  DirectURLScheme = "git+ssh"
)

// DirectURL describes a requirement pinned directly to a source location
// rather than resolved through a provider.
type DirectURL struct {
	Scheme DirectURLScheme
	URL    string
	// Ref is a git tag, branch, or commit; empty for sdist/archive.
	Ref string
}

// Requirement is a parsed PEP 508 requirement.
type Requirement struct {
	Name           string // canonical name
	RawName        string // name as written
	Extras         []string
	SpecifierSet   []pep440.Specifier
	RawSpecifier   string
	Marker         string // raw, unevaluated marker expression; empty if absent
	Direct         *DirectURL
	RawRequirement string
}

var nameRE = regexp.MustCompile(`^\s*([A-Za-z0-9][A-Za-z0-9._-]*)\s*`)
var extrasRE = regexp.MustCompile(`^\[\s*([^\]]*)\s*\]\s*`)

// Parse parses a PEP 508 requirement string, additionally accepting the
// direct-URL forms "name @ url" and "name[extras] @ url @ ref". Only
// top-level/CLI/constraints callers should retain the Direct field;
// internal graph edges must never carry one (spec.md §3).
func Parse(s string) (Requirement, error) {
	raw := s
	rest := s
	m := nameRE.FindStringSubmatch(rest)
	if m == nil {
		return Requirement{}, errors.Wrapf(ErrInvalidRequirement, "no package name in %q", s)
	}
	rawName := m[1]
	rest = rest[len(m[0]):]
	canonical, err := nameutil.Canonicalize(rawName)
	if err != nil {
		return Requirement{}, errors.Wrap(ErrInvalidRequirement, err.Error())
	}
	req := Requirement{Name: canonical, RawName: rawName, RawRequirement: raw}
	if em := extrasRE.FindStringSubmatch(rest); em != nil {
		rest = rest[len(em[0]):]
		for _, e := range strings.Split(em[1], ",") {
			e = strings.TrimSpace(e)
			if e != "" {
				req.Extras = append(req.Extras, strings.ToLower(e))
			}
		}
	}
	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, "@") {
		// Direct URL form: name @ url [@ ref]
		rest = strings.TrimSpace(strings.TrimPrefix(rest, "@"))
		parts := strings.SplitN(rest, "@", 2)
		url := strings.TrimSpace(parts[0])
		// A marker may still trail a URL, separated by ";".
		if semi := strings.Index(url, ";"); semi >= 0 {
			req.Marker = strings.TrimSpace(url[semi+1:])
			url = strings.TrimSpace(url[:semi])
		}
		du := &DirectURL{URL: url, Scheme: inferScheme(url)}
		if len(parts) == 2 {
			ref := strings.TrimSpace(parts[1])
			if semi := strings.Index(ref, ";"); semi >= 0 {
				req.Marker = strings.TrimSpace(ref[semi+1:])
				ref = strings.TrimSpace(ref[:semi])
			}
			du.Ref = ref
		}
		req.Direct = du
		return req, nil
	}
	// Specifier set, up to an optional marker introduced by ";".
	if semi := strings.Index(rest, ";"); semi >= 0 {
		req.RawSpecifier = strings.TrimSpace(rest[:semi])
		req.Marker = strings.TrimSpace(rest[semi+1:])
	} else {
		req.RawSpecifier = strings.TrimSpace(rest)
	}
	// Parenthesized specifier sets, e.g. "foo (>=1.0,<2.0)".
	req.RawSpecifier = strings.TrimSuffix(strings.TrimPrefix(req.RawSpecifier, "("), ")")
	specs, err := pep440.ParseSpecifierSet(req.RawSpecifier)
	if err != nil {
		return Requirement{}, errors.Wrapf(ErrInvalidRequirement, "bad specifier in %q: %v", s, err)
	}
	req.SpecifierSet = specs
	return req, nil
}

func inferScheme(url string) DirectURLScheme {
	switch {
	case strings.HasPrefix(url, "git+https://"):
		return SchemeGitHTTP
	case strings.HasPrefix(url, "git+ssh://"):
		return SchemeGitSSH
	case strings.HasSuffix(url, ".whl"):
		return SchemeArchive
	case strings.HasSuffix(url, ".tar.gz"), strings.HasSuffix(url, ".zip"), strings.HasSuffix(url, ".tgz"):
		return SchemeSdist
	default:
		return SchemeArchive
	}
}

// Satisfies reports whether version satisfies the requirement's specifier
// set. allowPrerelease additionally admits pre-release versions even when
// the specifier set does not itself reference one.
func (r Requirement) Satisfies(version pep440.Version, allowPrerelease bool) bool {
	return pep440.Satisfies(version, r.SpecifierSet, allowPrerelease)
}

// AdmitsPrerelease reports whether the requirement's specifier set explicitly
// admits pre-release versions (i.e. references one directly).
func (r Requirement) AdmitsPrerelease() bool {
	for _, s := range r.SpecifierSet {
		if s.Version.IsPrerelease() {
			return true
		}
	}
	return false
}
