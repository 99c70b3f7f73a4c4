// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package pep440

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// Operator is a PEP 440 comparison operator.
type Operator string

const (
	OpEqual       Operator = "=="
	OpNotEqual    Operator = "!="
	OpLess        Operator = "<"
	OpLessEq      Operator = "<="
	OpGreater     Operator = ">"
	OpGreaterEq   Operator = ">="
	OpCompatible  Operator = "~="
	OpArbitrary   Operator = "==="
	OpEqualPrefix Operator = "==*" // internal marker for trailing ".*"
)

// Specifier is a single version clause, e.g. ">=1.2,!=1.2.1".
type Specifier struct {
	Op      Operator
	Version Version
	// Prefix is true when the clause used a trailing ".*" wildcard (only
	// valid with == and !=).
	Prefix bool
	raw    string
}

var clauseRE = regexp.MustCompile(`^\s*(~=|===|==|!=|<=|>=|<|>)\s*([^\s,]+)\s*$`)

// ParseSpecifierSet parses a comma-separated specifier set such as
// "<2.0.1" or ">=1.0,!=1.5,<2.0". An empty string matches everything.
func ParseSpecifierSet(s string) ([]Specifier, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []Specifier
	for _, clause := range strings.Split(s, ",") {
		m := clauseRE.FindStringSubmatch(clause)
		if m == nil {
			return nil, errors.Errorf("invalid specifier clause %q", clause)
		}
		op, verStr := Operator(m[1]), m[2]
		spec := Specifier{Op: op, raw: clause}
		if (op == OpEqual || op == OpNotEqual) && strings.HasSuffix(verStr, ".*") {
			spec.Prefix = true
			verStr = strings.TrimSuffix(verStr, ".*")
		}
		if op == OpArbitrary {
			spec.Version = Version{raw: verStr}
			spec.Version.Release = releaseSegment{}
			out = append(out, spec)
			continue
		}
		v, err := Parse(verStr)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing version in clause %q", clause)
		}
		spec.Version = v
		out = append(out, spec)
	}
	return out, nil
}

// Satisfies reports whether v satisfies every clause in specs.
// allowPrerelease, when false, additionally rejects v if v is a
// pre-release and no clause explicitly pins a pre-release version.
func Satisfies(v Version, specs []Specifier, allowPrerelease bool) bool {
	if v.IsPrerelease() && !allowPrerelease && !specSetAdmitsPrerelease(specs) {
		return false
	}
	for _, s := range specs {
		if !satisfiesOne(v, s) {
			return false
		}
	}
	return true
}

// specSetAdmitsPrerelease reports whether any clause in specs itself
// references a pre-release version, which per PEP 440 implicitly opts the
// whole evaluation into considering pre-releases.
func specSetAdmitsPrerelease(specs []Specifier) bool {
	for _, s := range specs {
		if s.Version.IsPrerelease() {
			return true
		}
	}
	return false
}

func satisfiesOne(v Version, s Specifier) bool {
	switch s.Op {
	case OpEqual:
		if s.Prefix {
			return releasePrefixMatch(v, s.Version)
		}
		return Equal(v, s.Version) && v.Local == s.Version.Local
	case OpNotEqual:
		if s.Prefix {
			return !releasePrefixMatch(v, s.Version)
		}
		return !(Equal(v, s.Version) && v.Local == s.Version.Local)
	case OpLess:
		return Cmp(v, s.Version) < 0
	case OpLessEq:
		return Cmp(v, s.Version) <= 0
	case OpGreater:
		// A post-release of V itself does not satisfy ">V" unless V is a post-release.
		return Cmp(v, s.Version) > 0 && !(v.PostN >= 0 && s.Version.PostN < 0 && v.Epoch == s.Version.Epoch && v.Release.cmp(s.Version.Release) == 0)
	case OpGreaterEq:
		return Cmp(v, s.Version) >= 0
	case OpCompatible:
		return compatibleRelease(v, s.Version) && Cmp(v, s.Version) >= 0
	case OpArbitrary:
		return v.String() == s.raw[len(s.raw)-len(strings.TrimSpace(strings.TrimPrefix(s.raw, string(OpArbitrary)))):]
	default:
		return false
	}
}

// releasePrefixMatch reports whether v's release tuple starts with base's,
// as used by "==X.Y.*", "!=X.Y.*" and "~=".
func releasePrefixMatch(v, base Version) bool {
	if v.Epoch != base.Epoch {
		return false
	}
	if len(v.Release) < len(base.Release) {
		return false
	}
	for i := range base.Release {
		if v.Release[i] != base.Release[i] {
			return false
		}
	}
	return true
}

// compatibleRelease implements "~=" by truncating the final release
// component: ~=X.Y.Z means >=X.Y.Z, ==X.Y.*.
func compatibleRelease(v, base Version) bool {
	if len(base.Release) < 2 {
		return false
	}
	prefix := Version{Epoch: base.Epoch, Release: base.Release[:len(base.Release)-1]}
	return releasePrefixMatch(v, prefix)
}

// Intersects reports whether two specifier sets can be simultaneously
// satisfied by at least a plausible version, used by the Dependency Graph
// Store's explain-duplicates and the Constraints Store's duplicate check.
// This is a conservative syntactic check: exact "==" pins are compared
// directly; otherwise the sets are assumed to intersect.
func Intersects(a, b []Specifier) bool {
	apin, aok := exactPin(a)
	bpin, bok := exactPin(b)
	if aok && bok {
		return Equal(apin, bpin)
	}
	return true
}

func exactPin(specs []Specifier) (Version, bool) {
	if len(specs) != 1 || specs[0].Op != OpEqual || specs[0].Prefix {
		return Version{}, false
	}
	return specs[0].Version, true
}
