// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

// Package pep440 implements PEP 440 version parsing, ordering, and
// specifier-set evaluation.
//
// The parsing technique (a single anchored regex with named capture groups,
// feeding a plain struct, plus a hand-rolled Cmp) mirrors internal/semver in
// the teacher repository; PEP 440 has no equivalent to the teacher's
// reliance on an upstream semver package, so the same regex+struct approach
// is reused rather than reaching for an unrelated semver library (see
// DESIGN.md).
package pep440

import (
	"cmp"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidVersion is returned when a version string does not conform to PEP 440.
var ErrInvalidVersion = errors.New("invalid version")

// releaseSegment holds the numeric dot-separated release tuple, e.g. 1.2.3.
type releaseSegment []int

func (r releaseSegment) cmp(o releaseSegment) int {
	for i := 0; i < max(len(r), len(o)); i++ {
		var a, b int
		if i < len(r) {
			a = r[i]
		}
		if i < len(o) {
			b = o[i]
		}
		if a != b {
			return cmp.Compare(a, b)
		}
	}
	return 0
}

func (r releaseSegment) String() string {
	parts := make([]string, len(r))
	for i, v := range r {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ".")
}

// Version represents a single PEP 440 version.
type Version struct {
	raw     string
	Epoch   int
	Release releaseSegment
	// Pre is the pre-release phase ("a", "b", "rc") and number; PreN is -1 if absent.
	Pre  string
	PreN int
	// PostN is the post-release number; -1 if absent.
	PostN int
	// DevN is the dev-release number; -1 if absent.
	DevN int
	// Local is the local version segment, verbatim, empty if absent.
	Local string
}

var versionRE = regexp.MustCompile(`(?i)^\s*v?` +
	`(?:(?P<epoch>[0-9]+)!)?` +
	`(?P<release>[0-9]+(?:\.[0-9]+)*)` +
	`(?P<pre>[-_.]?(?P<pre_l>a|b|c|rc|alpha|beta|pre|preview)[-_.]?(?P<pre_n>[0-9]+)?)?` +
	`(?P<post>(?:-(?P<post_n1>[0-9]+))|(?:[-_.]?(?:post|rev|r)[-_.]?(?P<post_n2>[0-9]+)?))?` +
	`(?P<dev>[-_.]?dev[-_.]?(?P<dev_n>[0-9]+)?)?` +
	`(?:\+(?P<local>[a-z0-9]+(?:[-_.][a-z0-9]+)*))?` +
	`\s*$`)

var preLAliases = map[string]string{
	"alpha": "a", "a": "a",
	"beta": "b", "b": "b",
	"c": "rc", "rc": "rc", "pre": "rc", "preview": "rc",
}

// Parse parses a PEP 440 version string.
func Parse(s string) (Version, error) {
	m := versionRE.FindStringSubmatch(s)
	if m == nil {
		return Version{}, errors.Wrap(ErrInvalidVersion, s)
	}
	names := versionRE.SubexpNames()
	group := func(name string) string {
		for i, n := range names {
			if n == name {
				return m[i]
			}
		}
		return ""
	}
	v := Version{raw: s, PreN: -1, PostN: -1, DevN: -1}
	if e := group("epoch"); e != "" {
		v.Epoch, _ = strconv.Atoi(e)
	}
	for _, part := range strings.Split(group("release"), ".") {
		n, _ := strconv.Atoi(part)
		v.Release = append(v.Release, n)
	}
	if preL := group("pre_l"); preL != "" {
		v.Pre = preLAliases[strings.ToLower(preL)]
		v.PreN = 0
		if n := group("pre_n"); n != "" {
			v.PreN, _ = strconv.Atoi(n)
		}
	}
	if postN := cmp.Or(group("post_n1"), group("post_n2")); postN != "" {
		v.PostN, _ = strconv.Atoi(postN)
	} else if group("post") != "" {
		v.PostN = 0
	}
	if group("dev") != "" {
		v.DevN = 0
		if n := group("dev_n"); n != "" {
			v.DevN, _ = strconv.Atoi(n)
		}
	}
	v.Local = group("local")
	return v, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String renders the version in normalized PEP 440 form.
func (v Version) String() string {
	var b strings.Builder
	if v.Epoch != 0 {
		fmt.Fprintf(&b, "%d!", v.Epoch)
	}
	b.WriteString(v.Release.String())
	if v.PreN >= 0 {
		fmt.Fprintf(&b, "%s%d", v.Pre, v.PreN)
	}
	if v.PostN >= 0 {
		fmt.Fprintf(&b, ".post%d", v.PostN)
	}
	if v.DevN >= 0 {
		fmt.Fprintf(&b, ".dev%d", v.DevN)
	}
	if v.Local != "" {
		fmt.Fprintf(&b, "+%s", v.Local)
	}
	return b.String()
}

// IsPrerelease reports whether v is a pre-release or dev-release.
func (v Version) IsPrerelease() bool {
	return v.PreN >= 0 || v.DevN >= 0
}

// BaseVersion drops pre/post/dev/local segments, keeping epoch and release only.
func (v Version) BaseVersion() Version {
	return Version{Epoch: v.Epoch, Release: v.Release, PreN: -1, PostN: -1, DevN: -1}
}

// WithoutLocal drops only the local version segment, keeping pre/post/dev.
// Used to key per-version patch directories, which spec.md §4.7 names by
// "<override_name>-<version_no_local>".
func (v Version) WithoutLocal() Version {
	v.Local = ""
	return v
}

// preRank orders pre-release phases: dev < a < b < rc < "no prerelease" < post.
func preRank(v Version) int {
	switch {
	case v.DevN >= 0 && v.PreN < 0:
		return 0
	case v.Pre == "a":
		return 1
	case v.Pre == "b":
		return 2
	case v.Pre == "rc":
		return 3
	default:
		return 4
	}
}

// Cmp compares two versions per PEP 440 ordering rules: epoch, release,
// pre-release phase/number (a < b < rc < final), post-release, dev-release,
// with final < post and pre-release/dev sorting below the corresponding
// final release.
func Cmp(a, b Version) int {
	if a.Epoch != b.Epoch {
		return cmp.Compare(a.Epoch, b.Epoch)
	}
	if c := a.Release.cmp(b.Release); c != 0 {
		return c
	}
	// Within the same release, a dev-only version (no pre marker) sorts
	// before any pre-release, which sorts before the final release, which
	// sorts before any post-release.
	if c := cmp.Compare(preRank(a), preRank(b)); c != 0 {
		return c
	}
	if a.PreN >= 0 && b.PreN >= 0 {
		if c := cmp.Compare(a.PreN, b.PreN); c != 0 {
			return c
		}
	}
	// dev segment on an otherwise-equal pre/final release: dev < non-dev.
	aDev, bDev := a.DevN >= 0, b.DevN >= 0
	if aDev != bDev {
		if aDev {
			return -1
		}
		return 1
	}
	if aDev && bDev {
		if c := cmp.Compare(a.DevN, b.DevN); c != 0 {
			return c
		}
	}
	aPost, bPost := a.PostN >= 0, b.PostN >= 0
	if aPost != bPost {
		if aPost {
			return 1
		}
		return -1
	}
	if aPost && bPost {
		if c := cmp.Compare(a.PostN, b.PostN); c != 0 {
			return c
		}
	}
	return 0
}

// Less reports whether a orders strictly before b.
func Less(a, b Version) bool { return Cmp(a, b) < 0 }

// Equal reports whether a and b are the same version (local segment ignored,
// per PEP 440 public-version-identifier equality).
func Equal(a, b Version) bool { return Cmp(a, b) == 0 }
