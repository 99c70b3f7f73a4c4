// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package pep440

import "testing"

func TestParseAndString(t *testing.T) {
	tests := []struct{ in, want string }{
		{"1.2.3", "1.2.3"},
		{"2.0rc3", "2.0rc3"},
		{"1.0.dev1", "1.0.dev1"},
		{"1.0.post1", "1.0.post1"},
		{"1!1.0", "1!1.0"},
	}
	for _, tt := range tests {
		v, err := Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.in, err)
		}
		if got := v.String(); got != tt.want {
			t.Errorf("Parse(%q).String() = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCmpOrdering(t *testing.T) {
	// a < b < rc < final < post, with dev sorting below its base.
	ordered := []string{
		"1.0.dev1",
		"1.0a1",
		"1.0a2",
		"1.0b1",
		"1.0rc1",
		"1.0",
		"1.0.post1",
		"2.0",
	}
	for i := 0; i < len(ordered)-1; i++ {
		a := MustParse(ordered[i])
		b := MustParse(ordered[i+1])
		if !Less(a, b) {
			t.Errorf("expected %s < %s", ordered[i], ordered[i+1])
		}
	}
}

func TestIsPrerelease(t *testing.T) {
	if !MustParse("2.0rc3").IsPrerelease() {
		t.Errorf("2.0rc3 should be prerelease")
	}
	if MustParse("2.0").IsPrerelease() {
		t.Errorf("2.0 should not be prerelease")
	}
}

func TestSatisfiesPrereleaseGating(t *testing.T) {
	specs, err := ParseSpecifierSet("<2.0.1")
	if err != nil {
		t.Fatal(err)
	}
	// flit_core<2.0.1, with a constraint pinning 2.0rc3 explicitly, should
	// admit the prerelease (scenario B in spec.md).
	rcSpecs, _ := ParseSpecifierSet("==2.0rc3")
	v := MustParse("2.0rc3")
	if Satisfies(v, specs, false) {
		t.Errorf("bare specifier set should not silently admit a prerelease")
	}
	if !Satisfies(v, rcSpecs, false) {
		t.Errorf("exact prerelease pin should satisfy itself without the flag")
	}
}

func TestCompatibleRelease(t *testing.T) {
	specs, err := ParseSpecifierSet("~=1.4.2")
	if err != nil {
		t.Fatal(err)
	}
	if !Satisfies(MustParse("1.4.5"), specs, false) {
		t.Errorf("1.4.5 should satisfy ~=1.4.2")
	}
	if Satisfies(MustParse("1.5.0"), specs, false) {
		t.Errorf("1.5.0 should not satisfy ~=1.4.2")
	}
}

func TestPrefixMatch(t *testing.T) {
	specs, err := ParseSpecifierSet("==1.2.*")
	if err != nil {
		t.Fatal(err)
	}
	if !Satisfies(MustParse("1.2.5"), specs, false) {
		t.Errorf("1.2.5 should match ==1.2.*")
	}
	if Satisfies(MustParse("1.3.0"), specs, false) {
		t.Errorf("1.3.0 should not match ==1.2.*")
	}
}
