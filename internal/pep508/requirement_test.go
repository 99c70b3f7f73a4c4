// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package pep508

import "testing"

func TestParseBasic(t *testing.T) {
	r, err := Parse("Requests[security,socks] >=2.8.1, ==2.8.* ; python_version < '2.7'")
	if err != nil {
		t.Fatal(err)
	}
	if r.Name != "requests" {
		t.Errorf("Name = %q, want requests", r.Name)
	}
	if len(r.Extras) != 2 || r.Extras[0] != "security" || r.Extras[1] != "socks" {
		t.Errorf("Extras = %v", r.Extras)
	}
	if r.Marker != "python_version < '2.7'" {
		t.Errorf("Marker = %q", r.Marker)
	}
	if len(r.SpecifierSet) != 2 {
		t.Errorf("SpecifierSet = %v", r.SpecifierSet)
	}
}

func TestParseDirectURL(t *testing.T) {
	r, err := Parse("pip @ https://github.com/pypa/pip/archive/22.0.tar.gz")
	if err != nil {
		t.Fatal(err)
	}
	if r.Direct == nil || r.Direct.URL != "https://github.com/pypa/pip/archive/22.0.tar.gz" {
		t.Fatalf("Direct = %+v", r.Direct)
	}
	if r.Direct.Scheme != SchemeSdist {
		t.Errorf("Scheme = %v", r.Direct.Scheme)
	}
}

func TestParseDirectURLWithRefAndExtras(t *testing.T) {
	r, err := Parse("foo[bar] @ git+https://example.com/foo.git @ v1.2.3")
	if err != nil {
		t.Fatal(err)
	}
	if r.Direct == nil || r.Direct.Ref != "v1.2.3" {
		t.Fatalf("Direct = %+v", r.Direct)
	}
	if r.Direct.Scheme != SchemeGitHTTP {
		t.Errorf("Scheme = %v", r.Direct.Scheme)
	}
	if len(r.Extras) != 1 || r.Extras[0] != "bar" {
		t.Errorf("Extras = %v", r.Extras)
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse(""); err == nil {
		t.Errorf("expected error for empty requirement")
	}
}
