// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package templatex

import "testing"

func TestExpandFixed(t *testing.T) {
	fixed := map[string]string{"version": "1.2.3", "canonicalized_name": "stevedore"}
	got, err := Expand("${canonicalized_name}-${version}.tar.gz", fixed, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "stevedore-1.2.3.tar.gz" {
		t.Errorf("got %q", got)
	}
}

func TestExpandShellVariable(t *testing.T) {
	lookup := MapLookup(map[string]string{"FOO": "bar"})
	got, err := Expand("value=$FOO and ${FOO}", nil, lookup)
	if err != nil {
		t.Fatal(err)
	}
	if got != "value=bar and bar" {
		t.Errorf("got %q", got)
	}
}

func TestExpandDefault(t *testing.T) {
	lookup := MapLookup(map[string]string{})
	got, err := Expand("${MISSING:-fallback}", nil, lookup)
	if err != nil {
		t.Fatal(err)
	}
	if got != "fallback" {
		t.Errorf("got %q", got)
	}
}

func TestExpandEscapedDollar(t *testing.T) {
	got, err := Expand("price is $$5", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "price is $5" {
		t.Errorf("got %q", got)
	}
}

func TestExpandRejectsSubshell(t *testing.T) {
	_, err := Expand("$(echo hi)", nil, nil)
	if err == nil {
		t.Errorf("expected error for sub-shell expansion")
	}
}

func TestExpandRejectsExtended(t *testing.T) {
	_, err := Expand("${FOO:+alt}", nil, MapLookup(map[string]string{"FOO": "x"}))
	if err == nil {
		t.Errorf("expected error for extended expansion")
	}
}

func TestLookupOrder(t *testing.T) {
	priorLines := MapLookup(map[string]string{"A": "from-prior-line"})
	merged := MapLookup(map[string]string{"A": "from-merged-env", "B": "from-merged-env"})
	lookup := ChainLookup(priorLines, merged, EnvironLookup())
	got, err := Expand("$A $B", nil, lookup)
	if err != nil {
		t.Fatal(err)
	}
	if got != "from-prior-line from-merged-env" {
		t.Errorf("got %q", got)
	}
}
