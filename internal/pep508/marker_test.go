// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package pep508

import "testing"

func TestEvaluateMarker(t *testing.T) {
	env := DefaultEnvironment("3.11", "3.11.4", "linux", "CPython")
	tests := []struct {
		expr string
		want bool
	}{
		{"", true},
		{"python_version >= '3.10'", true},
		{"python_version < '3.10'", false},
		{"sys_platform == 'linux'", true},
		{"sys_platform == 'win32' or python_version >= '3.10'", true},
		{"sys_platform == 'win32' and python_version >= '3.10'", false},
		{"not (sys_platform == 'win32')", true},
		{"extra == 'test'", false},
	}
	for _, tt := range tests {
		got, err := Evaluate(tt.expr, env, "")
		if err != nil {
			t.Fatalf("Evaluate(%q): %v", tt.expr, err)
		}
		if got != tt.want {
			t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestEvaluateExtra(t *testing.T) {
	env := DefaultEnvironment("3.11", "3.11.4", "linux", "CPython")
	got, err := Evaluate("extra == 'test'", env, "test")
	if err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Errorf("expected extra == 'test' to hold when extra=test")
	}
}
