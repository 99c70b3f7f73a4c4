// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

// Package nameutil implements package-name canonicalization per PEP 503.
package nameutil

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// ErrEmptyName is returned when canonicalizing or overridifying an empty string.
var ErrEmptyName = errors.New("package name must not be empty")

var separatorRE = regexp.MustCompile(`[-_.]+`)

// Canonicalize lowercases name and collapses runs of "-", "_", "." into a
// single "-", per PEP 503. Two requirements name the same package iff their
// canonical names are equal.
func Canonicalize(name string) (string, error) {
	if name == "" {
		return "", ErrEmptyName
	}
	return separatorRE.ReplaceAllString(strings.ToLower(name), "-"), nil
}

// MustCanonicalize is like Canonicalize but panics on error. Intended for
// use with compile-time-known constant names.
func MustCanonicalize(name string) string {
	c, err := Canonicalize(name)
	if err != nil {
		panic(err)
	}
	return c
}

// Overridify derives the override form of a canonical name: "-" becomes "_".
// Used to key the per-package settings and patch directories, where file and
// directory names cannot contain "-"-delimited ambiguity with underscores.
func Overridify(name string) (string, error) {
	canonical, err := Canonicalize(name)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(canonical, "-", "_"), nil
}

// Equal reports whether two raw names refer to the same canonical package.
func Equal(a, b string) bool {
	ca, errA := Canonicalize(a)
	cb, errB := Canonicalize(b)
	return errA == nil && errB == nil && ca == cb
}
