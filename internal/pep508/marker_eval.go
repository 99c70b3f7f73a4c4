// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package pep508

import (
	"strings"

	"github.com/fromager-project/fromager/internal/pep440"
	"github.com/pkg/errors"
)

// parseComparisonFrom finishes parsing an atom that began with token first,
// which names either a marker variable or a string literal value.
func (p *markerParser) parseComparisonFrom(first token) (any, error) {
	lhs, lhsIsVar, err := p.valueOf(first)
	if err != nil {
		return nil, err
	}
	opTok, ok := p.next()
	if !ok {
		return nil, errors.New("expected comparison operator")
	}
	var op string
	switch {
	case opTok.kind == "op":
		op = opTok.val
	case opTok.kind == "word" && strings.ToLower(opTok.val) == "in":
		op = "in"
	case opTok.kind == "word" && strings.ToLower(opTok.val) == "not":
		n, ok := p.next()
		if !ok || n.kind != "word" || strings.ToLower(n.val) != "in" {
			return nil, errors.New("expected 'in' after 'not'")
		}
		op = "not in"
	default:
		return nil, errors.Errorf("unexpected token %q in marker comparison", opTok.val)
	}
	rhsTok, ok := p.next()
	if !ok {
		return nil, errors.New("expected right-hand side of comparison")
	}
	rhs, _, err := p.valueOf(rhsTok)
	if err != nil {
		return nil, err
	}
	_ = lhsIsVar
	return compare(lhs, op, rhs), nil
}

// valueOf resolves a token to its marker value: variable lookup for bare
// words that name known marker variables, literal text otherwise.
func (p *markerParser) valueOf(t token) (string, bool, error) {
	switch t.kind {
	case "string":
		return t.val, false, nil
	case "word":
		if v, ok := p.env[strings.ToLower(t.val)]; ok {
			return v, true, nil
		}
		return t.val, false, nil
	default:
		return "", false, errors.Errorf("unexpected token %q", t.val)
	}
}

func compare(lhs, op, rhs string) bool {
	switch op {
	case "==":
		if lv, err1 := pep440.Parse(lhs); err1 == nil {
			if rv, err2 := pep440.Parse(rhs); err2 == nil {
				return pep440.Equal(lv, rv)
			}
		}
		return lhs == rhs
	case "!=":
		return !compare(lhs, "==", rhs)
	case "in":
		return strings.Contains(rhs, lhs)
	case "not in":
		return !strings.Contains(rhs, lhs)
	case "<", "<=", ">", ">=", "~=":
		lv, err1 := pep440.Parse(lhs)
		rv, err2 := pep440.Parse(rhs)
		if err1 != nil || err2 != nil {
			return stringCompare(lhs, op, rhs)
		}
		c := pep440.Cmp(lv, rv)
		switch op {
		case "<":
			return c < 0
		case "<=":
			return c <= 0
		case ">":
			return c > 0
		case ">=":
			return c >= 0
		case "~=":
			specs, err := pep440.ParseSpecifierSet("~=" + rhs)
			if err != nil {
				return false
			}
			return pep440.Satisfies(lv, specs, true)
		}
	}
	return false
}

func stringCompare(lhs, op, rhs string) bool {
	c := strings.Compare(lhs, rhs)
	switch op {
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	case ">=":
		return c >= 0
	default:
		return false
	}
}
