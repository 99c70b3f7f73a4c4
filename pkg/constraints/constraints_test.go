// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package constraints

import (
	"strings"
	"testing"

	"github.com/fromager-project/fromager/internal/pep440"
	"github.com/stretchr/testify/require"
)

func TestParseAndAllowed(t *testing.T) {
	s, err := Parse(strings.NewReader(`
# a comment
flit_core==2.0rc3
stevedore>=5.0,<6.0
`))
	require.NoError(t, err)
	require.True(t, s.Allowed("stevedore", pep440.MustParse("5.2.0")))
	require.False(t, s.Allowed("stevedore", pep440.MustParse("6.0.0")))

	pin, ok := s.Pin("flit-core")
	require.True(t, ok)
	require.Equal(t, "2.0rc3", pin.String())
}

func TestParseConflictingPinsRejected(t *testing.T) {
	_, err := Parse(strings.NewReader("django==3.2.0\ndjango==4.0.0\n"))
	require.ErrorIs(t, err, ErrDuplicatePin)
}

func TestAllowedWithNoConstraints(t *testing.T) {
	s, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	require.True(t, s.Allowed("anything", pep440.MustParse("1.0.0")))
}
