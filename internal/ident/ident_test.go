package ident

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewToken(t *testing.T) {
	t.Parallel()
	seen := map[string]bool{}
	urlSafe := regexp.MustCompile(`^[A-Za-z0-9_-]{22}$`)
	for i := 0; i < 100; i++ {
		tok, err := NewToken()
		require.NoError(t, err)
		require.Regexp(t, urlSafe, tok)
		require.False(t, seen[tok], "duplicate token")
		seen[tok] = true
	}
}

func TestNewGroupID(t *testing.T) {
	t.Parallel()
	re := regexp.MustCompile(`^[a-zA-Z0-9]{16}$`)
	for i := 0; i < 100; i++ {
		id, err := NewGroupID()
		require.NoError(t, err)
		require.Regexp(t, re, id)
	}
}
