package ident

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_New_Unique(t *testing.T) {
	g, err := NewGenerator(1)
	require.NoError(t, err)

	seen := make(map[string]struct{}, 5000)
	for range 5000 {
		id := g.New(PrefixComment)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestGenerator_New_Prefix(t *testing.T) {
	g := ProcessGenerator()
	assert.True(t, strings.HasPrefix(g.New(PrefixThread), "t_"))
	assert.True(t, strings.HasPrefix(g.New(PrefixReply), "r_"))
}

func TestNewGenerator_InvalidNode(t *testing.T) {
	_, err := NewGenerator(4096)
	assert.Error(t, err)
}

func TestSessionID(t *testing.T) {
	a, b := SessionID(), SessionID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}
