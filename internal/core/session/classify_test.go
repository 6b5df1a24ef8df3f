package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActionSet_Contains(t *testing.T) {
	s := NewActionSet(DefaultActionCodes)

	require.True(t, s.Contains("a"))
	require.True(t, s.Contains("b"))
	require.True(t, s.Contains("c"))

	// Total: unknown codes classify as not-an-action, never an error.
	require.False(t, s.Contains("d"))
	require.False(t, s.Contains(""))
	require.False(t, s.Contains("A"))
}

func TestActionSet_Empty(t *testing.T) {
	s := NewActionSet(nil)
	require.False(t, s.Contains("a"))
}
