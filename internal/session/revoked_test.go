package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRevokedTokenSet_RevokeAndCheck(t *testing.T) {
	s := NewRevokedTokenSet()
	require.False(t, s.IsRevoked("tok-1"))

	s.Revoke("tok-1", time.Now())
	require.True(t, s.IsRevoked("tok-1"))
	require.Equal(t, 1, s.Len())
}

func TestRevokedTokenSet_EvictsOldestAtCapacity(t *testing.T) {
	s := NewRevokedTokenSet()
	now := time.Now()

	for i := 0; i < maxRevoked; i++ {
		s.Revoke(string(rune(i)), now)
	}
	require.Equal(t, maxRevoked, s.Len())

	s.Revoke("one-more", now)
	require.Equal(t, maxRevoked, s.Len(), "set must stay bounded at capacity")
	require.True(t, s.IsRevoked("one-more"))
	require.False(t, s.IsRevoked(string(rune(0))), "oldest entry must be evicted first")
}
