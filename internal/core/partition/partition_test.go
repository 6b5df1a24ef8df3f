package partition

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFor_StableAndInRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("user-%d#product-%d", i, i%7)
		shard := For(key)
		require.GreaterOrEqual(t, shard, 0)
		require.Less(t, shard, Count)
		require.Equal(t, shard, For(key), "same key must map to the same shard")
	}
}

func TestFor_SpreadsKeys(t *testing.T) {
	seen := make(map[int]bool)
	for i := 0; i < 1000; i++ {
		seen[For(fmt.Sprintf("user-%d#p1", i))] = true
	}
	// 1000 keys over 256 shards should hit a large fraction of them.
	require.Greater(t, len(seen), Count/2)
}
