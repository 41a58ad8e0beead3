package hrw

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOwnerDeterministic(t *testing.T) {
	nodes := []string{"node-a", "node-b", "node-c"}
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("slot:%d", i)
		require.Equal(t, Owner(key, nodes, "seed"), Owner(key, nodes, "seed"))
	}
	require.Empty(t, Owner("slot:1", nil, "seed"))
}

func TestOwnerMinimalReassignment(t *testing.T) {
	nodes := []string{"node-a", "node-b", "node-c", "node-d"}
	survivors := []string{"node-a", "node-b", "node-d"}

	// Keys not owned by the removed node must keep their owner.
	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("slot:%d", i)
		before := Owner(key, nodes, "seed")
		if before == "node-c" {
			continue
		}
		require.Equal(t, before, Owner(key, survivors, "seed"))
	}
}

func TestOwnerSpread(t *testing.T) {
	nodes := []string{"node-a", "node-b", "node-c"}
	counts := map[string]int{}
	for i := 0; i < 3000; i++ {
		counts[Owner(fmt.Sprintf("slot:%d", i), nodes, "seed")]++
	}
	for _, n := range nodes {
		// Loose balance bound; exact spread depends on the hash.
		require.Greater(t, counts[n], 500, "node %s starved", n)
	}
}
