package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// CreateTestCluster builds a MemoryCluster for a test and tears it down on
// cleanup, failing the test if any connection was leaked.
func CreateTestCluster(t *testing.T, numNodes int) *MemoryCluster {
	t.Helper()

	c, err := NewMemoryCluster(MemoryClusterOptions{
		NumNodes: numNodes,
		Seed:     "test",
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		require.Zero(t, c.Outstanding(), "leaked connections")
		require.NoError(t, c.Close())
	})

	return c
}

// CreateDispatcher builds a Dispatcher over p with default options.
func CreateDispatcher(t *testing.T, p ConnProvider) *Dispatcher {
	t.Helper()

	d, err := New(Options{Provider: p})
	require.NoError(t, err)
	return d
}
