package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/kvclstr-go/core/dispatch"
	"github.com/codewandler/kvclstr-go/ports/kv"
)

func TestIsExpected(t *testing.T) {
	// A random read/write mix misses keys not written yet; a miss is not a
	// workload failure.
	require.True(t, isExpected(kv.ErrNotFound))

	require.True(t, isExpected(dispatch.ErrMaxAttempts))
	require.True(t, isExpected(dispatch.ErrRetryDeadline))
	require.True(t, isExpected(dispatch.ErrClusterDown))
	require.True(t, isExpected(context.DeadlineExceeded))

	// wrapped forms count too
	require.True(t, isExpected(fmt.Errorf("get key-1: %w", kv.ErrNotFound)))
	require.True(t, isExpected(fmt.Errorf("%w: all 3 nodes down", dispatch.ErrClusterDown)))

	require.False(t, isExpected(errors.New("boom")))
	require.False(t, isExpected(context.Canceled))
}
