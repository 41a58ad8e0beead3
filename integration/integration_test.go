package integration

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/kvclstr-go/core/dispatch"
	"github.com/codewandler/kvclstr-go/core/slot"
)

// TestIntegration runs a concurrent workload against an in-memory cluster
// while slots migrate between nodes and nodes bounce. Every write the
// dispatcher acknowledged must be readable afterwards.
func TestIntegration(t *testing.T) {
	const (
		workers     = 8
		opsPerGoro  = 300
		keySpace    = 500
		numNodes    = 5
		churnPeriod = 5 * time.Millisecond
	)

	cluster := dispatch.CreateTestCluster(t, numNodes)

	d, err := dispatch.New(dispatch.Options{
		Provider:          cluster,
		MaxAttempts:       10,
		MaxTotalRetryTime: 5 * time.Second,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// churn: migrate random slots, bounce a node now and then
	var churnWg sync.WaitGroup
	churnWg.Add(1)
	go func() {
		defer churnWg.Done()
		rng := rand.New(rand.NewSource(1))
		nodes := cluster.Nodes()
		ticker := time.NewTicker(churnPeriod)
		defer ticker.Stop()

		for i := 0; ; i++ {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			s := slot.Slot(rng.Intn(slot.Count))
			to := nodes[rng.Intn(len(nodes))]
			if to == cluster.OwnerOf(s) {
				continue
			}
			if err := cluster.BeginMigration(s, to); err != nil {
				continue
			}
			_ = cluster.FinishMigration(ctx, s)

			if i%20 == 19 {
				victim := nodes[rng.Intn(len(nodes))]
				cluster.FailNode(victim)
				time.Sleep(churnPeriod)
				cluster.ReviveNode(victim)
			}
		}
	}()

	// workload: each worker writes its own key range, remembering the
	// last value the dispatcher acknowledged per key
	type ack struct {
		key   string
		value string
	}
	acked := make(chan ack, workers*opsPerGoro)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(w)))
			for i := 0; i < opsPerGoro; i++ {
				key := fmt.Sprintf("w%d-key-%d", w, rng.Intn(keySpace))
				value := fmt.Sprintf("%s@%d", key, i)
				_, err := dispatch.Run(ctx, d, key, func(ctx context.Context, conn dispatch.Conn) (struct{}, error) {
					return struct{}{}, conn.(*dispatch.MemoryConn).Put(ctx, key, []byte(value))
				})
				if err == nil {
					acked <- ack{key: key, value: value}
				}
			}
		}(w)
	}
	wg.Wait()
	cancel()
	churnWg.Wait()
	close(acked)

	// keep the newest acknowledged value per key, in channel order per
	// worker (each key is written by exactly one worker)
	latest := make(map[string]string)
	total := 0
	for a := range acked {
		latest[a.key] = a.value
		total++
	}
	require.NotZero(t, total, "no write ever succeeded")
	t.Logf("acknowledged %d writes across %d keys", total, len(latest))

	// verify: every acknowledged write is readable with the churn stopped
	verify, err := dispatch.New(dispatch.Options{
		Provider:          cluster,
		MaxAttempts:       10,
		MaxTotalRetryTime: 5 * time.Second,
	})
	require.NoError(t, err)

	for key, want := range latest {
		got, err := dispatch.Run(context.Background(), verify, key, func(ctx context.Context, conn dispatch.Conn) ([]byte, error) {
			return conn.(*dispatch.MemoryConn).Get(ctx, key)
		})
		require.NoError(t, err, "key %s lost", key)
		require.Equal(t, want, string(got), "key %s has stale value", key)
	}
}
