package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	promadapter "github.com/codewandler/kvclstr-go/adapters/prometheus"
	"github.com/codewandler/kvclstr-go/core/dispatch"
	"github.com/codewandler/kvclstr-go/core/slot"
	"github.com/codewandler/kvclstr-go/ports/kv"
)

// === Config ===

var (
	logLevel    = slog.LevelInfo
	N           = getEnvInt("N", 200_000)
	workers     = getEnvInt("W", 16)
	numNodes    = getEnvInt("NODES", 5)
	keySpace    = getEnvInt("KEYS", 10_000)
	churn       = getEnvBool("CHURN", true)
	churnEvery  = getEnvInt("CHURN_MS", 50)
	maxAttempts = getEnvInt("ATTEMPTS", 5)
)

func getEnvBool(key string, fallback bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	return v == "1" || strings.ToLower(v) == "true"
}

func getEnv(key, fallback string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, fmt.Sprintf("%d", fallback)))
	if err != nil {
		return fallback
	}
	return v
}

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	cluster, err := dispatch.NewMemoryCluster(dispatch.MemoryClusterOptions{
		Log:      log,
		NumNodes: numNodes,
		Seed:     "loadtest",
	})
	checkErr(err)
	defer cluster.Close()

	reg := prom.NewRegistry()

	d, err := dispatch.New(dispatch.Options{
		Log:         log,
		Provider:    cluster,
		MaxAttempts: maxAttempts,
		Metrics:     promadapter.NewDispatchMetrics(reg),
	})
	checkErr(err)

	fmt.Printf("  nodes: %d\n", numNodes)
	fmt.Printf("workers: %d\n", workers)
	fmt.Printf("    ops: %d\n", N)
	fmt.Printf("  churn: %s\n", strconv.FormatBool(churn))

	// === churn: migrate slots and bounce nodes while the workload runs ===

	churnCtx, stopChurn := context.WithCancel(ctx)
	var churnWg sync.WaitGroup
	if churn {
		churnWg.Add(1)
		go func() {
			defer churnWg.Done()
			runChurn(churnCtx, log, cluster)
		}()
	}

	// === workload ===

	log.Info("starting workload")
	startAt := time.Now()

	var (
		wg       sync.WaitGroup
		ops      atomic.Int64
		failures atomic.Int64
	)
	perWorker := N / workers
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(w)))
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("key-%d", rng.Intn(keySpace))
				var err error
				if rng.Intn(2) == 0 {
					_, err = dispatch.Run(ctx, d, key, func(ctx context.Context, conn dispatch.Conn) (struct{}, error) {
						return struct{}{}, conn.(*dispatch.MemoryConn).Put(ctx, key, []byte(key))
					})
				} else {
					_, err = dispatch.Run(ctx, d, key, func(ctx context.Context, conn dispatch.Conn) ([]byte, error) {
						return conn.(*dispatch.MemoryConn).Get(ctx, key)
					})
				}
				ops.Add(1)
				if err != nil && !isExpected(err) {
					failures.Add(1)
					log.Error("unexpected failure", slog.String("key", key), slog.Any("error", err))
				}
			}
		}(w)
	}
	wg.Wait()

	stopChurn()
	churnWg.Wait()

	took := time.Since(startAt)

	// === stats ===

	fmt.Println("==========================================")
	fmt.Printf("total runtime: %.3f seconds\n", took.Seconds())
	fmt.Printf("          ops: %d\n", ops.Load())
	fmt.Printf("     failures: %d\n", failures.Load())
	fmt.Printf("   avg. ops/s: %d\n", int(float64(ops.Load())/took.Seconds()))

	dumpMetrics(reg)

	if failures.Load() > 0 {
		os.Exit(1)
	}
}

// runChurn keeps the cluster unstable: it migrates random slots between
// nodes and periodically fails one node for a moment.
func runChurn(ctx context.Context, log *slog.Logger, cluster *dispatch.MemoryCluster) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	nodes := cluster.Nodes()
	ticker := time.NewTicker(time.Duration(churnEvery) * time.Millisecond)
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
		if err := cluster.FinishMigration(ctx, s); err != nil {
			log.Error("finish migration", slog.Any("error", err))
		}

		// every tenth tick, bounce a node
		if i%10 == 9 {
			victim := nodes[rng.Intn(len(nodes))]
			cluster.FailNode(victim)
			time.Sleep(time.Duration(churnEvery) * time.Millisecond / 2)
			cluster.ReviveNode(victim)
		}
	}
}

// isExpected filters the failure modes the workload provokes on purpose:
// the churn's outages and budget exhaustion, plus reads of keys no worker
// has written yet.
func isExpected(err error) bool {
	return errors.Is(err, kv.ErrNotFound) ||
		errors.Is(err, dispatch.ErrMaxAttempts) ||
		errors.Is(err, dispatch.ErrRetryDeadline) ||
		errors.Is(err, dispatch.ErrClusterDown) ||
		errors.Is(err, context.DeadlineExceeded)
}

func dumpMetrics(reg *prom.Registry) {
	mfs, err := reg.Gather()
	if err != nil {
		fmt.Printf("gather metrics: %v\n", err)
		return
	}
	fmt.Println("=== metrics ===")
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%s", lp.GetName(), lp.GetValue()))
			}
			switch {
			case m.GetCounter() != nil:
				fmt.Printf("%s{%s} %v\n", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				fmt.Printf("%s count=%d sum=%.3fs\n", mf.GetName(), h.GetSampleCount(), h.GetSampleSum())
			}
		}
	}
}

func checkErr(err error) {
	if err != nil {
		panic(err)
	}
}
