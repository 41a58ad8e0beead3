package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/kvclstr-go/core/sf"
	"github.com/codewandler/kvclstr-go/core/slot"
	"github.com/codewandler/kvclstr-go/internal/hrw"
	"github.com/codewandler/kvclstr-go/ports/kv"
)

var (
	errNodeDown     = errors.New("node down")
	errUnknownNode  = errors.New("unknown node")
	errConnReleased = errors.New("use of released connection")
)

type MemoryClusterOptions struct {
	Log *slog.Logger

	// NodeIDs names the nodes explicitly. When empty, NumNodes nodes are
	// created with generated IDs.
	NodeIDs  []string
	NumNodes int

	// Seed personalizes the slot-to-node assignment.
	Seed string
}

// MemoryCluster is a self-contained in-memory [ConnProvider]: a full
// cluster of nodes, each serving its owned slots from a node-local
// [kv.Store], plus the client-side slot cache the dispatcher routes by.
//
// It produces the real failure chatter the dispatcher has to absorb: slot
// migration yields ASK then MOVED redirects, failed nodes yield connection
// failures, an entirely failed cluster yields [ErrClusterDown]. The cached
// slot map goes stale on topology changes until [RenewSlotCache]
// re-synchronizes it, exactly like a real client's.
//
// Connection borrows and returns are accounted so tests can assert that
// the dispatcher never leaks a connection; see [MemoryCluster.Outstanding].
type MemoryCluster struct {
	log  *slog.Logger
	seed string

	mu         sync.RWMutex
	nodes      map[string]*memNode
	order      []string
	owner      []string // authoritative slot -> node ID
	cached     []string // the client's possibly-stale view
	migrations map[slot.Slot]*memMigration
	closed     bool

	renew *sf.Singleflight[struct{}]

	anyIdx         atomic.Uint64
	borrowed       atomic.Int64
	returned       atomic.Int64
	renewals       atomic.Int64
	hintedRenewals atomic.Int64
}

type memNode struct {
	id    string
	down  atomic.Bool
	store *kv.MemStore
}

// memMigration is one slot mid-move: from still owns the slot, to imports
// it, moved tracks the keys that already crossed over.
type memMigration struct {
	from  string
	to    string
	moved map[string]bool
}

func NewMemoryCluster(opts MemoryClusterOptions) (*MemoryCluster, error) {
	log := opts.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ids := opts.NodeIDs
	if len(ids) == 0 {
		n := opts.NumNodes
		if n == 0 {
			n = 3
		}
		for i := 0; i < n; i++ {
			ids = append(ids, fmt.Sprintf("node-%s", gonanoid.Must(6)))
		}
	}

	c := &MemoryCluster{
		log:        log.With(slog.String("cluster", "mem")),
		seed:       opts.Seed,
		nodes:      make(map[string]*memNode, len(ids)),
		order:      make([]string, 0, len(ids)),
		owner:      make([]string, slot.Count),
		cached:     make([]string, slot.Count),
		migrations: make(map[slot.Slot]*memMigration),
		renew:      sf.New[struct{}](),
	}

	for _, id := range ids {
		if _, dup := c.nodes[id]; dup {
			return nil, fmt.Errorf("duplicate node ID %q", id)
		}
		c.nodes[id] = &memNode{id: id, store: kv.NewMemStore()}
		c.order = append(c.order, id)
	}

	for s := 0; s < slot.Count; s++ {
		c.owner[s] = hrw.Owner(fmt.Sprintf("slot:%d", s), c.order, c.seed)
	}
	copy(c.cached, c.owner)

	return c, nil
}

/* ---------------------- ConnProvider ---------------------- */

func (c *MemoryCluster) SlotConn(_ context.Context, s slot.Slot) (Conn, error) {
	c.mu.RLock()
	id := c.cached[s]
	c.mu.RUnlock()
	return c.connTo(id)
}

func (c *MemoryCluster) NodeConn(_ context.Context, node string) (Conn, error) {
	return c.connTo(node)
}

func (c *MemoryCluster) AnyConn(_ context.Context) (Conn, error) {
	c.mu.RLock()
	order := c.order
	c.mu.RUnlock()

	start := int(c.anyIdx.Add(1))
	for i := 0; i < len(order); i++ {
		id := order[(start+i)%len(order)]
		if conn, err := c.connTo(id); err == nil {
			return conn, nil
		}
	}
	return nil, fmt.Errorf("%w: all %d nodes down", ErrClusterDown, len(order))
}

// RenewSlotCache re-synchronizes the cached slot map from the
// authoritative assignment. Concurrent renewals collapse into one. The
// hint names the connection that observed the staleness; a real client
// would query just that node, here the full copy is as cheap.
func (c *MemoryCluster) RenewSlotCache(_ context.Context, hint Conn) {
	if hint != nil {
		c.hintedRenewals.Add(1)
	} else {
		c.renewals.Add(1)
	}
	_, _ = c.renew.Do("renew", func() (*struct{}, error) {
		c.mu.Lock()
		copy(c.cached, c.owner)
		c.mu.Unlock()
		c.log.Debug("slot cache renewed", slog.Bool("hinted", hint != nil))
		return &struct{}{}, nil
	})
}

func (c *MemoryCluster) connTo(id string) (Conn, error) {
	c.mu.RLock()
	node := c.nodes[id]
	closed := c.closed
	allDown := true
	for _, n := range c.nodes {
		if !n.down.Load() {
			allDown = false
			break
		}
	}
	c.mu.RUnlock()

	if closed {
		return nil, fmt.Errorf("%w: cluster closed", ErrClusterDown)
	}
	if node == nil {
		return nil, &ConnError{Node: id, Err: errUnknownNode}
	}
	if node.down.Load() {
		if allDown {
			return nil, fmt.Errorf("%w: all %d nodes down", ErrClusterDown, len(c.order))
		}
		return nil, &ConnError{Node: id, Err: errNodeDown}
	}

	c.borrowed.Add(1)
	return &MemoryConn{c: c, node: node}, nil
}

/* ---------------------- topology control ---------------------- */

// FailNode marks a node unreachable: connections to it fail and existing
// connections start reporting connection failures.
func (c *MemoryCluster) FailNode(id string) {
	c.mu.RLock()
	node := c.nodes[id]
	c.mu.RUnlock()
	if node != nil {
		node.down.Store(true)
		c.log.Debug("node failed", slog.String("node", id))
	}
}

func (c *MemoryCluster) ReviveNode(id string) {
	c.mu.RLock()
	node := c.nodes[id]
	c.mu.RUnlock()
	if node != nil {
		node.down.Store(false)
		c.log.Debug("node revived", slog.String("node", id))
	}
}

// BeginMigration starts moving slot s to another node. Until
// FinishMigration, the current owner keeps serving keys that have not
// moved and answers ASK for keys that have; the importing node serves only
// ASKING connections.
func (c *MemoryCluster) BeginMigration(s slot.Slot, to string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.nodes[to]; !ok {
		return fmt.Errorf("%w: %s", errUnknownNode, to)
	}
	from := c.owner[s]
	if from == to {
		return fmt.Errorf("slot %d already owned by %s", s, to)
	}
	if _, busy := c.migrations[s]; busy {
		return fmt.Errorf("slot %d already migrating", s)
	}

	c.migrations[s] = &memMigration{from: from, to: to, moved: map[string]bool{}}
	c.log.Debug("migration started", slog.Int("slot", int(s)), slog.String("from", from), slog.String("to", to))
	return nil
}

// MigrateKey moves a single key of a migrating slot to the importing node.
// The source answers ASK for it from now on.
func (c *MemoryCluster) MigrateKey(ctx context.Context, key string) error {
	s := slot.ForKey(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	mig, ok := c.migrations[s]
	if !ok {
		return fmt.Errorf("slot %d is not migrating", s)
	}
	if err := c.moveKey(ctx, key, c.nodes[mig.from], c.nodes[mig.to]); err != nil {
		return err
	}
	mig.moved[key] = true
	return nil
}

// FinishMigration moves whatever keys of slot s remain and flips the
// authoritative owner. The cached slot map stays stale on purpose: clients
// discover the move through a MOVED redirect and a renewal, like against a
// real cluster.
func (c *MemoryCluster) FinishMigration(ctx context.Context, s slot.Slot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	mig, ok := c.migrations[s]
	if !ok {
		return fmt.Errorf("slot %d is not migrating", s)
	}
	from, to := c.nodes[mig.from], c.nodes[mig.to]

	keys, err := from.store.Keys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if slot.ForKey(key) != s || mig.moved[key] {
			continue
		}
		if err := c.moveKey(ctx, key, from, to); err != nil {
			return err
		}
	}

	c.owner[s] = mig.to
	delete(c.migrations, s)
	c.log.Debug("migration finished", slog.Int("slot", int(s)), slog.String("owner", mig.to))
	return nil
}

func (c *MemoryCluster) moveKey(ctx context.Context, key string, from, to *memNode) error {
	entry, err := from.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := to.store.Put(ctx, key, entry); err != nil {
		return err
	}
	return from.store.Delete(ctx, key)
}

/* ---------------------- introspection ---------------------- */

func (c *MemoryCluster) Nodes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// OwnerOf returns the authoritative owner of s.
func (c *MemoryCluster) OwnerOf(s slot.Slot) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.owner[s]
}

// CachedOwnerOf returns the client-side view of s's owner, which lags the
// authoritative one until a renewal.
func (c *MemoryCluster) CachedOwnerOf(s slot.Slot) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cached[s]
}

// Outstanding is the number of borrowed connections not yet released.
func (c *MemoryCluster) Outstanding() int64 {
	return c.borrowed.Load() - c.returned.Load()
}

// Renewals returns how many slot-cache renewals were requested, split into
// unhinted and hinted.
func (c *MemoryCluster) Renewals() (unhinted, hinted int64) {
	return c.renewals.Load(), c.hintedRenewals.Load()
}

func (c *MemoryCluster) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

/* ---------------------- connection ---------------------- */

// MemoryConn is one borrowed connection to a MemoryCluster node. Its keyed
// commands implement the cluster's serving rules: a misrouted key gets a
// MOVED or ASK redirect instead of an answer.
type MemoryConn struct {
	c      *MemoryCluster
	node   *memNode
	asking bool
	closed atomic.Bool
}

func (mc *MemoryConn) Asking(_ context.Context) error {
	if mc.closed.Load() {
		return errConnReleased
	}
	if mc.node.down.Load() {
		return &ConnError{Node: mc.node.id, Err: errNodeDown}
	}
	mc.asking = true
	return nil
}

func (mc *MemoryConn) Close() error {
	if mc.closed.CompareAndSwap(false, true) {
		mc.c.returned.Add(1)
	}
	return nil
}

// Node returns the ID of the node this connection talks to.
func (mc *MemoryConn) Node() string { return mc.node.id }

func (mc *MemoryConn) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := mc.serve(key, func(store kv.Store) error {
		entry, err := store.Get(ctx, key)
		if err != nil {
			return err
		}
		data = entry.Data
		return nil
	})
	return data, err
}

func (mc *MemoryConn) Put(ctx context.Context, key string, value []byte) error {
	return mc.serve(key, func(store kv.Store) error {
		return store.Put(ctx, key, kv.Entry{Data: value})
	})
}

func (mc *MemoryConn) Delete(ctx context.Context, key string) error {
	return mc.serve(key, func(store kv.Store) error {
		return store.Delete(ctx, key)
	})
}

// serve decides whether this node answers for key, and with what: its own
// store, a MOVED redirect to the owner, or an ASK redirect for a key that
// already crossed a migration. The ASKING flag is consumed by exactly one
// command. fn runs under the topology lock so a concurrent migration
// cannot strand the write on a node that no longer owns the slot.
func (mc *MemoryConn) serve(key string, fn func(store kv.Store) error) error {
	if mc.closed.Load() {
		return errConnReleased
	}
	if mc.node.down.Load() {
		return &ConnError{Node: mc.node.id, Err: errNodeDown}
	}

	ask := mc.asking
	mc.asking = false

	s := slot.ForKey(key)

	mc.c.mu.RLock()
	defer mc.c.mu.RUnlock()

	// a closed cluster stops serving borrowed connections too
	if mc.c.closed {
		return fmt.Errorf("%w: cluster closed", ErrClusterDown)
	}

	owner := mc.c.owner[s]
	mig := mc.c.migrations[s]

	switch {
	case mig == nil:
		if owner != mc.node.id {
			return &RedirectError{Kind: RedirectMoved, Slot: s, Node: owner}
		}
		return fn(mc.node.store)
	case mc.node.id == mig.from:
		if mig.moved[key] {
			return &RedirectError{Kind: RedirectAsk, Slot: s, Node: mig.to}
		}
		return fn(mc.node.store)
	case mc.node.id == mig.to:
		if !ask {
			return &RedirectError{Kind: RedirectMoved, Slot: s, Node: mig.from}
		}
		return fn(mc.node.store)
	default:
		return &RedirectError{Kind: RedirectMoved, Slot: s, Node: owner}
	}
}

var _ ConnProvider = (*MemoryCluster)(nil)
var _ Conn = (*MemoryConn)(nil)
