// Package dispatch routes operations to the right node of a slot-partitioned
// key-value cluster and survives the cluster changing underneath the call.
//
// The cluster's key space is divided into [slot.Count] slots (see the slot
// package); nodes own disjoint, possibly-moving sets of slots. A logical
// call hands the [Dispatcher] a key (or key set) and an [Operation]; the
// dispatcher resolves the slot, borrows a connection from its
// [ConnProvider], runs the operation, and interprets the outcome:
//
//   - success: the result is returned, the call ends.
//   - [RedirectError]: the node pointed at the slot's real owner. The
//     dispatcher pins the next attempt to that node and retries
//     immediately; MOVED additionally triggers a slot-map renewal, ASK
//     additionally arms the next connection with the ASKING signal.
//   - [ConnError]: the node was unreachable. The dispatcher renews the
//     slot map, drops any pinned redirect target, backs off, and retries
//     via slot routing.
//   - [ErrClusterDown]: nothing is reachable; the call fails immediately.
//   - anything else: the operation's own failure, propagated unchanged.
//
// # Attempt budget
//
// Every call is bounded twice: by an attempt count and by a wall-clock
// deadline ([Options.MaxAttempts], [Options.MaxTotalRetryTime]). Either
// running out terminates the call with [ErrMaxAttempts] or
// [ErrRetryDeadline]. The backoff between connection failures decays with
// the time remaining over the square of the attempts left, so early
// failures pause generously and late ones leave room for a final try.
// Redirections never back off; they are expected steady-state behavior
// while slots migrate.
//
// # Usage
//
//	d, err := dispatch.New(dispatch.Options{Provider: provider})
//
//	v, err := dispatch.Run(ctx, d, "user:42", func(ctx context.Context, conn dispatch.Conn) ([]byte, error) {
//	    return conn.(*myConn).Get(ctx, "user:42")
//	})
//
// Connections live for exactly one attempt and are always released,
// whatever the outcome. The dispatcher holds no cross-call state and is
// safe for concurrent use as long as its provider is.
//
// # Testing
//
// [MemoryCluster] is a self-contained in-memory ConnProvider with real
// redirect semantics: slot migration produces ASK/MOVED chatter, nodes can
// be failed and revived, and connection borrows are accounted. See
// [CreateTestCluster].
package dispatch
