package dispatch

import (
	"context"

	"github.com/codewandler/kvclstr-go/core/slot"
)

// Conn is one borrowed cluster connection. The dispatcher only ever holds a
// Conn for the duration of a single attempt and releases it on every exit
// path; operations downcast it to the concrete connection type they were
// written against.
type Conn interface {
	// Asking arms the connection with the one-shot ASKING signal, so the
	// next operation on it is served even if the node is still importing
	// the key's slot.
	Asking(ctx context.Context) error

	// Close releases the connection back to its pool. The connection must
	// not be used afterwards.
	Close() error
}

// ConnProvider hands out connections by routing intent and owns the
// slot-to-node map the routing is based on. Implementations must be safe
// for concurrent use; the dispatcher never caches or shares the
// connections it is given.
//
// Acquisition may fail with the same failure kinds an operation can report:
// a [ConnError] when the selected node is unreachable, or [ErrClusterDown]
// when no node is.
type ConnProvider interface {
	// SlotConn returns a connection to the node serving s, per the
	// provider's current topology knowledge.
	SlotConn(ctx context.Context, s slot.Slot) (Conn, error)

	// NodeConn returns a connection to an explicitly named node. Used to
	// follow redirections.
	NodeConn(ctx context.Context, node string) (Conn, error)

	// AnyConn returns a connection to an arbitrary live node.
	AnyConn(ctx context.Context) (Conn, error)

	// RenewSlotCache re-synchronizes the slot-to-node map. A non-nil hint
	// is the connection that observed the staleness, allowing a cheaper,
	// localized refresh.
	RenewSlotCache(ctx context.Context, hint Conn)
}
