package dispatch

import (
	"errors"
	"fmt"

	"github.com/codewandler/kvclstr-go/core/slot"
)

var (
	// ErrClusterDown means no node of the cluster is reachable at all.
	// It is terminal: the retry loop gives up immediately no matter how
	// much attempt or time budget remains.
	ErrClusterDown = errors.New("no reachable cluster node")

	// ErrMaxAttempts means the per-call attempt budget ran out before any
	// attempt succeeded.
	ErrMaxAttempts = errors.New("no more cluster attempts left")

	// ErrRetryDeadline means the per-call wall-clock retry budget ran out
	// between attempts, even though attempts remained.
	ErrRetryDeadline = errors.New("cluster retry deadline exceeded")
)

// RedirectKind distinguishes the two redirection signals a node can answer
// a misrouted operation with.
type RedirectKind int

const (
	// RedirectMoved: the slot has permanently moved to another node. The
	// slot map is stale and should be renewed.
	RedirectMoved RedirectKind = iota

	// RedirectAsk: the slot is mid-migration. The target node serves the
	// key only for connections that signalled ASKING first, and the slot
	// map must not be renewed yet.
	RedirectAsk
)

func (k RedirectKind) String() string {
	if k == RedirectAsk {
		return "ask"
	}
	return "moved"
}

// RedirectError is the outcome of an attempt that reached a node which does
// not (or does not yet) serve the key's slot. It names the node that does.
//
// Operations translate the cluster's redirection replies into this type;
// the dispatcher retries immediately against Node.
type RedirectError struct {
	Kind RedirectKind
	Slot slot.Slot
	Node string
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("%s: slot %d served by %s", e.Kind, e.Slot, e.Node)
}

// ConnError is the outcome of an attempt whose node was unreachable or
// whose connection broke. It is retryable: the dispatcher renews the slot
// map, backs off, and tries again against slot routing.
type ConnError struct {
	Node string
	Err  error
}

func (e *ConnError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("connection failed: %v", e.Err)
	}
	return fmt.Sprintf("connection to %s failed: %v", e.Node, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }
