package slot

import "errors"

var (
	// ErrNoKeys means a multi-key operation was dispatched with no keys.
	ErrNoKeys = errors.New("no keys to dispatch on")

	// ErrCrossSlot means the keys of a multi-key operation hash to more
	// than one slot and cannot be served by a single node.
	ErrCrossSlot = errors.New("keys do not hash to the same slot")
)
