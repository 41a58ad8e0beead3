// Package slot maps keys onto the fixed slot space of a partitioned
// key-value cluster.
//
// The cluster divides its key space into [Count] slots. Each node owns a
// subset of slots, and ownership can move between nodes at runtime. The
// mapping from key to slot is pure and stable: CRC16 over the key (or its
// hash tag), modulo [Count].
//
// # Hash tags
//
// A key containing a brace-delimited tag, like "{user:1000}.name", hashes
// only the tag. This lets callers pin related keys to the same slot so that
// multi-key operations on them stay dispatchable:
//
//	slot.ForKey("{user:1000}.name") == slot.ForKey("{user:1000}.email")
//
// [ForKeys] validates exactly that property and rejects key sets spanning
// slots with [ErrCrossSlot] before anything touches the network.
package slot
