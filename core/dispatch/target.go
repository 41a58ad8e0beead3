package dispatch

import "github.com/codewandler/kvclstr-go/core/slot"

type targetKind int

const (
	// targetSlot routes by the key's slot. The default.
	targetSlot targetKind = iota

	// targetNode routes to an explicitly named node, set after a
	// redirection. Sticky until a connection failure clears it.
	targetNode

	// targetAny routes to an arbitrary live node, for non-keyed
	// operations.
	targetAny
)

// target is the routing intent for the next attempt. It is threaded
// explicitly through the retry loop so every transition is visible: slot
// routing by default, an explicit node after a redirection, back to slot
// routing after a connection failure.
type target struct {
	kind targetKind
	slot slot.Slot
	node string
	ask  bool
}

func slotTarget(s slot.Slot) target {
	return target{kind: targetSlot, slot: s}
}

func anyTarget() target {
	return target{kind: targetAny}
}

// redirected returns the sticky explicit-node target a redirection pins
// subsequent attempts to. ASK redirections additionally arm the next
// connection with the ASKING signal.
func (t target) redirected(r *RedirectError) target {
	return target{
		kind: targetNode,
		slot: t.slot,
		node: r.Node,
		ask:  r.Kind == RedirectAsk,
	}
}
