// Package hrw implements rendezvous (highest-random-weight) hashing,
// used to deal slots out to nodes deterministically: everyone who knows
// the node list computes the same owner for a slot, and removing a node
// only reassigns the slots that node owned.
package hrw

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// Owner returns the node scoring highest for key, or "" when nodes is
// empty. seed personalizes the scores so distinct clusters shuffle
// differently.
func Owner(key string, nodes []string, seed string) string {
	best := ""
	var bestScore uint64
	for _, n := range nodes {
		if s := score(key, n, seed); best == "" || s > bestScore {
			best, bestScore = n, s
		}
	}
	return best
}

func score(key, nodeID, seed string) uint64 {
	// 8-byte digest => uint64 score
	h, _ := blake2b.New(8, nil)
	if seed != "" {
		h.Write([]byte(seed))
		h.Write([]byte{0})
	}
	h.Write([]byte(key))
	h.Write([]byte{0})
	h.Write([]byte(nodeID))
	return binary.BigEndian.Uint64(h.Sum(nil))
}
