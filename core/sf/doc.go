// Package sf provides a generic single-flight mechanism for deduplicating
// concurrent function calls with the same key.
//
// Its main use here is topology renewal: when a node goes down, every
// in-flight call notices at once and every one of them asks for the slot
// map to be refreshed. Wrapping the refresh in [Singleflight.Do] collapses
// that storm into a single refresh whose result all callers share.
//
//	renew := sf.New[struct{}]()
//
//	renew.Do("renew", func() (*struct{}, error) {
//	    rebuildSlotMap()
//	    return &struct{}{}, nil
//	})
//
// The generic type parameter T allows type-safe results without casting.
package sf
