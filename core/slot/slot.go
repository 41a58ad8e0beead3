package slot

import "strings"

// Count is the size of the cluster's slot space. Every key maps to exactly
// one slot in [0, Count).
const Count = 16384

// Slot identifies one routing partition of the cluster.
type Slot uint16

// ForKey maps a key onto its slot.
//
// If the key carries a hash tag ({...}), only the tag participates in the
// hash, so that related keys can be pinned to the same slot for multi-key
// operations.
func ForKey(key string) Slot {
	if tag, ok := hashTag(key); ok {
		key = tag
	}
	return Slot(CRC16([]byte(key)) % Count)
}

// ForKeys maps a set of keys onto their shared slot. All keys must hash to
// the slot of the first key; a mismatch is a caller mistake and returns
// ErrCrossSlot. An empty key set returns ErrNoKeys.
func ForKeys(keys ...string) (Slot, error) {
	if len(keys) == 0 {
		return 0, ErrNoKeys
	}
	s := ForKey(keys[0])
	for _, key := range keys[1:] {
		if ForKey(key) != s {
			return 0, ErrCrossSlot
		}
	}
	return s, nil
}

// hashTag extracts the hash tag from key: the content between the first '{'
// and the next '}' after it. An absent, unclosed or empty {} tag means the
// whole key hashes.
func hashTag(key string) (string, bool) {
	open := strings.IndexByte(key, '{')
	if open < 0 {
		return "", false
	}
	end := strings.IndexByte(key[open+1:], '}')
	if end <= 0 {
		return "", false
	}
	return key[open+1 : open+1+end], true
}

// CRC16 computes the CRC16-CCITT (XMODEM) checksum the slot space is keyed
// on: polynomial 0x1021, zero initial value. CRC16([]byte("123456789"))
// is 0x31C3.
func CRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
