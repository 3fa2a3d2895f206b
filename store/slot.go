package store

import "strings"

// slotCount is the fixed number of hash slots in a redis cluster.
const slotCount = 16384

// hashSlot computes the cluster hash slot owning key: CRC16/XMODEM of
// the key (or of its {hash tag}, when one is present and non-empty)
// modulo the slot count, per the cluster keyspace specification.
func hashSlot(key string) int {
	if start := strings.IndexByte(key, '{'); start >= 0 {
		if end := strings.IndexByte(key[start+1:], '}'); end > 0 {
			key = key[start+1 : start+1+end]
		}
	}
	return int(crc16([]byte(key))) % slotCount
}

// crc16 implements CRC-16/XMODEM (poly 0x1021, init 0).
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for range 8 {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// slotGroup is one batched call's worth of keys, all owned by the same
// slot, remembering each key's position in the caller's request.
type slotGroup struct {
	slot    int
	keys    []string
	indexes []int
}

// groupBySlot partitions keys into per-slot groups, preserving first-seen
// group order. A multi-key read across slots is rejected by a cluster, so
// the caller issues one batched call per group and scatters the results
// back through indexes.
func groupBySlot(keys []string) []slotGroup {
	groups := make([]slotGroup, 0, 4)
	bySlot := make(map[int]int, 4)

	for i, key := range keys {
		slot := hashSlot(key)
		gi, ok := bySlot[slot]
		if !ok {
			gi = len(groups)
			bySlot[slot] = gi
			groups = append(groups, slotGroup{slot: slot})
		}
		groups[gi].keys = append(groups[gi].keys, key)
		groups[gi].indexes = append(groups[gi].indexes, i)
	}
	return groups
}
