// Package hashing computes the 64-bit entry identity: a deterministic
// fingerprint of (partition, key) built from two 32-bit digests, so the
// upper and lower halves of the identity can each be used independently
// (the partition half doubles as a partition-scoped index).
package hashing

import (
	"unicode/utf16"

	"github.com/cespare/xxhash/v2"
)

// Hash32 returns a stable 32-bit fingerprint of s. The digest is computed
// over the UTF-16LE code units of s, so the identity is independent of
// platform endianness, and is the low half of cespare/xxhash's 64-bit sum.
// The fold is deterministic and stable across processes; every node in a
// deployment must use this same convention.
func Hash32(s string) uint32 {
	buf := utf16LEBytes(s)
	sum := xxhash.Sum64(buf)
	return uint32(sum & 0xffffffff)
}

// utf16LEBytes encodes s as little-endian UTF-16 code units.
func utf16LEBytes(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		out[2*i] = byte(u)
		out[2*i+1] = byte(u >> 8)
	}
	return out
}

// EntryHash computes the full 64-bit signed identity for (partition, key):
// the upper 32 bits are the partition's 32-bit hash, the lower 32 bits are
// the key's 32-bit hash.
func EntryHash(partition, key string) int64 {
	p := Hash32(partition)
	k := Hash32(key)
	return int64(uint64(p)<<32 | uint64(k))
}

// PartitionHash computes the partition-only hash used by partition-scoped
// predicates: the upper 32 bits shifted into a 64-bit value with the lower
// bits zeroed, so it sorts and indexes the same way EntryHash does for rows
// sharing that partition.
func PartitionHash(partition string) int64 {
	p := Hash32(partition)
	return int64(uint64(p) << 32)
}
