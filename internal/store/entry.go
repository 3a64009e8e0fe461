// Package store implements the transactional entry CRUD over the
// cache-entries table. It knows nothing about partitions/keys as hashing
// inputs (that's internal/hashing's job), only about the 64-bit identity
// and the row shape built around it.
package store

import "github.com/kvlite-go/kvlite/internal/kverrors"

// ParentRef is one parent pointer on an Entry: the parent's original key
// string (kept for diagnostics/round-trip) and its hash (the FK target).
type ParentRef struct {
	Key  string
	Hash int64
}

// Entry is the storage-layer view of a cache row. The facade translates
// to/from this shape; Value is already codec-encoded bytes by the time it
// reaches the store.
type Entry struct {
	Hash          int64
	PartitionHash int64
	Partition     string
	Key           string
	UTCExpiry     int64
	Interval      int64
	Value         []byte
	Compressed    bool
	UTCCreation   int64
	Parents       []ParentRef
}

// CountMode selects whether expired rows are included in a count/clear.
type CountMode int

const (
	// IgnoreExpiry includes every row regardless of utc_expiry.
	IgnoreExpiry CountMode = iota
	// ConsiderExpiry takes expiry into account: a count includes only rows
	// observable at the query time (utc_expiry >= now), while a clear
	// deletes only rows already expired (utc_expiry < now).
	ConsiderExpiry
)

// validateParents checks the parent count against what the driver's schema
// can hold.
func validateParents(parents []ParentRef, maxParents int) error {
	if len(parents) > maxParents {
		return kverrors.New("Upsert", kverrors.TooManyParents, nil)
	}
	return nil
}
