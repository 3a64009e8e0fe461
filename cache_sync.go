package kvlite

import (
	"context"
	"errors"
	"time"

	"github.com/kvlite-go/kvlite/internal/hashing"
	"github.com/kvlite-go/kvlite/internal/store"
)

// AddTimed stores value under (partition, key) with an absolute expiry:
// ttl after now, never extended by reads. An empty partition uses
// Options.DefaultPartition.
func (c *Cache) AddTimed(partition, key string, value any, ttl time.Duration, parentKeys ...string) error {
	return c.add("AddTimed", partition, key, value, durationSeconds(ttl), 0, parentKeys)
}

// AddSliding stores value with an expiry that is extended to now+interval
// on every observing read.
func (c *Cache) AddSliding(partition, key string, value any, interval time.Duration, parentKeys ...string) error {
	sec := durationSeconds(interval)
	return c.add("AddSliding", partition, key, value, sec, sec, parentKeys)
}

// AddStatic stores value as a sliding entry using the cache-wide
// Options.StaticInterval.
func (c *Cache) AddStatic(partition, key string, value any, parentKeys ...string) error {
	sec := durationSeconds(c.opts.StaticInterval)
	return c.add("AddStatic", partition, key, value, sec, sec, parentKeys)
}

func (c *Cache) add(op, partition, key string, value any, ttlSeconds, interval int64, parentKeys []string) error {
	if err := c.checkDisposed(op); err != nil {
		return err
	}
	partition = c.normalizePartition(partition)
	if key == "" {
		return newErr(op, KindInvalidArgument, nil)
	}
	parents, err := c.resolveParents(op, partition, parentKeys)
	if err != nil {
		return err
	}
	now := c.clk.NowUnix()
	entry, err := c.buildEntry(op, partition, key, value, now+ttlSeconds, interval, parents)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := c.store.Upsert(ctx, entry); err != nil {
		return c.handleWriteError(op, err)
	}
	c.maybeAutoCleanup(ctx)
	return nil
}

// handleWriteError applies the write error policy: ParentMissing,
// TooManyParents, SchemaError and NotSerializable propagate; everything
// else is treated as transient, recorded, and swallowed.
func (c *Cache) handleWriteError(op string, err error) error {
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr
	}
	c.recordTransient(op, err)
	return nil
}

// Contains reports whether (partition, key) holds a live value, without
// extending a sliding entry's expiry.
func (c *Cache) Contains(partition, key string) bool {
	if c.checkDisposed("Contains") != nil {
		return false
	}
	partition = c.normalizePartition(partition)
	if key == "" {
		return false
	}
	hash := hashing.EntryHash(partition, key)
	ok, err := c.store.Contains(context.Background(), hash, c.clk.NowUnix())
	if err != nil {
		c.recordTransient("Contains", err)
		return false
	}
	return ok
}

// Count returns the number of rows, optionally scoped to partition (an
// empty partition counts across every partition), filtered by mode.
func (c *Cache) Count(partition string, mode CountMode) int64 {
	if c.checkDisposed("Count") != nil {
		return 0
	}
	n, err := c.store.Count(context.Background(), partitionHashArg(partition), mode, c.clk.NowUnix())
	if err != nil {
		c.recordTransient("Count", err)
		return 0
	}
	return n
}

// Remove deletes (partition, key); ON DELETE CASCADE removes dependents.
func (c *Cache) Remove(partition, key string) error {
	if err := c.checkDisposed("Remove"); err != nil {
		return err
	}
	partition = c.normalizePartition(partition)
	if key == "" {
		return newErr("Remove", KindInvalidArgument, nil)
	}
	hash := hashing.EntryHash(partition, key)
	if err := c.store.Remove(context.Background(), hash); err != nil {
		return c.handleWriteError("Remove", err)
	}
	return nil
}

// Clear deletes all rows, or all rows in partition (empty = every
// partition), filtered by mode, returning the count removed.
func (c *Cache) Clear(partition string, mode CountMode) int64 {
	if c.checkDisposed("Clear") != nil {
		return 0
	}
	n, err := c.store.Clear(context.Background(), partitionHashArg(partition), mode, c.clk.NowUnix())
	if err != nil {
		c.recordTransient("Clear", err)
		return 0
	}
	return n
}

// SizeInBytes sums the stored (possibly compressed) value length across the
// table, or a single partition (empty = every partition).
func (c *Cache) SizeInBytes(partition string) int64 {
	if c.checkDisposed("SizeInBytes") != nil {
		return 0
	}
	n, err := c.store.SizeInBytes(context.Background(), partitionHashArg(partition))
	if err != nil {
		c.recordTransient("SizeInBytes", err)
		return 0
	}
	return n
}

func partitionHashArg(partition string) *int64 {
	if partition == "" {
		return nil
	}
	h := hashing.PartitionHash(partition)
	return &h
}

// Get is the touching read: a miss returns None; a hit on a sliding entry
// extends its expiry in the same transaction as the read.
func Get[T any](c *Cache, partition, key string) Result[T] {
	var zero T
	if c.checkDisposed("Get") != nil {
		return None[T]()
	}
	partition = c.normalizePartition(partition)
	if key == "" {
		return None[T]()
	}
	hash := hashing.EntryHash(partition, key)
	entry, ok, err := c.store.Get(context.Background(), hash, c.clk.NowUnix())
	if err != nil {
		c.recordTransient("Get", err)
		return None[T]()
	}
	if !ok {
		return None[T]()
	}
	if err := c.codec.Decode(entry.Value, entry.Compressed, &zero); err != nil {
		c.lastErr.Store(newErr("Get", KindDeserializationFailed, err))
		return None[T]()
	}
	return Some(zero)
}

// Peek is the non-touching read. It returns NotSupported
// via LastError (and a miss) on drivers that advertise can_peek = false.
func Peek[T any](c *Cache, partition, key string) Result[T] {
	var zero T
	if c.checkDisposed("Peek") != nil {
		return None[T]()
	}
	partition = c.normalizePartition(partition)
	if key == "" {
		return None[T]()
	}
	hash := hashing.EntryHash(partition, key)
	entry, ok, err := c.store.Peek(context.Background(), hash, c.clk.NowUnix())
	if err != nil {
		var kerr *Error
		if errors.As(err, &kerr) && kerr.Kind == KindNotSupported {
			c.lastErr.Store(kerr)
		} else {
			c.recordTransient("Peek", err)
		}
		return None[T]()
	}
	if !ok {
		return None[T]()
	}
	if err := c.codec.Decode(entry.Value, entry.Compressed, &zero); err != nil {
		c.lastErr.Store(newErr("Peek", KindDeserializationFailed, err))
		return None[T]()
	}
	return Some(zero)
}

// GetItems is the batch touching read; an empty partition selects across
// every partition.
func GetItems[T any](c *Cache, partition string) []T {
	if c.checkDisposed("GetItems") != nil {
		return nil
	}
	entries, err := c.store.GetItems(context.Background(), partitionHashArg(partition), c.clk.NowUnix())
	if err != nil {
		c.recordTransient("GetItems", err)
		return nil
	}
	return decodeAll[T](c, "GetItems", entries)
}

// PeekItems is the batch non-touching read.
func PeekItems[T any](c *Cache, partition string) []T {
	if c.checkDisposed("PeekItems") != nil {
		return nil
	}
	entries, err := c.store.PeekItems(context.Background(), partitionHashArg(partition), c.clk.NowUnix())
	if err != nil {
		var kerr *Error
		if errors.As(err, &kerr) && kerr.Kind == KindNotSupported {
			c.lastErr.Store(kerr)
		} else {
			c.recordTransient("PeekItems", err)
		}
		return nil
	}
	return decodeAll[T](c, "PeekItems", entries)
}

func decodeAll[T any](c *Cache, op string, entries []store.Entry) []T {
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		var v T
		if err := c.codec.Decode(e.Value, e.Compressed, &v); err != nil {
			c.lastErr.Store(newErr(op, KindDeserializationFailed, err))
			continue
		}
		out = append(out, v)
	}
	return out
}

// GetOrAdd returns the live value at (partition, key) if present; on a
// miss it calls producer, stores the result as a Static entry, and returns
// it. Concurrent callers may both invoke producer, but only one upsert wins
// the row.
func GetOrAdd[T any](c *Cache, partition, key string, producer func() (T, error), parentKeys ...string) (T, error) {
	var zero T
	if r := Get[T](c, partition, key); r.Ok() {
		v, _ := r.Get()
		return v, nil
	}
	v, err := producer()
	if err != nil {
		return zero, err
	}
	if err := c.AddStatic(partition, key, v, parentKeys...); err != nil {
		return zero, err
	}
	return v, nil
}
