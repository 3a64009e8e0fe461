// Package kvlite implements a partition-based, expiring key/value cache
// backed by SQLite. Values are opaque serialized blobs, entries carry
// absolute or sliding lifetimes, and up to five same-partition parent
// pointers cascade deletes to dependent entries.
package kvlite

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/kvlite-go/kvlite/internal/clock"
	"github.com/kvlite-go/kvlite/internal/codec"
	"github.com/kvlite-go/kvlite/internal/hashing"
	"github.com/kvlite-go/kvlite/internal/sqlitekit"
	"github.com/kvlite-go/kvlite/internal/store"
)

// CountMode selects whether Count/Clear take expiry into account.
// Re-exported from internal/store so callers never import internal
// packages.
type CountMode = store.CountMode

const (
	IgnoreExpiry   = store.IgnoreExpiry
	ConsiderExpiry = store.ConsiderExpiry
)

// Cache is the public cache surface: a synchronous API plus an
// asynchronous mirror, both running the same code path. Sync callers
// simply never cancel.
type Cache struct {
	opts   Options
	driver sqlitekit.Driver
	store  *store.Store
	codec  *codec.Codec
	clk    clock.Clock

	lastErr  atomic.Pointer[Error]
	disposed atomic.Bool
}

// Open creates or opens a cache per opts. Callers should start from
// DefaultOptions() and override fields rather than building an Options
// from its zero value.
func Open(opts Options) (*Cache, error) {
	return newCache(opts, clock.System{})
}

func newCache(opts Options, clk clock.Clock) (*Cache, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	ctx := context.Background()
	tableCfg := sqlitekit.TableConfig{TableName: opts.EntriesTableName, SchemaName: opts.SchemaName}

	var drv sqlitekit.Driver
	var err error
	switch opts.Mode {
	case Volatile:
		drv, err = sqlitekit.OpenModerncDriver(ctx, opts.CacheName, tableCfg)
	default:
		drv, err = sqlitekit.OpenSQLite3Driver(ctx, opts.DataDir, opts.CacheName, tableCfg, opts.MaxOpenConns, opts.MaxIdleConns, opts.MaxCacheSizeMB)
	}
	if err != nil {
		return nil, fmt.Errorf("kvlite: open driver: %w", err)
	}

	if err := drv.EnsureSchema(ctx); err != nil {
		drv.Close()
		return nil, err
	}

	ser := opts.Serializer
	if ser == nil {
		ser = codec.JSONSerializer{}
	}

	return &Cache{
		opts:   opts,
		driver: drv,
		store:  store.New(drv),
		codec:  codec.New(ser, opts.MinValueLengthForCompression),
		clk:    clk,
	}, nil
}

// Close releases the underlying driver. Further writes, Remove, Vacuum and
// SetEntriesTable return KindDisposed; further reads return a miss or zero.
func (c *Cache) Close() error {
	c.disposed.Store(true)
	return c.driver.Close()
}

// ConnectionString returns the computed, read-only DSN backing this cache.
func (c *Cache) ConnectionString() string {
	return c.driver.ConnectionString()
}

// Vacuum runs VACUUM against the backing database on demand. It returns
// KindNotSupported on the volatile driver, which has no file to reclaim
// space from.
func (c *Cache) Vacuum() error {
	if err := c.checkDisposed("Vacuum"); err != nil {
		return err
	}
	if err := c.driver.Vacuum(context.Background()); err != nil {
		var kerr *Error
		if errors.As(err, &kerr) {
			return kerr
		}
		return newErr("Vacuum", KindTransient, err)
	}
	return nil
}

// SetEntriesTable retargets the cache at a different backing table (and
// optional schema) at runtime: the schema for the new name is created if
// absent and every SQL template is regenerated. Entries stay in the old
// table; they become reachable again by switching back.
func (c *Cache) SetEntriesTable(tableName, schemaName string) error {
	if err := c.checkDisposed("SetEntriesTable"); err != nil {
		return err
	}
	if tableName == "" {
		return newErr("SetEntriesTable", KindInvalidArgument, nil)
	}
	cfg := sqlitekit.TableConfig{TableName: tableName, SchemaName: schemaName}
	if err := c.driver.SetTableConfig(context.Background(), cfg); err != nil {
		var kerr *Error
		if errors.As(err, &kerr) {
			return kerr
		}
		return newErr("SetEntriesTable", KindSchemaError, err)
	}
	c.opts.EntriesTableName = tableName
	c.opts.SchemaName = schemaName
	return nil
}

// LastError returns the most recently recorded error (a transient fault, a
// failed decode on a read, or NotSupported from Peek/PeekItems), or nil if
// none has occurred since Open. The facade never clears it automatically.
func (c *Cache) LastError() error {
	e := c.lastErr.Load()
	if e == nil {
		return nil
	}
	return e
}

func (c *Cache) recordTransient(op string, err error) {
	e := newErr(op, KindTransient, err)
	c.lastErr.Store(e)
	if c.opts.SuppressTransientLog != nil && c.opts.SuppressTransientLog(err) {
		return
	}
	log.Printf("[KVLITE] transient error in %s: %v", op, err)
}

func (c *Cache) checkDisposed(op string) error {
	if c.disposed.Load() {
		return newErr(op, KindDisposed, nil)
	}
	return nil
}

func (c *Cache) normalizePartition(partition string) string {
	if partition == "" {
		return c.opts.DefaultPartition
	}
	return partition
}

func (c *Cache) maybeAutoCleanup(ctx context.Context) {
	if !sqlitekit.ShouldAutoCleanup(c.opts.ChancesOfAutoCleanup) {
		return
	}
	if _, err := c.store.Clear(ctx, nil, ConsiderExpiry, c.clk.NowUnix()); err != nil {
		c.recordTransient("AutoCleanup", err)
	}
}

// resolveParents validates parentKeys against the configured per-item cap
// and tree-depth cap, and computes each one's hash within partition.
// Parents always live in the same partition as the child.
func (c *Cache) resolveParents(op, partition string, parentKeys []string) ([]store.ParentRef, error) {
	if len(parentKeys) > c.opts.MaxParentKeyCountPerItem {
		return nil, newErr(op, KindTooManyParents, nil)
	}
	refs := make([]store.ParentRef, 0, len(parentKeys))
	deepest := 0
	for _, pk := range parentKeys {
		if pk == "" {
			return nil, newErr(op, KindInvalidArgument, nil)
		}
		parentHash := hashing.EntryHash(partition, pk)
		d, err := c.store.ParentDepth(context.Background(), parentHash, c.opts.MaxParentKeyTreeDepth)
		if err != nil {
			c.recordTransient(op, err)
		} else if d > deepest {
			deepest = d
		}
		refs = append(refs, store.ParentRef{Key: pk, Hash: parentHash})
	}
	if len(refs) > 0 && deepest+1 > c.opts.MaxParentKeyTreeDepth {
		return nil, newErr(op, KindTooManyParents, nil)
	}
	return refs, nil
}

func (c *Cache) buildEntry(op, partition, key string, value any, utcExpiry, interval int64, parents []store.ParentRef) (store.Entry, error) {
	data, compressed, err := c.codec.Encode(value)
	if err != nil {
		return store.Entry{}, newErr(op, KindNotSerializable, err)
	}
	now := c.clk.NowUnix()
	return store.Entry{
		Hash:          hashing.EntryHash(partition, key),
		PartitionHash: hashing.PartitionHash(partition),
		Partition:     partition,
		Key:           key,
		UTCExpiry:     utcExpiry,
		Interval:      interval,
		Value:         data,
		Compressed:    compressed,
		UTCCreation:   now,
		Parents:       parents,
	}, nil
}

func durationSeconds(d time.Duration) int64 {
	if d < 0 {
		d = 0
	}
	return int64(d.Seconds())
}
