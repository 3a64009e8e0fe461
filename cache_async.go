package kvlite

import (
	"context"
	"time"
)

// runAsync executes fn in a goroutine and returns its error, unblocking
// early if ctx is cancelled first. The async mirror is a context-bounded
// wrapper around the synchronous implementation; there is no second code
// path.
func runAsync(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AddTimedAsync mirrors AddTimed, cancellable via ctx.
func (c *Cache) AddTimedAsync(ctx context.Context, partition, key string, value any, ttl time.Duration, parentKeys ...string) error {
	return runAsync(ctx, func() error { return c.AddTimed(partition, key, value, ttl, parentKeys...) })
}

// AddSlidingAsync mirrors AddSliding, cancellable via ctx.
func (c *Cache) AddSlidingAsync(ctx context.Context, partition, key string, value any, interval time.Duration, parentKeys ...string) error {
	return runAsync(ctx, func() error { return c.AddSliding(partition, key, value, interval, parentKeys...) })
}

// AddStaticAsync mirrors AddStatic, cancellable via ctx.
func (c *Cache) AddStaticAsync(ctx context.Context, partition, key string, value any, parentKeys ...string) error {
	return runAsync(ctx, func() error { return c.AddStatic(partition, key, value, parentKeys...) })
}

// RemoveAsync mirrors Remove, cancellable via ctx.
func (c *Cache) RemoveAsync(ctx context.Context, partition, key string) error {
	return runAsync(ctx, func() error { return c.Remove(partition, key) })
}

// ContainsAsync mirrors Contains, cancellable via ctx. A cancelled call
// reports false alongside ctx.Err().
func (c *Cache) ContainsAsync(ctx context.Context, partition, key string) (bool, error) {
	var ok bool
	err := runAsync(ctx, func() error {
		ok = c.Contains(partition, key)
		return nil
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// CountAsync mirrors Count, cancellable via ctx.
func (c *Cache) CountAsync(ctx context.Context, partition string, mode CountMode) (int64, error) {
	var n int64
	err := runAsync(ctx, func() error {
		n = c.Count(partition, mode)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ClearAsync mirrors Clear, cancellable via ctx. The underlying DELETE is
// a single statement; cancellation only unblocks the caller, it does not
// roll back a delete already in flight.
func (c *Cache) ClearAsync(ctx context.Context, partition string, mode CountMode) (int64, error) {
	var n int64
	err := runAsync(ctx, func() error {
		n = c.Clear(partition, mode)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// SizeInBytesAsync mirrors SizeInBytes, cancellable via ctx.
func (c *Cache) SizeInBytesAsync(ctx context.Context, partition string) (int64, error) {
	var n int64
	err := runAsync(ctx, func() error {
		n = c.SizeInBytes(partition)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// VacuumAsync mirrors Vacuum, cancellable via ctx.
func (c *Cache) VacuumAsync(ctx context.Context) error {
	return runAsync(ctx, func() error { return c.Vacuum() })
}

// GetAsync mirrors Get. Cancellation between the read and the sliding-touch
// update is permitted: if ctx is already done by the time the synchronous
// Get would touch the row, the touch is attempted anyway inside the same
// transaction as the select (SQLite transactions aren't individually
// cancellable mid-flight), so the only externally visible effect of
// cancelling here is that this call may return ctx.Err() instead of the
// decoded value.
func GetAsync[T any](ctx context.Context, c *Cache, partition, key string) (Result[T], error) {
	var res Result[T]
	err := runAsync(ctx, func() error {
		res = Get[T](c, partition, key)
		return nil
	})
	if err != nil {
		return None[T](), err
	}
	return res, nil
}

// PeekAsync mirrors Peek, cancellable via ctx.
func PeekAsync[T any](ctx context.Context, c *Cache, partition, key string) (Result[T], error) {
	var res Result[T]
	err := runAsync(ctx, func() error {
		res = Peek[T](c, partition, key)
		return nil
	})
	if err != nil {
		return None[T](), err
	}
	return res, nil
}

// GetItemsAsync mirrors GetItems, cancellable via ctx.
func GetItemsAsync[T any](ctx context.Context, c *Cache, partition string) ([]T, error) {
	var items []T
	err := runAsync(ctx, func() error {
		items = GetItems[T](c, partition)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// PeekItemsAsync mirrors PeekItems, cancellable via ctx.
func PeekItemsAsync[T any](ctx context.Context, c *Cache, partition string) ([]T, error) {
	var items []T
	err := runAsync(ctx, func() error {
		items = PeekItems[T](c, partition)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// GetOrAddAsync mirrors GetOrAdd, cancellable via ctx.
func GetOrAddAsync[T any](ctx context.Context, c *Cache, partition, key string, producer func() (T, error), parentKeys ...string) (T, error) {
	var v T
	err := runAsync(ctx, func() error {
		var innerErr error
		v, innerErr = GetOrAdd[T](c, partition, key, producer, parentKeys...)
		return innerErr
	})
	var zero T
	if err != nil {
		return zero, err
	}
	return v, nil
}
