package kvlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvlite-go/kvlite/internal/clock"
)

func newTestCache(t *testing.T, clk *clock.Fake) *Cache {
	t.Helper()
	opts := DefaultOptions()
	opts.DataDir = filepath.Join(t.TempDir(), "data")
	opts.CacheName = "test"
	c, err := newCache(opts, clk)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestScenarioTimedMissOnExpiry(t *testing.T) {
	clk := clock.NewFake(0)
	c := newTestCache(t, clk)

	require.NoError(t, c.AddTimed("p", "k", "v", 10*time.Second))

	clk.Set(9)
	r := Get[string](c, "p", "k")
	v, ok := r.Get()
	require.True(t, ok)
	assert.Equal(t, "v", v)

	clk.Set(11)
	assert.False(t, Get[string](c, "p", "k").Ok())
}

func TestScenarioSlidingTouch(t *testing.T) {
	clk := clock.NewFake(0)
	c := newTestCache(t, clk)

	require.NoError(t, c.AddSliding("p", "k", "v", 10*time.Second))

	clk.Set(7)
	r := Get[string](c, "p", "k")
	require.True(t, r.Ok())

	peek := Peek[string](c, "p", "k")
	require.True(t, peek.Ok())

	clk.Set(16)
	require.True(t, Get[string](c, "p", "k").Ok())

	clk.Set(30)
	assert.False(t, Get[string](c, "p", "k").Ok())
}

func TestScenarioUpsertReplaces(t *testing.T) {
	clk := clock.NewFake(0)
	c := newTestCache(t, clk)

	require.NoError(t, c.AddTimed("p", "k", "v1", 100*time.Second))
	require.NoError(t, c.AddTimed("p", "k", "v2", 100*time.Second))

	assert.Equal(t, int64(1), c.Count("p", IgnoreExpiry))
	r := Get[string](c, "p", "k")
	v, _ := r.Get()
	assert.Equal(t, "v2", v)
}

func TestScenarioParentCascade(t *testing.T) {
	clk := clock.NewFake(0)
	c := newTestCache(t, clk)

	require.NoError(t, c.AddTimed("p", "parent", 1, 1000*time.Second))
	require.NoError(t, c.AddTimed("p", "child", 2, 1000*time.Second, "parent"))

	require.NoError(t, c.Remove("p", "parent"))
	assert.False(t, c.Contains("p", "child"))
}

func TestScenarioPartitionCount(t *testing.T) {
	clk := clock.NewFake(0)
	c := newTestCache(t, clk)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.AddTimed("A", keyFor(i), i, 100*time.Second))
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, c.AddTimed("B", keyFor(i), i, 100*time.Second))
	}

	assert.Equal(t, int64(5), c.Count("", IgnoreExpiry))
	assert.Equal(t, int64(3), c.Count("A", IgnoreExpiry))
	assert.Equal(t, int64(2), c.Count("B", IgnoreExpiry))
}

func TestScenarioCompressionThreshold(t *testing.T) {
	clk := clock.NewFake(0)
	opts := DefaultOptions()
	opts.DataDir = t.TempDir()
	opts.CacheName = "compress-test"
	opts.MinValueLengthForCompression = 100
	c, err := newCache(opts, clk)
	require.NoError(t, err)
	defer c.Close()

	big := string(make([]byte, 1000))
	require.NoError(t, c.AddTimed("p", "big", big, 1000*time.Second))
	small := string(make([]byte, 50))
	require.NoError(t, c.AddTimed("p", "small", small, 1000*time.Second))

	gotBig, ok := Get[string](c, "p", "big").Get()
	require.True(t, ok)
	assert.Equal(t, big, gotBig)

	gotSmall, ok := Get[string](c, "p", "small").Get()
	require.True(t, ok)
	assert.Equal(t, small, gotSmall)
}

func TestGetOrAddCallsProducerOnceOnHit(t *testing.T) {
	clk := clock.NewFake(0)
	c := newTestCache(t, clk)

	calls := 0
	producer := func() (string, error) {
		calls++
		return "produced", nil
	}

	v, err := GetOrAdd[string](c, "p", "k", producer)
	require.NoError(t, err)
	assert.Equal(t, "produced", v)

	v2, err := GetOrAdd[string](c, "p", "k", producer)
	require.NoError(t, err)
	assert.Equal(t, "produced", v2)
	assert.Equal(t, 1, calls)
}

func TestInvalidArgumentOnEmptyKey(t *testing.T) {
	clk := clock.NewFake(0)
	c := newTestCache(t, clk)

	err := c.AddTimed("p", "", "v", 10*time.Second)
	require.Error(t, err)
	var kerr *Error
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, KindInvalidArgument, kerr.Kind)
}

func TestTooManyParentsRejected(t *testing.T) {
	clk := clock.NewFake(0)
	c := newTestCache(t, clk)
	opts := c.opts
	opts.MaxParentKeyCountPerItem = 1

	c2, err := newCache(opts, clk)
	require.NoError(t, err)
	defer c2.Close()

	err = c2.AddTimed("p", "k", "v", 10*time.Second, "a", "b")
	require.Error(t, err)
	var kerr *Error
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, KindTooManyParents, kerr.Kind)
}

func TestParentKeyTreeDepthRejected(t *testing.T) {
	clk := clock.NewFake(0)
	c := newTestCache(t, clk)
	opts := c.opts
	opts.MaxParentKeyTreeDepth = 1

	c2, err := newCache(opts, clk)
	require.NoError(t, err)
	defer c2.Close()

	require.NoError(t, c2.AddTimed("p", "root", "v", 100*time.Second))
	require.NoError(t, c2.AddTimed("p", "mid", "v", 100*time.Second, "root"))

	err = c2.AddTimed("p", "leaf", "v", 100*time.Second, "mid")
	require.Error(t, err)
	var kerr *Error
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, KindTooManyParents, kerr.Kind)
}

func TestConcurrentUpsertsLeaveSingleRow(t *testing.T) {
	clk := clock.NewFake(0)
	c := newTestCache(t, clk)

	const writers = 8
	values := make([]string, writers)
	for i := range values {
		values[i] = fmt.Sprintf("value-%d", i)
	}

	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- c.AddTimed("p", "contested", values[i], 100*time.Second)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), c.Count("p", IgnoreExpiry))
	got, ok := Get[string](c, "p", "contested").Get()
	require.True(t, ok)
	assert.Contains(t, values, got)
}

func TestGetItemsReturnsPartitionValues(t *testing.T) {
	clk := clock.NewFake(0)
	c := newTestCache(t, clk)

	require.NoError(t, c.AddTimed("A", "x", "ax", 100*time.Second))
	require.NoError(t, c.AddTimed("A", "y", "ay", 100*time.Second))
	require.NoError(t, c.AddTimed("B", "z", "bz", 100*time.Second))

	a := GetItems[string](c, "A")
	assert.ElementsMatch(t, []string{"ax", "ay"}, a)

	all := PeekItems[string](c, "")
	assert.ElementsMatch(t, []string{"ax", "ay", "bz"}, all)
}

func TestVolatileModePeekNotSupported(t *testing.T) {
	clk := clock.NewFake(0)
	opts := DefaultOptions()
	opts.Mode = Volatile
	opts.CacheName = "volatile-peek"
	c, err := newCache(opts, clk)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.AddTimed("p", "k", "v", 100*time.Second))

	v, ok := Get[string](c, "p", "k").Get()
	require.True(t, ok)
	assert.Equal(t, "v", v)

	assert.False(t, Peek[string](c, "p", "k").Ok())
	require.Error(t, c.LastError())
	var kerr *Error
	require.ErrorAs(t, c.LastError(), &kerr)
	assert.Equal(t, KindNotSupported, kerr.Kind)
}

func TestVacuumNotSupportedOnVolatile(t *testing.T) {
	clk := clock.NewFake(0)
	opts := DefaultOptions()
	opts.Mode = Volatile
	opts.CacheName = "volatile-vacuum"
	c, err := newCache(opts, clk)
	require.NoError(t, err)
	defer c.Close()

	err = c.Vacuum()
	require.Error(t, err)
	var kerr *Error
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, KindNotSupported, kerr.Kind)
}

func TestVacuumOnPersistent(t *testing.T) {
	clk := clock.NewFake(0)
	c := newTestCache(t, clk)
	require.NoError(t, c.Vacuum())
}

func TestClearReturnsRemovedCount(t *testing.T) {
	clk := clock.NewFake(0)
	c := newTestCache(t, clk)

	require.NoError(t, c.AddTimed("p", "live", "v", 1000*time.Second))
	require.NoError(t, c.AddTimed("p", "dead", "v", 1*time.Second))

	clk.Set(500)
	assert.Equal(t, int64(1), c.Clear("", ConsiderExpiry))
	assert.Equal(t, int64(1), c.Count("", IgnoreExpiry))

	// A second sweep with no writes in between removes nothing more.
	assert.Equal(t, int64(0), c.Clear("", ConsiderExpiry))
}

func TestDisposedCacheRejectsWrites(t *testing.T) {
	clk := clock.NewFake(0)
	opts := DefaultOptions()
	opts.DataDir = filepath.Join(t.TempDir(), "data")
	opts.CacheName = "disposed"
	c, err := newCache(opts, clk)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	err = c.AddTimed("p", "k", "v", 10*time.Second)
	require.Error(t, err)
	var kerr *Error
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, KindDisposed, kerr.Kind)

	assert.False(t, c.Contains("p", "k"))
	assert.False(t, Get[string](c, "p", "k").Ok())
}

func TestAsyncMirrorsRoundTrip(t *testing.T) {
	clk := clock.NewFake(0)
	c := newTestCache(t, clk)
	ctx := context.Background()

	require.NoError(t, c.AddTimedAsync(ctx, "p", "k", "v", 100*time.Second))

	ok, err := c.ContainsAsync(ctx, "p", "k")
	require.NoError(t, err)
	assert.True(t, ok)

	r, err := GetAsync[string](ctx, c, "p", "k")
	require.NoError(t, err)
	v, found := r.Get()
	require.True(t, found)
	assert.Equal(t, "v", v)

	n, err := c.CountAsync(ctx, "", IgnoreExpiry)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, c.RemoveAsync(ctx, "p", "k"))
	ok, err = c.ContainsAsync(ctx, "p", "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAsyncCancelledContextReturnsCtxErr(t *testing.T) {
	clk := clock.NewFake(0)
	c := newTestCache(t, clk)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := GetAsync[string](ctx, c, "p", "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSetEntriesTableRewiresTemplates(t *testing.T) {
	clk := clock.NewFake(0)
	c := newTestCache(t, clk)

	require.NoError(t, c.AddTimed("p", "k", "old-table", 100*time.Second))

	require.NoError(t, c.SetEntriesTable("kvl_cache_entries_v2", ""))
	assert.Equal(t, int64(0), c.Count("", IgnoreExpiry))
	assert.False(t, Get[string](c, "p", "k").Ok())

	require.NoError(t, c.AddTimed("p", "k", "new-table", 100*time.Second))
	v, ok := Get[string](c, "p", "k").Get()
	require.True(t, ok)
	assert.Equal(t, "new-table", v)

	// The old table's rows come back when switching back.
	require.NoError(t, c.SetEntriesTable("kvl_cache_entries", ""))
	v, ok = Get[string](c, "p", "k").Get()
	require.True(t, ok)
	assert.Equal(t, "old-table", v)
}

func TestSizeInBytesGrowsWithValues(t *testing.T) {
	clk := clock.NewFake(0)
	c := newTestCache(t, clk)

	assert.Equal(t, int64(0), c.SizeInBytes(""))
	require.NoError(t, c.AddTimed("p", "k", "some value worth counting", 100*time.Second))
	assert.Greater(t, c.SizeInBytes(""), int64(0))
}

func keyFor(i int) string {
	return string(rune('a' + i))
}
