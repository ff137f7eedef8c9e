package store

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/h5zarr/internal/metrics"
)

// countingStore counts Get calls to the wrapped store.
type countingStore struct {
	Store
	gets int
}

func (c *countingStore) Get(ctx context.Context, key string) ([]byte, error) {
	c.gets++
	return c.Store.Get(ctx, key)
}

func TestCacheServesRepeatedReads(t *testing.T) {
	ctx := context.Background()
	base := &countingStore{Store: NewMemory()}
	require.NoError(t, base.Set(ctx, "k", []byte("value")))

	c, err := NewCache(base, 1024)
	require.NoError(t, err)

	hits := testutil.ToFloat64(metrics.CounterCacheHits)
	misses := testutil.ToFloat64(metrics.CounterCacheMisses)

	for i := 0; i < 3; i++ {
		v, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "value", string(v))
	}
	assert.Equal(t, 1, base.gets)
	assert.Equal(t, hits+2, testutil.ToFloat64(metrics.CounterCacheHits))
	assert.Equal(t, misses+1, testutil.ToFloat64(metrics.CounterCacheMisses))
	assert.Equal(t, int64(5), c.Size())
}

func TestCacheEvictsBySize(t *testing.T) {
	ctx := context.Background()
	base := &countingStore{Store: NewMemory()}
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, base.Set(ctx, k, []byte(strings.Repeat(k, 40))))
	}

	c, err := NewCache(base, 100)
	require.NoError(t, err)

	for _, k := range []string{"a", "b", "c"} {
		_, err := c.Get(ctx, k)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int64(80), c.Size())

	// "a" was least recently used and is gone; "c" is still cached.
	base.gets = 0
	_, err = c.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 0, base.gets)
	_, err = c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, base.gets)
}

func TestCacheSkipsOversizedValues(t *testing.T) {
	ctx := context.Background()
	c, err := NewCache(NewMemory(), 10)
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "big", make([]byte, 11)))
	assert.Equal(t, 0, c.Len())
	v, err := c.Get(ctx, "big")
	require.NoError(t, err)
	assert.Len(t, v, 11)
	assert.Equal(t, int64(0), c.Size())
}

func TestCacheWriteThrough(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	c, err := NewCache(base, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultCacheSize), c.maxSize)

	keys, err := c.ListKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, c.Set(ctx, "k", []byte("v")))
	v, err := base.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(v))

	keys, err = c.ListKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)

	require.NoError(t, c.Set(ctx, "k", []byte("longer")))
	assert.Equal(t, int64(6), c.Size())

	c.Invalidate()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Size())

	ok, err := c.Has(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}
