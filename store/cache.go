package store

import (
	"context"
	"math"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/pkg/errors"

	"github.com/robert-malhotra/h5zarr/internal/metrics"
)

// DefaultCacheSize is the default byte budget of a Cache.
const DefaultCacheSize = 1 << 30

// Cache is a read-through LRU cache over another store, bounded by the
// total size of the cached values. Writes go to the backing store and
// update the cache. The key listing is cached until the next write.
type Cache struct {
	base    Store
	maxSize int64

	mu   sync.Mutex
	lru  *simplelru.LRU[string, []byte]
	size int64
	keys []string
}

// NewCache wraps base with a cache holding at most maxSize bytes of
// values. A maxSize of zero or less selects DefaultCacheSize.
func NewCache(base Store, maxSize int64) (*Cache, error) {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	c := &Cache{base: base, maxSize: maxSize}
	l, err := simplelru.NewLRU[string, []byte](math.MaxInt32, c.onEvict)
	if err != nil {
		return nil, errors.Wrap(err, "creating LRU")
	}
	c.lru = l
	return c, nil
}

// onEvict runs with c.mu held.
func (c *Cache) onEvict(_ string, value []byte) {
	c.size -= int64(len(value))
}

// Base returns the wrapped store.
func (c *Cache) Base() Store {
	return c.base
}

// Size returns the number of cached bytes.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len returns the number of cached values.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	if v, ok := c.lru.Get(key); ok {
		c.mu.Unlock()
		metrics.CounterCacheHits.Inc()
		return append([]byte(nil), v...), nil
	}
	c.mu.Unlock()
	metrics.CounterCacheMisses.Inc()

	v, err := c.base.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.put(key, v)
	c.mu.Unlock()
	return append([]byte(nil), v...), nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte) error {
	if err := c.base.Set(ctx, key, value); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, append([]byte(nil), value...))
	c.keys = nil
	return nil
}

func (c *Cache) Has(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	ok := c.lru.Contains(key)
	c.mu.Unlock()
	if ok {
		return true, nil
	}
	return Has(ctx, c.base, key)
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := Delete(ctx, c.base, key); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
	c.keys = nil
	return nil
}

func (c *Cache) ListKeys(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	if c.keys != nil {
		keys := append([]string(nil), c.keys...)
		c.mu.Unlock()
		return keys, nil
	}
	c.mu.Unlock()

	keys, err := c.base.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.keys = append([]string{}, keys...)
	c.mu.Unlock()
	return keys, nil
}

// Invalidate drops every cached value and the cached key listing.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.keys = nil
}

// put caches value unless it alone exceeds the budget, then evicts the
// least recently used values until the cache fits. Requires c.mu.
func (c *Cache) put(key string, value []byte) {
	c.lru.Remove(key)
	if int64(len(value)) > c.maxSize {
		return
	}
	c.lru.Add(key, value)
	c.size += int64(len(value))
	for c.size > c.maxSize {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
	}
}
