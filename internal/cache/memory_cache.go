package cache

import (
	"math"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"pixfetch/internal/codec"
)

// DefaultMemoryLimit is the default total cost of a MemoryCache (250 MiB).
const DefaultMemoryLimit int64 = 250 * 1024 * 1024

type memoryEntry struct {
	image *codec.Image
	cost  int64
}

// MemoryCache holds decoded images bounded by aggregate cost.
// Least recently used entries are evicted until the total fits the limit.
type MemoryCache struct {
	mu    sync.Mutex
	limit int64
	cost  int64
	lru   *simplelru.LRU[ResourceKey, memoryEntry]
}

// NewMemoryCache creates a MemoryCache holding at most limit cost.
// A non-positive limit selects DefaultMemoryLimit.
func NewMemoryCache(limit int64) *MemoryCache {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	c := &MemoryCache{limit: limit}
	// Entry count is unbounded; cost drives eviction.
	lru, err := simplelru.NewLRU[ResourceKey, memoryEntry](math.MaxInt, c.onEvict)
	if err != nil {
		panic(err)
	}
	c.lru = lru
	return c
}

// onEvict runs with c.mu held.
func (c *MemoryCache) onEvict(_ ResourceKey, e memoryEntry) {
	c.cost -= e.cost
}

func (c *MemoryCache) Get(key ResourceKey) (*codec.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return e.image, true
}

// Put stores img under key with the given cost.
// An image costing more than the whole limit is not stored.
func (c *MemoryCache) Put(key ResourceKey, img *codec.Image, cost int64) {
	if img == nil || cost < 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Remove(key)
	if cost > c.limit {
		return
	}

	c.lru.Add(key, memoryEntry{image: img, cost: cost})
	c.cost += cost

	for c.cost > c.limit {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
	}
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lru.Len()
}

// Cost returns the aggregate cost of the cached entries.
func (c *MemoryCache) Cost() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cost
}

func (c *MemoryCache) Limit() int64 {
	return c.limit
}

func (c *MemoryCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Purge()
	c.cost = 0
}
