package cache

import (
	"slices"
	"sync"
)

// ParamsCache stores tuned launch parameters by tuning key.
type ParamsCache interface {
	// Get retrieves the parameters stored under key.
	Get(key string) ([]uint32, bool)
	// Put stores params under key, replacing any previous value.
	Put(key string, params []uint32)
	// Size returns the number of keys in the cache.
	Size() int
	// Snapshot returns a copy of every entry.
	Snapshot() map[string][]uint32
}

// MapCache is a simple in-memory implementation of ParamsCache.
type MapCache struct {
	data map[string][]uint32
	mu   sync.RWMutex
}

func NewMapCache() *MapCache {
	return &MapCache{
		data: make(map[string][]uint32),
	}
}

func (c *MapCache) Get(key string) ([]uint32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Return copy to avoid modification of cached value
	if v, ok := c.data[key]; ok {
		return slices.Clone(v), true
	}
	return nil, false
}

func (c *MapCache) Put(key string, params []uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = slices.Clone(params)
}

func (c *MapCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

func (c *MapCache) Snapshot() map[string][]uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string][]uint32, len(c.data))
	for k, v := range c.data {
		out[k] = slices.Clone(v)
	}
	return out
}

// Keys returns the stored keys in sorted order.
func (c *MapCache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
