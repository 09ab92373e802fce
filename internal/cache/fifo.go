// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

package cache

import "sync"

// VectorCache is a bounded insertion-order cache for feature vectors. When
// capacity is reached it evicts the oldest entries in one batch, which keeps
// eviction off the hot path for a mostly-append workload.
type VectorCache struct {
	mu       sync.RWMutex
	capacity int
	evict    int
	items    map[string][]float32
	order    []string
}

// NewVectorCache creates a vector cache holding at most capacity entries,
// dropping the oldest evict entries on overflow.
func NewVectorCache(capacity, evict int) *VectorCache {
	if capacity <= 0 {
		capacity = 1000
	}
	if evict <= 0 || evict > capacity {
		evict = capacity / 10
		if evict == 0 {
			evict = 1
		}
	}
	return &VectorCache{
		capacity: capacity,
		evict:    evict,
		items:    make(map[string][]float32, capacity),
		order:    make([]string, 0, capacity),
	}
}

// Get returns the cached vector for id, if present.
func (c *VectorCache) Get(id string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[id]
	return v, ok
}

// Put stores a vector. Re-inserting an existing id replaces the value
// without changing its position in the eviction order.
func (c *VectorCache) Put(id string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[id]; exists {
		c.items[id] = vec
		return
	}

	if len(c.order) >= c.capacity {
		n := c.evict
		if n > len(c.order) {
			n = len(c.order)
		}
		for _, old := range c.order[:n] {
			delete(c.items, old)
		}
		c.order = append(c.order[:0], c.order[n:]...)
	}

	c.items[id] = vec
	c.order = append(c.order, id)
}

// Len returns the number of cached vectors.
func (c *VectorCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Clear drops all cached vectors, used when indices are rebuilt.
func (c *VectorCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string][]float32, c.capacity)
	c.order = c.order[:0]
}
