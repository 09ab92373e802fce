// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

// Package cache provides the in-memory result cache shared by the
// recommendation engines. Entries carry individual TTLs and can be
// invalidated in bulk by glob pattern after retraining.
package cache

import (
	"crypto/sha256"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Entry is a cached item. A zero ExpiresAt means the entry never expires.
type Entry struct {
	Data      interface{}
	ExpiresAt time.Time
}

// Cache is a thread-safe in-memory cache with per-entry TTL support.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]Entry
	defaultTTL time.Duration
	maxEntries int
	stats      Stats
	stop       chan struct{}
	stopOnce   sync.Once
}

// Stats tracks cache performance counters.
type Stats struct {
	mu          sync.RWMutex
	Hits        int64
	Misses      int64
	Evictions   int64
	TotalKeys   int64
	LastCleanup time.Time
}

// New creates a cache with the given default TTL and starts a background
// cleanup goroutine firing at cleanupInterval. maxEntries <= 0 disables the
// size bound. Call Stop when the cache is no longer needed.
func New(defaultTTL, cleanupInterval time.Duration, maxEntries int) *Cache {
	c := &Cache{
		entries:    make(map[string]Entry),
		defaultTTL: defaultTTL,
		maxEntries: maxEntries,
		stats:      Stats{LastCleanup: time.Now()},
		stop:       make(chan struct{}),
	}
	go c.cleanupLoop(cleanupInterval)
	return c
}

// Stop terminates the background cleanup goroutine.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Get retrieves a value by key. Expired entries are removed on access and
// counted as misses.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		c.recordMiss()
		return nil, false
	}

	if entry.expired(time.Now()) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		c.recordMiss()
		c.recordEviction()
		return nil, false
	}

	c.recordHit()
	return entry.Data, true
}

// Set stores a value under the cache's default TTL.
func (c *Cache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores a value with a custom TTL. A ttl <= 0 makes the entry
// permanent until deleted or invalidated by pattern.
func (c *Cache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}

	c.mu.Lock()
	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		if _, exists := c.entries[key]; !exists {
			c.evictOneLocked()
		}
	}
	c.entries[key] = Entry{Data: value, ExpiresAt: expires}
	total := int64(len(c.entries))
	c.mu.Unlock()

	c.stats.mu.Lock()
	c.stats.TotalKeys = total
	c.stats.mu.Unlock()
}

// Delete removes a single entry. Safe to call for absent keys.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	c.recordEviction()
}

// DeletePattern removes every key matching the glob pattern (path.Match
// syntax, e.g. "collaborative*"). All matching keys are removed under a
// single write lock, so no reader observes a partially invalidated set.
// Returns the number of keys removed; a pattern matching nothing is not an
// error.
func (c *Cache) DeletePattern(pattern string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := int64(0)
	for key := range c.entries {
		ok, err := path.Match(pattern, key)
		if err != nil {
			return 0, fmt.Errorf("invalid cache pattern %q: %w", pattern, err)
		}
		if ok {
			delete(c.entries, key)
			removed++
		}
	}

	c.stats.mu.Lock()
	c.stats.Evictions += removed
	c.stats.TotalKeys = int64(len(c.entries))
	c.stats.mu.Unlock()

	return int(removed), nil
}

// Clear removes all entries atomically.
func (c *Cache) Clear() {
	c.mu.Lock()
	evictions := int64(len(c.entries))
	c.entries = make(map[string]Entry)
	c.mu.Unlock()

	c.stats.mu.Lock()
	c.stats.Evictions += evictions
	c.stats.TotalKeys = 0
	c.stats.mu.Unlock()
}

// GetStats returns a snapshot of the cache counters.
func (c *Cache) GetStats() Stats {
	c.stats.mu.RLock()
	defer c.stats.mu.RUnlock()

	return Stats{
		Hits:        c.stats.Hits,
		Misses:      c.stats.Misses,
		Evictions:   c.stats.Evictions,
		TotalKeys:   c.stats.TotalKeys,
		LastCleanup: c.stats.LastCleanup,
	}
}

// HitRate returns the hit rate as a percentage.
func (c *Cache) HitRate() float64 {
	stats := c.GetStats()
	total := stats.Hits + stats.Misses
	if total == 0 {
		return 0.0
	}
	return float64(stats.Hits) / float64(total) * 100.0
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// evictOneLocked removes one entry to make room, preferring an expired one.
// Caller holds the write lock.
func (c *Cache) evictOneLocked() {
	now := time.Now()
	var fallback string
	for key, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, key)
			return
		}
		fallback = key
	}
	if fallback != "" {
		delete(c.entries, fallback)
	}
}

func (c *Cache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stop:
			return
		}
	}
}

// cleanup removes expired entries. Permanent entries are skipped.
func (c *Cache) cleanup() {
	now := time.Now()
	c.mu.Lock()
	evictions := int64(0)
	for key, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, key)
			evictions++
		}
	}
	total := int64(len(c.entries))
	c.mu.Unlock()

	c.stats.mu.Lock()
	c.stats.Evictions += evictions
	c.stats.TotalKeys = total
	c.stats.LastCleanup = now
	c.stats.mu.Unlock()
}

func (c *Cache) recordHit() {
	c.stats.mu.Lock()
	c.stats.Hits++
	c.stats.mu.Unlock()
}

func (c *Cache) recordMiss() {
	c.stats.mu.Lock()
	c.stats.Misses++
	c.stats.mu.Unlock()
}

func (c *Cache) recordEviction() {
	c.stats.mu.Lock()
	c.stats.Evictions++
	c.stats.mu.Unlock()
}

// GenerateKey derives a deterministic cache key from a method name and its
// parameters. Identical inputs always produce identical keys.
func GenerateKey(method string, params interface{}) string {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%s:%v", method, params)
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", method, hash[:16])
}

// GenerateUserKey derives a per-user cache key whose user component stays
// glob-matchable, so "<method>:user:<id>:*" invalidates one user and
// "<method>:*" invalidates the whole method after retraining.
func GenerateUserKey(method, userID string, params interface{}) string {
	return fmt.Sprintf("%s:user:%s:%s", method, userID, GenerateKey("p", params))
}
