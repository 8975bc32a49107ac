// Package cache stores probe results between scans so unchanged links are
// not re-probed every run. Entries stay retrievable for a stale window after
// their TTL, letting the scanner fall back to the last known result when a
// live probe fails.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/docsentry/docsentry/internal/probe"
)

// Cache is the probe result store. Get returns only fresh entries; GetStale
// also returns expired ones still inside the stale window.
type Cache interface {
	Get(ctx context.Context, url string) (probe.Result, bool, error)
	GetStale(ctx context.Context, url string) (probe.Result, bool, error)
	Set(ctx context.Context, url string, value probe.Result, ttl time.Duration) error
}

// envelope wraps a result with its freshness deadline, so backends that only
// support absolute expiry (memcached) can still distinguish fresh from stale.
type envelope struct {
	Result     probe.Result `json:"result"`
	FreshUntil time.Time    `json:"freshUntil"`
}

// MemoryCache implements Cache with an in-process map. Safe for concurrent
// use by scan workers.
type MemoryCache struct {
	mu       sync.RWMutex
	data     map[string]memoryEntry
	staleFor time.Duration
}

type memoryEntry struct {
	value      probe.Result
	freshUntil time.Time
	dropAt     time.Time
}

// NewMemoryCache creates a memory cache that keeps expired entries around
// for staleFor after their TTL.
func NewMemoryCache(staleFor time.Duration) *MemoryCache {
	if staleFor < 0 {
		staleFor = 0
	}
	return &MemoryCache{
		data:     make(map[string]memoryEntry),
		staleFor: staleFor,
	}
}

// Get returns a fresh entry, dropping entries past their stale window.
func (c *MemoryCache) Get(ctx context.Context, url string) (probe.Result, bool, error) {
	c.mu.RLock()
	entry, ok := c.data[url]
	c.mu.RUnlock()
	if !ok {
		return probe.Result{}, false, nil
	}

	now := time.Now()
	if now.After(entry.dropAt) {
		c.mu.Lock()
		delete(c.data, url)
		c.mu.Unlock()
		return probe.Result{}, false, nil
	}
	if now.After(entry.freshUntil) {
		return probe.Result{}, false, nil
	}
	return entry.value, true, nil
}

// GetStale returns any entry still inside the stale window, marking expired
// ones as stale.
func (c *MemoryCache) GetStale(ctx context.Context, url string) (probe.Result, bool, error) {
	c.mu.RLock()
	entry, ok := c.data[url]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.dropAt) {
		return probe.Result{}, false, nil
	}
	value := entry.value
	if time.Now().After(entry.freshUntil) {
		value.Stale = true
	}
	return value, true, nil
}

// Set stores a result with the given freshness TTL.
func (c *MemoryCache) Set(ctx context.Context, url string, value probe.Result, ttl time.Duration) error {
	now := time.Now()
	c.mu.Lock()
	c.data[url] = memoryEntry{
		value:      value,
		freshUntil: now.Add(ttl),
		dropAt:     now.Add(ttl + c.staleFor),
	}
	c.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, counting expired ones not yet
// dropped.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
