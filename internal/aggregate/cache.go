package aggregate

import (
	"sync"
	"time"
)

// Cache holds computed snapshots keyed by report name with a per-entry
// TTL. It is an explicit object owned by its caller; a successful
// aggregation pass is expected to call Invalidate so stale reports never
// outlive fresher data.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

type cacheEntry struct {
	snapshot   Snapshot
	computedAt time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached snapshot for key if it is still within TTL.
func (c *Cache) Get(key string) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return Snapshot{}, false
	}
	if c.ttl > 0 && c.now().Sub(entry.computedAt) > c.ttl {
		return Snapshot{}, false
	}
	return entry.snapshot, true
}

func (c *Cache) Put(key string, snapshot Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{snapshot: snapshot, computedAt: c.now()}
}

// Invalidate drops every entry. Called after each successful aggregation
// pass.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
