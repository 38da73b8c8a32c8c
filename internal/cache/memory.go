package cache

import (
	"context"
	"sync"
	"time"

	"github.com/joaohlviana/99novo-sub001/internal/models"
)

// MemoryCache is a process-local Store. Expired entries are removed lazily
// on lookup; there is no size bound.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*models.CacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache creates an empty cache. A nil clock means time.Now and a
// non-positive ttl means DefaultTTL.
func NewMemoryCache(ttl time.Duration, clock func() time.Time) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &MemoryCache{
		entries: make(map[string]*models.CacheEntry),
		ttl:     ttl,
		now:     clock,
	}
}

// Get returns a copy of the fresh entry stored under key
func (c *MemoryCache) Get(_ context.Context, key string) (*models.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if expired(entry, c.now(), c.ttl) {
		delete(c.entries, key)
		return nil, false
	}

	cp := *entry
	cp.Data = append([]models.TrainerSearchResult(nil), entry.Data...)
	return &cp, true
}

// Put stores outcome under key, replacing any previous entry
func (c *MemoryCache) Put(_ context.Context, key string, outcome *models.SearchOutcome) {
	if outcome == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = newEntry(key, outcome, c.now())
}

// Clear drops every entry
func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*models.CacheEntry)
	return nil
}

// Len returns the number of stored entries, fresh or not
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// TTL returns the freshness window
func (c *MemoryCache) TTL() time.Duration {
	return c.ttl
}
