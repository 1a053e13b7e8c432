// Package cache holds short-lived resource listings keyed by scope
// descriptor, so policies sharing a scope within the TTL share one
// provider call.
package cache

import (
	"sync"
	"time"

	"github.com/catherinevee/policyguard/pkg/models"
)

// DefaultTTL is how long a listing stays fresh.
const DefaultTTL = 300 * time.Second

type entry struct {
	fetchedAt time.Time
	resources []models.Resource
}

// ResourceCache is a thread-safe TTL cache of resource listings.
type ResourceCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time
}

// New creates a cache. A non-positive ttl falls back to DefaultTTL.
func New(ttl time.Duration) *ResourceCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResourceCache{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached listing for a scope descriptor if still fresh.
func (c *ResourceCache) Get(scope string) ([]models.Resource, bool) {
	c.mu.RLock()
	e, ok := c.entries[scope]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.fetchedAt) >= c.ttl {
		return nil, false
	}
	return e.resources, true
}

// Set stores a listing for a scope descriptor.
func (c *ResourceCache) Set(scope string, resources []models.Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[scope] = entry{fetchedAt: c.now(), resources: resources}
}

// Invalidate drops the cached listing for a scope descriptor.
func (c *ResourceCache) Invalidate(scope string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, scope)
}
