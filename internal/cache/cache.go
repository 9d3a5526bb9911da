// Package cache is a small in-process TTL cache used for response caching
// (topic hierarchy, insight reports).
package cache

import (
	"strings"
	"sync"
	"time"
)

type entry struct {
	data      interface{}
	expiresAt time.Time
}

// Cache is a TTL map safe for concurrent use
type Cache struct {
	items map[string]entry
	mutex sync.RWMutex
}

// New creates an empty cache
func New() *Cache {
	return &Cache{
		items: make(map[string]entry),
	}
}

// Get returns the value for key if present and not expired. Expired entries
// are removed on access.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mutex.RLock()
	item, exists := c.items[key]
	c.mutex.RUnlock()

	if !exists {
		return nil, false
	}
	if time.Now().After(item.expiresAt) {
		c.mutex.Lock()
		// re-check under the write lock; a concurrent Set may have refreshed it
		if current, ok := c.items[key]; ok && time.Now().After(current.expiresAt) {
			delete(c.items, key)
		}
		c.mutex.Unlock()
		return nil, false
	}

	return item.data, true
}

// Set stores a value under key for the given TTL, replacing any prior value
func (c *Cache) Set(key string, data interface{}, ttl time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items[key] = entry{
		data:      data,
		expiresAt: time.Now().Add(ttl),
	}
}

// Delete removes a key
func (c *Cache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.items, key)
}

// DeletePrefix removes every key starting with prefix. Used to invalidate a
// family of parameterized keys at once.
func (c *Cache) DeletePrefix(prefix string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
		}
	}
}

// Clear removes every key
func (c *Cache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.items = make(map[string]entry)
}
