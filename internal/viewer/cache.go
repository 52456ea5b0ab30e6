package viewer

import (
	"sort"
	"sync"

	"github.com/listenai/neural-link/internal/paragraph"
)

// Cache maps a block index to its last successful translation. Entries only
// go away through Invalidate, Truncate or Clear.
type Cache struct {
	mu      sync.RWMutex
	entries map[int]string
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[int]string)}
}

// Get returns the cached translation of block index.
func (c *Cache) Get(index int) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	text, ok := c.entries[index]
	return text, ok
}

// Set stores the translation of block index.
func (c *Cache) Set(index int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[index] = text
}

// Invalidate drops the translation of block index.
func (c *Cache) Invalidate(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, index)
}

// Truncate drops every entry at index n or above.
func (c *Cache) Truncate(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.entries {
		if i >= n {
			delete(c.entries, i)
		}
	}
}

// Clear drops every translation.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[int]string)
}

// Len returns the number of cached translations.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Aggregate joins the cached translations in index order. Blocks without a
// translation are skipped.
func (c *Cache) Aggregate() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	indexes := make([]int, 0, len(c.entries))
	for i := range c.entries {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	texts := make([]string, 0, len(indexes))
	for _, i := range indexes {
		texts = append(texts, c.entries[i])
	}
	return paragraph.Join(texts)
}
