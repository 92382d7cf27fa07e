package database

import (
	"sync"

	"dupenukem/internal/dupe"
)

// MemoryHashCache implements dupe.HashCache in process memory. Useful
// for tests and for database.type = "memory". Safe for concurrent use.
type MemoryHashCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	size    int64
	mtimeNS int64
	entry   dupe.CacheEntry
}

func NewMemoryHashCache() *MemoryHashCache {
	return &MemoryHashCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryHashCache) Lookup(path string, size, mtimeNS int64) (*dupe.CacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[path]
	if !ok || e.size != size || e.mtimeNS != mtimeNS {
		return nil, nil
	}
	entry := e.entry
	return &entry, nil
}

func (c *MemoryHashCache) Store(path string, size, mtimeNS int64, entry *dupe.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = memoryEntry{size: size, mtimeNS: mtimeNS, entry: *entry}
	return nil
}

func (c *MemoryHashCache) Close() error { return nil }

var _ dupe.HashCache = (*MemoryHashCache)(nil)
