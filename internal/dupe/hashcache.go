package dupe

// CacheEntry holds the hashes known for one file at a given
// (size, mtime) state. Strong is the hex sha256 and may be empty when
// only the fingerprint has been computed so far.
type CacheEntry struct {
	Fingerprint uint64
	Strong      string
}

// HashCache persists content hashes keyed by path and invalidated by
// file size and modification time, so repeated runs skip re-reading
// unchanged files.
type HashCache interface {
	// Lookup returns the cached entry for path, or nil when there is
	// no entry matching the given size and mtime.
	Lookup(path string, size, mtimeNS int64) (*CacheEntry, error)
	// Store records (or replaces) the entry for path at the given
	// size and mtime.
	Store(path string, size, mtimeNS int64, entry *CacheEntry) error
	Close() error
}

// NopHashCache is a HashCache that caches nothing.
type NopHashCache struct{}

func (NopHashCache) Lookup(string, int64, int64) (*CacheEntry, error) { return nil, nil }
func (NopHashCache) Store(string, int64, int64, *CacheEntry) error    { return nil }
func (NopHashCache) Close() error                                     { return nil }
