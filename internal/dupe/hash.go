package dupe

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/zeebo/xxh3"
)

// hashBufSize bounds the read buffer used while streaming file
// contents through a hash state.
const hashBufSize = 64 * 1024

// Hasher computes content hashes for files. Implementations follow
// symlinks: hashing a symlink hashes the file it resolves to.
type Hasher interface {
	// Fingerprint returns the 64-bit xxh3 of the full file contents.
	Fingerprint(path string) (uint64, error)
	// Strong returns the hex-encoded sha256 of the full file contents.
	Strong(path string) (string, error)
}

// FileHasher hashes files on disk, consulting a HashCache keyed by
// size and mtime to skip re-reading unchanged files.
type FileHasher struct {
	cache  HashCache
	logger Logger
}

// NewFileHasher creates a hasher backed by the given cache. Pass
// NopHashCache{} to disable caching.
func NewFileHasher(cache HashCache, logger Logger) *FileHasher {
	return &FileHasher{cache: cache, logger: logger}
}

var _ Hasher = (*FileHasher)(nil)

// Fingerprint returns the 64-bit xxh3 of the file at path.
func (h *FileHasher) Fingerprint(path string) (uint64, error) {
	size, mtime, err := statKey(path)
	if err != nil {
		return 0, err
	}

	if cached := h.lookup(path, size, mtime); cached != nil {
		return cached.Fingerprint, nil
	}

	state := xxh3.New()
	if err := streamFile(path, state); err != nil {
		return 0, err
	}
	sum := state.Sum64()

	h.store(path, size, mtime, &CacheEntry{Fingerprint: sum})
	return sum, nil
}

// Strong returns the hex sha256 of the file at path.
func (h *FileHasher) Strong(path string) (string, error) {
	size, mtime, err := statKey(path)
	if err != nil {
		return "", err
	}

	cached := h.lookup(path, size, mtime)
	if cached != nil && cached.Strong != "" {
		return cached.Strong, nil
	}

	state := sha256.New()
	if err := streamFile(path, state); err != nil {
		return "", err
	}
	sum := hex.EncodeToString(state.Sum(nil))

	entry := &CacheEntry{Strong: sum}
	if cached != nil {
		entry.Fingerprint = cached.Fingerprint
	} else {
		// Fill the fingerprint too so the next run hits on both.
		fp := xxh3.New()
		if err := streamFile(path, fp); err != nil {
			return "", err
		}
		entry.Fingerprint = fp.Sum64()
	}
	h.store(path, size, mtime, entry)
	return sum, nil
}

func (h *FileHasher) lookup(path string, size, mtime int64) *CacheEntry {
	entry, err := h.cache.Lookup(path, size, mtime)
	if err != nil {
		// A broken cache must never fail a hash request.
		h.logger.Warn("hash cache lookup failed", "path", path, "error", err)
		return nil
	}
	return entry
}

func (h *FileHasher) store(path string, size, mtime int64, entry *CacheEntry) {
	if err := h.cache.Store(path, size, mtime, entry); err != nil {
		h.logger.Warn("hash cache store failed", "path", path, "error", err)
	}
}

func statKey(path string) (size, mtimeNS int64, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size(), info.ModTime().UnixNano(), nil
}

func streamFile(path string, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, hashBufSize)
	if _, err := io.CopyBuffer(w, f, buf); err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}
	return nil
}

// FormatFingerprint renders a fingerprint the way group headers do:
// unsigned decimal.
func FormatFingerprint(fp uint64) string {
	return strconv.FormatUint(fp, 10)
}
