package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"dupenukem/internal/database/migrations"
	"dupenukem/internal/dupe"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteHashCache implements dupe.HashCache on a SQLite file. A cached
// row is valid only while the file's size and mtime still match; the
// fingerprint is stored as unsigned decimal text since SQLite integers
// are signed.
type SQLiteHashCache struct {
	db *sql.DB
}

// NewSQLiteHashCache opens (or creates) the cache database at path and
// migrates it to the latest schema. path can be ":memory:".
func NewSQLiteHashCache(path string) (*SQLiteHashCache, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating hash cache: %w", err)
	}
	return &SQLiteHashCache{db: db}, nil
}

// OpenConnection opens and configures a SQLite connection with
// appropriate PRAGMAs. path can be a file path or ":memory:".
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Lookup returns the cached entry for path when size and mtime match.
func (c *SQLiteHashCache) Lookup(path string, size, mtimeNS int64) (*dupe.CacheEntry, error) {
	const query = `SELECT size, mtime_ns, fingerprint, strong FROM file_hashes WHERE path = ?`

	var (
		cachedSize  int64
		cachedMtime int64
		fingerprint string
		strong      string
	)
	err := c.db.QueryRow(query, path).Scan(&cachedSize, &cachedMtime, &fingerprint, &strong)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying hash cache: %w", err)
	}

	if cachedSize != size || cachedMtime != mtimeNS {
		return nil, nil
	}

	fp, err := strconv.ParseUint(fingerprint, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt fingerprint for %s: %w", path, err)
	}
	return &dupe.CacheEntry{Fingerprint: fp, Strong: strong}, nil
}

// Store records (or replaces) the entry for path.
func (c *SQLiteHashCache) Store(path string, size, mtimeNS int64, entry *dupe.CacheEntry) error {
	const query = `
		INSERT INTO file_hashes (path, size, mtime_ns, fingerprint, strong, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			mtime_ns = excluded.mtime_ns,
			fingerprint = excluded.fingerprint,
			strong = excluded.strong,
			updated_at = excluded.updated_at`

	_, err := c.db.Exec(query, path, size, mtimeNS,
		strconv.FormatUint(entry.Fingerprint, 10), entry.Strong, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("storing hash cache entry: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (c *SQLiteHashCache) Close() error {
	return c.db.Close()
}

var _ dupe.HashCache = (*SQLiteHashCache)(nil)
