package database

import (
	"fmt"
	"os"
	"path/filepath"

	"dupenukem/internal/config"
	"dupenukem/internal/dupe"
)

// NewHashCacheFromConfig creates a HashCache implementation based on
// the database config type.
func NewHashCacheFromConfig(cfg config.DatabaseConfig) (dupe.HashCache, error) {
	switch cfg.Type {
	case "sqlite", "":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		return NewSQLiteHashCache(filepath.Join(cfg.DataDir, "hashcache.db"))
	case "memory":
		return NewMemoryHashCache(), nil
	case "off":
		return dupe.NopHashCache{}, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
