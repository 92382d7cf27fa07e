package vault

import (
	"fmt"

	"dupenukem/internal/config"
	"dupenukem/internal/dupe"
)

// NewVaultFromConfig creates a Vault implementation based on the
// backup config type.
func NewVaultFromConfig(cfg config.BackupConfig) (dupe.Vault, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryVault(), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 backup requires s3_bucket to be set")
		}
		return NewS3Vault(cfg)
	case "filesystem", "":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem backup requires fs_root to be set")
		}
		return NewFileSystemVault(cfg.FSRoot)
	default:
		return nil, fmt.Errorf("unknown backup type: %s", cfg.Type)
	}
}
