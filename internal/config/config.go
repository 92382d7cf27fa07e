package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the main configuration for dupenukem.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Backup     BackupConfig     `toml:"backup"`
	Database   DatabaseConfig   `toml:"database"`
	Encryption EncryptionConfig `toml:"encryption"`
	Scan       ScanConfig       `toml:"scan"`
}

// BackupConfig selects where originals are archived before destructive
// actions. This uses a tagged union pattern - the Type field determines
// which other fields are relevant.
type BackupConfig struct {
	Type string `toml:"type"` // "filesystem" (default), "s3", or "memory"

	// Filesystem-specific (Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific (Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
	S3ForcePathStyle  bool   `toml:"s3_force_path_style,omitempty"`
}

// DatabaseConfig selects the hash cache backend.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" (default), "memory", or "off"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// EncryptionConfig holds the age key pair used for backup encryption.
type EncryptionConfig struct {
	Enabled        bool   `toml:"enabled"`
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// ScanConfig holds find defaults. Exclude entries are combined with
// the --exclude flag values; Quick = true enables quick mode whatever
// the --quick flag says.
type ScanConfig struct {
	Exclude []string `toml:"exclude"`
	Quick   bool     `toml:"quick"`
}

// NewConfig creates a Config with defaults derived from baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Backup: BackupConfig{
			Type:   "filesystem",
			FSRoot: filepath.Join(baseDir, "backups"),
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "dupenukem.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "dupenukem.key"),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
