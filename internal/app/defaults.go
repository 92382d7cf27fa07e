package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment
// variables first.
// Environment variables:
//   - DUPENUKEM_CONFIG_PATH: config file location (default: ~/.config/dupenukem.toml)
//   - DUPENUKEM_HOME: base directory for dupenukem data (default: ~/.dupenukem)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking
// DUPENUKEM_CONFIG_PATH first, then falling back to
// ~/.config/dupenukem.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("DUPENUKEM_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "dupenukem.toml"), nil
}

// getBaseDir returns the base data directory, checking DUPENUKEM_HOME
// first, then falling back to ~/.dupenukem. Backups default to
// <base>/backups.
func getBaseDir() (string, error) {
	if path := os.Getenv("DUPENUKEM_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".dupenukem"), nil
}
