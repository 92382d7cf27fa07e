package app

import (
	"fmt"
	"io"
	"os"
	"time"

	"dupenukem/internal/config"
	"dupenukem/internal/database"
	"dupenukem/internal/dupe"
	"dupenukem/internal/encryption"
	"dupenukem/internal/vault"
)

// App is the application layer between the CLI and the engine. It
// constructs all dependencies from config, exposes the three snapshot
// operations plus restore, and manages resource lifecycles on Close.
type App struct {
	cfg       *config.Config
	cache     dupe.HashCache
	vault     dupe.Vault
	encryptor *encryption.AgeEncryptor // nil when encryption is disabled
	service   *dupe.Service
	logFile   *os.File
}

// LoadConfig reads the config file from its default (or overridden)
// location, falling back to built-in defaults when no file exists yet.
func LoadConfig() (*config.Config, error) {
	defaults, err := GetDefaults()
	if err != nil {
		return nil, err
	}

	path := defaults["config_path"]
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.NewConfig(defaults["base_dir"]), nil
	}

	cfg, err := config.ReadFromFile(path)
	if err != nil {
		return nil, err
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = defaults["base_dir"]
	}
	if cfg.LogDir == "" {
		cfg.LogDir = defaults["log_dir"]
	}
	return cfg, nil
}

// NewApp creates a fully wired App from the given config. operation
// identifies the CLI command being run (e.g. "Find", "Apply"). The
// caller must call Close when done.
func NewApp(cfg *config.Config, operation string) (*App, error) {
	v, err := vault.NewVaultFromConfig(cfg.Backup)
	if err != nil {
		return nil, fmt.Errorf("creating backup vault: %w", err)
	}

	cache, err := database.NewHashCacheFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating hash cache: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z") + "-" + operation
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		cache.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapted := &slogAdapter{l: logger}

	var enc *encryption.AgeEncryptor
	var serviceEnc dupe.Encryptor
	if cfg.Encryption.Enabled {
		enc = encryption.NewAgeEncryptor(cfg.Encryption)
		if !enc.IsConfigured() {
			cache.Close()
			logFile.Close()
			return nil, fmt.Errorf("encryption enabled but keys are missing; run 'dupenukem config init --encrypt'")
		}
		serviceEnc = enc
	}

	hasher := dupe.NewFileHasher(cache, adapted)
	svc := dupe.NewService(v, hasher, serviceEnc, adapted, dupe.RealClock{}, dupe.UUIDGenerator{})

	return &App{
		cfg:       cfg,
		cache:     cache,
		vault:     v,
		encryptor: enc,
		service:   svc,
		logFile:   logFile,
	}, nil
}

// Find scans root and writes the serialized snapshot to w.
func (a *App) Find(root string, exclude []string, quick bool, w io.Writer) error {
	excludes := append([]string{}, a.cfg.Scan.Exclude...)
	excludes = append(excludes, exclude...)
	if a.cfg.Scan.Quick {
		quick = true
	}

	snap, err := a.service.Find(root, excludes, quick)
	if err != nil {
		return err
	}
	for _, line := range dupe.SerializeSnapshot(snap) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("writing snapshot: %w", err)
		}
	}
	return nil
}

// Validate parses snapshot text and cross-checks it against the
// filesystem. Parse failures return an error; validation issues are in
// the report.
func (a *App) Validate(lines []string) (*dupe.ValidationReport, error) {
	snap, err := dupe.ParseSnapshot(lines)
	if err != nil {
		return nil, err
	}
	return a.service.Validate(snap), nil
}

// Apply parses snapshot text, validates it and executes the pending
// actions. backupDir, when non-empty, overrides the configured vault
// with a filesystem vault at that root for this run.
func (a *App) Apply(lines []string, dryRun bool, backupDir string) (*dupe.ApplyReport, error) {
	snap, err := dupe.ParseSnapshot(lines)
	if err != nil {
		return nil, err
	}

	var override dupe.Vault
	if backupDir != "" {
		fs, err := vault.NewFileSystemVault(backupDir)
		if err != nil {
			return nil, fmt.Errorf("creating backup override: %w", err)
		}
		override = fs
	}

	mode := dupe.Execute
	if dryRun {
		mode = dupe.DryRun
	}
	return a.service.Apply(snap, mode, override)
}

// Pending parses and validates snapshot text and returns the number of
// pending actions, so the CLI can prompt before an apply.
func (a *App) Pending(lines []string) (int, error) {
	report, err := a.Validate(lines)
	if err != nil {
		return 0, err
	}
	if err := report.Err(); err != nil {
		return 0, err
	}
	return report.Pending(), nil
}

// Stamps lists available backup runs.
func (a *App) Stamps() ([]string, error) {
	return a.service.Stamps()
}

// Restore copies the files of one backup run back to their original
// locations. passphrase is consulted only when backups are encrypted.
func (a *App) Restore(stamp string, passphrase func() (string, error)) ([]string, error) {
	var dec dupe.Decryptor
	if a.encryptor != nil {
		pass, err := passphrase()
		if err != nil {
			return nil, err
		}
		dec, err = a.encryptor.Unlock(pass)
		if err != nil {
			return nil, fmt.Errorf("unlocking encryption key: %w", err)
		}
	}
	return a.service.Restore(stamp, dec)
}

// Close releases the hash cache and the log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.cache.Close(); err != nil {
		firstErr = fmt.Errorf("closing hash cache: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
