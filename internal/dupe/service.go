package dupe

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Service is the orchestration layer the CLI drives: it wires the
// scanner, finder, validator and applier over shared dependencies.
type Service struct {
	vault     Vault
	hasher    Hasher
	encryptor Encryptor // nil disables backup encryption
	logger    Logger
	clock     Clock
	idgen     IDGenerator
}

func NewService(vault Vault, hasher Hasher, encryptor Encryptor, logger Logger, clock Clock, idgen IDGenerator) *Service {
	return &Service{
		vault:     vault,
		hasher:    hasher,
		encryptor: encryptor,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
	}
}

// Find scans root, groups duplicates and returns a snapshot with every
// member marked keep. excludes holds exact entry names or root-relative
// paths to skip. quick skips the sha256 confirmation stage.
func (s *Service) Find(root string, excludes []string, quick bool) (*Snapshot, error) {
	canonical, err := Canonicalize(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("stat root %s: %w", canonical, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", canonical)
	}

	s.logger.Info("scanning", "root", canonical, "quick", quick)
	entries, err := NewScanner(canonical, excludes, s.logger).Scan()
	if err != nil {
		return nil, err
	}

	groups := NewFinder(s.hasher, s.logger).Find(canonical, entries, quick)
	s.logger.Info("scan complete", "files", len(entries), "groups", len(groups))

	comparison := ComparisonFull
	if quick {
		comparison = ComparisonQuick
	}
	return &Snapshot{
		Root:        canonical,
		GeneratedAt: s.clock.Now(),
		Comparison:  comparison,
		Groups:      groups,
	}, nil
}

// Validate cross-checks a snapshot against the live filesystem and
// returns the full report, issues included.
func (s *Service) Validate(snap *Snapshot) *ValidationReport {
	return NewValidator(s.hasher, s.logger).Validate(snap)
}

// Apply validates the snapshot and executes its pending actions.
// backupOverride, when non-nil, replaces the configured vault for this
// run. Validation issues abort before any filesystem change.
func (s *Service) Apply(snap *Snapshot, mode ApplyMode, backupOverride Vault) (*ApplyReport, error) {
	report := s.Validate(snap)
	if err := report.Err(); err != nil {
		return nil, err
	}

	vault := s.vault
	if backupOverride != nil {
		vault = backupOverride
	}
	if mode == Execute {
		if err := vault.ValidateSetup(); err != nil {
			return nil, fmt.Errorf("backup vault not usable: %w", err)
		}
	}

	stamp := s.clock.Now().Format("20060102150405")
	runID := s.idgen.New()
	s.logger.Info("applying snapshot",
		"run", runID, "mode", modeName(mode), "pending", report.Pending())

	applier := NewApplier(NewValidator(s.hasher, s.logger), vault, s.encryptor, s.logger)
	return applier.Apply(snap, mode, stamp, runID)
}

// Stamps lists the backup runs available in the vault.
func (s *Service) Stamps() ([]string, error) {
	return s.vault.Stamps()
}

// Restore copies every file of one backup run back to its original
// location under the root recorded at apply time, replacing any
// symlink the apply created. dec decrypts vault content and may be nil
// when backups are not encrypted. Returns the restored paths.
func (s *Service) Restore(stamp string, dec Decryptor) ([]string, error) {
	root, err := s.manifestRoot(stamp)
	if err != nil {
		return nil, err
	}

	paths, err := s.vault.List(stamp)
	if err != nil {
		return nil, fmt.Errorf("listing backup %s: %w", stamp, err)
	}
	sort.Strings(paths)

	var restored []string
	for _, rel := range paths {
		if rel == rootManifest {
			continue
		}
		dest := filepath.Join(root, rel)
		if err := s.restoreOne(stamp, rel, dest, dec); err != nil {
			return restored, err
		}
		restored = append(restored, dest)
		s.logger.Info("restored", "path", rel)
	}
	return restored, nil
}

func (s *Service) manifestRoot(stamp string) (string, error) {
	var buf strings.Builder
	if err := s.vault.Get(stamp, rootManifest, &buf); err != nil {
		return "", fmt.Errorf("reading backup manifest for %s: %w", stamp, err)
	}
	root := strings.TrimSpace(buf.String())
	if !filepath.IsAbs(root) {
		return "", fmt.Errorf("backup %s has no usable root manifest", stamp)
	}
	return root, nil
}

// restoreOne fetches a backup object and writes it over dest through a
// sibling temp file.
func (s *Service) restoreOne(stamp, rel, dest string, dec Decryptor) error {
	if err := EnsureDir(filepath.Dir(dest)); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".dupenukem-restore-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", dest, err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if dec == nil {
		err = s.vault.Get(stamp, rel, tmp)
	} else {
		pr, pw := io.Pipe()
		done := make(chan error, 1)
		go func() {
			done <- dec.Decrypt(pr, tmp)
		}()
		err = s.vault.Get(stamp, rel, pw)
		pw.CloseWithError(err)
		if derr := <-done; err == nil {
			err = derr
		}
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("restoring %s: %w", rel, err)
	}

	// The destination may currently be a symlink created by apply;
	// rename replaces it atomically.
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("replacing %s: %w", dest, err)
	}
	success = true
	return nil
}
