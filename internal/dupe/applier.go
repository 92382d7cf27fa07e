package dupe

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// ApplyMode selects between logging intended operations and actually
// performing them.
type ApplyMode int

const (
	DryRun ApplyMode = iota
	Execute
)

// ApplyReport summarizes one apply run.
type ApplyReport struct {
	// RunID identifies this run in logs.
	RunID string
	// Stamp is the backup subdirectory used, empty for dry runs.
	Stamp string
	// Applied counts actions performed (or, in dry-run, that would be).
	Applied int
	// Skipped counts actions that were already satisfied.
	Skipped int
	// FreedBytes sums the sizes of files deleted or replaced, taken
	// immediately before each action.
	FreedBytes int64
}

// Applier executes a validated snapshot's pending actions. It keeps no
// internal progress state: idempotence comes from re-examining the
// filesystem per action, so an interrupted apply can simply be re-run.
type Applier struct {
	validator *Validator
	vault     Vault
	encryptor Encryptor // nil means plaintext backups
	logger    Logger
}

func NewApplier(validator *Validator, vault Vault, encryptor Encryptor, logger Logger) *Applier {
	return &Applier{validator: validator, vault: vault, encryptor: encryptor, logger: logger}
}

// rootManifest is the vault object recording the scan root of a backup
// run, consumed by restore.
const rootManifest = ".dupenukem-root"

// Apply walks the snapshot's members in order and executes every
// pending action. Each action is re-validated against the live
// filesystem immediately before execution; drift aborts the run with
// the offending member's issue, leaving earlier actions applied.
func (a *Applier) Apply(snap *Snapshot, mode ApplyMode, stamp, runID string) (*ApplyReport, error) {
	report := &ApplyReport{RunID: runID}
	if mode == Execute {
		report.Stamp = stamp
	}

	manifestWritten := false
	for gi := range snap.Groups {
		g := &snap.Groups[gi]
		for mi := range g.Members {
			m := &g.Members[mi]
			if m.Action.Marker == MarkerKeep {
				continue
			}

			// TOCTOU guard: the on-disk state may have drifted since
			// the snapshot was validated.
			action, issue := a.validator.CheckMember(snap, g, m)
			if issue != nil {
				return report, issue
			}
			if action.State == StateConflict {
				return report, &ValidationError{Path: m.RelPath, Reason: ValidationContentDrift,
					Detail: "state changed since validation"}
			}
			if action.State == StateSatisfied {
				report.Skipped++
				if mode == DryRun {
					a.logDryRun(action, true)
				}
				continue
			}

			if mode == DryRun {
				a.logDryRun(action, false)
				report.Applied++
				continue
			}

			if !manifestWritten {
				if err := a.writeManifest(snap.Root, stamp); err != nil {
					return report, err
				}
				manifestWritten = true
			}

			if err := a.execute(action, stamp); err != nil {
				return report, err
			}
			report.Applied++
			report.FreedBytes += action.Size
		}
	}

	a.logger.Info("apply finished",
		"run", runID,
		"mode", modeName(mode),
		"applied", report.Applied,
		"skipped", report.Skipped,
		"freed_bytes", report.FreedBytes,
	)
	return report, nil
}

func (a *Applier) execute(action PlannedAction, stamp string) error {
	switch action.Member.Action.Marker {
	case MarkerDelete:
		a.logger.Info("deleting file", "path", action.Member.RelPath)
		if err := a.backup(action, stamp); err != nil {
			return err
		}
		if err := os.Remove(action.AbsPath); err != nil {
			return fmt.Errorf("deleting %s: %w", action.AbsPath, err)
		}
		return nil

	case MarkerSymlink:
		a.logger.Info("replacing file with symlink",
			"path", action.Member.RelPath, "source", action.Source)
		if err := a.backup(action, stamp); err != nil {
			return err
		}
		return ReplaceWithSymlink(action.AbsPath, action.Source)
	}
	return nil
}

// backup archives the content the member's path currently resolves to.
// Opening the path follows symlinks, so what could be lost is what
// gets archived.
func (a *Applier) backup(action PlannedAction, stamp string) error {
	f, err := os.Open(action.AbsPath)
	if err != nil {
		return fmt.Errorf("opening %s for backup: %w", action.AbsPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s for backup: %w", action.AbsPath, err)
	}

	a.logger.Debug("backing up", "path", action.Member.RelPath, "stamp", stamp)
	if err := a.put(stamp, action.Member.RelPath, f, info.Size()); err != nil {
		return fmt.Errorf("backing up %s: %w", action.Member.RelPath, err)
	}
	return nil
}

// put streams content into the vault, encrypting when configured.
func (a *Applier) put(stamp, relPath string, r io.Reader, size int64) error {
	if a.encryptor == nil {
		return a.vault.Put(stamp, relPath, r, size)
	}
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(a.encryptor.Encrypt(r, pw))
	}()
	return a.vault.Put(stamp, relPath, pr, -1)
}

func (a *Applier) writeManifest(root, stamp string) error {
	body := root + "\n"
	if err := a.vault.Put(stamp, rootManifest, strings.NewReader(body), int64(len(body))); err != nil {
		return fmt.Errorf("writing backup manifest: %w", err)
	}
	return nil
}

func (a *Applier) logDryRun(action PlannedAction, noop bool) {
	prefix := "[DRY RUN]"
	if noop {
		prefix += "[NO-OP]"
	}
	switch action.Member.Action.Marker {
	case MarkerDelete:
		a.logger.Info(prefix+" file to be deleted", "path", action.Member.RelPath)
	case MarkerSymlink:
		a.logger.Info(prefix+" file to be replaced with symlink",
			"path", action.Member.RelPath, "source", action.Source)
	}
}

func modeName(mode ApplyMode) string {
	if mode == DryRun {
		return "dry-run"
	}
	return "execute"
}
