package dupe

import (
	"fmt"
	"os"
	"path/filepath"
)

// Scanner traverses a root directory breadth-first and records the
// regular files and symlinks it finds. Directories are enqueued;
// symlinks are recorded but never followed. I/O errors on individual
// entries are logged and the entry skipped; the walk continues.
type Scanner struct {
	root     string
	excludes map[string]struct{}
	logger   Logger
}

// NewScanner creates a scanner for the given canonicalized root.
// excludes holds exact entry names or root-relative paths; a matching
// entry is skipped along with its descendants.
func NewScanner(root string, excludes []string, logger Logger) *Scanner {
	set := make(map[string]struct{}, len(excludes))
	for _, e := range excludes {
		set[filepath.Clean(e)] = struct{}{}
	}
	return &Scanner{root: root, excludes: set, logger: logger}
}

// Scan walks the tree and returns the recorded entries. The returned
// error is non-nil only when the root itself cannot be read.
func (s *Scanner) Scan() ([]FileEntry, error) {
	if _, err := os.ReadDir(s.root); err != nil {
		return nil, fmt.Errorf("reading root directory %s: %w", s.root, err)
	}

	var result []FileEntry
	queue := []string{s.root}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(dir)
		if err != nil {
			s.logger.Warn("skipping unreadable directory", "path", dir, "error", err)
			continue
		}

		for _, entry := range entries {
			full := filepath.Join(dir, entry.Name())
			if s.excluded(entry.Name(), full) {
				s.logger.Debug("excluded", "path", full)
				continue
			}

			info, err := os.Lstat(full)
			if err != nil {
				s.logger.Warn("skipping entry", "path", full, "error", err)
				continue
			}

			mode := info.Mode()
			switch {
			case mode.IsDir():
				queue = append(queue, full)
			case mode&os.ModeSymlink != 0:
				target, err := os.Readlink(full)
				if err != nil {
					s.logger.Warn("skipping unreadable symlink", "path", full, "error", err)
					continue
				}
				result = append(result, FileEntry{Path: full, Kind: KindSymlink, LinkTarget: target})
			case mode.IsRegular():
				result = append(result, FileEntry{Path: full, Size: info.Size(), Kind: KindRegular})
			default:
				// Devices, sockets and pipes are not duplicate candidates.
			}
		}
	}
	return result, nil
}

func (s *Scanner) excluded(name, full string) bool {
	if _, ok := s.excludes[name]; ok {
		return true
	}
	rel, err := filepath.Rel(s.root, full)
	if err != nil {
		return false
	}
	_, ok := s.excludes[rel]
	return ok
}
