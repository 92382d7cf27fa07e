package dupe

import (
	"path/filepath"
)

// Finder groups scanned entries into duplicate sets through three
// culling stages: size, fast fingerprint, and (unless quick) a sha256
// confirmation. Only groups of two or more survive each stage.
type Finder struct {
	hasher Hasher
	logger Logger
}

func NewFinder(hasher Hasher, logger Logger) *Finder {
	return &Finder{hasher: hasher, logger: logger}
}

// Find returns the duplicate groups among the regular files in
// entries, with members expressed relative to root, sorted for
// serialization, and every member marked keep. Files that fail to
// hash are reported and dropped, like scan-time entry errors.
func (f *Finder) Find(root string, entries []FileEntry, quick bool) []Group {
	bySize := make(map[int64][]FileEntry)
	for _, e := range entries {
		if e.Kind != KindRegular {
			continue
		}
		bySize[e.Size] = append(bySize[e.Size], e)
	}

	var groups []Group
	for size, cohort := range bySize {
		if len(cohort) < 2 {
			continue
		}
		for _, g := range f.groupByFingerprint(cohort, quick) {
			for _, e := range g.entries {
				rel, err := filepath.Rel(root, e.Path)
				if err != nil {
					f.logger.Warn("dropping file outside root", "path", e.Path, "error", err)
					continue
				}
				g.group.Members = append(g.group.Members, Member{
					RelPath: rel,
					Action:  Action{Marker: MarkerKeep},
				})
			}
			if len(g.group.Members) < 2 {
				continue
			}
			g.group.Size = size
			groups = append(groups, g.group)
		}
	}

	sortGroups(groups)
	return groups
}

// candidate pairs a group under construction with the entries that
// back it, so relative paths are computed only for survivors.
type candidate struct {
	group   Group
	entries []FileEntry
}

func (f *Finder) groupByFingerprint(cohort []FileEntry, quick bool) []candidate {
	byFP := make(map[uint64][]FileEntry)
	for _, e := range cohort {
		fp, err := f.hasher.Fingerprint(e.Path)
		if err != nil {
			f.logger.Warn("skipping unhashable file", "path", e.Path, "error", err)
			continue
		}
		byFP[fp] = append(byFP[fp], e)
	}

	var out []candidate
	for fp, bucket := range byFP {
		if len(bucket) < 2 {
			continue
		}
		if quick {
			out = append(out, candidate{group: Group{ID: fp}, entries: bucket})
			continue
		}
		// Confirm with the strong hash. A fingerprint bucket may split
		// into several sha256 cohorts; each surviving cohort becomes
		// its own group under the shared fingerprint id.
		byStrong := make(map[string][]FileEntry)
		for _, e := range bucket {
			strong, err := f.hasher.Strong(e.Path)
			if err != nil {
				f.logger.Warn("skipping unhashable file", "path", e.Path, "error", err)
				continue
			}
			byStrong[strong] = append(byStrong[strong], e)
		}
		for _, sub := range byStrong {
			if len(sub) < 2 {
				continue
			}
			out = append(out, candidate{group: Group{ID: fp}, entries: sub})
		}
	}
	return out
}
