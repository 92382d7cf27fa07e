package dupe

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestValidator() *Validator {
	return NewValidator(NewFileHasher(NopHashCache{}, NewNopLogger()), NewNopLogger())
}

// snapshotFor builds a snapshot over root with one group per content
// cohort, by actually hashing the files.
func snapshotFor(t *testing.T, root string, quick bool) *Snapshot {
	t.Helper()
	entries, err := NewScanner(root, nil, NewNopLogger()).Scan()
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	hasher := NewFileHasher(NopHashCache{}, NewNopLogger())
	groups := NewFinder(hasher, NewNopLogger()).Find(root, entries, quick)
	comparison := ComparisonFull
	if quick {
		comparison = ComparisonQuick
	}
	return &Snapshot{
		Root:        root,
		GeneratedAt: time.Now(),
		Comparison:  comparison,
		Groups:      groups,
	}
}

func findMember(t *testing.T, snap *Snapshot, rel string) (*Group, *Member) {
	t.Helper()
	for gi := range snap.Groups {
		g := &snap.Groups[gi]
		for mi := range g.Members {
			if g.Members[mi].RelPath == rel {
				return g, &g.Members[mi]
			}
		}
	}
	t.Fatalf("member %s not in snapshot", rel)
	return nil, nil
}

func issueReasons(report *ValidationReport) map[ValidationReason]int {
	counts := make(map[ValidationReason]int)
	for _, issue := range report.Issues {
		counts[issue.Reason]++
	}
	return counts
}

func TestValidator_CleanFindSnapshot(t *testing.T) {
	root := buildTree(t, map[string]string{
		"foo/1.txt": "ONE\n",
		"bar/1.txt": "ONE\n",
	})
	snap := snapshotFor(t, root, false)

	report := newTestValidator().Validate(snap)
	if err := report.Err(); err != nil {
		t.Fatalf("Validate() issues = %v", report.Issues)
	}
	if report.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0 for an all-keep snapshot", report.Pending())
	}
}

func TestValidator_PendingActions(t *testing.T) {
	root := buildTree(t, map[string]string{
		"foo/1.txt": "ONE\n",
		"bar/1.txt": "ONE\n",
		"foo/2.txt": "TWO\n",
		"cat/2.txt": "TWO\n",
	})
	snap := snapshotFor(t, root, false)
	_, link := findMember(t, snap, "bar/1.txt")
	link.Action = Action{Marker: MarkerSymlink}
	_, del := findMember(t, snap, "cat/2.txt")
	del.Action = Action{Marker: MarkerDelete}

	report := newTestValidator().Validate(snap)
	if err := report.Err(); err != nil {
		t.Fatalf("Validate() issues = %v", report.Issues)
	}
	if report.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", report.Pending())
	}
}

func TestValidator_RootMissing(t *testing.T) {
	snap := &Snapshot{Root: filepath.Join(t.TempDir(), "gone")}
	report := newTestValidator().Validate(snap)
	if issueReasons(report)[ValidationRootMissing] != 1 {
		t.Errorf("issues = %v, want RootMissing", report.Issues)
	}
}

func TestValidator_MemberMissing(t *testing.T) {
	root := buildTree(t, map[string]string{
		"foo/1.txt": "ONE\n",
		"bar/1.txt": "ONE\n",
	})
	snap := snapshotFor(t, root, false)
	if err := os.Remove(filepath.Join(root, "bar/1.txt")); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	report := newTestValidator().Validate(snap)
	if issueReasons(report)[ValidationMemberMissing] != 1 {
		t.Errorf("issues = %v, want MemberMissing", report.Issues)
	}
}

func TestValidator_ContentDrift(t *testing.T) {
	root := buildTree(t, map[string]string{
		"foo/1.txt": "ONE\n",
		"bar/1.txt": "ONE\n",
	})
	snap := snapshotFor(t, root, false)
	if err := os.WriteFile(filepath.Join(root, "bar/1.txt"), []byte("CHANGED\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	report := newTestValidator().Validate(snap)
	reasons := issueReasons(report)
	if reasons[ValidationContentDrift] == 0 {
		t.Errorf("issues = %v, want ContentDrift", report.Issues)
	}

	// The drifted member is a conflict; the intact one is not.
	for _, a := range report.Actions {
		switch a.Member.RelPath {
		case "bar/1.txt":
			if a.State != StateConflict {
				t.Errorf("drifted member state = %v, want conflict", a.State)
			}
		case "foo/1.txt":
			if a.State == StateConflict {
				t.Errorf("intact member state = conflict")
			}
		}
	}
}

func TestValidator_AllDeleteGroupRejected(t *testing.T) {
	root := buildTree(t, map[string]string{
		"foo/1.txt": "ONE\n",
		"bar/1.txt": "ONE\n",
	})
	snap := snapshotFor(t, root, false)
	for gi := range snap.Groups {
		for mi := range snap.Groups[gi].Members {
			snap.Groups[gi].Members[mi].Action = Action{Marker: MarkerDelete}
		}
	}

	report := newTestValidator().Validate(snap)
	if issueReasons(report)[ValidationAllDeleteGroup] != 1 {
		t.Errorf("issues = %v, want AllDeleteGroup", report.Issues)
	}
}

func TestValidator_SymlinkSourceChecks(t *testing.T) {
	t.Run("explicit source must exist", func(t *testing.T) {
		root := buildTree(t, map[string]string{
			"foo/1.txt": "ONE\n",
			"bar/1.txt": "ONE\n",
		})
		snap := snapshotFor(t, root, false)
		_, m := findMember(t, snap, "bar/1.txt")
		m.Action = Action{Marker: MarkerSymlink, Source: "../foo/missing.txt"}

		report := newTestValidator().Validate(snap)
		if issueReasons(report)[ValidationSourceUnreachable] != 1 {
			t.Errorf("issues = %v, want SourceUnreachable", report.Issues)
		}
	})

	t.Run("source content must match the group", func(t *testing.T) {
		root := buildTree(t, map[string]string{
			"foo/1.txt":   "ONE\n",
			"bar/1.txt":   "ONE\n",
			"other/x.txt": "DIFFERENT\n",
		})
		snap := snapshotFor(t, root, false)
		_, m := findMember(t, snap, "bar/1.txt")
		m.Action = Action{Marker: MarkerSymlink, Source: "../other/x.txt"}

		report := newTestValidator().Validate(snap)
		if issueReasons(report)[ValidationSourceNotEqual] != 1 {
			t.Errorf("issues = %v, want SourceNotEqual", report.Issues)
		}
	})

	t.Run("all-symlink group has no implicit source", func(t *testing.T) {
		root := buildTree(t, map[string]string{
			"foo/1.txt": "ONE\n",
			"bar/1.txt": "ONE\n",
		})
		snap := snapshotFor(t, root, false)
		for gi := range snap.Groups {
			for mi := range snap.Groups[gi].Members {
				snap.Groups[gi].Members[mi].Action = Action{Marker: MarkerSymlink}
			}
		}

		report := newTestValidator().Validate(snap)
		if issueReasons(report)[ValidationSourceUnreachable] == 0 {
			t.Errorf("issues = %v, want SourceUnreachable", report.Issues)
		}
	})
}

func TestValidator_SatisfiedSymlink(t *testing.T) {
	root := buildTree(t, map[string]string{
		"foo/1.txt": "ONE\n",
	})
	if err := os.MkdirAll(filepath.Join(root, "bar"), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.Symlink("../foo/1.txt", filepath.Join(root, "bar/1.txt")); err != nil {
		t.Fatalf("Symlink() error = %v", err)
	}

	hasher := NewFileHasher(NopHashCache{}, NewNopLogger())
	id, err := hasher.Fingerprint(filepath.Join(root, "foo/1.txt"))
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}

	snap := &Snapshot{
		Root:        root,
		GeneratedAt: time.Now(),
		Groups: []Group{{
			ID: id,
			Members: []Member{
				{RelPath: "bar/1.txt", Action: Action{Marker: MarkerSymlink}},
				{RelPath: "foo/1.txt", Action: Action{Marker: MarkerKeep}},
			},
		}},
	}

	report := newTestValidator().Validate(snap)
	if err := report.Err(); err != nil {
		t.Fatalf("Validate() issues = %v", report.Issues)
	}
	if report.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0 for an already-applied symlink", report.Pending())
	}
	for _, a := range report.Actions {
		if a.Member.RelPath == "bar/1.txt" && a.State != StateSatisfied {
			t.Errorf("symlink member state = %v, want satisfied", a.State)
		}
	}
}

func TestValidator_RepointedSymlinkIsPending(t *testing.T) {
	root := buildTree(t, map[string]string{
		"foo/1.txt": "ONE\n",
		"alt/1.txt": "ONE\n",
	})
	if err := os.MkdirAll(filepath.Join(root, "bar"), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	// Link points at a content-equal file that is not the wanted source.
	if err := os.Symlink("../alt/1.txt", filepath.Join(root, "bar/1.txt")); err != nil {
		t.Fatalf("Symlink() error = %v", err)
	}

	hasher := NewFileHasher(NopHashCache{}, NewNopLogger())
	id, err := hasher.Fingerprint(filepath.Join(root, "foo/1.txt"))
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}

	snap := &Snapshot{
		Root:        root,
		GeneratedAt: time.Now(),
		Groups: []Group{{
			ID: id,
			Members: []Member{
				{RelPath: "bar/1.txt", Action: Action{Marker: MarkerSymlink, Source: "../foo/1.txt"}},
				{RelPath: "foo/1.txt", Action: Action{Marker: MarkerKeep}},
			},
		}},
	}

	report := newTestValidator().Validate(snap)
	if err := report.Err(); err != nil {
		t.Fatalf("Validate() issues = %v", report.Issues)
	}
	if report.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1 (link must be re-pointed)", report.Pending())
	}
}

func TestValidator_DeleteOfMissingFileIsSatisfied(t *testing.T) {
	root := buildTree(t, map[string]string{
		"foo/1.txt": "ONE\n",
		"bar/1.txt": "ONE\n",
	})
	snap := snapshotFor(t, root, false)
	_, m := findMember(t, snap, "bar/1.txt")
	m.Action = Action{Marker: MarkerDelete}
	if err := os.Remove(filepath.Join(root, "bar/1.txt")); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	report := newTestValidator().Validate(snap)
	if err := report.Err(); err != nil {
		t.Fatalf("Validate() issues = %v", report.Issues)
	}
	for _, a := range report.Actions {
		if a.Member.RelPath == "bar/1.txt" && a.State != StateSatisfied {
			t.Errorf("deleted member state = %v, want satisfied", a.State)
		}
	}
}
