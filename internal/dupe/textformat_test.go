package dupe

import (
	"errors"
	"testing"
	"time"
)

func mustParse(t *testing.T, lines []string) *Snapshot {
	t.Helper()
	snap, err := ParseSnapshot(lines)
	if err != nil {
		t.Fatalf("ParseSnapshot() error = %v", err)
	}
	return snap
}

func TestParseSnapshot_Minimal(t *testing.T) {
	snap := mustParse(t, []string{
		"#! Root Directory: /home/u/d",
		"#! Generated at: Tue, 16 Jan 2024 12:00:05 +0530",
		"",
		"[10098984572146910405]",
		"keep foo/1.txt",
		"symlink bar/1.txt -> ../foo/1.txt",
	})

	if snap.Root != "/home/u/d" {
		t.Errorf("Root = %q, want %q", snap.Root, "/home/u/d")
	}
	want := time.Date(2024, 1, 16, 12, 0, 5, 0, time.FixedZone("", 19800))
	if !snap.GeneratedAt.Equal(want) {
		t.Errorf("GeneratedAt = %v, want %v", snap.GeneratedAt, want)
	}
	if snap.Comparison != ComparisonFull {
		t.Errorf("Comparison = %v, want full by default", snap.Comparison)
	}
	if len(snap.Groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(snap.Groups))
	}

	g := snap.Groups[0]
	if g.ID != 10098984572146910405 {
		t.Errorf("group id = %d, want 10098984572146910405", g.ID)
	}
	if len(g.Members) != 2 {
		t.Fatalf("got %d members, want 2", len(g.Members))
	}
	if g.Members[0].RelPath != "foo/1.txt" || g.Members[0].Action.Marker != MarkerKeep {
		t.Errorf("member[0] = %+v", g.Members[0])
	}
	m := g.Members[1]
	if m.RelPath != "bar/1.txt" || m.Action.Marker != MarkerSymlink || m.Action.Source != "../foo/1.txt" {
		t.Errorf("member[1] = %+v", m)
	}
}

func TestParseSnapshot_PathsWithSpacesAndMetadata(t *testing.T) {
	snap := mustParse(t, []string{
		"#! Root Directory: /d",
		"#! Generated at: Tue, 16 Jan 2024 12:00:05 +0530",
		"#! Comparison: quick",
		"#! Tool Version: 1.2.3",
		"# a comment that is dropped",
		"",
		"[7]",
		"keep my docs/report final.txt",
		"symlink other docs/report final.txt -> ../my docs/report final.txt",
		"delete trash/copy of report.txt",
	})

	if snap.Comparison != ComparisonQuick {
		t.Errorf("Comparison = %v, want quick", snap.Comparison)
	}
	if len(snap.Extra) != 1 || snap.Extra[0].Key != "Tool Version" || snap.Extra[0].Value != "1.2.3" {
		t.Errorf("Extra = %+v, want preserved Tool Version", snap.Extra)
	}

	g := snap.Groups[0]
	if g.Members[0].RelPath != "my docs/report final.txt" {
		t.Errorf("member[0] path = %q", g.Members[0].RelPath)
	}
	if g.Members[1].Action.Source != "../my docs/report final.txt" {
		t.Errorf("member[1] source = %q", g.Members[1].Action.Source)
	}
	if g.Members[2].RelPath != "trash/copy of report.txt" || g.Members[2].Action.Marker != MarkerDelete {
		t.Errorf("member[2] = %+v", g.Members[2])
	}
}

func TestParseSnapshot_Errors(t *testing.T) {
	meta := []string{
		"#! Root Directory: /d",
		"#! Generated at: Tue, 16 Jan 2024 12:00:05 +0530",
		"",
	}
	tests := []struct {
		name   string
		lines  []string
		reason ParseReason
	}{
		{
			"malformed metadata",
			[]string{"#! NoColonHere"},
			ParseBadMetadata,
		},
		{
			"relative root",
			[]string{"#! Root Directory: relative/dir"},
			ParseBadMetadata,
		},
		{
			"bad timestamp",
			[]string{"#! Root Directory: /d", "#! Generated at: yesterday"},
			ParseBadMetadata,
		},
		{
			"missing root",
			[]string{"#! Generated at: Tue, 16 Jan 2024 12:00:05 +0530"},
			ParseMissingMetadata,
		},
		{
			"missing generated at",
			[]string{"#! Root Directory: /d"},
			ParseMissingMetadata,
		},
		{
			"bad header",
			append(meta, "[notdigits]"),
			ParseBadHeader,
		},
		{
			"unknown marker",
			append(meta, "[1]", "shred foo.txt"),
			ParseUnknownMarker,
		},
		{
			"member outside group",
			append(meta, "keep foo.txt"),
			ParseMemberOutsideGroup,
		},
		{
			"duplicate path across groups",
			append(meta, "[1]", "keep a.txt", "keep b.txt", "", "[2]", "keep a.txt", "keep c.txt"),
			ParseDuplicatePath,
		},
		{
			"empty group",
			append(meta, "[1]", "", "[2]", "keep a.txt", "keep b.txt"),
			ParseEmptyGroup,
		},
		{
			"empty group at EOF",
			append(meta, "[1]"),
			ParseEmptyGroup,
		},
		{
			"path escaping root",
			append(meta, "[1]", "keep ../outside.txt"),
			ParseBadMember,
		},
		{
			"missing path",
			append(meta, "[1]", "keep"),
			ParseBadMember,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSnapshot(tt.lines)
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("ParseSnapshot() error = %v, want *ParseError", err)
			}
			if parseErr.Reason != tt.reason {
				t.Errorf("reason = %q, want %q", parseErr.Reason, tt.reason)
			}
		})
	}
}

func TestSerializeParseRoundTrip(t *testing.T) {
	original := &Snapshot{
		Root:        "/home/u/d",
		GeneratedAt: time.Date(2024, 1, 16, 12, 0, 5, 0, time.FixedZone("", 19800)),
		Comparison:  ComparisonQuick,
		Extra:       []MetaField{{Key: "Tool Version", Value: "1.2.3"}},
		Groups: []Group{
			{
				ID:   10098984572146910405,
				Size: 4,
				Members: []Member{
					{RelPath: "bar/1.txt", Action: Action{Marker: MarkerSymlink, Source: "../foo/1.txt"}},
					{RelPath: "foo/1.txt", Action: Action{Marker: MarkerKeep}},
				},
			},
			{
				ID:   77,
				Size: 4,
				Members: []Member{
					{RelPath: "cat/2.txt", Action: Action{Marker: MarkerDelete}},
					{RelPath: "foo/2.txt", Action: Action{Marker: MarkerKeep}},
					{RelPath: "lnk/2.txt", Action: Action{Marker: MarkerSymlink}},
				},
			},
		},
	}

	lines := SerializeSnapshot(original)
	parsed, err := ParseSnapshot(lines)
	if err != nil {
		t.Fatalf("ParseSnapshot(serialized) error = %v", err)
	}

	if parsed.Root != original.Root {
		t.Errorf("Root = %q, want %q", parsed.Root, original.Root)
	}
	if !parsed.GeneratedAt.Equal(original.GeneratedAt) {
		t.Errorf("GeneratedAt = %v, want %v", parsed.GeneratedAt, original.GeneratedAt)
	}
	if parsed.Comparison != original.Comparison {
		t.Errorf("Comparison = %v, want %v", parsed.Comparison, original.Comparison)
	}
	if len(parsed.Extra) != 1 || parsed.Extra[0] != original.Extra[0] {
		t.Errorf("Extra = %+v, want %+v", parsed.Extra, original.Extra)
	}
	if len(parsed.Groups) != len(original.Groups) {
		t.Fatalf("got %d groups, want %d", len(parsed.Groups), len(original.Groups))
	}
	for i, g := range parsed.Groups {
		og := original.Groups[i]
		if g.ID != og.ID {
			t.Errorf("group[%d] id = %d, want %d", i, g.ID, og.ID)
		}
		if len(g.Members) != len(og.Members) {
			t.Fatalf("group[%d] has %d members, want %d", i, len(g.Members), len(og.Members))
		}
		for j, m := range g.Members {
			if m != og.Members[j] {
				t.Errorf("group[%d] member[%d] = %+v, want %+v", i, j, m, og.Members[j])
			}
		}
	}

	// Serializing the parsed snapshot again must produce identical text.
	again := SerializeSnapshot(parsed)
	if len(again) != len(lines) {
		t.Fatalf("re-serialized %d lines, want %d", len(again), len(lines))
	}
	for i := range lines {
		if again[i] != lines[i] {
			t.Errorf("line %d = %q, want %q", i, again[i], lines[i])
		}
	}
}
