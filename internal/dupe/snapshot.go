package dupe

import (
	"path/filepath"
	"sort"
	"time"
)

// Marker is the per-member verb dictating what the applier will do.
type Marker int

const (
	MarkerKeep Marker = iota
	MarkerDelete
	MarkerSymlink
)

// Keyword returns the marker as it appears in snapshot text.
func (m Marker) Keyword() string {
	switch m {
	case MarkerKeep:
		return "keep"
	case MarkerDelete:
		return "delete"
	case MarkerSymlink:
		return "symlink"
	}
	return "unknown"
}

// markerFromKeyword returns the marker for a snapshot keyword.
func markerFromKeyword(kw string) (Marker, bool) {
	switch kw {
	case "keep":
		return MarkerKeep, true
	case "delete":
		return MarkerDelete, true
	case "symlink":
		return MarkerSymlink, true
	}
	return 0, false
}

// Action is a member's marker plus, for symlink, an optional explicit
// source. Source is the literal string from the snapshot: absolute if
// it begins with /, otherwise relative to the symlink's own directory.
// It is never normalized so the link that gets created is exactly what
// the user wrote. An empty Source on a symlink action means the source
// is chosen implicitly (the group's keeper).
type Action struct {
	Marker Marker
	Source string
}

// Member is one file of a duplicate group, identified by its
// root-relative path.
type Member struct {
	RelPath string
	Action  Action
}

// Group is a set of >=2 content-equal files identified by the 64-bit
// fingerprint of their contents. Size is the common member file size
// in bytes; it is known for snapshots produced by find and zero for
// parsed snapshots.
type Group struct {
	ID      uint64
	Size    int64
	Members []Member
}

// Keeper returns the lexicographically first member marked keep, or
// nil when the group has none. It is the implicit symlink source.
func (g *Group) Keeper() *Member {
	var keeper *Member
	for i := range g.Members {
		m := &g.Members[i]
		if m.Action.Marker != MarkerKeep {
			continue
		}
		if keeper == nil || m.RelPath < keeper.RelPath {
			keeper = m
		}
	}
	return keeper
}

// AllDelete reports whether every member of the group is marked
// delete. Such a group is rejected at validation (data-loss guard).
func (g *Group) AllDelete() bool {
	for _, m := range g.Members {
		if m.Action.Marker != MarkerDelete {
			return false
		}
	}
	return len(g.Members) > 0
}

// Comparison records the hashing discipline a snapshot was produced
// under. Full snapshots had their groups confirmed with sha256; quick
// snapshots rely on the fingerprint alone.
type Comparison int

const (
	ComparisonFull Comparison = iota
	ComparisonQuick
)

func (c Comparison) String() string {
	if c == ComparisonQuick {
		return "quick"
	}
	return "full"
}

// MetaField is one #! metadata line. Unknown keys are preserved on
// round-trip in their original order.
type MetaField struct {
	Key   string
	Value string
}

// Snapshot is the textual artifact's in-memory form: the scan root,
// a generation timestamp, the comparison discipline, and the ordered
// duplicate groups. It is the single source of truth consumed by
// validate and apply.
type Snapshot struct {
	Root        string
	GeneratedAt time.Time
	Comparison  Comparison
	Extra       []MetaField
	Groups      []Group
}

// AbsPath joins a root-relative member path with the snapshot root.
func (s *Snapshot) AbsPath(rel string) string {
	return filepath.Join(s.Root, rel)
}

// EffectiveSource returns the symlink source string the applier will
// write for the given member: the explicit source verbatim when one
// was specified, otherwise the path of the group's keeper expressed
// relative to the member's own directory. ok is false when the member
// is not a symlink action or no implicit source can be derived.
func (s *Snapshot) EffectiveSource(g *Group, m *Member) (string, bool) {
	if m.Action.Marker != MarkerSymlink {
		return "", false
	}
	if m.Action.Source != "" {
		return m.Action.Source, true
	}
	keeper := g.Keeper()
	if keeper == nil {
		return "", false
	}
	linkDir := filepath.Dir(s.AbsPath(m.RelPath))
	rel, err := RelativeFrom(linkDir, s.AbsPath(keeper.RelPath))
	if err != nil {
		return "", false
	}
	return rel, true
}

// sortGroups orders groups by descending member file size, ties broken
// by ascending fingerprint, and each group's members lexicographically
// by relative path. find output relies on this order; the serializer
// emits groups as-is.
func sortGroups(groups []Group) {
	for i := range groups {
		g := &groups[i]
		sort.Slice(g.Members, func(a, b int) bool {
			return g.Members[a].RelPath < g.Members[b].RelPath
		})
	}
	sort.Slice(groups, func(a, b int) bool {
		if groups[a].Size != groups[b].Size {
			return groups[a].Size > groups[b].Size
		}
		return groups[a].ID < groups[b].ID
	})
}
