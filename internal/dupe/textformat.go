package dupe

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Snapshot text is line-oriented UTF-8 with four line classes:
//
//	#! Key: Value        metadata (Root Directory and Generated at required)
//	# ...                comment, ignored
//	[<decimal digits>]   group header opening a group
//	<marker> <relpath>   member; symlink may carry " -> <source>"
//
// Blank lines separate groups.

const (
	metaKeyRoot       = "Root Directory"
	metaKeyGenerated  = "Generated at"
	metaKeyComparison = "Comparison"

	// Generated at uses the RFC 2822 date form.
	timestampLayout = time.RFC1123Z
)

// sourceSep separates a symlink member's path from its source.
const sourceSep = " -> "

// ParseSnapshot parses snapshot text lines into a Snapshot. Comments
// are dropped; unknown metadata keys are preserved in order.
func ParseSnapshot(lines []string) (*Snapshot, error) {
	snap := &Snapshot{}
	seenPaths := make(map[string]int)

	var (
		current  *Group
		rootSeen bool
		genSeen  bool
	)

	closeGroup := func(lineNo int) error {
		if current == nil {
			return nil
		}
		if len(current.Members) == 0 {
			return &ParseError{Line: lineNo, Reason: ParseEmptyGroup,
				Detail: fmt.Sprintf("group [%d] has no members", current.ID)}
		}
		snap.Groups = append(snap.Groups, *current)
		current = nil
		return nil
	}

	for i, raw := range lines {
		lineNo := i + 1
		line := strings.TrimRight(raw, "\r\n")

		switch {
		case strings.TrimSpace(line) == "":
			if err := closeGroup(lineNo); err != nil {
				return nil, err
			}

		case strings.HasPrefix(line, "#!"):
			key, value, err := parseMetaLine(line, lineNo)
			if err != nil {
				return nil, err
			}
			switch key {
			case metaKeyRoot:
				if !filepath.IsAbs(value) {
					return nil, &ParseError{Line: lineNo, Reason: ParseBadMetadata,
						Detail: fmt.Sprintf("root directory must be absolute: %s", value)}
				}
				snap.Root = filepath.Clean(value)
				rootSeen = true
			case metaKeyGenerated:
				ts, err := time.Parse(timestampLayout, value)
				if err != nil {
					return nil, &ParseError{Line: lineNo, Reason: ParseBadMetadata,
						Detail: fmt.Sprintf("bad timestamp %q: %v", value, err)}
				}
				snap.GeneratedAt = ts
				genSeen = true
			case metaKeyComparison:
				switch value {
				case "full":
					snap.Comparison = ComparisonFull
				case "quick":
					snap.Comparison = ComparisonQuick
				default:
					return nil, &ParseError{Line: lineNo, Reason: ParseBadMetadata,
						Detail: fmt.Sprintf("comparison must be full or quick, got %q", value)}
				}
			default:
				snap.Extra = append(snap.Extra, MetaField{Key: key, Value: value})
			}

		case strings.HasPrefix(line, "#"):
			// Comment; not preserved on round-trip.

		case strings.HasPrefix(line, "["):
			if err := closeGroup(lineNo); err != nil {
				return nil, err
			}
			if !strings.HasSuffix(line, "]") {
				return nil, &ParseError{Line: lineNo, Reason: ParseBadHeader, Detail: line}
			}
			id, err := strconv.ParseUint(line[1:len(line)-1], 10, 64)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Reason: ParseBadHeader, Detail: line}
			}
			current = &Group{ID: id}

		default:
			if current == nil {
				return nil, &ParseError{Line: lineNo, Reason: ParseMemberOutsideGroup, Detail: line}
			}
			member, err := parseMemberLine(line, lineNo)
			if err != nil {
				return nil, err
			}
			if prev, dup := seenPaths[member.RelPath]; dup {
				return nil, &ParseError{Line: lineNo, Reason: ParseDuplicatePath,
					Detail: fmt.Sprintf("%s already appears on line %d", member.RelPath, prev)}
			}
			seenPaths[member.RelPath] = lineNo
			current.Members = append(current.Members, *member)
		}
	}
	if err := closeGroup(len(lines)); err != nil {
		return nil, err
	}

	if !rootSeen {
		return nil, &ParseError{Reason: ParseMissingMetadata, Detail: metaKeyRoot}
	}
	if !genSeen {
		return nil, &ParseError{Reason: ParseMissingMetadata, Detail: metaKeyGenerated}
	}
	return snap, nil
}

func parseMetaLine(line string, lineNo int) (key, value string, err error) {
	body := strings.TrimPrefix(line, "#!")
	body = strings.TrimLeft(body, " ")
	k, v, ok := strings.Cut(body, ":")
	if !ok || strings.TrimSpace(k) == "" {
		return "", "", &ParseError{Line: lineNo, Reason: ParseBadMetadata, Detail: line}
	}
	return strings.TrimSpace(k), strings.TrimSpace(v), nil
}

func parseMemberLine(line string, lineNo int) (*Member, error) {
	keyword, rest, _ := strings.Cut(line, " ")
	marker, ok := markerFromKeyword(keyword)
	if !ok {
		return nil, &ParseError{Line: lineNo, Reason: ParseUnknownMarker, Detail: keyword}
	}

	var source string
	if marker == MarkerSymlink {
		if path, src, found := strings.Cut(rest, sourceSep); found {
			rest = path
			source = src
			if source == "" {
				return nil, &ParseError{Line: lineNo, Reason: ParseBadMember,
					Detail: "empty symlink source"}
			}
		}
	}

	relPath := strings.TrimSpace(rest)
	if relPath == "" {
		return nil, &ParseError{Line: lineNo, Reason: ParseBadMember, Detail: "missing path"}
	}
	clean := filepath.Clean(relPath)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return nil, &ParseError{Line: lineNo, Reason: ParseBadMember,
			Detail: fmt.Sprintf("path escapes the root: %s", relPath)}
	}

	return &Member{RelPath: clean, Action: Action{Marker: marker, Source: source}}, nil
}

// referenceBlock is appended to serialized snapshots as a reminder of
// the member grammar. The parser treats it as comments.
var referenceBlock = []string{
	"# Reference:",
	"#   keep <path>                   leave the file as-is",
	"#   delete <path>                 delete the file (a backup is taken first)",
	"#   symlink <path>                replace with a link to the group's kept file",
	"#   symlink <path> -> <source>    replace with a link to <source>",
}

// SerializeSnapshot renders a snapshot as text lines. The output is
// valid parser input: parsing it yields the same semantic snapshot,
// ignoring the trailing reference comments.
func SerializeSnapshot(snap *Snapshot) []string {
	var lines []string
	lines = append(lines,
		fmt.Sprintf("#! %s: %s", metaKeyRoot, snap.Root),
		fmt.Sprintf("#! %s: %s", metaKeyGenerated, snap.GeneratedAt.Format(timestampLayout)),
		fmt.Sprintf("#! %s: %s", metaKeyComparison, snap.Comparison),
	)
	for _, f := range snap.Extra {
		lines = append(lines, fmt.Sprintf("#! %s: %s", f.Key, f.Value))
	}
	lines = append(lines, "")

	for _, g := range snap.Groups {
		lines = append(lines, fmt.Sprintf("[%s]", FormatFingerprint(g.ID)))
		for _, m := range g.Members {
			entry := m.Action.Marker.Keyword() + " " + m.RelPath
			if m.Action.Marker == MarkerSymlink && m.Action.Source != "" {
				entry += sourceSep + m.Action.Source
			}
			lines = append(lines, entry)
		}
		lines = append(lines, "")
	}

	lines = append(lines, referenceBlock...)
	return lines
}
