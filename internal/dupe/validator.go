package dupe

import (
	"fmt"
	"os"
)

// MemberState is the validator's verdict on one member against the
// live filesystem.
type MemberState int

const (
	// StatePending means the action has not been applied yet.
	StatePending MemberState = iota
	// StateSatisfied means the on-disk state already reflects the
	// action; applying it is a no-op.
	StateSatisfied
	// StateConflict means the on-disk state contradicts the snapshot.
	StateConflict
)

func (s MemberState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSatisfied:
		return "satisfied"
	case StateConflict:
		return "conflict"
	}
	return "unknown"
}

// PlannedAction is a validated member ready for the applier: its
// absolute path, its state, the effective symlink source (when the
// marker is symlink) and the current on-disk size.
type PlannedAction struct {
	Member  Member
	GroupID uint64
	AbsPath string
	State   MemberState
	Source  string
	Size    int64
}

// ValidationReport is the outcome of validating a snapshot: one
// planned action per member, plus every issue found. Issues are
// collected in a batch rather than failing on the first.
type ValidationReport struct {
	Actions []PlannedAction
	Issues  []*ValidationError
}

// Pending counts actions that still require filesystem changes.
func (r *ValidationReport) Pending() int {
	n := 0
	for _, a := range r.Actions {
		if a.State == StatePending && a.Member.Action.Marker != MarkerKeep {
			n++
		}
	}
	return n
}

// Err returns the first issue as an error, or nil when the report is
// clean. All issues remain available in Issues.
func (r *ValidationReport) Err() error {
	if len(r.Issues) == 0 {
		return nil
	}
	return r.Issues[0]
}

// Validator cross-checks a snapshot against the current filesystem.
type Validator struct {
	hasher Hasher
	logger Logger
}

func NewValidator(hasher Hasher, logger Logger) *Validator {
	return &Validator{hasher: hasher, logger: logger}
}

// Validate checks the snapshot and classifies every member. Group
// headers are not trusted as sole disambiguation: each member's
// current content is re-hashed against the group id, and in full
// comparison mode the strong hashes of regular members must agree
// within each group block.
func (v *Validator) Validate(snap *Snapshot) *ValidationReport {
	report := &ValidationReport{}

	info, err := os.Stat(snap.Root)
	if err != nil || !info.IsDir() {
		report.Issues = append(report.Issues, &ValidationError{
			Reason: ValidationRootMissing,
			Detail: fmt.Sprintf("root directory %s does not exist or is not a directory", snap.Root),
		})
		return report
	}

	for gi := range snap.Groups {
		g := &snap.Groups[gi]
		if g.AllDelete() {
			report.Issues = append(report.Issues, &ValidationError{
				Reason: ValidationAllDeleteGroup,
				Detail: fmt.Sprintf("every member of group [%d] is marked delete", g.ID),
			})
		}

		var firstStrong, firstStrongPath string
		for mi := range g.Members {
			m := &g.Members[mi]
			action, issue := v.CheckMember(snap, g, m)
			if issue != nil {
				report.Issues = append(report.Issues, issue)
			}
			report.Actions = append(report.Actions, action)

			// In full mode, regular members of one group block must
			// also agree on the strong hash.
			if snap.Comparison != ComparisonFull || issue != nil || !isRegular(action.AbsPath) {
				continue
			}
			strong, err := v.hasher.Strong(action.AbsPath)
			if err != nil {
				report.Issues = append(report.Issues, ioIssue(m.RelPath, err))
				continue
			}
			switch {
			case firstStrong == "":
				firstStrong, firstStrongPath = strong, m.RelPath
			case strong != firstStrong:
				report.Issues = append(report.Issues, &ValidationError{
					Path:   m.RelPath,
					Reason: ValidationContentDrift,
					Detail: fmt.Sprintf("sha256 differs from %s within group [%d]", firstStrongPath, g.ID),
				})
			}
		}
	}
	return report
}

// CheckMember classifies one member against the live filesystem. It is
// also the applier's per-action TOCTOU recheck. The returned issue is
// nil for pending and satisfied members.
func (v *Validator) CheckMember(snap *Snapshot, g *Group, m *Member) (PlannedAction, *ValidationError) {
	action := PlannedAction{
		Member:  *m,
		GroupID: g.ID,
		AbsPath: snap.AbsPath(m.RelPath),
		State:   StateConflict,
	}

	if !WithinRoot(snap.Root, action.AbsPath) {
		return action, &ValidationError{Path: m.RelPath, Reason: ValidationOutsideRoot,
			Detail: action.AbsPath}
	}

	if m.Action.Marker == MarkerSymlink {
		source, ok := snap.EffectiveSource(g, m)
		if !ok {
			return action, &ValidationError{Path: m.RelPath, Reason: ValidationSourceUnreachable,
				Detail: "no keep member to derive an implicit source from"}
		}
		action.Source = source
		if issue := v.checkSource(snap, g, m, source); issue != nil {
			return action, issue
		}
	}

	info, err := os.Lstat(action.AbsPath)
	if err != nil {
		if os.IsNotExist(err) {
			if m.Action.Marker == MarkerDelete {
				// Already gone; nothing left to do.
				action.State = StateSatisfied
				return action, nil
			}
			return action, &ValidationError{Path: m.RelPath, Reason: ValidationMemberMissing,
				Detail: action.AbsPath}
		}
		return action, ioIssue(m.RelPath, err)
	}
	action.Size = info.Size()

	isLink := info.Mode()&os.ModeSymlink != 0
	if isLink {
		return v.checkLinkMember(action, m)
	}

	if !info.Mode().IsRegular() {
		return action, &ValidationError{Path: m.RelPath, Reason: ValidationContentDrift,
			Detail: "not a regular file"}
	}

	fp, err := v.hasher.Fingerprint(action.AbsPath)
	if err != nil {
		return action, ioIssue(m.RelPath, err)
	}
	if fp != g.ID {
		return action, driftIssue(m.RelPath, fp, g.ID)
	}

	switch m.Action.Marker {
	case MarkerKeep:
		action.State = StateSatisfied
	default:
		action.State = StatePending
	}
	return action, nil
}

// checkLinkMember handles a member that is currently a symlink on
// disk, typically because a prior apply already resolved it. The
// pointee's content is hashed in place of the member's.
func (v *Validator) checkLinkMember(action PlannedAction, m *Member) (PlannedAction, *ValidationError) {
	target, err := os.Readlink(action.AbsPath)
	if err != nil {
		return action, ioIssue(m.RelPath, err)
	}

	// Hashing follows the link; failure here means the link is broken.
	fp, hashErr := v.hasher.Fingerprint(action.AbsPath)
	broken := hashErr != nil

	switch m.Action.Marker {
	case MarkerSymlink:
		if target == action.Source {
			// Invariant: a link that already points at the intended
			// source is satisfied regardless of anything else.
			action.State = StateSatisfied
			return action, nil
		}
		if broken {
			// A broken link marked symlink is simply re-pointed.
			action.State = StatePending
			return action, nil
		}
		if fp != action.GroupID {
			return action, driftIssue(m.RelPath, fp, action.GroupID)
		}
		// Content-equal but pointing elsewhere: recreate the link
		// with the requested source.
		action.State = StatePending
		return action, nil

	case MarkerKeep:
		if broken {
			return action, &ValidationError{Path: m.RelPath, Reason: ValidationContentDrift,
				Detail: fmt.Sprintf("broken symlink to %s", target)}
		}
		if fp != action.GroupID {
			return action, driftIssue(m.RelPath, fp, action.GroupID)
		}
		action.State = StateSatisfied
		return action, nil

	default: // MarkerDelete
		if broken {
			return action, &ValidationError{Path: m.RelPath, Reason: ValidationContentDrift,
				Detail: fmt.Sprintf("broken symlink to %s", target)}
		}
		if fp != action.GroupID {
			return action, driftIssue(m.RelPath, fp, action.GroupID)
		}
		action.State = StatePending
		return action, nil
	}
}

// checkSource verifies that a symlink member's effective source names
// a file whose current content matches the group, or is itself a keep
// member of the same group.
func (v *Validator) checkSource(snap *Snapshot, g *Group, m *Member, source string) *ValidationError {
	resolved := ResolveSourcePath(snap.AbsPath(m.RelPath), source)

	if _, err := os.Stat(resolved); err != nil {
		if !os.IsNotExist(err) {
			return ioIssue(m.RelPath, err)
		}
		// The source need not exist yet if it is a keep member of the
		// same group; its own membership check covers existence.
		for _, other := range g.Members {
			if other.Action.Marker == MarkerKeep && snap.AbsPath(other.RelPath) == resolved {
				return nil
			}
		}
		return &ValidationError{Path: m.RelPath, Reason: ValidationSourceUnreachable,
			Detail: fmt.Sprintf("source %s does not exist", source)}
	}

	fp, err := v.hasher.Fingerprint(resolved)
	if err != nil {
		return ioIssue(m.RelPath, err)
	}
	if fp != g.ID {
		return &ValidationError{Path: m.RelPath, Reason: ValidationSourceNotEqual,
			Detail: fmt.Sprintf("source %s content does not match group [%d]", source, g.ID)}
	}
	return nil
}

func isRegular(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode().IsRegular()
}

func driftIssue(relPath string, got, want uint64) *ValidationError {
	return &ValidationError{
		Path:   relPath,
		Reason: ValidationContentDrift,
		Detail: fmt.Sprintf("content hash %d does not match group [%d]", got, want),
	}
}

func ioIssue(relPath string, err error) *ValidationError {
	return &ValidationError{Path: relPath, Reason: ValidationIO, Detail: err.Error()}
}
