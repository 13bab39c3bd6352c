package migrate

import (
	"context"
	"fmt"

	"github.com/maithemewp/mai-engine-installer/internal/descriptor"
)

// State is the migration state of one site.
//
//	Unmigrated -> Migrating -> Migrated -> Deactivated
//
// Every transition is safe to re-enter; repeated triggers converge.
type State int

const (
	// Unknown means the descriptor is missing or unreadable.
	Unknown State = iota
	// Unmigrated means a legacy record is present or the target is absent.
	Unmigrated
	// Migrating means a rewrite is in flight. Only the journal records it.
	Migrating
	// Migrated means the target is present and the legacy component is still active.
	Migrated
	// Deactivated is terminal: target present, legacy component off.
	Deactivated
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Unmigrated:
		return "unmigrated"
	case Migrating:
		return "migrating"
	case Migrated:
		return "migrated"
	case Deactivated:
		return "deactivated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, error) {
	for st := Unknown; st <= Deactivated; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return Unknown, fmt.Errorf("unknown migration state %q", s)
}

// ComponentStatus reports whether a component is enabled.
type ComponentStatus interface {
	IsActive(ctx context.Context, id string) (bool, error)
}

// Snapshot is the observed state of the descriptor and the legacy component.
type Snapshot struct {
	State     State
	HasLegacy bool
	HasTarget bool
	URIs      []string

	// LegacyActive is only meaningful when a ComponentStatus was given.
	LegacyActive bool

	// Err explains an Unknown state.
	Err error
}

// Inspect derives the current State. components may be nil, in which case a
// migrated descriptor is reported as Migrated.
func Inspect(ctx context.Context, path string, legacyURIs []string, targetURI string,
	components ComponentStatus, legacyID string) (Snapshot, error) {

	var snap Snapshot

	_, doc, err := descriptor.Read(path)
	if err != nil {
		snap.State = Unknown
		snap.Err = err
		return snap, nil
	}

	legacy := make(map[string]struct{}, len(legacyURIs))
	for _, uri := range legacyURIs {
		legacy[uri] = struct{}{}
	}

	snap.URIs = doc.URIs()
	snap.HasLegacy = doc.ContainsAny(legacy)
	snap.HasTarget = doc.Contains(targetURI)

	if snap.HasLegacy || !snap.HasTarget {
		snap.State = Unmigrated
		return snap, nil
	}

	if components == nil || legacyID == "" {
		snap.State = Migrated
		return snap, nil
	}

	active, err := components.IsActive(ctx, legacyID)
	if err != nil {
		return snap, fmt.Errorf("failed to query component %s: %w", legacyID, err)
	}
	snap.LegacyActive = active
	if active {
		snap.State = Migrated
	} else {
		snap.State = Deactivated
	}
	return snap, nil
}
