package domain

import "time"

type EntryKind string

const (
	EntryKindCreated    EntryKind = "created"
	EntryKindTransition EntryKind = "transition"
	EntryKindOverride   EntryKind = "override"
)

// StatusHistoryEntry is an immutable record of one status change.
type StatusHistoryEntry struct {
	ID         int64
	CaseID     string
	Sequence   int
	FromStatus *Status
	ToStatus   Status
	ChangedBy  Role
	ActorID    string
	Kind       EntryKind
	Notes      *string
	CreatedAt  time.Time
}

// Clone returns a copy that shares no pointers with e.
func (e *StatusHistoryEntry) Clone() *StatusHistoryEntry {
	cp := *e
	if e.FromStatus != nil {
		from := *e.FromStatus
		cp.FromStatus = &from
	}
	if e.Notes != nil {
		notes := *e.Notes
		cp.Notes = &notes
	}
	return &cp
}
