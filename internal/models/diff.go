package models

// ChangeKind classifies one diffed field or structural node.
type ChangeKind string

const (
	ChangeUnchanged ChangeKind = "unchanged"
	ChangeAdded     ChangeKind = "added"
	ChangeRemoved   ChangeKind = "removed"
	ChangeModified  ChangeKind = "modified"
)

// Inverse swaps added and removed, leaving the other kinds intact.
func (k ChangeKind) Inverse() ChangeKind {
	switch k {
	case ChangeAdded:
		return ChangeRemoved
	case ChangeRemoved:
		return ChangeAdded
	default:
		return k
	}
}

// FieldChange records the diff of one metadata field.
type FieldChange struct {
	Field string     `json:"field"`
	Kind  ChangeKind `json:"kind"`
	Old   string     `json:"old,omitempty"`
	New   string     `json:"new,omitempty"`
}

// ChapterChange records the diff of one structural node keyed by locator.
type ChapterChange struct {
	LocatorKey string     `json:"locator_key"`
	Kind       ChangeKind `json:"kind"`
	OldHeading string     `json:"old_heading,omitempty"`
	NewHeading string     `json:"new_heading,omitempty"`
}

// ManualDiff is the full structural diff between two revision snapshots.
type ManualDiff struct {
	FromRevision string          `json:"from_revision"`
	ToRevision   string          `json:"to_revision"`
	Metadata     []FieldChange   `json:"metadata"`
	Chapters     []ChapterChange `json:"chapters"`
}

// ChangedChapterKeys returns the locator keys whose kind is not unchanged.
func (d ManualDiff) ChangedChapterKeys() []string {
	keys := make([]string, 0, len(d.Chapters))
	for _, change := range d.Chapters {
		if change.Kind != ChangeUnchanged {
			keys = append(keys, change.LocatorKey)
		}
	}
	return keys
}
