package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotFormatVersion tags the persisted snapshot schema. Readers must
// reject snapshots written with a version they do not understand instead of
// silently misreading them.
const SnapshotFormatVersion = 1

// RevisionStatus enumerates revision lifecycle states.
type RevisionStatus string

const (
	RevisionStatusDraft    RevisionStatus = "draft"
	RevisionStatusInReview RevisionStatus = "in_review"
	RevisionStatusApproved RevisionStatus = "approved"
	RevisionStatusRejected RevisionStatus = "rejected"
)

// Active reports whether the revision is the manual's working copy.
func (s RevisionStatus) Active() bool {
	return s == RevisionStatusDraft || s == RevisionStatusInReview
}

// Revision is an immutable point-in-time snapshot of a manual plus the
// metadata of the lifecycle transition that produced it.
type Revision struct {
	ID               string         `db:"id" json:"id"`
	ManualID         string         `db:"manual_id" json:"manual_id"`
	RevisionNumber   string         `db:"revision_number" json:"revision_number"`
	Status           RevisionStatus `db:"status" json:"status"`
	Snapshot         ManualSnapshot `db:"snapshot" json:"snapshot"`
	ChangesSummary   string         `db:"changes_summary" json:"changes_summary"`
	ChaptersAffected StringSet      `db:"chapters_affected" json:"chapters_affected,omitempty"`
	RestoredFrom     *string        `db:"restored_from" json:"restored_from,omitempty"`
	CreatedBy        string         `db:"created_by" json:"created_by"`
	SubmittedBy      *string        `db:"submitted_by" json:"submitted_by,omitempty"`
	SubmittedAt      *time.Time     `db:"submitted_at" json:"submitted_at,omitempty"`
	ApprovedBy       *string        `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt       *time.Time     `db:"approved_at" json:"approved_at,omitempty"`
	RejectedBy       *string        `db:"rejected_by" json:"rejected_by,omitempty"`
	RejectedAt       *time.Time     `db:"rejected_at" json:"rejected_at,omitempty"`
	RejectionReason  *string        `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
}

// ManualSnapshot is the deep-copied value of a manual and its structural
// children at the moment a revision was created. It is written once and
// never references live rows.
type ManualSnapshot struct {
	FormatVersion int               `json:"format_version"`
	Manual        ManualCore        `json:"manual"`
	Sections      []SectionSnapshot `json:"sections"`
}

// ManualCore holds the manual metadata captured in a snapshot.
type ManualCore struct {
	Title           string       `json:"title"`
	Description     string       `json:"description"`
	Organization    string       `json:"organization"`
	DocumentCode    string       `json:"document_code"`
	Status          ManualStatus `json:"status"`
	CurrentRevision string       `json:"current_revision"`
	EffectiveDate   *time.Time   `json:"effective_date,omitempty"`
	ReviewDueDate   *time.Time   `json:"review_due_date,omitempty"`
}

// SectionSnapshot is the captured value of one structural node.
type SectionSnapshot struct {
	ChapterNumber    int           `json:"chapter_number"`
	SectionNumber    *int          `json:"section_number,omitempty"`
	SubsectionNumber *int          `json:"subsection_number,omitempty"`
	ClauseNumber     *int          `json:"clause_number,omitempty"`
	Heading          string        `json:"heading"`
	PageBreak        bool          `json:"page_break"`
	Position         int           `json:"position"`
	Blocks           ContentBlocks `json:"blocks"`
	Remarks          Remarks       `json:"remarks,omitempty"`
}

// LocatorKey builds the composite key for the snapshot node.
func (s SectionSnapshot) LocatorKey() string {
	key := fmt.Sprintf("%d", s.ChapterNumber)
	for _, level := range []*int{s.SectionNumber, s.SubsectionNumber, s.ClauseNumber} {
		if level == nil {
			break
		}
		key = fmt.Sprintf("%s.%d", key, *level)
	}
	return key
}

// SnapshotOf captures the current state of a manual and its sections.
func SnapshotOf(manual *Manual, sections []Section) ManualSnapshot {
	snap := ManualSnapshot{
		FormatVersion: SnapshotFormatVersion,
		Manual: ManualCore{
			Title:           manual.Title,
			Description:     manual.Description,
			Organization:    manual.Organization,
			DocumentCode:    manual.DocumentCode,
			Status:          manual.Status,
			CurrentRevision: manual.CurrentRevision,
			EffectiveDate:   manual.EffectiveDate,
			ReviewDueDate:   manual.ReviewDueDate,
		},
		Sections: make([]SectionSnapshot, 0, len(sections)),
	}
	for _, section := range sections {
		snap.Sections = append(snap.Sections, SectionSnapshot{
			ChapterNumber:    section.ChapterNumber,
			SectionNumber:    section.SectionNumber,
			SubsectionNumber: section.SubsectionNumber,
			ClauseNumber:     section.ClauseNumber,
			Heading:          section.Heading,
			PageBreak:        section.PageBreak,
			Position:         section.Position,
			Blocks:           append(ContentBlocks(nil), section.Blocks...),
			Remarks:          append(Remarks(nil), section.Remarks...),
		})
	}
	return snap
}

// Value marshals the snapshot to JSON for persistence.
func (s ManualSnapshot) Value() (driver.Value, error) {
	if s.FormatVersion == 0 {
		s.FormatVersion = SnapshotFormatVersion
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal manual snapshot: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads and rejects unknown snapshot versions.
func (s *ManualSnapshot) Scan(value interface{}) error {
	if err := scanJSON(value, s, "ManualSnapshot"); err != nil {
		return err
	}
	if s.FormatVersion != 0 && s.FormatVersion != SnapshotFormatVersion {
		return fmt.Errorf("unsupported snapshot format version %d", s.FormatVersion)
	}
	return nil
}

// StringSet stores an unordered set of strings as a JSON array.
type StringSet []string

// Value marshals the set to JSON for persistence.
func (s StringSet) Value() (driver.Value, error) {
	if s == nil {
		s = StringSet{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal string set: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the set.
func (s *StringSet) Scan(value interface{}) error {
	return scanJSON(value, s, "StringSet")
}
