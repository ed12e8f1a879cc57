package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ManualStatus enumerates the lifecycle states of a manual.
type ManualStatus string

const (
	ManualStatusDraft    ManualStatus = "draft"
	ManualStatusInReview ManualStatus = "in_review"
	ManualStatusApproved ManualStatus = "approved"
	ManualStatusRejected ManualStatus = "rejected"
)

// Editable reports whether the manual may be modified in this status.
func (s ManualStatus) Editable() bool {
	return s == ManualStatusDraft || s == ManualStatusRejected
}

// Manual is a regulated document under lifecycle management.
type Manual struct {
	ID              string       `db:"id" json:"id"`
	Title           string       `db:"title" json:"title"`
	Description     string       `db:"description" json:"description"`
	Organization    string       `db:"organization" json:"organization"`
	DocumentCode    string       `db:"document_code" json:"document_code"`
	Status          ManualStatus `db:"status" json:"status"`
	CurrentRevision string       `db:"current_revision" json:"current_revision"`
	EffectiveDate   *time.Time   `db:"effective_date" json:"effective_date,omitempty"`
	ReviewDueDate   *time.Time   `db:"review_due_date" json:"review_due_date,omitempty"`
	OwnerID         string       `db:"owner_id" json:"owner_id"`
	Archived        bool         `db:"archived" json:"archived"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`

	Sections []Section `db:"-" json:"sections,omitempty"`
}

// ManualFilter captures listing criteria.
type ManualFilter struct {
	Status          ManualStatus
	OwnerID         string
	Search          string
	IncludeArchived bool
	Page            int
	PageSize        int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// Section is one structural node of a manual. The hierarchical locator
// (chapter/section/subsection/clause) identifies the node across snapshots.
type Section struct {
	ID               string        `db:"id" json:"id"`
	ManualID         string        `db:"manual_id" json:"manual_id"`
	ChapterNumber    int           `db:"chapter_number" json:"chapter_number"`
	SectionNumber    *int          `db:"section_number" json:"section_number,omitempty"`
	SubsectionNumber *int          `db:"subsection_number" json:"subsection_number,omitempty"`
	ClauseNumber     *int          `db:"clause_number" json:"clause_number,omitempty"`
	Heading          string        `db:"heading" json:"heading"`
	PageBreak        bool          `db:"page_break" json:"page_break"`
	Position         int           `db:"position" json:"position"`
	Blocks           ContentBlocks `db:"blocks" json:"blocks"`
	Remarks          Remarks       `db:"remarks" json:"remarks,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// LocatorKey builds the composite key for the node, skipping absent levels.
func (s Section) LocatorKey() string {
	key := fmt.Sprintf("%d", s.ChapterNumber)
	for _, level := range []*int{s.SectionNumber, s.SubsectionNumber, s.ClauseNumber} {
		if level == nil {
			break
		}
		key = fmt.Sprintf("%s.%d", key, *level)
	}
	return key
}

// ContentBlock is an opaque unit of rendered content. The body is never
// interpreted by the lifecycle core; it is compared by value only.
type ContentBlock struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// ContentBlocks stores the ordered block list as JSONB.
type ContentBlocks []ContentBlock

// Value marshals blocks to JSON for persistence.
func (b ContentBlocks) Value() (driver.Value, error) {
	if b == nil {
		b = ContentBlocks{}
	}
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal content blocks: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the block list.
func (b *ContentBlocks) Scan(value interface{}) error {
	return scanJSON(value, b, "ContentBlocks")
}

// Remark is an annotation attached to a section.
type Remark struct {
	Author string    `json:"author"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

// Remarks stores section annotations as JSONB.
type Remarks []Remark

// Value marshals remarks to JSON for persistence.
func (r Remarks) Value() (driver.Value, error) {
	if r == nil {
		r = Remarks{}
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal remarks: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the remark list.
func (r *Remarks) Scan(value interface{}) error {
	return scanJSON(value, r, "Remarks")
}

func scanJSON(value, target interface{}, label string) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for %s", value, label)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("unmarshal %s: %w", label, err)
	}
	return nil
}
