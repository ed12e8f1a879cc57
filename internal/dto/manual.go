package dto

import (
	"time"

	"github.com/noah-isme/qms-manual-api/internal/models"
)

// CreateManualRequest captures POST /manuals payload.
type CreateManualRequest struct {
	Title        string `json:"title" validate:"required,min=3"`
	Description  string `json:"description"`
	Organization string `json:"organization" validate:"required"`
	DocumentCode string `json:"documentCode" validate:"required"`
}

// UpdateManualRequest captures draft metadata edits.
type UpdateManualRequest struct {
	Title         *string    `json:"title,omitempty" validate:"omitempty,min=3"`
	Description   *string    `json:"description,omitempty"`
	Organization  *string    `json:"organization,omitempty"`
	DocumentCode  *string    `json:"documentCode,omitempty"`
	ReviewDueDate *time.Time `json:"reviewDueDate,omitempty"`
}

// SectionInput describes one structural node in a full section replacement.
type SectionInput struct {
	ChapterNumber    int                  `json:"chapterNumber" validate:"min=1"`
	SectionNumber    *int                 `json:"sectionNumber,omitempty"`
	SubsectionNumber *int                 `json:"subsectionNumber,omitempty"`
	ClauseNumber     *int                 `json:"clauseNumber,omitempty"`
	Heading          string               `json:"heading" validate:"required"`
	PageBreak        bool                 `json:"pageBreak"`
	Blocks           models.ContentBlocks `json:"blocks"`
	Remarks          models.Remarks       `json:"remarks,omitempty"`
}

// ReplaceSectionsRequest swaps the manual's structural children wholesale.
type ReplaceSectionsRequest struct {
	Sections []SectionInput `json:"sections" validate:"required,dive"`
}

// ManualQuery mirrors supported listing filters.
type ManualQuery struct {
	Status          models.ManualStatus
	Search          string
	IncludeArchived bool
	Page            int
	PageSize        int
}
