package dto

import (
	"time"

	"github.com/noah-isme/qms-manual-api/internal/models"
)

// SubmitForReviewRequest captures submit payload.
type SubmitForReviewRequest struct {
	ChangesSummary string `json:"changesSummary"`
}

// ApproveRevisionRequest stamps an approval decision.
type ApproveRevisionRequest struct {
	RevisionID    string    `json:"revisionId"`
	EffectiveDate time.Time `json:"effectiveDate" validate:"required"`
	Comments      string    `json:"comments"`
}

// RejectRevisionRequest stamps a rejection decision.
type RejectRevisionRequest struct {
	RevisionID string `json:"revisionId"`
	Reason     string `json:"reason" validate:"required"`
}

// RestoreRevisionRequest points at the historical revision to restore.
type RestoreRevisionRequest struct {
	RevisionID string `json:"revisionId" validate:"required"`
}

// RevisionResponse summarises a revision without its snapshot body.
type RevisionResponse struct {
	ID               string                `json:"id"`
	ManualID         string                `json:"manual_id"`
	RevisionNumber   string                `json:"revision_number"`
	Status           models.RevisionStatus `json:"status"`
	ChangesSummary   string                `json:"changes_summary"`
	ChaptersAffected []string              `json:"chapters_affected,omitempty"`
	RestoredFrom     *string               `json:"restored_from,omitempty"`
	CreatedBy        string                `json:"created_by"`
	CreatedAt        time.Time             `json:"created_at"`
}

// NewRevisionResponse maps a model revision into the summary shape.
func NewRevisionResponse(rev *models.Revision) RevisionResponse {
	return RevisionResponse{
		ID:               rev.ID,
		ManualID:         rev.ManualID,
		RevisionNumber:   rev.RevisionNumber,
		Status:           rev.Status,
		ChangesSummary:   rev.ChangesSummary,
		ChaptersAffected: rev.ChaptersAffected,
		RestoredFrom:     rev.RestoredFrom,
		CreatedBy:        rev.CreatedBy,
		CreatedAt:        rev.CreatedAt,
	}
}
