package models

import "time"

// ExportVariant enumerates supported rendering modes.
type ExportVariant string

const (
	ExportVariantClean            ExportVariant = "clean"
	ExportVariantDraftWatermarked ExportVariant = "draft_watermarked"
	ExportVariantDraftDiff        ExportVariant = "draft_diff"
	ExportVariantCleanApproved    ExportVariant = "clean_approved"
)

// ExportStatus captures background job lifecycle states. Transitions are
// strictly forward: pending -> processing -> completed | failed.
type ExportStatus string

const (
	ExportStatusPending    ExportStatus = "pending"
	ExportStatusProcessing ExportStatus = "processing"
	ExportStatusCompleted  ExportStatus = "completed"
	ExportStatusFailed     ExportStatus = "failed"
)

// Terminal reports whether the status accepts no further transitions.
func (s ExportStatus) Terminal() bool {
	return s == ExportStatusCompleted || s == ExportStatusFailed
}

// ExportJob is a tracked request to render a manual snapshot to a PDF
// artifact. It weakly references the manual; the record outlives the
// request that created it.
type ExportJob struct {
	ID                  string        `db:"id" json:"id"`
	ManualID            string        `db:"manual_id" json:"manual_id"`
	Variant             ExportVariant `db:"variant" json:"variant"`
	Status              ExportStatus  `db:"status" json:"status"`
	FilePath            *string       `db:"file_path" json:"file_path,omitempty"`
	FileURL             *string       `db:"file_url" json:"file_url,omitempty"`
	FileSize            *int64        `db:"file_size" json:"file_size,omitempty"`
	ErrorMessage        *string       `db:"error_message" json:"error_message,omitempty"`
	CreatedBy           string        `db:"created_by" json:"created_by"`
	CreatedAt           time.Time     `db:"created_at" json:"created_at"`
	ProcessingStartedAt *time.Time    `db:"processing_started_at" json:"processing_started_at,omitempty"`
	CompletedAt         *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
	ExpiresAt           time.Time     `db:"expires_at" json:"expires_at"`
}
