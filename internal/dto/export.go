package dto

import (
	"time"

	"github.com/noah-isme/qms-manual-api/internal/models"
)

// CreateExportRequest captures POST /manuals/:id/exports payload.
type CreateExportRequest struct {
	Variant models.ExportVariant `json:"variant" validate:"required"`
}

// ExportJobResponse is returned after a job has been created.
type ExportJobResponse struct {
	ID        string               `json:"id"`
	ManualID  string               `json:"manual_id"`
	Variant   models.ExportVariant `json:"variant"`
	Status    models.ExportStatus  `json:"status"`
	ExpiresAt time.Time            `json:"expires_at"`
}

// ExportStatusResponse exposes job progress metadata for polling clients.
type ExportStatusResponse struct {
	ID           string               `json:"id"`
	ManualID     string               `json:"manual_id"`
	Variant      models.ExportVariant `json:"variant"`
	Status       models.ExportStatus  `json:"status"`
	FileURL      *string              `json:"file_url,omitempty"`
	FileSize     *int64               `json:"file_size,omitempty"`
	ErrorMessage *string              `json:"error_message,omitempty"`
	ExpiresAt    time.Time            `json:"expires_at"`
	CompletedAt  *time.Time           `json:"completed_at,omitempty"`
}
