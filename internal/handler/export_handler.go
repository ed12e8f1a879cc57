package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/qms-manual-api/internal/dto"
	"github.com/noah-isme/qms-manual-api/internal/service"
	appErrors "github.com/noah-isme/qms-manual-api/pkg/errors"
	"github.com/noah-isme/qms-manual-api/pkg/response"
)

// ExportHandler handles export job endpoints and artifact downloads.
type ExportHandler struct {
	jobs     *service.ExportJobService
	renderer *service.ExportRenderService
}

// NewExportHandler constructs an export handler.
func NewExportHandler(jobs *service.ExportJobService, renderer *service.ExportRenderService) *ExportHandler {
	return &ExportHandler{jobs: jobs, renderer: renderer}
}

// Create godoc
// @Summary Request an export of a manual
// @Tags Exports
// @Accept json
// @Produce json
// @Param id path string true "Manual ID"
// @Param payload body dto.CreateExportRequest true "Export request"
// @Success 202 {object} response.Envelope
// @Router /manuals/{id}/exports [post]
func (h *ExportHandler) Create(c *gin.Context) {
	var req dto.CreateExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	job, err := h.jobs.CreateJob(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, dto.ExportJobResponse{
		ID:        job.ID,
		ManualID:  job.ManualID,
		Variant:   job.Variant,
		Status:    job.Status,
		ExpiresAt: job.ExpiresAt,
	}, nil)
}

// Status godoc
// @Summary Poll an export job
// @Tags Exports
// @Produce json
// @Param jobId path string true "Export job ID"
// @Success 200 {object} response.Envelope
// @Router /exports/{jobId} [get]
func (h *ExportHandler) Status(c *gin.Context) {
	job, err := h.jobs.GetStatus(c.Request.Context(), c.Param("jobId"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ExportStatusResponse{
		ID:           job.ID,
		ManualID:     job.ManualID,
		Variant:      job.Variant,
		Status:       job.Status,
		FileURL:      job.FileURL,
		FileSize:     job.FileSize,
		ErrorMessage: job.ErrorMessage,
		ExpiresAt:    job.ExpiresAt,
		CompletedAt:  job.CompletedAt,
	}, nil)
}

// Download godoc
// @Summary Download a rendered artifact using a signed token
// @Tags Exports
// @Produce application/pdf
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Router /exports/download/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	path, err := h.jobs.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Type", "application/pdf")
	c.File(path)
}

// History godoc
// @Summary Export revision history as CSV
// @Tags Exports
// @Produce text/csv
// @Param id path string true "Manual ID"
// @Success 200 {file} binary
// @Router /manuals/{id}/revisions/export [get]
func (h *ExportHandler) History(c *gin.Context) {
	manualID := c.Param("id")
	data, err := h.renderer.RenderHistoryCSV(c.Request.Context(), manualID)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("revisions-%s-%s.csv", manualID, time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", data)
}
