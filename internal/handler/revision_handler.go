package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/qms-manual-api/internal/dto"
	"github.com/noah-isme/qms-manual-api/internal/middleware"
	"github.com/noah-isme/qms-manual-api/internal/service"
	appErrors "github.com/noah-isme/qms-manual-api/pkg/errors"
	"github.com/noah-isme/qms-manual-api/pkg/response"
)

// RevisionHandler handles revision lifecycle and diff endpoints.
type RevisionHandler struct {
	revisions *service.RevisionService
	diffs     *service.DiffService
}

// NewRevisionHandler constructs a revision handler.
func NewRevisionHandler(revisions *service.RevisionService, diffs *service.DiffService) *RevisionHandler {
	return &RevisionHandler{revisions: revisions, diffs: diffs}
}

// List godoc
// @Summary List revisions of a manual, newest first
// @Tags Revisions
// @Produce json
// @Param id path string true "Manual ID"
// @Success 200 {object} response.Envelope
// @Router /manuals/{id}/revisions [get]
func (h *RevisionHandler) List(c *gin.Context) {
	revisions, err := h.revisions.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	summaries := make([]dto.RevisionResponse, 0, len(revisions))
	for i := range revisions {
		summaries = append(summaries, dto.NewRevisionResponse(&revisions[i]))
	}
	response.JSON(c, http.StatusOK, summaries, nil)
}

// Get godoc
// @Summary Get revision including its snapshot
// @Tags Revisions
// @Produce json
// @Param id path string true "Manual ID"
// @Param revisionId path string true "Revision ID"
// @Success 200 {object} response.Envelope
// @Router /manuals/{id}/revisions/{revisionId} [get]
func (h *RevisionHandler) Get(c *gin.Context) {
	revision, err := h.revisions.Get(c.Request.Context(), c.Param("revisionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if revision.ManualID != c.Param("id") {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "revision not found"))
		return
	}
	response.JSON(c, http.StatusOK, revision, nil)
}

// Submit godoc
// @Summary Submit manual for review
// @Tags Revisions
// @Accept json
// @Produce json
// @Param id path string true "Manual ID"
// @Param payload body dto.SubmitForReviewRequest true "Submission"
// @Success 201 {object} response.Envelope
// @Router /manuals/{id}/submit [post]
func (h *RevisionHandler) Submit(c *gin.Context) {
	var req dto.SubmitForReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	revision, err := h.revisions.SubmitForReview(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewRevisionResponse(revision))
}

// Approve godoc
// @Summary Approve the pending revision
// @Tags Revisions
// @Accept json
// @Produce json
// @Param id path string true "Manual ID"
// @Param payload body dto.ApproveRevisionRequest true "Approval"
// @Success 200 {object} response.Envelope
// @Router /manuals/{id}/approve [post]
func (h *RevisionHandler) Approve(c *gin.Context) {
	var req dto.ApproveRevisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	revision, err := h.revisions.Approve(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewRevisionResponse(revision), nil)
}

// Reject godoc
// @Summary Reject the pending revision
// @Tags Revisions
// @Accept json
// @Produce json
// @Param id path string true "Manual ID"
// @Param payload body dto.RejectRevisionRequest true "Rejection"
// @Success 200 {object} response.Envelope
// @Router /manuals/{id}/reject [post]
func (h *RevisionHandler) Reject(c *gin.Context) {
	var req dto.RejectRevisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	revision, err := h.revisions.Reject(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewRevisionResponse(revision), nil)
}

// CreateDraft godoc
// @Summary Start a new draft from an approved manual
// @Tags Revisions
// @Produce json
// @Param id path string true "Manual ID"
// @Success 201 {object} response.Envelope
// @Router /manuals/{id}/draft [post]
func (h *RevisionHandler) CreateDraft(c *gin.Context) {
	revision, err := h.revisions.CreateDraftFromApproved(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewRevisionResponse(revision))
}

// Restore godoc
// @Summary Restore manual content from a historical revision
// @Tags Revisions
// @Accept json
// @Produce json
// @Param id path string true "Manual ID"
// @Param payload body dto.RestoreRevisionRequest true "Restore target"
// @Success 201 {object} response.Envelope
// @Router /manuals/{id}/restore [post]
func (h *RevisionHandler) Restore(c *gin.Context) {
	var req dto.RestoreRevisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	revision, err := h.revisions.RestoreFromRevision(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewRevisionResponse(revision))
}

// Diff godoc
// @Summary Compare two revisions of a manual
// @Tags Revisions
// @Produce json
// @Param id path string true "Manual ID"
// @Param from query string true "From revision ID"
// @Param to query string true "To revision ID"
// @Success 200 {object} response.Envelope
// @Router /manuals/{id}/diff [get]
func (h *RevisionHandler) Diff(c *gin.Context) {
	diff, cached, err := h.diffs.DiffRevisions(c.Request.Context(), c.Param("id"), c.Query("from"), c.Query("to"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, diff, nil, middleware.ExtractMeta(c))
}
