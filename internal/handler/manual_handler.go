package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/qms-manual-api/internal/dto"
	"github.com/noah-isme/qms-manual-api/internal/models"
	"github.com/noah-isme/qms-manual-api/internal/service"
	appErrors "github.com/noah-isme/qms-manual-api/pkg/errors"
	"github.com/noah-isme/qms-manual-api/pkg/response"
)

// ManualHandler handles manual CRUD endpoints.
type ManualHandler struct {
	service *service.ManualService
}

// NewManualHandler constructs a manual handler.
func NewManualHandler(svc *service.ManualService) *ManualHandler {
	return &ManualHandler{service: svc}
}

// List godoc
// @Summary List manuals
// @Tags Manuals
// @Produce json
// @Param status query string false "Filter by status"
// @Param search query string false "Search keyword"
// @Param includeArchived query bool false "Include archived manuals"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /manuals [get]
func (h *ManualHandler) List(c *gin.Context) {
	var query dto.ManualQuery
	query.Status = models.ManualStatus(c.Query("status"))
	query.Search = strings.TrimSpace(c.Query("search"))
	query.IncludeArchived = c.Query("includeArchived") == "true"
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		query.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		query.PageSize = limit
	}

	manuals, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, manuals, pagination)
}

// Get godoc
// @Summary Get manual by id including sections
// @Tags Manuals
// @Produce json
// @Param id path string true "Manual ID"
// @Success 200 {object} response.Envelope
// @Router /manuals/{id} [get]
func (h *ManualHandler) Get(c *gin.Context) {
	manual, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, manual, nil)
}

// Create godoc
// @Summary Create manual
// @Tags Manuals
// @Accept json
// @Produce json
// @Param payload body dto.CreateManualRequest true "Manual payload"
// @Success 201 {object} response.Envelope
// @Router /manuals [post]
func (h *ManualHandler) Create(c *gin.Context) {
	var req dto.CreateManualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	manual, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, manual)
}

// Update godoc
// @Summary Update manual metadata
// @Tags Manuals
// @Accept json
// @Produce json
// @Param id path string true "Manual ID"
// @Param payload body dto.UpdateManualRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Router /manuals/{id} [put]
func (h *ManualHandler) Update(c *gin.Context) {
	var req dto.UpdateManualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	manual, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, manual, nil)
}

// ReplaceSections godoc
// @Summary Replace manual sections
// @Tags Manuals
// @Accept json
// @Produce json
// @Param id path string true "Manual ID"
// @Param payload body dto.ReplaceSectionsRequest true "Sections"
// @Success 204 {object} nil
// @Router /manuals/{id}/sections [put]
func (h *ManualHandler) ReplaceSections(c *gin.Context) {
	var req dto.ReplaceSectionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	if err := h.service.ReplaceSections(c.Request.Context(), c.Param("id"), req, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Archive godoc
// @Summary Archive manual
// @Tags Manuals
// @Produce json
// @Param id path string true "Manual ID"
// @Success 204 {object} nil
// @Router /manuals/{id} [delete]
func (h *ManualHandler) Archive(c *gin.Context) {
	if err := h.service.Archive(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
