package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/qms-manual-api/internal/dto"
	"github.com/noah-isme/qms-manual-api/internal/models"
	"github.com/noah-isme/qms-manual-api/internal/repository"
	appErrors "github.com/noah-isme/qms-manual-api/pkg/errors"
)

type manualStore interface {
	Create(ctx context.Context, manual *models.Manual) error
	GetByID(ctx context.Context, id string) (*models.Manual, error)
	List(ctx context.Context, filter models.ManualFilter) ([]models.Manual, int, error)
	Update(ctx context.Context, id string, params repository.UpdateManualParams) error
	GetSections(ctx context.Context, manualID string) ([]models.Section, error)
	ReplaceSections(ctx context.Context, manualID string, sections []models.Section) error
}

// ManualService manages manual records and their structural children.
// Lifecycle transitions live in RevisionService; this service only covers
// creation, metadata edits while editable, section replacement, and
// archival.
type ManualService struct {
	repo     manualStore
	validate *validator.Validate
	logger   *zap.Logger
}

// NewManualService constructs the service.
func NewManualService(repo manualStore, validate *validator.Validate, logger *zap.Logger) *ManualService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManualService{repo: repo, validate: validate, logger: logger}
}

// Create registers a new manual in draft status owned by the actor.
func (s *ManualService) Create(ctx context.Context, req dto.CreateManualRequest, actor *models.JWTClaims) (*models.Manual, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid manual payload")
	}
	manual := &models.Manual{
		Title:           req.Title,
		Description:     req.Description,
		Organization:    req.Organization,
		DocumentCode:    req.DocumentCode,
		Status:          models.ManualStatusDraft,
		CurrentRevision: "0",
		OwnerID:         actor.UserID,
	}
	if err := s.repo.Create(ctx, manual); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create manual")
	}
	return manual, nil
}

// Get returns a manual with its structural children.
func (s *ManualService) Get(ctx context.Context, id string) (*models.Manual, error) {
	manual, err := s.loadManual(ctx, id)
	if err != nil {
		return nil, err
	}
	sections, err := s.repo.GetSections(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load manual sections")
	}
	manual.Sections = sections
	return manual, nil
}

// List returns manuals matching the query.
func (s *ManualService) List(ctx context.Context, query dto.ManualQuery) ([]models.Manual, *models.Pagination, error) {
	filter := models.ManualFilter{
		Status:          query.Status,
		Search:          query.Search,
		IncludeArchived: query.IncludeArchived,
		Page:            query.Page,
		PageSize:        query.PageSize,
	}
	manuals, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list manuals")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return manuals, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Update edits manual metadata. Only editable manuals (draft or rejected)
// accept edits, and only by the owner or an administrator.
func (s *ManualService) Update(ctx context.Context, id string, req dto.UpdateManualRequest, actor *models.JWTClaims) (*models.Manual, error) {
	manual, err := s.requireEditable(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid manual payload")
	}
	params := repository.UpdateManualParams{
		Title:         req.Title,
		Description:   req.Description,
		Organization:  req.Organization,
		DocumentCode:  req.DocumentCode,
		ReviewDueDate: req.ReviewDueDate,
	}
	if err := s.repo.Update(ctx, manual.ID, params); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update manual")
	}
	return s.Get(ctx, id)
}

// ReplaceSections swaps the manual's structural children wholesale.
func (s *ManualService) ReplaceSections(ctx context.Context, id string, req dto.ReplaceSectionsRequest, actor *models.JWTClaims) error {
	manual, err := s.requireEditable(ctx, id, actor)
	if err != nil {
		return err
	}
	if err := s.validate.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid sections payload")
	}
	if err := validateLocators(req.Sections); err != nil {
		return err
	}
	sections := make([]models.Section, 0, len(req.Sections))
	for i, input := range req.Sections {
		sections = append(sections, models.Section{
			ManualID:         manual.ID,
			ChapterNumber:    input.ChapterNumber,
			SectionNumber:    input.SectionNumber,
			SubsectionNumber: input.SubsectionNumber,
			ClauseNumber:     input.ClauseNumber,
			Heading:          input.Heading,
			PageBreak:        input.PageBreak,
			Position:         i + 1,
			Blocks:           input.Blocks,
			Remarks:          input.Remarks,
		})
	}
	if err := s.repo.ReplaceSections(ctx, manual.ID, sections); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace sections")
	}
	return nil
}

// Archive soft-deletes a manual. Archived manuals stay queryable; manuals
// are never hard-deleted.
func (s *ManualService) Archive(ctx context.Context, id string, actor *models.JWTClaims) error {
	manual, err := s.loadManual(ctx, id)
	if err != nil {
		return err
	}
	if err := requireOwnerOrAdmin(manual, actor); err != nil {
		return err
	}
	archived := true
	if err := s.repo.Update(ctx, manual.ID, repository.UpdateManualParams{Archived: &archived}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive manual")
	}
	return nil
}

func (s *ManualService) loadManual(ctx context.Context, id string) (*models.Manual, error) {
	manual, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "manual not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load manual")
	}
	return manual, nil
}

func (s *ManualService) requireEditable(ctx context.Context, id string, actor *models.JWTClaims) (*models.Manual, error) {
	manual, err := s.loadManual(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireOwnerOrAdmin(manual, actor); err != nil {
		return nil, err
	}
	if !manual.Status.Editable() {
		return nil, appErrors.ErrNotEditable
	}
	return manual, nil
}

func requireOwnerOrAdmin(manual *models.Manual, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role.AdminCapability() || manual.OwnerID == actor.UserID {
		return nil
	}
	return appErrors.ErrForbidden
}

func requireAdmin(actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !actor.Role.AdminCapability() {
		return appErrors.ErrForbidden
	}
	return nil
}

func validateLocators(sections []dto.SectionInput) error {
	seen := make(map[string]struct{}, len(sections))
	for _, input := range sections {
		section := models.Section{
			ChapterNumber:    input.ChapterNumber,
			SectionNumber:    input.SectionNumber,
			SubsectionNumber: input.SubsectionNumber,
			ClauseNumber:     input.ClauseNumber,
		}
		key := section.LocatorKey()
		if _, dup := seen[key]; dup {
			return appErrors.Clone(appErrors.ErrValidation, "duplicate section locator "+key)
		}
		seen[key] = struct{}{}
	}
	return nil
}
