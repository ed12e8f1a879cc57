package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/noah-isme/qms-manual-api/internal/models"
	"github.com/noah-isme/qms-manual-api/pkg/export"
	appErrors "github.com/noah-isme/qms-manual-api/pkg/errors"
)

type snapshotSource interface {
	GetByID(ctx context.Context, id string) (*models.Manual, error)
	GetSections(ctx context.Context, manualID string) ([]models.Section, error)
}

type revisionHistorySource interface {
	ListByManual(ctx context.Context, manualID string) ([]models.Revision, error)
}

// ExportRenderService resolves an export variant into concrete snapshot
// content and produces the rendered artifact bytes. It performs no job
// bookkeeping; the orchestrator owns that.
type ExportRenderService struct {
	manuals   snapshotSource
	revisions revisionHistorySource
	pdf       *export.PDFRenderer
	csv       *export.CSVExporter
}

// NewExportRenderService constructs the renderer.
func NewExportRenderService(manuals snapshotSource, revisions revisionHistorySource) *ExportRenderService {
	return &ExportRenderService{
		manuals:   manuals,
		revisions: revisions,
		pdf:       export.NewPDFRenderer(),
		csv:       export.NewCSVExporter(),
	}
}

// ResolveVariant maps a requested variant onto the one that matches the
// manual's state. A clean request against an approved manual serves the
// approved snapshot; draft variants require a manual that actually carries
// draft content.
func ResolveVariant(requested models.ExportVariant, manual *models.Manual) (models.ExportVariant, error) {
	switch requested {
	case models.ExportVariantClean:
		if manual.Status == models.ManualStatusApproved {
			return models.ExportVariantCleanApproved, nil
		}
		return models.ExportVariantClean, nil
	case models.ExportVariantCleanApproved:
		return models.ExportVariantCleanApproved, nil
	case models.ExportVariantDraftWatermarked, models.ExportVariantDraftDiff:
		if manual.Status == models.ManualStatusApproved {
			return "", appErrors.Clone(appErrors.ErrValidation, "draft variants require a manual with draft content")
		}
		return requested, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown export variant %q", requested))
	}
}

// RenderPDF produces the PDF bytes for the given variant.
func (s *ExportRenderService) RenderPDF(ctx context.Context, manualID string, variant models.ExportVariant) ([]byte, error) {
	switch variant {
	case models.ExportVariantClean:
		snapshot, err := s.liveSnapshot(ctx, manualID)
		if err != nil {
			return nil, err
		}
		return s.pdf.Render(snapshot, export.RenderOptions{})

	case models.ExportVariantCleanApproved:
		approved, err := s.lastApprovedRevision(ctx, manualID)
		if err != nil {
			return nil, err
		}
		return s.pdf.Render(approved.Snapshot, export.RenderOptions{})

	case models.ExportVariantDraftWatermarked:
		snapshot, err := s.liveSnapshot(ctx, manualID)
		if err != nil {
			return nil, err
		}
		return s.pdf.Render(snapshot, export.RenderOptions{Watermark: "DRAFT"})

	case models.ExportVariantDraftDiff:
		snapshot, err := s.liveSnapshot(ctx, manualID)
		if err != nil {
			return nil, err
		}
		opts := export.RenderOptions{Watermark: "DRAFT"}
		if approved, err := s.lastApprovedRevision(ctx, manualID); err == nil {
			diff := CompareSnapshots(approved.Snapshot, snapshot)
			keys := diff.ChangedChapterKeys()
			opts.HighlightKeys = make(map[string]struct{}, len(keys))
			for _, key := range keys {
				opts.HighlightKeys[key] = struct{}{}
			}
		}
		return s.pdf.Render(snapshot, opts)

	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown export variant %q", variant))
	}
}

// RenderHistoryCSV produces a CSV of the manual's revision history.
func (s *ExportRenderService) RenderHistoryCSV(ctx context.Context, manualID string) ([]byte, error) {
	revisions, err := s.revisions.ListByManual(ctx, manualID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list revisions")
	}

	dataset := export.Dataset{
		Headers: []string{"revision_number", "status", "changes_summary", "created_by", "created_at", "approved_at", "rejected_at", "chapters_affected"},
	}
	for _, rev := range revisions {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"revision_number":   rev.RevisionNumber,
			"status":            string(rev.Status),
			"changes_summary":   rev.ChangesSummary,
			"created_by":        rev.CreatedBy,
			"created_at":        rev.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			"approved_at":       formatInstant(rev.ApprovedAt),
			"rejected_at":       formatInstant(rev.RejectedAt),
			"chapters_affected": strconv.Itoa(len(rev.ChaptersAffected)),
		})
	}
	return s.csv.Render(dataset)
}

func (s *ExportRenderService) liveSnapshot(ctx context.Context, manualID string) (models.ManualSnapshot, error) {
	manual, err := s.manuals.GetByID(ctx, manualID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ManualSnapshot{}, appErrors.Clone(appErrors.ErrNotFound, "manual not found")
		}
		return models.ManualSnapshot{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load manual")
	}
	sections, err := s.manuals.GetSections(ctx, manualID)
	if err != nil {
		return models.ManualSnapshot{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load manual sections")
	}
	return models.SnapshotOf(manual, sections), nil
}

func (s *ExportRenderService) lastApprovedRevision(ctx context.Context, manualID string) (*models.Revision, error) {
	revisions, err := s.revisions.ListByManual(ctx, manualID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list revisions")
	}
	for i := range revisions {
		if revisions[i].Status == models.RevisionStatusApproved {
			return &revisions[i], nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, "manual has no approved revision")
}
