package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/qms-manual-api/internal/dto"
	"github.com/noah-isme/qms-manual-api/internal/models"
	"github.com/noah-isme/qms-manual-api/internal/repository"
	appErrors "github.com/noah-isme/qms-manual-api/pkg/errors"
)

type revisionStore interface {
	Create(ctx context.Context, revision *models.Revision) error
	GetByID(ctx context.Context, id string) (*models.Revision, error)
	GetActive(ctx context.Context, manualID string) (*models.Revision, error)
	ListByManual(ctx context.Context, manualID string) ([]models.Revision, error)
	MarkSubmitted(ctx context.Context, id string, params repository.SubmitRevisionParams) error
	MarkApproved(ctx context.Context, id, approvedBy, revisionNumber string, at time.Time) error
	MarkRejected(ctx context.Context, id, rejectedBy, reason string, at time.Time) error
	LastApprovedNumber(ctx context.Context, manualID string) (int, error)
}

type manualLifecycleStore interface {
	GetByID(ctx context.Context, id string) (*models.Manual, error)
	Update(ctx context.Context, id string, params repository.UpdateManualParams) error
	GetSections(ctx context.Context, manualID string) ([]models.Section, error)
	RestoreFromSnapshot(ctx context.Context, manualID string, snapshot models.ManualSnapshot, restoreRevision *models.Revision) error
}

type auditSink interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// RevisionService owns the manual lifecycle state machine. Every transition
// captures an immutable snapshot; the store's partial unique index arbitrates
// the single-working-copy invariant.
type RevisionService struct {
	manuals   manualLifecycleStore
	revisions revisionStore
	audit     auditSink
	logger    *zap.Logger
}

// NewRevisionService constructs the service.
func NewRevisionService(manuals manualLifecycleStore, revisions revisionStore, audit auditSink, logger *zap.Logger) *RevisionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RevisionService{
		manuals:   manuals,
		revisions: revisions,
		audit:     audit,
		logger:    logger,
	}
}

// SubmitForReview captures the manual's current state into an in_review
// revision and moves the manual to in_review. Allowed from draft or
// rejected, by the owner or an administrator. A draft working copy opened
// by CreateDraftFromApproved is promoted in place; a fresh revision row is
// only created when no working copy exists.
func (s *RevisionService) SubmitForReview(ctx context.Context, manualID string, req dto.SubmitForReviewRequest, actor *models.JWTClaims) (*models.Revision, error) {
	manual, err := s.loadManual(ctx, manualID)
	if err != nil {
		return nil, err
	}
	if err := requireOwnerOrAdmin(manual, actor); err != nil {
		return nil, err
	}
	if !manual.Status.Editable() {
		return nil, appErrors.ErrNotEditable
	}

	sections, err := s.manuals.GetSections(ctx, manualID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load manual sections")
	}

	now := time.Now().UTC()
	snapshot := models.SnapshotOf(manual, sections)
	chapters := affectedChapters(sections)

	active, err := s.revisions.GetActive(ctx, manualID)
	switch {
	case err == nil:
		if active.Status != models.RevisionStatusDraft {
			return nil, appErrors.Clone(appErrors.ErrConflict, "manual already has a revision in review")
		}
		summary := req.ChangesSummary
		if strings.TrimSpace(summary) == "" {
			summary = active.ChangesSummary
		}
		if err := s.revisions.MarkSubmitted(ctx, active.ID, repository.SubmitRevisionParams{
			SubmittedBy:      actor.UserID,
			SubmittedAt:      now,
			Snapshot:         snapshot,
			ChangesSummary:   summary,
			ChaptersAffected: chapters,
		}); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrConflict, "manual already has a revision in progress")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit revision")
		}
		active.Status = models.RevisionStatusInReview
		active.Snapshot = snapshot
		active.ChangesSummary = summary
		active.ChaptersAffected = chapters
		active.SubmittedBy = &actor.UserID
		active.SubmittedAt = &now

		status := models.ManualStatusInReview
		if err := s.manuals.Update(ctx, manualID, repository.UpdateManualParams{Status: &status}); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update manual status")
		}
		s.emitAudit(ctx, actor, models.AuditActionRevisionSubmit, manualID, active)
		return active, nil
	case errors.Is(err, sql.ErrNoRows):
		// No working copy: first submission, or re-submission after a
		// rejection (the rejected revision has left active status).
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load working copy")
	}

	revision := &models.Revision{
		ManualID:         manualID,
		RevisionNumber:   s.nextDraftNumber(ctx, manual),
		Status:           models.RevisionStatusInReview,
		Snapshot:         snapshot,
		ChangesSummary:   req.ChangesSummary,
		ChaptersAffected: chapters,
		CreatedBy:        actor.UserID,
		SubmittedBy:      &actor.UserID,
		SubmittedAt:      &now,
	}
	if err := s.revisions.Create(ctx, revision); err != nil {
		if errors.Is(err, repository.ErrActiveRevisionExists) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "manual already has a revision in progress")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create revision")
	}

	status := models.ManualStatusInReview
	if err := s.manuals.Update(ctx, manualID, repository.UpdateManualParams{Status: &status}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update manual status")
	}

	s.emitAudit(ctx, actor, models.AuditActionRevisionSubmit, manualID, revision)
	return revision, nil
}

// Approve finalizes the single in_review revision: the revision number is
// normalized into the approved integer sequence, the revision is stamped,
// and the manual becomes approved with the supplied effective date.
func (s *RevisionService) Approve(ctx context.Context, manualID string, req dto.ApproveRevisionRequest, actor *models.JWTClaims) (*models.Revision, error) {
	if _, err := s.loadManual(ctx, manualID); err != nil {
		return nil, err
	}
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if req.EffectiveDate.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "effectiveDate is required")
	}

	pending, err := s.requirePending(ctx, manualID, req.RevisionID)
	if err != nil {
		return nil, err
	}

	lastApproved, err := s.revisions.LastApprovedNumber(ctx, manualID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve revision number")
	}
	normalized := NormalizeRevisionNumber(pending.RevisionNumber, lastApproved)

	now := time.Now().UTC()
	if err := s.revisions.MarkApproved(ctx, pending.ID, actor.UserID, normalized, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNoPendingRevision
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve revision")
	}

	status := models.ManualStatusApproved
	effective := req.EffectiveDate
	if err := s.manuals.Update(ctx, manualID, repository.UpdateManualParams{
		Status:          &status,
		CurrentRevision: &normalized,
		EffectiveDate:   &effective,
	}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update manual status")
	}

	s.emitAudit(ctx, actor, models.AuditActionRevisionApprove, manualID, pending)
	return s.revisions.GetByID(ctx, pending.ID)
}

// Reject stamps the in_review revision rejected and falls the manual's
// current revision back to the last approved number when one exists.
func (s *RevisionService) Reject(ctx context.Context, manualID string, req dto.RejectRevisionRequest, actor *models.JWTClaims) (*models.Revision, error) {
	if _, err := s.loadManual(ctx, manualID); err != nil {
		return nil, err
	}
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rejection reason is required")
	}

	pending, err := s.requirePending(ctx, manualID, req.RevisionID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.revisions.MarkRejected(ctx, pending.ID, actor.UserID, req.Reason, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNoPendingRevision
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject revision")
	}

	status := models.ManualStatusRejected
	params := repository.UpdateManualParams{Status: &status}
	lastApproved, err := s.revisions.LastApprovedNumber(ctx, manualID)
	if err == nil && lastApproved > 0 {
		fallback := strconv.Itoa(lastApproved)
		params.CurrentRevision = &fallback
	}
	if err := s.manuals.Update(ctx, manualID, params); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update manual status")
	}

	s.emitAudit(ctx, actor, models.AuditActionRevisionReject, manualID, pending)
	return s.revisions.GetByID(ctx, pending.ID)
}

// CreateDraftFromApproved opens a new draft revision on an approved manual.
// The working-copy invariant is enforced by the store: a concurrent draft
// insert loses with a conflict, never a double-create.
func (s *RevisionService) CreateDraftFromApproved(ctx context.Context, manualID string, actor *models.JWTClaims) (*models.Revision, error) {
	manual, err := s.loadManual(ctx, manualID)
	if err != nil {
		return nil, err
	}
	if err := requireOwnerOrAdmin(manual, actor); err != nil {
		return nil, err
	}
	if manual.Status != models.ManualStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrNotEditable, "only approved manuals can start a new draft")
	}

	sections, err := s.manuals.GetSections(ctx, manualID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load manual sections")
	}

	lastApproved, err := s.revisions.LastApprovedNumber(ctx, manualID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve revision number")
	}

	revision := &models.Revision{
		ManualID:       manualID,
		RevisionNumber: strconv.Itoa(lastApproved + 1),
		Status:         models.RevisionStatusDraft,
		Snapshot:       models.SnapshotOf(manual, sections),
		ChangesSummary: fmt.Sprintf("Draft started from approved revision %s", manual.CurrentRevision),
		CreatedBy:      actor.UserID,
	}
	if err := s.revisions.Create(ctx, revision); err != nil {
		if errors.Is(err, repository.ErrActiveRevisionExists) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "manual already has a draft revision")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create draft revision")
	}

	status := models.ManualStatusDraft
	if err := s.manuals.Update(ctx, manualID, repository.UpdateManualParams{Status: &status}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update manual status")
	}

	s.emitAudit(ctx, actor, models.AuditActionRevisionDraft, manualID, revision)
	return revision, nil
}

// RestoreFromRevision replaces the manual's structural children with those
// in the target revision's snapshot. The delete/reinsert/update/insert
// sequence runs as one transaction in the store; no partial state is ever
// visible.
func (s *RevisionService) RestoreFromRevision(ctx context.Context, manualID string, req dto.RestoreRevisionRequest, actor *models.JWTClaims) (*models.Revision, error) {
	manual, err := s.loadManual(ctx, manualID)
	if err != nil {
		return nil, err
	}
	if err := requireOwnerOrAdmin(manual, actor); err != nil {
		return nil, err
	}
	if !manual.Status.Editable() {
		return nil, appErrors.ErrNotEditable
	}

	target, err := s.revisions.GetByID(ctx, req.RevisionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "revision not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load revision")
	}
	if target.ManualID != manualID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "revision does not belong to this manual")
	}

	now := time.Now().UTC()
	restored := target.Snapshot
	restored.Manual.Status = models.ManualStatusDraft

	restoreRevision := &models.Revision{
		ManualID:       manualID,
		RevisionNumber: manual.CurrentRevision,
		Status:         models.RevisionStatusDraft,
		Snapshot:       restored,
		ChangesSummary: fmt.Sprintf("Restored from revision %s", target.RevisionNumber),
		RestoredFrom:   &target.RevisionNumber,
		CreatedBy:      actor.UserID,
		CreatedAt:      now,
	}

	// A draft working copy is superseded inside the restore transaction; an
	// in_review revision (raced in concurrently) still rolls back the whole
	// restore with a conflict.
	if err := s.manuals.RestoreFromSnapshot(ctx, manualID, restored, restoreRevision); err != nil {
		if errors.Is(err, repository.ErrActiveRevisionExists) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "manual already has a revision in review")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to restore revision")
	}

	s.emitAudit(ctx, actor, models.AuditActionRevisionRestore, manualID, restoreRevision)
	return restoreRevision, nil
}

// List returns the manual's revisions newest first.
func (s *RevisionService) List(ctx context.Context, manualID string) ([]models.Revision, error) {
	if _, err := s.loadManual(ctx, manualID); err != nil {
		return nil, err
	}
	revisions, err := s.revisions.ListByManual(ctx, manualID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list revisions")
	}
	return revisions, nil
}

// Get returns a single revision including its snapshot.
func (s *RevisionService) Get(ctx context.Context, id string) (*models.Revision, error) {
	revision, err := s.revisions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "revision not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load revision")
	}
	return revision, nil
}

func (s *RevisionService) loadManual(ctx context.Context, id string) (*models.Manual, error) {
	manual, err := s.manuals.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "manual not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load manual")
	}
	return manual, nil
}

// requirePending resolves the single in_review revision for the manual.
// A caller-supplied revision id must match it exactly.
func (s *RevisionService) requirePending(ctx context.Context, manualID, revisionID string) (*models.Revision, error) {
	active, err := s.revisions.GetActive(ctx, manualID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNoPendingRevision
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pending revision")
	}
	if active.Status != models.RevisionStatusInReview {
		return nil, appErrors.ErrNoPendingRevision
	}
	if revisionID != "" && revisionID != active.ID {
		return nil, appErrors.ErrRevisionMismatch
	}
	return active, nil
}

// nextDraftNumber derives the working number for a fresh submission. Manuals
// with no approved lineage start at "1"; otherwise the active draft keeps
// its slot in the dotted scheme until approval normalizes it.
func (s *RevisionService) nextDraftNumber(ctx context.Context, manual *models.Manual) string {
	lastApproved, err := s.revisions.LastApprovedNumber(ctx, manual.ID)
	if err != nil {
		s.logger.Sugar().Warnw("failed to resolve approved lineage", "manual_id", manual.ID, "error", err)
		return manual.CurrentRevision
	}
	if lastApproved == 0 {
		return "1"
	}
	if manual.CurrentRevision != "" && strings.Contains(manual.CurrentRevision, ".") {
		return manual.CurrentRevision
	}
	return strconv.Itoa(lastApproved + 1)
}

// NormalizeRevisionNumber canonicalizes a draft number into the approved
// integer sequence. Dotted working numbers ("2.1") collapse to the next
// integer after the last approved one; plain integers are kept unless they
// collide with an already-approved number. The scheme is an explicit policy,
// not inferred from string shape alone.
func NormalizeRevisionNumber(draft string, lastApproved int) string {
	next := lastApproved + 1
	if strings.Contains(draft, ".") {
		return strconv.Itoa(next)
	}
	n, err := strconv.Atoi(draft)
	if err != nil || n <= lastApproved {
		return strconv.Itoa(next)
	}
	return draft
}

func affectedChapters(sections []models.Section) models.StringSet {
	keys := make(models.StringSet, 0, len(sections))
	seen := make(map[string]struct{}, len(sections))
	for _, section := range sections {
		key := section.LocatorKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

func (s *RevisionService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, manualID string, revision *models.Revision) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"revision_id":     revision.ID,
		"revision_number": revision.RevisionNumber,
		"status":          revision.Status,
	})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "manual",
		ResourceID: &manualID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Sugar().Warnw("failed to record audit log", "action", action, "manual_id", manualID, "error", err)
	}
}
