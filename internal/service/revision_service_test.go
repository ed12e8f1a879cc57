package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/qms-manual-api/internal/dto"
	"github.com/noah-isme/qms-manual-api/internal/models"
	"github.com/noah-isme/qms-manual-api/internal/repository"
	appErrors "github.com/noah-isme/qms-manual-api/pkg/errors"
)

type stubManualStore struct {
	manual       *models.Manual
	manualErr    error
	sections     []models.Section
	sectionsErr  error
	updateParams *repository.UpdateManualParams
	updateErr    error

	restoredSnapshot *models.ManualSnapshot
	restoreRevision  *models.Revision
	restoreErr       error
}

func (s *stubManualStore) GetByID(ctx context.Context, id string) (*models.Manual, error) {
	if s.manualErr != nil {
		return nil, s.manualErr
	}
	return s.manual, nil
}

func (s *stubManualStore) Update(ctx context.Context, id string, params repository.UpdateManualParams) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updateParams = &params
	return nil
}

func (s *stubManualStore) GetSections(ctx context.Context, manualID string) ([]models.Section, error) {
	if s.sectionsErr != nil {
		return nil, s.sectionsErr
	}
	return s.sections, nil
}

func (s *stubManualStore) RestoreFromSnapshot(ctx context.Context, manualID string, snapshot models.ManualSnapshot, restoreRevision *models.Revision) error {
	if s.restoreErr != nil {
		return s.restoreErr
	}
	s.restoredSnapshot = &snapshot
	s.restoreRevision = restoreRevision
	return nil
}

type stubRevisionStore struct {
	created      *models.Revision
	createErr    error
	byID         map[string]*models.Revision
	active       *models.Revision
	activeErr    error
	list         []models.Revision
	listErr      error
	approvedWith string
	approveErr   error
	rejectedWith string
	rejectErr    error
	submittedID  string
	submitted    *repository.SubmitRevisionParams
	submitErr    error
	lastApproved int
	lastErr      error
}

func (s *stubRevisionStore) Create(ctx context.Context, revision *models.Revision) error {
	if s.createErr != nil {
		return s.createErr
	}
	if revision.ID == "" {
		revision.ID = "rev-new"
	}
	s.created = revision
	return nil
}

func (s *stubRevisionStore) GetByID(ctx context.Context, id string) (*models.Revision, error) {
	if rev, ok := s.byID[id]; ok {
		return rev, nil
	}
	if s.created != nil && s.created.ID == id {
		return s.created, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubRevisionStore) GetActive(ctx context.Context, manualID string) (*models.Revision, error) {
	if s.activeErr != nil {
		return nil, s.activeErr
	}
	if s.active == nil {
		return nil, sql.ErrNoRows
	}
	return s.active, nil
}

func (s *stubRevisionStore) ListByManual(ctx context.Context, manualID string) ([]models.Revision, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.list, nil
}

func (s *stubRevisionStore) MarkSubmitted(ctx context.Context, id string, params repository.SubmitRevisionParams) error {
	if s.submitErr != nil {
		return s.submitErr
	}
	s.submittedID = id
	s.submitted = &params
	return nil
}

func (s *stubRevisionStore) MarkApproved(ctx context.Context, id, approvedBy, revisionNumber string, at time.Time) error {
	if s.approveErr != nil {
		return s.approveErr
	}
	s.approvedWith = revisionNumber
	if s.active != nil && s.active.ID == id {
		s.active.Status = models.RevisionStatusApproved
		s.active.RevisionNumber = revisionNumber
	}
	return nil
}

func (s *stubRevisionStore) MarkRejected(ctx context.Context, id, rejectedBy, reason string, at time.Time) error {
	if s.rejectErr != nil {
		return s.rejectErr
	}
	s.rejectedWith = reason
	if s.active != nil && s.active.ID == id {
		s.active.Status = models.RevisionStatusRejected
	}
	return nil
}

func (s *stubRevisionStore) LastApprovedNumber(ctx context.Context, manualID string) (int, error) {
	if s.lastErr != nil {
		return 0, s.lastErr
	}
	return s.lastApproved, nil
}

type stubAuditSink struct {
	logs []*models.AuditLog
}

func (s *stubAuditSink) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func editorClaims(userID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: models.RoleEditor}
}

func adminClaims(userID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: models.RoleAdmin}
}

func draftManual(id, owner string) *models.Manual {
	return &models.Manual{
		ID:              id,
		Title:           "Quality Manual",
		Organization:    "Acme Maritime",
		DocumentCode:    "QM-001",
		Status:          models.ManualStatusDraft,
		CurrentRevision: "1.1",
		OwnerID:         owner,
	}
}

func sampleSections(manualID string) []models.Section {
	one := 1
	return []models.Section{
		{ID: "s1", ManualID: manualID, ChapterNumber: 1, Heading: "Scope", Position: 0},
		{ID: "s2", ManualID: manualID, ChapterNumber: 1, SectionNumber: &one, Heading: "Applicability", Position: 1},
		{ID: "s3", ManualID: manualID, ChapterNumber: 2, Heading: "Responsibilities", Position: 2},
	}
}

func TestSubmitForReviewCreatesSnapshotRevision(t *testing.T) {
	manuals := &stubManualStore{manual: draftManual("m1", "u1"), sections: sampleSections("m1")}
	revisions := &stubRevisionStore{lastApproved: 1}
	audit := &stubAuditSink{}
	svc := NewRevisionService(manuals, revisions, audit, nil)

	rev, err := svc.SubmitForReview(context.Background(), "m1", dto.SubmitForReviewRequest{ChangesSummary: "reworked chapter 2"}, editorClaims("u1"))
	require.NoError(t, err)
	require.NotNil(t, revisions.created)

	assert.Equal(t, models.RevisionStatusInReview, rev.Status)
	assert.Equal(t, "reworked chapter 2", rev.ChangesSummary)
	assert.Equal(t, models.SnapshotFormatVersion, rev.Snapshot.FormatVersion)
	assert.Len(t, rev.Snapshot.Sections, 3)
	assert.ElementsMatch(t, []string{"1", "1.1", "2"}, []string(rev.ChaptersAffected))
	require.NotNil(t, manuals.updateParams)
	assert.Equal(t, models.ManualStatusInReview, *manuals.updateParams.Status)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionRevisionSubmit, audit.logs[0].Action)
}

func TestSubmitForReviewPromotesDraftWorkingCopy(t *testing.T) {
	manual := draftManual("m1", "u1")
	manual.Status = models.ManualStatusApproved
	manual.CurrentRevision = "2"
	manuals := &stubManualStore{manual: manual, sections: sampleSections("m1")}
	revisions := &stubRevisionStore{lastApproved: 2}
	svc := NewRevisionService(manuals, revisions, nil, nil)

	draft, err := svc.CreateDraftFromApproved(context.Background(), "m1", editorClaims("u1"))
	require.NoError(t, err)
	manual.Status = models.ManualStatusDraft
	revisions.active = draft
	revisions.createErr = repository.ErrActiveRevisionExists

	rev, err := svc.SubmitForReview(context.Background(), "m1", dto.SubmitForReviewRequest{ChangesSummary: "tightened chapter 2"}, editorClaims("u1"))
	require.NoError(t, err)

	assert.Equal(t, draft.ID, revisions.submittedID)
	require.NotNil(t, revisions.submitted)
	assert.Equal(t, "u1", revisions.submitted.SubmittedBy)
	assert.Equal(t, "tightened chapter 2", revisions.submitted.ChangesSummary)
	assert.Equal(t, models.SnapshotFormatVersion, revisions.submitted.Snapshot.FormatVersion)
	assert.Equal(t, models.RevisionStatusInReview, rev.Status)
	assert.Equal(t, "3", rev.RevisionNumber)
	require.NotNil(t, manuals.updateParams)
	assert.Equal(t, models.ManualStatusInReview, *manuals.updateParams.Status)
}

func TestSubmitForReviewKeepsDraftSummaryWhenBlank(t *testing.T) {
	manuals := &stubManualStore{manual: draftManual("m1", "u1"), sections: sampleSections("m1")}
	draft := &models.Revision{ID: "rev-wc", ManualID: "m1", RevisionNumber: "2", Status: models.RevisionStatusDraft, ChangesSummary: "initial draft notes"}
	revisions := &stubRevisionStore{active: draft}
	svc := NewRevisionService(manuals, revisions, nil, nil)

	rev, err := svc.SubmitForReview(context.Background(), "m1", dto.SubmitForReviewRequest{}, editorClaims("u1"))
	require.NoError(t, err)
	assert.Equal(t, "initial draft notes", rev.ChangesSummary)
}

func TestSubmitForReviewWhileRevisionInReview(t *testing.T) {
	manuals := &stubManualStore{manual: draftManual("m1", "u1"), sections: sampleSections("m1")}
	pending := &models.Revision{ID: "rev-p", ManualID: "m1", Status: models.RevisionStatusInReview}
	revisions := &stubRevisionStore{active: pending}
	svc := NewRevisionService(manuals, revisions, nil, nil)

	_, err := svc.SubmitForReview(context.Background(), "m1", dto.SubmitForReviewRequest{}, editorClaims("u1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSubmitForReviewLosesPromotionRace(t *testing.T) {
	manuals := &stubManualStore{manual: draftManual("m1", "u1"), sections: sampleSections("m1")}
	draft := &models.Revision{ID: "rev-wc", ManualID: "m1", Status: models.RevisionStatusDraft}
	revisions := &stubRevisionStore{active: draft, submitErr: sql.ErrNoRows}
	svc := NewRevisionService(manuals, revisions, nil, nil)

	_, err := svc.SubmitForReview(context.Background(), "m1", dto.SubmitForReviewRequest{}, editorClaims("u1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSubmitForReviewRequiresEditableStatus(t *testing.T) {
	manual := draftManual("m1", "u1")
	manual.Status = models.ManualStatusInReview
	svc := NewRevisionService(&stubManualStore{manual: manual}, &stubRevisionStore{}, nil, nil)

	_, err := svc.SubmitForReview(context.Background(), "m1", dto.SubmitForReviewRequest{}, editorClaims("u1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotEditable.Code, appErrors.FromError(err).Code)
}

func TestSubmitForReviewForbidsNonOwner(t *testing.T) {
	svc := NewRevisionService(&stubManualStore{manual: draftManual("m1", "u1")}, &stubRevisionStore{}, nil, nil)

	_, err := svc.SubmitForReview(context.Background(), "m1", dto.SubmitForReviewRequest{}, editorClaims("intruder"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestApproveNormalizesDottedRevisionNumber(t *testing.T) {
	manual := draftManual("m1", "u1")
	manual.Status = models.ManualStatusInReview
	pending := &models.Revision{ID: "rev-1", ManualID: "m1", RevisionNumber: "2.1", Status: models.RevisionStatusInReview}
	manuals := &stubManualStore{manual: manual}
	revisions := &stubRevisionStore{active: pending, lastApproved: 2, byID: map[string]*models.Revision{"rev-1": pending}}
	svc := NewRevisionService(manuals, revisions, nil, nil)

	effective := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	rev, err := svc.Approve(context.Background(), "m1", dto.ApproveRevisionRequest{EffectiveDate: effective}, adminClaims("boss"))
	require.NoError(t, err)

	assert.Equal(t, "3", revisions.approvedWith)
	assert.Equal(t, models.RevisionStatusApproved, rev.Status)
	require.NotNil(t, manuals.updateParams)
	assert.Equal(t, models.ManualStatusApproved, *manuals.updateParams.Status)
	assert.Equal(t, "3", *manuals.updateParams.CurrentRevision)
	assert.Equal(t, effective, *manuals.updateParams.EffectiveDate)
}

func TestApproveWithoutPendingRevision(t *testing.T) {
	manual := draftManual("m1", "u1")
	svc := NewRevisionService(&stubManualStore{manual: manual}, &stubRevisionStore{}, nil, nil)

	_, err := svc.Approve(context.Background(), "m1", dto.ApproveRevisionRequest{EffectiveDate: time.Now()}, adminClaims("boss"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoPendingRevision.Code, appErrors.FromError(err).Code)
}

func TestApproveRevisionMismatch(t *testing.T) {
	manual := draftManual("m1", "u1")
	pending := &models.Revision{ID: "rev-1", ManualID: "m1", Status: models.RevisionStatusInReview}
	svc := NewRevisionService(&stubManualStore{manual: manual}, &stubRevisionStore{active: pending}, nil, nil)

	_, err := svc.Approve(context.Background(), "m1", dto.ApproveRevisionRequest{RevisionID: "rev-other", EffectiveDate: time.Now()}, adminClaims("boss"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrRevisionMismatch.Code, appErrors.FromError(err).Code)
}

func TestApproveRequiresAdminCapability(t *testing.T) {
	manual := draftManual("m1", "u1")
	svc := NewRevisionService(&stubManualStore{manual: manual}, &stubRevisionStore{}, nil, nil)

	_, err := svc.Approve(context.Background(), "m1", dto.ApproveRevisionRequest{EffectiveDate: time.Now()}, editorClaims("u1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestRejectFallsBackToLastApprovedNumber(t *testing.T) {
	manual := draftManual("m1", "u1")
	manual.Status = models.ManualStatusInReview
	pending := &models.Revision{ID: "rev-1", ManualID: "m1", RevisionNumber: "2.1", Status: models.RevisionStatusInReview}
	manuals := &stubManualStore{manual: manual}
	revisions := &stubRevisionStore{active: pending, lastApproved: 2, byID: map[string]*models.Revision{"rev-1": pending}}
	svc := NewRevisionService(manuals, revisions, nil, nil)

	rev, err := svc.Reject(context.Background(), "m1", dto.RejectRevisionRequest{Reason: "incomplete"}, adminClaims("boss"))
	require.NoError(t, err)

	assert.Equal(t, "incomplete", revisions.rejectedWith)
	assert.Equal(t, models.RevisionStatusRejected, rev.Status)
	require.NotNil(t, manuals.updateParams)
	assert.Equal(t, models.ManualStatusRejected, *manuals.updateParams.Status)
	require.NotNil(t, manuals.updateParams.CurrentRevision)
	assert.Equal(t, "2", *manuals.updateParams.CurrentRevision)
}

func TestRejectRequiresReason(t *testing.T) {
	manual := draftManual("m1", "u1")
	svc := NewRevisionService(&stubManualStore{manual: manual}, &stubRevisionStore{}, nil, nil)

	_, err := svc.Reject(context.Background(), "m1", dto.RejectRevisionRequest{Reason: "  "}, adminClaims("boss"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateDraftFromApproved(t *testing.T) {
	manual := draftManual("m1", "u1")
	manual.Status = models.ManualStatusApproved
	manual.CurrentRevision = "2"
	manuals := &stubManualStore{manual: manual, sections: sampleSections("m1")}
	revisions := &stubRevisionStore{lastApproved: 2}
	svc := NewRevisionService(manuals, revisions, nil, nil)

	rev, err := svc.CreateDraftFromApproved(context.Background(), "m1", editorClaims("u1"))
	require.NoError(t, err)

	assert.Equal(t, models.RevisionStatusDraft, rev.Status)
	assert.Equal(t, "3", rev.RevisionNumber)
	require.NotNil(t, manuals.updateParams)
	assert.Equal(t, models.ManualStatusDraft, *manuals.updateParams.Status)
}

func TestCreateDraftRequiresApprovedManual(t *testing.T) {
	svc := NewRevisionService(&stubManualStore{manual: draftManual("m1", "u1")}, &stubRevisionStore{}, nil, nil)

	_, err := svc.CreateDraftFromApproved(context.Background(), "m1", editorClaims("u1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotEditable.Code, appErrors.FromError(err).Code)
}

func TestRestoreFromRevisionRunsThroughStore(t *testing.T) {
	manual := draftManual("m1", "u1")
	target := &models.Revision{
		ID:             "rev-old",
		ManualID:       "m1",
		RevisionNumber: "1",
		Status:         models.RevisionStatusApproved,
		Snapshot: models.ManualSnapshot{
			FormatVersion: models.SnapshotFormatVersion,
			Manual:        models.ManualCore{Title: "Quality Manual", Status: models.ManualStatusApproved},
			Sections:      []models.SectionSnapshot{{ChapterNumber: 1, Heading: "Scope"}},
		},
	}
	manuals := &stubManualStore{manual: manual}
	revisions := &stubRevisionStore{byID: map[string]*models.Revision{"rev-old": target}}
	svc := NewRevisionService(manuals, revisions, nil, nil)

	rev, err := svc.RestoreFromRevision(context.Background(), "m1", dto.RestoreRevisionRequest{RevisionID: "rev-old"}, editorClaims("u1"))
	require.NoError(t, err)

	require.NotNil(t, manuals.restoredSnapshot)
	assert.Equal(t, models.ManualStatusDraft, manuals.restoredSnapshot.Manual.Status)
	require.NotNil(t, rev.RestoredFrom)
	assert.Equal(t, "1", *rev.RestoredFrom)
	assert.Equal(t, models.RevisionStatusDraft, rev.Status)
}

func TestRestoreRejectsForeignRevision(t *testing.T) {
	manual := draftManual("m1", "u1")
	target := &models.Revision{ID: "rev-x", ManualID: "other", Snapshot: models.ManualSnapshot{FormatVersion: 1}}
	svc := NewRevisionService(&stubManualStore{manual: manual}, &stubRevisionStore{byID: map[string]*models.Revision{"rev-x": target}}, nil, nil)

	_, err := svc.RestoreFromRevision(context.Background(), "m1", dto.RestoreRevisionRequest{RevisionID: "rev-x"}, editorClaims("u1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRestoreSupersedesDraftWorkingCopy(t *testing.T) {
	manual := draftManual("m1", "u1")
	target := &models.Revision{ID: "rev-old", ManualID: "m1", RevisionNumber: "1", Snapshot: models.ManualSnapshot{FormatVersion: models.SnapshotFormatVersion}}
	draft := &models.Revision{ID: "rev-wc", ManualID: "m1", Status: models.RevisionStatusDraft}
	manuals := &stubManualStore{manual: manual}
	revisions := &stubRevisionStore{byID: map[string]*models.Revision{"rev-old": target}, active: draft}
	svc := NewRevisionService(manuals, revisions, nil, nil)

	rev, err := svc.RestoreFromRevision(context.Background(), "m1", dto.RestoreRevisionRequest{RevisionID: "rev-old"}, editorClaims("u1"))
	require.NoError(t, err)
	require.NotNil(t, manuals.restoreRevision)
	assert.Equal(t, models.RevisionStatusDraft, rev.Status)
}

func TestRestoreBlockedByInReviewRevision(t *testing.T) {
	manual := draftManual("m1", "u1")
	target := &models.Revision{ID: "rev-old", ManualID: "m1", RevisionNumber: "1", Snapshot: models.ManualSnapshot{FormatVersion: 1}}
	manuals := &stubManualStore{manual: manual, restoreErr: repository.ErrActiveRevisionExists}
	svc := NewRevisionService(manuals, &stubRevisionStore{byID: map[string]*models.Revision{"rev-old": target}}, nil, nil)

	_, err := svc.RestoreFromRevision(context.Background(), "m1", dto.RestoreRevisionRequest{RevisionID: "rev-old"}, editorClaims("u1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestNormalizeRevisionNumber(t *testing.T) {
	cases := []struct {
		name         string
		draft        string
		lastApproved int
		want         string
	}{
		{"dotted collapses to next integer", "2.1", 2, "3"},
		{"dotted with deep lineage", "4.3", 4, "5"},
		{"plain integer above lineage kept", "5", 4, "5"},
		{"plain integer colliding bumps", "2", 2, "3"},
		{"garbage falls back to next", "abc", 1, "2"},
		{"first approval", "1", 0, "1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeRevisionNumber(tc.draft, tc.lastApproved))
		})
	}
}
