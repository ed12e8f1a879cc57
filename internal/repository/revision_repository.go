package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/qms-manual-api/internal/models"
)

// ErrActiveRevisionExists signals a violation of the working-copy invariant:
// the manual already has a revision in draft or in_review status. The
// database enforces this with a partial unique index
// (revisions(manual_id) WHERE status IN ('draft','in_review')), so the
// check-then-insert race between concurrent callers cannot double-create.
var ErrActiveRevisionExists = errors.New("manual already has an active revision")

const pqUniqueViolation = "23505"

const revisionColumns = `id, manual_id, revision_number, status, snapshot, changes_summary, chapters_affected, restored_from, created_by, submitted_by, submitted_at, approved_by, approved_at, rejected_by, rejected_at, rejection_reason, created_at`

const insertRevisionQuery = `INSERT INTO revisions (` + revisionColumns + `)
VALUES (:id, :manual_id, :revision_number, :status, :snapshot, :changes_summary, :chapters_affected, :restored_from, :created_by, :submitted_by, :submitted_at, :approved_by, :approved_at, :rejected_by, :rejected_at, :rejection_reason, :created_at)`

// RevisionRepository persists immutable revision snapshots.
type RevisionRepository struct {
	db *sqlx.DB
}

// NewRevisionRepository constructs the repository.
func NewRevisionRepository(db *sqlx.DB) *RevisionRepository {
	return &RevisionRepository{db: db}
}

// Create inserts a new revision row. A unique-violation on the active-status
// partial index is reported as ErrActiveRevisionExists.
func (r *RevisionRepository) Create(ctx context.Context, revision *models.Revision) error {
	prepareRevisionDefaults(revision)
	if _, err := r.db.NamedExecContext(ctx, insertRevisionQuery, revision); err != nil {
		return mapRevisionInsertError(err)
	}
	return nil
}

// GetByID returns a revision row by its identifier.
func (r *RevisionRepository) GetByID(ctx context.Context, id string) (*models.Revision, error) {
	const query = `SELECT ` + revisionColumns + ` FROM revisions WHERE id = $1`
	var revision models.Revision
	if err := r.db.GetContext(ctx, &revision, query, id); err != nil {
		return nil, fmt.Errorf("get revision: %w", err)
	}
	return &revision, nil
}

// GetActive returns the manual's working copy (draft or in_review), or
// sql.ErrNoRows when none exists.
func (r *RevisionRepository) GetActive(ctx context.Context, manualID string) (*models.Revision, error) {
	const query = `SELECT ` + revisionColumns + ` FROM revisions WHERE manual_id = $1 AND status IN ('draft', 'in_review') LIMIT 1`
	var revision models.Revision
	if err := r.db.GetContext(ctx, &revision, query, manualID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get active revision: %w", err)
	}
	return &revision, nil
}

// ListByManual returns revisions of a manual newest first.
func (r *RevisionRepository) ListByManual(ctx context.Context, manualID string) ([]models.Revision, error) {
	const query = `SELECT ` + revisionColumns + ` FROM revisions WHERE manual_id = $1 ORDER BY created_at DESC`
	var revisions []models.Revision
	if err := r.db.SelectContext(ctx, &revisions, query, manualID); err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	return revisions, nil
}

// SubmitRevisionParams carries the content recorded when a draft working
// copy is promoted to in_review: the snapshot is re-captured at submission
// time so the revision reflects what the reviewer will actually see.
type SubmitRevisionParams struct {
	SubmittedBy      string
	SubmittedAt      time.Time
	Snapshot         models.ManualSnapshot
	ChangesSummary   string
	ChaptersAffected models.StringSet
}

// MarkSubmitted promotes a draft revision to in_review, stamping the
// submitter and refreshing the snapshot. The status guard makes this a
// conditional write: a revision no longer in draft is left untouched and
// sql.ErrNoRows is returned.
func (r *RevisionRepository) MarkSubmitted(ctx context.Context, id string, params SubmitRevisionParams) error {
	const query = `UPDATE revisions SET status = $1, submitted_by = $2, submitted_at = $3, snapshot = $4, changes_summary = $5, chapters_affected = $6 WHERE id = $7 AND status = $8`
	res, err := r.db.ExecContext(ctx, query, models.RevisionStatusInReview, params.SubmittedBy, params.SubmittedAt, params.Snapshot, params.ChangesSummary, params.ChaptersAffected, id, models.RevisionStatusDraft)
	if err != nil {
		return fmt.Errorf("mark revision submitted: %w", err)
	}
	return requireRowAffected(res, "mark revision submitted")
}

// MarkApproved finalizes an in_review revision with the approval stamp and
// the normalized revision number. The status guard makes the update a
// conditional write: a revision not in review is left untouched.
func (r *RevisionRepository) MarkApproved(ctx context.Context, id, approvedBy, revisionNumber string, at time.Time) error {
	const query = `UPDATE revisions SET status = $1, approved_by = $2, approved_at = $3, revision_number = $4 WHERE id = $5 AND status = $6`
	res, err := r.db.ExecContext(ctx, query, models.RevisionStatusApproved, approvedBy, at, revisionNumber, id, models.RevisionStatusInReview)
	if err != nil {
		return fmt.Errorf("mark revision approved: %w", err)
	}
	return requireRowAffected(res, "mark revision approved")
}

// MarkRejected finalizes an in_review revision with the rejection stamp.
func (r *RevisionRepository) MarkRejected(ctx context.Context, id, rejectedBy, reason string, at time.Time) error {
	const query = `UPDATE revisions SET status = $1, rejected_by = $2, rejected_at = $3, rejection_reason = $4 WHERE id = $5 AND status = $6`
	res, err := r.db.ExecContext(ctx, query, models.RevisionStatusRejected, rejectedBy, at, reason, id, models.RevisionStatusInReview)
	if err != nil {
		return fmt.Errorf("mark revision rejected: %w", err)
	}
	return requireRowAffected(res, "mark revision rejected")
}

// LastApprovedNumber returns the highest integer revision number in the
// manual's approved lineage, or 0 when nothing has been approved yet.
func (r *RevisionRepository) LastApprovedNumber(ctx context.Context, manualID string) (int, error) {
	const query = `SELECT revision_number FROM revisions WHERE manual_id = $1 AND status = 'approved'`
	var numbers []string
	if err := r.db.SelectContext(ctx, &numbers, query, manualID); err != nil {
		return 0, fmt.Errorf("list approved revision numbers: %w", err)
	}
	highest := 0
	for _, raw := range numbers {
		n, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest, nil
}

func prepareRevisionDefaults(revision *models.Revision) {
	if revision.ID == "" {
		revision.ID = uuid.NewString()
	}
	if revision.CreatedAt.IsZero() {
		revision.CreatedAt = time.Now().UTC()
	}
	if revision.Snapshot.FormatVersion == 0 {
		revision.Snapshot.FormatVersion = models.SnapshotFormatVersion
	}
}

func mapRevisionInsertError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		return ErrActiveRevisionExists
	}
	return fmt.Errorf("create revision: %w", err)
}

func requireRowAffected(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
