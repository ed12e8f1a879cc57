package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/qms-manual-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestCreateRevision(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRevisionRepository(db)

	mock.ExpectExec("INSERT INTO revisions").WillReturnResult(sqlmock.NewResult(1, 1))

	revision := &models.Revision{
		ManualID:       "m1",
		RevisionNumber: "1",
		Status:         models.RevisionStatusInReview,
		CreatedBy:      "u1",
	}
	err := repo.Create(context.Background(), revision)
	require.NoError(t, err)
	assert.NotEmpty(t, revision.ID)
	assert.Equal(t, models.SnapshotFormatVersion, revision.Snapshot.FormatVersion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRevisionMapsUniqueViolation(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRevisionRepository(db)

	mock.ExpectExec("INSERT INTO revisions").WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_revisions_active"})

	err := repo.Create(context.Background(), &models.Revision{ManualID: "m1", RevisionNumber: "1", Status: models.RevisionStatusDraft, CreatedBy: "u1"})
	assert.ErrorIs(t, err, ErrActiveRevisionExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActiveRevisionNoRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRevisionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM revisions WHERE manual_id = $1 AND status IN ('draft', 'in_review')")).
		WithArgs("m1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetActive(context.Background(), "m1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkApprovedGuardsStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRevisionRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec("UPDATE revisions SET status").
		WithArgs(models.RevisionStatusApproved, "boss", at, "3", "rev-1", models.RevisionStatusInReview).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkApproved(context.Background(), "rev-1", "boss", "3", at)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkApprovedNotInReview(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRevisionRepository(db)

	// Zero rows affected means the status guard did not match.
	mock.ExpectExec("UPDATE revisions SET status").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkApproved(context.Background(), "rev-1", "boss", "3", time.Now())
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRejectedStampsReason(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRevisionRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec("UPDATE revisions SET status").
		WithArgs(models.RevisionStatusRejected, "boss", at, "incomplete", "rev-1", models.RevisionStatusInReview).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkRejected(context.Background(), "rev-1", "boss", "incomplete", at)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSubmittedRefreshesContent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRevisionRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE revisions SET status = $1, submitted_by = $2, submitted_at = $3, snapshot = $4, changes_summary = $5, chapters_affected = $6 WHERE id = $7 AND status = $8")).
		WithArgs(models.RevisionStatusInReview, "u1", at, sqlmock.AnyArg(), "reworked chapter 2", sqlmock.AnyArg(), "rev-1", models.RevisionStatusDraft).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkSubmitted(context.Background(), "rev-1", SubmitRevisionParams{
		SubmittedBy:      "u1",
		SubmittedAt:      at,
		Snapshot:         models.ManualSnapshot{FormatVersion: models.SnapshotFormatVersion},
		ChangesSummary:   "reworked chapter 2",
		ChaptersAffected: models.StringSet{"2"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSubmittedNotDraft(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRevisionRepository(db)

	// Zero rows affected means the working copy already left draft status.
	mock.ExpectExec("UPDATE revisions SET status").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkSubmitted(context.Background(), "rev-1", SubmitRevisionParams{SubmittedBy: "u1", SubmittedAt: time.Now()})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLastApprovedNumberSkipsDottedNumbers(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRevisionRepository(db)

	rows := sqlmock.NewRows([]string{"revision_number"}).AddRow("1").AddRow("3").AddRow("2.1")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT revision_number FROM revisions WHERE manual_id = $1 AND status = 'approved'")).
		WithArgs("m1").
		WillReturnRows(rows)

	highest, err := repo.LastApprovedNumber(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 3, highest)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLastApprovedNumberEmptyLineage(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRevisionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT revision_number FROM revisions")).
		WithArgs("m1").
		WillReturnRows(sqlmock.NewRows([]string{"revision_number"}))

	highest, err := repo.LastApprovedNumber(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 0, highest)
	assert.NoError(t, mock.ExpectationsWereMet())
}
