package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/qms-manual-api/internal/models"
)

func TestCreateManualFillsDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewManualRepository(db)

	mock.ExpectExec("INSERT INTO manuals").WillReturnResult(sqlmock.NewResult(1, 1))

	manual := &models.Manual{Title: "Quality Manual", Organization: "Acme Maritime", DocumentCode: "QM-001", OwnerID: "u1"}
	err := repo.Create(context.Background(), manual)
	require.NoError(t, err)
	assert.NotEmpty(t, manual.ID)
	assert.Equal(t, models.ManualStatusDraft, manual.Status)
	assert.False(t, manual.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateManualBuildsPartialSet(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewManualRepository(db)

	status := models.ManualStatusApproved
	revision := "3"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE manuals SET status = $1, current_revision = $2, updated_at = $3 WHERE id = $4")).
		WithArgs(status, revision, sqlmock.AnyArg(), "m1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "m1", UpdateManualParams{Status: &status, CurrentRevision: &revision})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateManualNoFieldsIsNoop(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewManualRepository(db)

	// No expectations registered: any query would fail the test.
	err := repo.Update(context.Background(), "m1", UpdateManualParams{})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListManualsFiltersAndCounts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewManualRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "title", "description", "organization", "document_code", "status", "current_revision", "effective_date", "review_due_date", "owner_id", "archived", "created_at", "updated_at"}).
		AddRow("m1", "Quality Manual", "", "Acme Maritime", "QM-001", "draft", "1", nil, nil, "u1", false, now, now)
	mock.ExpectQuery("SELECT .+ FROM manuals WHERE 1=1 AND archived = FALSE AND status = .+ ORDER BY updated_at DESC").
		WithArgs(models.ManualStatusDraft).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM manuals WHERE")).
		WithArgs(models.ManualStatusDraft).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	manuals, total, err := repo.List(context.Background(), models.ManualFilter{Status: models.ManualStatusDraft})
	require.NoError(t, err)
	assert.Len(t, manuals, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceSectionsRunsInTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewManualRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM manual_sections WHERE manual_id = $1")).
		WithArgs("m1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO manual_sections").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO manual_sections").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE manuals SET updated_at").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sections := []models.Section{
		{ChapterNumber: 1, Heading: "Scope", Position: 1},
		{ChapterNumber: 2, Heading: "Responsibilities", Position: 2},
	}
	err := repo.ReplaceSections(context.Background(), "m1", sections)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreFromSnapshotRollsBackOnConflict(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewManualRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM manual_sections").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO manual_sections").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE manuals SET title").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM revisions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO revisions").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	snapshot := models.ManualSnapshot{
		FormatVersion: models.SnapshotFormatVersion,
		Manual:        models.ManualCore{Title: "Quality Manual", Status: models.ManualStatusDraft},
		Sections:      []models.SectionSnapshot{{ChapterNumber: 1, Heading: "Scope", Position: 1}},
	}
	restore := &models.Revision{ManualID: "m1", RevisionNumber: "2", Status: models.RevisionStatusDraft, CreatedBy: "u1"}

	err := repo.RestoreFromSnapshot(context.Background(), "m1", snapshot, restore)
	assert.ErrorIs(t, err, ErrActiveRevisionExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreFromSnapshotRejectsUnknownFormat(t *testing.T) {
	db, _, cleanup := newMock(t)
	defer cleanup()
	repo := NewManualRepository(db)

	err := repo.RestoreFromSnapshot(context.Background(), "m1", models.ManualSnapshot{FormatVersion: 99}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported snapshot format version")
}

func TestRestoreFromSnapshotCommits(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewManualRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM manual_sections").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO manual_sections").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE manuals SET title").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM revisions WHERE manual_id = $1 AND status = $2")).
		WithArgs("m1", models.RevisionStatusDraft).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO revisions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	snapshot := models.ManualSnapshot{
		FormatVersion: models.SnapshotFormatVersion,
		Manual:        models.ManualCore{Title: "Quality Manual", Status: models.ManualStatusDraft},
		Sections:      []models.SectionSnapshot{{ChapterNumber: 1, Heading: "Scope", Position: 1}},
	}
	restore := &models.Revision{ManualID: "m1", RevisionNumber: "2", Status: models.RevisionStatusDraft, CreatedBy: "u1"}

	err := repo.RestoreFromSnapshot(context.Background(), "m1", snapshot, restore)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
