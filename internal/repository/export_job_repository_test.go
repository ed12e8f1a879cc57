package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/qms-manual-api/internal/models"
)

func TestCreateExportJobFillsDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewExportJobRepository(db)

	mock.ExpectExec("INSERT INTO export_jobs").WillReturnResult(sqlmock.NewResult(1, 1))

	job := &models.ExportJob{ManualID: "m1", Variant: models.ExportVariantClean, CreatedBy: "u1", ExpiresAt: time.Now().Add(time.Hour)}
	err := repo.Create(context.Background(), job)
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.ExportStatusPending, job.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateExportJobBuildsPartialSet(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewExportJobRepository(db)

	status := models.ExportStatusCompleted
	path := "m1-clean-job-1.pdf"
	size := int64(2048)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE export_jobs SET status = $1, file_path = $2, file_size = $3 WHERE id = $4")).
		WithArgs(status, path, size, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "job-1", UpdateExportJobParams{Status: &status, FilePath: &path, FileSize: &size})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateExportJobNoFieldsIsNoop(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewExportJobRepository(db)

	err := repo.Update(context.Background(), "job-1", UpdateExportJobParams{})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListStaleProcessing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewExportJobRepository(db)

	cutoff := time.Now().Add(-30 * time.Minute)
	started := cutoff.Add(-time.Hour)
	rows := sqlmock.NewRows([]string{"id", "manual_id", "variant", "status", "file_path", "file_url", "file_size", "error_message", "created_by", "created_at", "processing_started_at", "completed_at", "expires_at"}).
		AddRow("job-1", "m1", "clean", "processing", nil, nil, nil, nil, "u1", started, started, nil, time.Now())
	mock.ExpectQuery("SELECT .+ FROM export_jobs WHERE status = 'processing'").
		WithArgs(cutoff, 50).
		WillReturnRows(rows)

	jobs, err := repo.ListStaleProcessing(context.Background(), cutoff, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.ExportStatusProcessing, jobs[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
