package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/qms-manual-api/internal/models"
	"github.com/noah-isme/qms-manual-api/internal/service"
)

type revisionReaderMock struct {
	revisions map[string]*models.Revision
}

func (m *revisionReaderMock) GetByID(ctx context.Context, id string) (*models.Revision, error) {
	if rev, ok := m.revisions[id]; ok {
		return rev, nil
	}
	return nil, sql.ErrNoRows
}

func diffTestSnapshot(headings ...string) models.ManualSnapshot {
	snap := models.ManualSnapshot{
		FormatVersion: models.SnapshotFormatVersion,
		Manual:        models.ManualCore{Title: "Quality Manual"},
	}
	for i, heading := range headings {
		snap.Sections = append(snap.Sections, models.SectionSnapshot{ChapterNumber: i + 1, Heading: heading})
	}
	return snap
}

func TestRevisionHandlerDiff(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reader := &revisionReaderMock{revisions: map[string]*models.Revision{
		"rev-1": {ID: "rev-1", ManualID: "m1", Snapshot: diffTestSnapshot("Scope")},
		"rev-2": {ID: "rev-2", ManualID: "m1", Snapshot: diffTestSnapshot("Scope", "Records")},
	}}
	diffSvc := service.NewDiffService(reader, nil, time.Minute, nil)
	handler := NewRevisionHandler(nil, diffSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/manuals/m1/diff?from=rev-1&to=rev-2", nil)
	c.Params = gin.Params{{Key: "id", Value: "m1"}}

	handler.Diff(c)

	assert.Equal(t, http.StatusOK, w.Code)
	envelope := decodeEnvelope(t, w)
	require.NotNil(t, envelope.Data)
	require.NotNil(t, envelope.Meta)
	assert.Equal(t, false, envelope.Meta["cache_hit"])

	var diff models.ManualDiff
	raw, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &diff))
	assert.Equal(t, "rev-1", diff.FromRevision)
	assert.ElementsMatch(t, []string{"2"}, diff.ChangedChapterKeys())
}

func TestRevisionHandlerDiffRequiresBothRevisions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	diffSvc := service.NewDiffService(&revisionReaderMock{}, nil, time.Minute, nil)
	handler := NewRevisionHandler(nil, diffSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/manuals/m1/diff?from=rev-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "m1"}}

	handler.Diff(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	envelope := decodeEnvelope(t, w)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "VALIDATION_ERROR", envelope.Error.Code)
}
