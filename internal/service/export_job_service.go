package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/qms-manual-api/internal/dto"
	"github.com/noah-isme/qms-manual-api/internal/models"
	"github.com/noah-isme/qms-manual-api/internal/repository"
	appErrors "github.com/noah-isme/qms-manual-api/pkg/errors"
	"github.com/noah-isme/qms-manual-api/pkg/jobs"
	"github.com/noah-isme/qms-manual-api/pkg/storage"
)

// ExportJobType identifies render jobs on the queue.
const ExportJobType = "manual_export"

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListPending(ctx context.Context, limit int) ([]models.ExportJob, error)
	ListStaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error)
}

type manualReader interface {
	GetByID(ctx context.Context, id string) (*models.Manual, error)
}

type dispatcher interface {
	Enqueue(job jobs.Job) error
}

type exportMetrics interface {
	ExportJobCreated(variant string)
	ExportJobCompleted(variant string, duration time.Duration)
	ExportJobFailed(variant string)
}

// ExportJobService orchestrates export jobs: it records them, hands them to
// the render workers, and answers polling clients. Job status only moves
// forward; a completed or failed job is never reopened.
type ExportJobService struct {
	store       exportJobStore
	manuals     manualReader
	renderer    *ExportRenderService
	files       *storage.LocalStorage
	signer      *storage.SignedURLSigner
	queue       dispatcher
	audit       auditSink
	metrics     exportMetrics
	maxAttempts int
	staleAfter  time.Duration
	urlTTL      time.Duration
	logger      *zap.Logger
}

// ExportJobConfig carries the orchestrator's tunables.
type ExportJobConfig struct {
	MaxAttempts int
	StaleAfter  time.Duration
	URLTTL      time.Duration
}

// NewExportJobService constructs the orchestrator. The dispatcher is bound
// separately because the queue needs the service's Handle as its handler.
func NewExportJobService(store exportJobStore, manuals manualReader, renderer *ExportRenderService, files *storage.LocalStorage, signer *storage.SignedURLSigner, audit auditSink, cfg ExportJobConfig, logger *zap.Logger) *ExportJobService {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportJobService{
		store:       store,
		manuals:     manuals,
		renderer:    renderer,
		files:       files,
		signer:      signer,
		audit:       audit,
		maxAttempts: cfg.MaxAttempts,
		staleAfter:  cfg.StaleAfter,
		urlTTL:      cfg.URLTTL,
		logger:      logger,
	}
}

// SetDispatcher binds the worker queue. Must be called before CreateJob.
func (s *ExportJobService) SetDispatcher(d dispatcher) {
	s.queue = d
}

// SetMetrics binds an optional metrics recorder.
func (s *ExportJobService) SetMetrics(m exportMetrics) {
	s.metrics = m
}

// CreateJob records a pending export job and dispatches it to the render
// workers. A dispatch failure is surfaced immediately as a failed job
// rather than leaving a pending row nobody will pick up.
func (s *ExportJobService) CreateJob(ctx context.Context, manualID string, req dto.CreateExportRequest, actor *models.JWTClaims) (*models.ExportJob, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	manual, err := s.manuals.GetByID(ctx, manualID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "manual not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load manual")
	}

	variant, err := ResolveVariant(req.Variant, manual)
	if err != nil {
		return nil, err
	}

	job := &models.ExportJob{
		ManualID:  manualID,
		Variant:   variant,
		Status:    models.ExportStatusPending,
		CreatedBy: actor.UserID,
		ExpiresAt: time.Now().UTC().Add(s.urlTTL),
	}
	if err := s.store.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if s.metrics != nil {
		s.metrics.ExportJobCreated(string(variant))
	}
	s.emitExportAudit(ctx, actor, manualID, job)

	if err := s.dispatch(job.ID); err != nil {
		s.logger.Sugar().Errorw("failed to dispatch export job", "job_id", job.ID, "error", err)
		s.failJob(ctx, job, "could not schedule render worker")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to schedule export job")
	}
	return job, nil
}

// GetStatus returns polling metadata for a job. Completed jobs whose signed
// URL has lapsed get a fresh one; the artifact itself is untouched.
func (s *ExportJobService) GetStatus(ctx context.Context, jobID string, actor *models.JWTClaims) (*models.ExportJob, error) {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := requireCreatorOrAdmin(job, actor); err != nil {
		return nil, err
	}

	if job.Status == models.ExportStatusCompleted && time.Now().After(job.ExpiresAt) && job.FilePath != nil {
		token, expiresAt, err := s.signer.Generate(job.ID, *job.FilePath)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to refresh download url")
		}
		url := downloadURL(token)
		if err := s.store.Update(ctx, job.ID, repository.UpdateExportJobParams{
			FileURL:   &url,
			ExpiresAt: &expiresAt,
		}); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to refresh download url")
		}
		job.FileURL = &url
		job.ExpiresAt = expiresAt
	}
	return job, nil
}

// ResolveDownload validates a signed token and returns the artifact's
// storage-relative path.
func (s *ExportJobService) ResolveDownload(ctx context.Context, token string) (string, error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.Status != models.ExportStatusCompleted || job.FilePath == nil || *job.FilePath != relPath {
		return "", appErrors.Clone(appErrors.ErrNotFound, "export artifact not available")
	}
	return s.files.Path(relPath), nil
}

// Handle is the queue handler for render jobs. It is idempotent: a job that
// already reached a terminal status is skipped, so duplicate deliveries and
// recovery re-enqueues are harmless.
func (s *ExportJobService) Handle(ctx context.Context, job jobs.Job) error {
	jobID, ok := job.Payload.(string)
	if !ok || jobID == "" {
		s.logger.Sugar().Errorw("export job with invalid payload", "job_id", job.ID)
		return nil
	}

	record, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Sugar().Warnw("export job vanished", "job_id", jobID)
			return nil
		}
		return fmt.Errorf("load export job %s: %w", jobID, err)
	}
	if record.Status.Terminal() {
		return nil
	}

	if record.Status == models.ExportStatusPending {
		now := time.Now().UTC()
		status := models.ExportStatusProcessing
		if err := s.store.Update(ctx, jobID, repository.UpdateExportJobParams{
			Status:              &status,
			ProcessingStartedAt: &now,
		}); err != nil {
			return fmt.Errorf("mark export job processing: %w", err)
		}
		record.ProcessingStartedAt = &now
	}

	started := time.Now()
	data, err := s.renderer.RenderPDF(ctx, record.ManualID, record.Variant)
	if err != nil {
		// Rendering is deterministic; retrying the same snapshot cannot
		// succeed, so the job fails immediately.
		s.failJob(ctx, record, err.Error())
		return nil
	}

	filename := fmt.Sprintf("%s-%s-%s.pdf", record.ManualID, record.Variant, record.ID)
	relPath, err := s.files.Save(filename, data)
	if err != nil {
		if job.Attempt+1 >= s.maxAttempts {
			s.failJob(ctx, record, "could not store export artifact")
			return nil
		}
		// Status stays processing while the queue retries.
		return fmt.Errorf("store export artifact: %w", err)
	}

	token, expiresAt, err := s.signer.Generate(record.ID, relPath)
	if err != nil {
		s.failJob(ctx, record, "could not sign download url")
		return nil
	}

	now := time.Now().UTC()
	status := models.ExportStatusCompleted
	url := downloadURL(token)
	size := int64(len(data))
	if err := s.store.Update(ctx, record.ID, repository.UpdateExportJobParams{
		Status:      &status,
		FilePath:    &relPath,
		FileURL:     &url,
		FileSize:    &size,
		CompletedAt: &now,
		ExpiresAt:   &expiresAt,
	}); err != nil {
		return fmt.Errorf("complete export job: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ExportJobCompleted(string(record.Variant), time.Since(started))
	}
	s.logger.Sugar().Infow("export job completed", "job_id", record.ID, "variant", record.Variant, "bytes", size)
	return nil
}

// RecoverJobs re-dispatches work that survived a restart: pending jobs that
// were never picked up, and processing jobs whose worker died mid-render.
// Handle's terminal check makes double delivery safe.
func (s *ExportJobService) RecoverJobs(ctx context.Context) error {
	pending, err := s.store.ListPending(ctx, 100)
	if err != nil {
		return fmt.Errorf("list pending export jobs: %w", err)
	}
	stale, err := s.store.ListStaleProcessing(ctx, time.Now().UTC().Add(-s.staleAfter), 100)
	if err != nil {
		return fmt.Errorf("list stale export jobs: %w", err)
	}

	for _, job := range append(pending, stale...) {
		if err := s.dispatch(job.ID); err != nil {
			s.logger.Sugar().Errorw("failed to re-dispatch export job", "job_id", job.ID, "error", err)
		}
	}
	if n := len(pending) + len(stale); n > 0 {
		s.logger.Sugar().Infow("recovered export jobs", "pending", len(pending), "stale", len(stale))
	}
	return nil
}

// StartArtifactCleanup deletes rendered files older than ttl on a fixed
// interval until the context is cancelled. Job records are kept; their
// download resolution simply stops finding a file.
func (s *ExportJobService) StartArtifactCleanup(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 || ttl <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.files.CleanupOlderThan(ttl)
				if err != nil {
					s.logger.Sugar().Warnw("artifact cleanup failed", "error", err)
					continue
				}
				if len(removed) > 0 {
					s.logger.Sugar().Infow("cleaned up export artifacts", "count", len(removed))
				}
			}
		}
	}()
}

func (s *ExportJobService) dispatch(jobID string) error {
	if s.queue == nil {
		return fmt.Errorf("export dispatcher not configured")
	}
	return s.queue.Enqueue(jobs.Job{
		ID:      jobID,
		Type:    ExportJobType,
		Payload: jobID,
	})
}

func (s *ExportJobService) failJob(ctx context.Context, job *models.ExportJob, message string) {
	status := models.ExportStatusFailed
	now := time.Now().UTC()
	if err := s.store.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:       &status,
		ErrorMessage: &message,
		CompletedAt:  &now,
	}); err != nil {
		s.logger.Sugar().Errorw("failed to mark export job failed", "job_id", job.ID, "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.ExportJobFailed(string(job.Variant))
	}
	s.logger.Sugar().Warnw("export job failed", "job_id", job.ID, "variant", job.Variant, "reason", message)
}

func (s *ExportJobService) loadJob(ctx context.Context, id string) (*models.ExportJob, error) {
	job, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	return job, nil
}

func requireCreatorOrAdmin(job *models.ExportJob, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role.AdminCapability() || job.CreatedBy == actor.UserID {
		return nil
	}
	return appErrors.ErrForbidden
}

func (s *ExportJobService) emitExportAudit(ctx context.Context, actor *models.JWTClaims, manualID string, job *models.ExportJob) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"job_id":  job.ID,
		"variant": job.Variant,
	})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionExportCreate,
		Resource:   "manual",
		ResourceID: &manualID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Sugar().Warnw("failed to record audit log", "action", models.AuditActionExportCreate, "manual_id", manualID, "error", err)
	}
}

func downloadURL(token string) string {
	return fmt.Sprintf("/api/v1/exports/download/%s", token)
}
