package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/qms-manual-api/internal/models"
)

const manualColumns = `id, title, description, organization, document_code, status, current_revision, effective_date, review_due_date, owner_id, archived, created_at, updated_at`

const sectionColumns = `id, manual_id, chapter_number, section_number, subsection_number, clause_number, heading, page_break, position, blocks, remarks, created_at, updated_at`

// ManualRepository manages persistence for manuals and their structural children.
type ManualRepository struct {
	db *sqlx.DB
}

// NewManualRepository constructs a ManualRepository.
func NewManualRepository(db *sqlx.DB) *ManualRepository {
	return &ManualRepository{db: db}
}

// Create inserts a new manual row with generated defaults.
func (r *ManualRepository) Create(ctx context.Context, manual *models.Manual) error {
	if manual.ID == "" {
		manual.ID = uuid.NewString()
	}
	if manual.Status == "" {
		manual.Status = models.ManualStatusDraft
	}
	now := time.Now().UTC()
	if manual.CreatedAt.IsZero() {
		manual.CreatedAt = now
	}
	manual.UpdatedAt = now
	const query = `INSERT INTO manuals (` + manualColumns + `)
VALUES (:id, :title, :description, :organization, :document_code, :status, :current_revision, :effective_date, :review_due_date, :owner_id, :archived, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, manual); err != nil {
		return fmt.Errorf("create manual: %w", err)
	}
	return nil
}

// GetByID returns a manual row by its identifier.
func (r *ManualRepository) GetByID(ctx context.Context, id string) (*models.Manual, error) {
	const query = `SELECT ` + manualColumns + ` FROM manuals WHERE id = $1`
	var manual models.Manual
	if err := r.db.GetContext(ctx, &manual, query, id); err != nil {
		return nil, fmt.Errorf("get manual: %w", err)
	}
	return &manual, nil
}

// List returns manuals matching the provided filters plus a total count.
func (r *ManualRepository) List(ctx context.Context, filter models.ManualFilter) ([]models.Manual, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if !filter.IncludeArchived {
		conditions = append(conditions, "archived = FALSE")
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.OwnerID != "" {
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)+1))
		args = append(args, filter.OwnerID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(title) LIKE $%d OR LOWER(document_code) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	where := strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM manuals WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`, manualColumns, where, size, offset)
	var manuals []models.Manual
	if err := r.db.SelectContext(ctx, &manuals, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list manuals: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM manuals WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count manuals: %w", err)
	}
	return manuals, total, nil
}

// UpdateManualParams defines the mutable manual fields.
type UpdateManualParams struct {
	Title           *string
	Description     *string
	Organization    *string
	DocumentCode    *string
	Status          *models.ManualStatus
	CurrentRevision *string
	EffectiveDate   *time.Time
	ReviewDueDate   *time.Time
	Archived        *bool
}

// Update persists the provided changes for a manual row.
func (r *ManualRepository) Update(ctx context.Context, id string, params UpdateManualParams) error {
	set := make([]string, 0, 9)
	args := make([]interface{}, 0, 10)

	add := func(column string, value interface{}) {
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)+1))
		args = append(args, value)
	}

	if params.Title != nil {
		add("title", *params.Title)
	}
	if params.Description != nil {
		add("description", *params.Description)
	}
	if params.Organization != nil {
		add("organization", *params.Organization)
	}
	if params.DocumentCode != nil {
		add("document_code", *params.DocumentCode)
	}
	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.CurrentRevision != nil {
		add("current_revision", *params.CurrentRevision)
	}
	if params.EffectiveDate != nil {
		add("effective_date", *params.EffectiveDate)
	}
	if params.ReviewDueDate != nil {
		add("review_due_date", *params.ReviewDueDate)
	}
	if params.Archived != nil {
		add("archived", *params.Archived)
	}

	if len(set) == 0 {
		return nil
	}
	add("updated_at", time.Now().UTC())

	query := fmt.Sprintf("UPDATE manuals SET %s WHERE id = $%d", strings.Join(set, ", "), len(args)+1)
	args = append(args, id)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update manual: %w", err)
	}
	return nil
}

// GetSections returns the live structural children of a manual in order.
func (r *ManualRepository) GetSections(ctx context.Context, manualID string) ([]models.Section, error) {
	const query = `SELECT ` + sectionColumns + ` FROM manual_sections WHERE manual_id = $1 ORDER BY position ASC`
	var sections []models.Section
	if err := r.db.SelectContext(ctx, &sections, query, manualID); err != nil {
		return nil, fmt.Errorf("list manual sections: %w", err)
	}
	return sections, nil
}

const insertSectionQuery = `INSERT INTO manual_sections (` + sectionColumns + `)
VALUES (:id, :manual_id, :chapter_number, :section_number, :subsection_number, :clause_number, :heading, :page_break, :position, :blocks, :remarks, :created_at, :updated_at)`

// ReplaceSections replaces the manual's structural children within a transaction.
func (r *ManualRepository) ReplaceSections(ctx context.Context, manualID string, sections []models.Section) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace sections: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = insertSectionsTx(ctx, tx, manualID, sections, true); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE manuals SET updated_at = $1 WHERE id = $2`, time.Now().UTC(), manualID); err != nil {
		return fmt.Errorf("touch manual: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace sections: %w", err)
	}
	return nil
}

// RestoreFromSnapshot atomically replaces the manual's structural children
// with those recorded in a revision snapshot, updates the manual metadata,
// and records the restore revision. The delete/reinsert/update/insert
// sequence is a data-loss hazard if split, so it runs as one transaction.
func (r *ManualRepository) RestoreFromSnapshot(ctx context.Context, manualID string, snapshot models.ManualSnapshot, restoreRevision *models.Revision) error {
	if snapshot.FormatVersion != models.SnapshotFormatVersion {
		return fmt.Errorf("unsupported snapshot format version %d", snapshot.FormatVersion)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin restore: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	sections := make([]models.Section, 0, len(snapshot.Sections))
	for _, snap := range snapshot.Sections {
		sections = append(sections, models.Section{
			ChapterNumber:    snap.ChapterNumber,
			SectionNumber:    snap.SectionNumber,
			SubsectionNumber: snap.SubsectionNumber,
			ClauseNumber:     snap.ClauseNumber,
			Heading:          snap.Heading,
			PageBreak:        snap.PageBreak,
			Position:         snap.Position,
			Blocks:           snap.Blocks,
			Remarks:          snap.Remarks,
		})
	}
	if err = insertSectionsTx(ctx, tx, manualID, sections, true); err != nil {
		return err
	}

	now := time.Now().UTC()
	const updateManual = `UPDATE manuals SET title = $1, description = $2, organization = $3, document_code = $4, status = $5, review_due_date = $6, updated_at = $7 WHERE id = $8`
	if _, err = tx.ExecContext(ctx, updateManual,
		snapshot.Manual.Title,
		snapshot.Manual.Description,
		snapshot.Manual.Organization,
		snapshot.Manual.DocumentCode,
		models.ManualStatusDraft,
		snapshot.Manual.ReviewDueDate,
		now,
		manualID,
	); err != nil {
		return fmt.Errorf("restore manual metadata: %w", err)
	}

	if restoreRevision != nil {
		// The restore revision becomes the new working copy, so an existing
		// draft is superseded here rather than tripping the active-status
		// index. An in_review revision still conflicts: review must be
		// resolved before restoring.
		if _, err = tx.ExecContext(ctx, `DELETE FROM revisions WHERE manual_id = $1 AND status = $2`, manualID, models.RevisionStatusDraft); err != nil {
			err = fmt.Errorf("supersede draft revision: %w", err)
			return err
		}
		prepareRevisionDefaults(restoreRevision)
		if _, err = tx.NamedExecContext(ctx, insertRevisionQuery, restoreRevision); err != nil {
			err = mapRevisionInsertError(err)
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit restore: %w", err)
	}
	return nil
}

func insertSectionsTx(ctx context.Context, tx *sqlx.Tx, manualID string, sections []models.Section, clearExisting bool) error {
	if clearExisting {
		if _, err := tx.ExecContext(ctx, `DELETE FROM manual_sections WHERE manual_id = $1`, manualID); err != nil {
			return fmt.Errorf("clear manual sections: %w", err)
		}
	}
	now := time.Now().UTC()
	for i, section := range sections {
		payload := section
		payload.ManualID = manualID
		if payload.ID == "" {
			payload.ID = uuid.NewString()
		}
		if payload.Position == 0 {
			payload.Position = i + 1
		}
		if payload.CreatedAt.IsZero() {
			payload.CreatedAt = now
		}
		payload.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, insertSectionQuery, &payload); err != nil {
			return fmt.Errorf("insert manual section: %w", err)
		}
	}
	return nil
}
