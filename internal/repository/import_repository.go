package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"shopify-import-service/internal/models"
)

// ImportRepository handles database operations for import runs
type ImportRepository struct {
	db *gorm.DB
}

// NewImportRepository creates a new import repository
func NewImportRepository(db *gorm.DB) *ImportRepository {
	return &ImportRepository{db: db}
}

// CreateRun creates a new import run
func (r *ImportRepository) CreateRun(ctx context.Context, run *models.ImportRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// GetRunByID retrieves an import run by ID
func (r *ImportRepository) GetRunByID(ctx context.Context, id uuid.UUID) (*models.ImportRun, error) {
	var run models.ImportRun
	err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// UpdateRunStatus updates the run status, stamping completed_at on
// terminal states
func (r *ImportRepository) UpdateRunStatus(ctx context.Context, id uuid.UUID, status models.RunStatus, errorMessage string) error {
	updates := map[string]interface{}{
		"status":        status,
		"error_message": errorMessage,
		"updated_at":    time.Now(),
	}
	if status == models.RunStatusCompleted || status == models.RunStatusFailed {
		now := time.Now()
		updates["completed_at"] = &now
	}
	return r.db.WithContext(ctx).
		Model(&models.ImportRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// UpdateRunProgress updates the run progress
func (r *ImportRepository) UpdateRunProgress(ctx context.Context, id uuid.UUID, progress *models.RunProgress) error {
	progressJSON := models.JSONB{
		"totalRows":      progress.TotalRows,
		"processedRows":  progress.ProcessedRows,
		"createdRows":    progress.CreatedRows,
		"skippedRows":    progress.SkippedRows,
		"failedRows":     progress.FailedRows,
		"imagesAttached": progress.ImagesAttached,
		"imageErrors":    progress.ImageErrors,
		"percentage":     progress.Percentage,
	}
	return r.db.WithContext(ctx).
		Model(&models.ImportRun{}).
		Where("id = ?", id).
		Update("progress", progressJSON).Error
}

// ListRuns retrieves import runs with pagination and filtering
func (r *ImportRepository) ListRuns(ctx context.Context, opts RunListOptions) ([]models.ImportRun, int64, error) {
	var runs []models.ImportRun
	var total int64

	query := r.db.WithContext(ctx).Model(&models.ImportRun{})

	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}
	query = query.Order("started_at DESC")

	if err := query.Find(&runs).Error; err != nil {
		return nil, 0, err
	}

	return runs, total, nil
}

// AppendOutcome appends one result record to a run
func (r *ImportRepository) AppendOutcome(ctx context.Context, outcome *models.ImportOutcome) error {
	return r.db.WithContext(ctx).Create(outcome).Error
}

// ListOutcomes retrieves the result records of a run in insertion order
func (r *ImportRepository) ListOutcomes(ctx context.Context, runID uuid.UUID, opts OutcomeListOptions) ([]models.ImportOutcome, error) {
	var outcomes []models.ImportOutcome
	query := r.db.WithContext(ctx).
		Where("run_id = ?", runID)

	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	err := query.Order("position ASC").Find(&outcomes).Error
	return outcomes, err
}

// RunListOptions contains options for listing import runs
type RunListOptions struct {
	Status string
	Limit  int
	Offset int
}

// OutcomeListOptions contains options for listing result records
type OutcomeListOptions struct {
	Status string
	Limit  int
	Offset int
}
