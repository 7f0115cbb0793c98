package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"shopify-import-service/internal/clients"
	"shopify-import-service/internal/models"
	"shopify-import-service/internal/repository"
)

const (
	// error detail truncation lengths for stored result records
	maxErrorDetailLen      = 500
	maxImageErrorDetailLen = 300
)

// RunInput describes one upload: the parsed spreadsheet rows plus an
// optional image archive index built beforehand.
type RunInput struct {
	SpreadsheetName string
	ArchiveName     string
	Rows            []map[string]string
	Images          *ImageIndex
	ValidateOnly    bool

	// Defaults overrides the service-wide defaults for this run when
	// set, e.g. from upload form fields.
	Defaults *models.RunDefaults
}

// ImportService orchestrates import runs: one product created per
// valid row, then best-effort SEO, then per-image attachments.
type ImportService struct {
	importRepo *repository.ImportRepository
	client     clients.CommerceClient
	retrier    *clients.Retrier
	defaults   models.RunDefaults
	runTimeout time.Duration
	logger     *logrus.Logger
	semaphore  *RunSemaphore

	mu         sync.Mutex
	activeRuns map[uuid.UUID]context.CancelFunc
}

// NewImportService creates a new import service
func NewImportService(
	importRepo *repository.ImportRepository,
	client clients.CommerceClient,
	retrier *clients.Retrier,
	defaults models.RunDefaults,
	runTimeout time.Duration,
	logger *logrus.Logger,
) *ImportService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ImportService{
		importRepo: importRepo,
		client:     client,
		retrier:    retrier,
		defaults:   defaults,
		runTimeout: runTimeout,
		logger:     logger,
		activeRuns: make(map[uuid.UUID]context.CancelFunc),
	}
}

// SetRunSemaphore installs a cap on concurrent runs
func (s *ImportService) SetRunSemaphore(semaphore *RunSemaphore) {
	s.semaphore = semaphore
}

// Defaults returns the run-wide defaults snapshot applied to new runs
func (s *ImportService) Defaults() models.RunDefaults {
	return s.defaults
}

// StartRun records a new run and processes it in the background.
// Rows are processed strictly in spreadsheet order, one at a time.
func (s *ImportService) StartRun(ctx context.Context, input *RunInput) (*models.ImportRun, error) {
	if s.semaphore != nil {
		if err := s.semaphore.Acquire(); err != nil {
			return nil, err
		}
	}

	run := &models.ImportRun{
		ID:              uuid.New(),
		Status:          models.RunStatusRunning,
		SpreadsheetName: input.SpreadsheetName,
		ArchiveName:     input.ArchiveName,
		ValidateOnly:    input.ValidateOnly,
		StartedAt:       time.Now(),
	}
	if input.Images != nil {
		run.IndexedImages = input.Images.Len()
	}
	defaults := s.defaults
	if input.Defaults != nil {
		defaults = *input.Defaults
	}
	run.SetDefaults(&defaults)
	run.SetProgress(&models.RunProgress{TotalRows: len(input.Rows)})

	if err := s.importRepo.CreateRun(ctx, run); err != nil {
		if s.semaphore != nil {
			s.semaphore.Release()
		}
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	runCtx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	s.mu.Lock()
	s.activeRuns[run.ID] = cancel
	s.mu.Unlock()

	go s.runImport(runCtx, run, input, &defaults)

	return run, nil
}

// GetRun retrieves an import run by ID
func (s *ImportService) GetRun(ctx context.Context, id uuid.UUID) (*models.ImportRun, error) {
	return s.importRepo.GetRunByID(ctx, id)
}

// ListRuns lists import runs
func (s *ImportService) ListRuns(ctx context.Context, opts *repository.RunListOptions) ([]models.ImportRun, int64, error) {
	if opts == nil {
		opts = &repository.RunListOptions{}
	}
	return s.importRepo.ListRuns(ctx, *opts)
}

// ListOutcomes retrieves the result records of a run in order
func (s *ImportService) ListOutcomes(ctx context.Context, runID uuid.UUID, opts *repository.OutcomeListOptions) ([]models.ImportOutcome, error) {
	if opts == nil {
		opts = &repository.OutcomeListOptions{}
	}
	return s.importRepo.ListOutcomes(ctx, runID, *opts)
}

// CancelRun stops a running import. Rows already created stay created.
func (s *ImportService) CancelRun(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	cancel, exists := s.activeRuns[id]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("run not found or not running")
	}

	cancel()
	return s.importRepo.UpdateRunStatus(ctx, id, models.RunStatusFailed, "Cancelled by user")
}

// runImport walks the rows sequentially and records one primary
// result per row, plus one image_error record per failed attachment.
func (s *ImportService) runImport(ctx context.Context, run *models.ImportRun, input *RunInput, defaults *models.RunDefaults) {
	defer func() {
		s.mu.Lock()
		if cancel, ok := s.activeRuns[run.ID]; ok {
			cancel()
			delete(s.activeRuns, run.ID)
		}
		s.mu.Unlock()
		if s.semaphore != nil {
			s.semaphore.Release()
		}
	}()

	log := s.logger.WithFields(logrus.Fields{
		"runId":       run.ID,
		"spreadsheet": run.SpreadsheetName,
		"totalRows":   len(input.Rows),
	})
	log.Info("Import run started")

	progress := &models.RunProgress{TotalRows: len(input.Rows)}
	position := 0

	for _, record := range input.Rows {
		if ctx.Err() != nil {
			_ = s.importRepo.UpdateRunStatus(context.Background(), run.ID, models.RunStatusFailed, "Run cancelled or timed out")
			log.Warn("Import run aborted")
			return
		}

		row := ParseRow(record)
		position = s.processRow(ctx, run, row, input.Images, defaults, progress, position)

		progress.ProcessedRows++
		if progress.TotalRows > 0 {
			progress.Percentage = float64(progress.ProcessedRows) / float64(progress.TotalRows) * 100
		}
		_ = s.importRepo.UpdateRunProgress(ctx, run.ID, progress)
	}

	_ = s.importRepo.UpdateRunStatus(context.Background(), run.ID, models.RunStatusCompleted, "")
	log.WithFields(logrus.Fields{
		"created":     progress.CreatedRows,
		"skipped":     progress.SkippedRows,
		"failed":      progress.FailedRows,
		"images":      progress.ImagesAttached,
		"imageErrors": progress.ImageErrors,
	}).Info("Import run completed")
}

// processRow handles one spreadsheet row and returns the next free
// result position.
func (s *ImportService) processRow(
	ctx context.Context,
	run *models.ImportRun,
	row *ProductRow,
	images *ImageIndex,
	defaults *models.RunDefaults,
	progress *models.RunProgress,
	position int,
) int {
	if !row.Valid() {
		progress.SkippedRows++
		s.appendOutcome(ctx, &models.ImportOutcome{
			RunID:    run.ID,
			Position: position,
			RowIndex: row.RowIndex,
			Status:   models.OutcomeSkipped,
			Title:    row.Title,
			SKU:      row.SKU,
			Detail:   "missing title",
		})
		return position + 1
	}

	// Resolve matching images before the product exists so a match
	// failure can never follow a successful create.
	var matched []string
	if images != nil {
		matched = images.Match(row.MatchKeys(), defaults.MaxImages)
	}

	if run.ValidateOnly {
		progress.CreatedRows++
		handle := row.Handle
		s.appendOutcome(ctx, &models.ImportOutcome{
			RunID:          run.ID,
			Position:       position,
			RowIndex:       row.RowIndex,
			Status:         models.OutcomeCreated,
			Title:          row.Title,
			SKU:            row.SKU,
			Handle:         &handle,
			ImagesAttached: len(matched),
			Detail:         "validation only, no product created",
		})
		return position + 1
	}

	payload := row.BuildPayload(defaults)

	var product *clients.Product
	err := s.retrier.Do(ctx, "create product", func(ctx context.Context) error {
		var createErr error
		product, createErr = s.client.CreateProduct(ctx, payload)
		return createErr
	}, clients.RetryTransient)
	if err != nil {
		progress.FailedRows++
		s.appendOutcome(ctx, &models.ImportOutcome{
			RunID:    run.ID,
			Position: position,
			RowIndex: row.RowIndex,
			Status:   models.OutcomeError,
			Title:    row.Title,
			SKU:      row.SKU,
			Detail:   truncateDetail(err.Error(), maxErrorDetailLen),
		})
		return position + 1
	}

	// SEO metadata is best effort: one attempt, failure never fails
	// the row.
	if err := s.client.UpdateProductSEO(ctx, product.ID, row.SEOTitle, row.SEODescription); err != nil {
		s.logger.WithFields(logrus.Fields{
			"runId":     run.ID,
			"productId": product.ID,
			"title":     row.Title,
		}).WithError(err).Warn("SEO metadata not updated")
	}

	attached := 0
	for _, name := range matched {
		content, ok := images.Get(name)
		if !ok {
			continue
		}
		image := &clients.ImagePayload{
			Attachment: base64.StdEncoding.EncodeToString(content),
			Filename:   name,
		}
		err := s.retrier.Do(ctx, "attach image", func(ctx context.Context) error {
			return s.client.AttachImage(ctx, product.ID, image)
		}, clients.RetryTransient)
		if err != nil {
			progress.ImageErrors++
			filename := name
			s.appendOutcome(ctx, &models.ImportOutcome{
				RunID:     run.ID,
				Position:  position,
				RowIndex:  row.RowIndex,
				Status:    models.OutcomeImageError,
				Title:     row.Title,
				SKU:       row.SKU,
				ProductID: &product.ID,
				Filename:  &filename,
				Detail:    truncateDetail(err.Error(), maxImageErrorDetailLen),
			})
			position++
			continue
		}
		attached++
		progress.ImagesAttached++
	}

	progress.CreatedRows++
	handle := product.Handle
	s.appendOutcome(ctx, &models.ImportOutcome{
		RunID:          run.ID,
		Position:       position,
		RowIndex:       row.RowIndex,
		Status:         models.OutcomeCreated,
		Title:          row.Title,
		SKU:            row.SKU,
		ProductID:      &product.ID,
		Handle:         &handle,
		ImagesAttached: attached,
	})
	return position + 1
}

func (s *ImportService) appendOutcome(ctx context.Context, outcome *models.ImportOutcome) {
	outcome.ID = uuid.New()
	if err := s.importRepo.AppendOutcome(ctx, outcome); err != nil {
		s.logger.WithFields(logrus.Fields{
			"runId":    outcome.RunID,
			"position": outcome.Position,
		}).WithError(err).Error("Failed to record row result")
	}
}

// truncateDetail bounds a stored detail message by character count,
// never splitting a rune
func truncateDetail(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
