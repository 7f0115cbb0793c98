package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JSONB custom type for PostgreSQL JSONB
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	}
	return nil
}

// ImportFormat represents the uploaded spreadsheet format
type ImportFormat string

const (
	ImportFormatCSV  ImportFormat = "csv"
	ImportFormatXLSX ImportFormat = "xlsx"
)

// RunStatus represents the status of an import run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// OutcomeStatus tags the per-row result records
type OutcomeStatus string

const (
	OutcomeSkipped    OutcomeStatus = "skipped"
	OutcomeCreated    OutcomeStatus = "created"
	OutcomeError      OutcomeStatus = "error"
	OutcomeImageError OutcomeStatus = "image_error"
)

// RunProgress tracks the progress of an import run
type RunProgress struct {
	TotalRows      int     `json:"totalRows"`
	ProcessedRows  int     `json:"processedRows"`
	CreatedRows    int     `json:"createdRows"`
	SkippedRows    int     `json:"skippedRows"`
	FailedRows     int     `json:"failedRows"`
	ImagesAttached int     `json:"imagesAttached"`
	ImageErrors    int     `json:"imageErrors"`
	Percentage     float64 `json:"percentage"`
}

// RunDefaults is the run-wide configuration snapshot applied to every
// product a run creates. Built once at run start, never mutated.
type RunDefaults struct {
	Vendor            string  `json:"vendor"`
	ProductType       string  `json:"productType"`
	Price             float64 `json:"price"`
	Status            string  `json:"status"`          // active | draft
	InventoryPolicy   string  `json:"inventoryPolicy"` // deny | continue
	InventoryQuantity int     `json:"inventoryQuantity"`
	MaxImages         int     `json:"maxImagesPerProduct"`
}

// ImportRun represents one upload-and-create run
type ImportRun struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	Status RunStatus `gorm:"type:varchar(50);not null;default:'RUNNING';index:idx_import_runs_status" json:"status"`

	// Input description
	SpreadsheetName string `gorm:"type:varchar(500)" json:"spreadsheetName"`
	ArchiveName     string `gorm:"type:varchar(500)" json:"archiveName,omitempty"`
	IndexedImages   int    `json:"indexedImages"`
	ValidateOnly    bool   `json:"validateOnly"`

	// Run-wide defaults snapshot
	Defaults JSONB `gorm:"type:jsonb;default:'{}'" json:"defaults"`

	// Progress tracking
	Progress JSONB `gorm:"type:jsonb;default:'{\"totalRows\":0,\"processedRows\":0,\"createdRows\":0,\"skippedRows\":0,\"failedRows\":0,\"imagesAttached\":0,\"imageErrors\":0,\"percentage\":0}'" json:"progress"`

	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	ErrorMessage string `gorm:"type:text" json:"errorMessage,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`

	Outcomes []ImportOutcome `gorm:"foreignKey:RunID" json:"outcomes,omitempty"`
}

// TableName specifies the table name for ImportRun
func (ImportRun) TableName() string {
	return "import_runs"
}

// GetProgress returns the run progress as a structured object
func (r *ImportRun) GetProgress() *RunProgress {
	progress := &RunProgress{}
	if r.Progress != nil {
		if v, ok := r.Progress["totalRows"].(float64); ok {
			progress.TotalRows = int(v)
		}
		if v, ok := r.Progress["processedRows"].(float64); ok {
			progress.ProcessedRows = int(v)
		}
		if v, ok := r.Progress["createdRows"].(float64); ok {
			progress.CreatedRows = int(v)
		}
		if v, ok := r.Progress["skippedRows"].(float64); ok {
			progress.SkippedRows = int(v)
		}
		if v, ok := r.Progress["failedRows"].(float64); ok {
			progress.FailedRows = int(v)
		}
		if v, ok := r.Progress["imagesAttached"].(float64); ok {
			progress.ImagesAttached = int(v)
		}
		if v, ok := r.Progress["imageErrors"].(float64); ok {
			progress.ImageErrors = int(v)
		}
		if v, ok := r.Progress["percentage"].(float64); ok {
			progress.Percentage = v
		}
	}
	return progress
}

// SetProgress sets the run progress from a structured object
func (r *ImportRun) SetProgress(progress *RunProgress) {
	r.Progress = JSONB{
		"totalRows":      progress.TotalRows,
		"processedRows":  progress.ProcessedRows,
		"createdRows":    progress.CreatedRows,
		"skippedRows":    progress.SkippedRows,
		"failedRows":     progress.FailedRows,
		"imagesAttached": progress.ImagesAttached,
		"imageErrors":    progress.ImageErrors,
		"percentage":     progress.Percentage,
	}
}

// SetDefaults stores the run-wide defaults snapshot
func (r *ImportRun) SetDefaults(d *RunDefaults) {
	r.Defaults = JSONB{
		"vendor":              d.Vendor,
		"productType":         d.ProductType,
		"price":               d.Price,
		"status":              d.Status,
		"inventoryPolicy":     d.InventoryPolicy,
		"inventoryQuantity":   d.InventoryQuantity,
		"maxImagesPerProduct": d.MaxImages,
	}
}

// ImportOutcome is one result record of a run. Every spreadsheet row
// yields exactly one primary record (skipped, created or error);
// failed image attachments append additional image_error records.
// Records are append-only and ordered by Position.
type ImportOutcome struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RunID uuid.UUID `gorm:"type:uuid;not null;index:idx_import_outcomes_run" json:"runId"`

	Position int `gorm:"not null" json:"position"`
	RowIndex int `json:"row"`

	Status OutcomeStatus `gorm:"type:varchar(20);not null;index:idx_import_outcomes_status" json:"status"`

	Title          string  `gorm:"type:varchar(500)" json:"title"`
	SKU            string  `gorm:"type:varchar(255)" json:"sku,omitempty"`
	ProductID      *int64  `json:"productId,omitempty"`
	Handle         *string `gorm:"type:varchar(500)" json:"handle,omitempty"`
	ImagesAttached int     `json:"imagesAttached"`
	Filename       *string `gorm:"type:varchar(500)" json:"filename,omitempty"`
	Detail         string  `gorm:"type:text" json:"detail,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
}

// TableName specifies the table name for ImportOutcome
func (ImportOutcome) TableName() string {
	return "import_outcomes"
}
