package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"shopify-import-service/internal/models"
	"shopify-import-service/internal/repository"
	"shopify-import-service/internal/services"
)

// MaxUploadSize caps each uploaded file at 64 MiB
const MaxUploadSize = 64 << 20

// ImportHandler handles import run endpoints
type ImportHandler struct {
	importService *services.ImportService
}

// NewImportHandler creates a new import handler
func NewImportHandler(importService *services.ImportService) *ImportHandler {
	return &ImportHandler{importService: importService}
}

// CreateImport accepts a spreadsheet plus an optional image archive
// and starts a run in the background.
// POST /api/v1/imports
func (h *ImportHandler) CreateImport(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, "FILE_REQUIRED", "Please upload a CSV or Excel file")
		return
	}
	defer file.Close()

	validateOnly := c.DefaultPostForm("validateOnly", "false") == "true"

	defaults, err := parseRunDefaults(c, h.importService.Defaults())
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, "INVALID_DEFAULTS", err.Error())
		return
	}

	filename := header.Filename
	var format models.ImportFormat
	if strings.HasSuffix(strings.ToLower(filename), ".csv") {
		format = models.ImportFormatCSV
	} else if strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
		format = models.ImportFormatXLSX
	} else {
		h.errorResponse(c, http.StatusBadRequest, "INVALID_FORMAT", "Only CSV and XLSX files are supported")
		return
	}

	var rows []map[string]string
	var parseErr error
	if format == models.ImportFormatCSV {
		rows, parseErr = h.parseCSV(io.LimitReader(file, MaxUploadSize))
	} else {
		rows, parseErr = h.parseXLSX(io.LimitReader(file, MaxUploadSize))
	}
	if parseErr != nil {
		h.errorResponse(c, http.StatusBadRequest, "PARSE_ERROR", parseErr.Error())
		return
	}
	if len(rows) == 0 {
		h.errorResponse(c, http.StatusBadRequest, "EMPTY_FILE", "The file contains no data rows")
		return
	}

	input := &services.RunInput{
		SpreadsheetName: filename,
		Rows:            rows,
		ValidateOnly:    validateOnly,
		Defaults:        defaults,
	}

	// The image archive is optional. An unreadable one aborts the run
	// before anything is created.
	if archiveFile, archiveHeader, err := c.Request.FormFile("images"); err == nil {
		defer archiveFile.Close()
		index, err := h.indexArchive(archiveFile)
		if err != nil {
			h.errorResponse(c, http.StatusBadRequest, "INVALID_ARCHIVE", err.Error())
			return
		}
		input.ArchiveName = archiveHeader.Filename
		input.Images = index
	}

	run, err := h.importService.StartRun(c.Request.Context(), input)
	if err != nil {
		if errors.Is(err, services.ErrTooManyRuns) {
			h.errorResponse(c, http.StatusTooManyRequests, "TOO_MANY_RUNS", err.Error())
			return
		}
		h.errorResponse(c, http.StatusInternalServerError, "RUN_CREATE_FAILED", err.Error())
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"run":     run,
	})
}

// GetImport returns one run with its progress
// GET /api/v1/imports/:id
func (h *ImportHandler) GetImport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, "INVALID_ID", "Invalid run ID")
		return
	}

	run, err := h.importService.GetRun(c.Request.Context(), id)
	if err != nil {
		h.errorResponse(c, http.StatusNotFound, "RUN_NOT_FOUND", "Import run not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"run":     run,
	})
}

// ListImports lists runs, newest first
// GET /api/v1/imports
func (h *ImportHandler) ListImports(c *gin.Context) {
	opts := &repository.RunListOptions{
		Status: c.Query("status"),
		Limit:  parseIntQuery(c, "limit", 50),
		Offset: parseIntQuery(c, "offset", 0),
	}

	runs, total, err := h.importService.ListRuns(c.Request.Context(), opts)
	if err != nil {
		h.errorResponse(c, http.StatusInternalServerError, "LIST_FAILED", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"runs":    runs,
		"total":   total,
	})
}

// GetOutcomes returns the per-row results of a run in order
// GET /api/v1/imports/:id/outcomes
func (h *ImportHandler) GetOutcomes(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, "INVALID_ID", "Invalid run ID")
		return
	}

	if _, err := h.importService.GetRun(c.Request.Context(), id); err != nil {
		h.errorResponse(c, http.StatusNotFound, "RUN_NOT_FOUND", "Import run not found")
		return
	}

	opts := &repository.OutcomeListOptions{
		Status: c.Query("status"),
		Limit:  parseIntQuery(c, "limit", 0),
		Offset: parseIntQuery(c, "offset", 0),
	}

	outcomes, err := h.importService.ListOutcomes(c.Request.Context(), id, opts)
	if err != nil {
		h.errorResponse(c, http.StatusInternalServerError, "LIST_FAILED", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"outcomes": outcomes,
	})
}

// DownloadOutcomesCSV streams the run results as a CSV report
// GET /api/v1/imports/:id/outcomes.csv
func (h *ImportHandler) DownloadOutcomesCSV(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, "INVALID_ID", "Invalid run ID")
		return
	}

	if _, err := h.importService.GetRun(c.Request.Context(), id); err != nil {
		h.errorResponse(c, http.StatusNotFound, "RUN_NOT_FOUND", "Import run not found")
		return
	}

	outcomes, err := h.importService.ListOutcomes(c.Request.Context(), id, &repository.OutcomeListOptions{})
	if err != nil {
		h.errorResponse(c, http.StatusInternalServerError, "LIST_FAILED", err.Error())
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=import_%s_log.csv", id))

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	writer.Write([]string{"row", "status", "title", "sku", "product_id", "handle", "images_attached", "filename", "detail"})
	for _, o := range outcomes {
		productID := ""
		if o.ProductID != nil {
			productID = strconv.FormatInt(*o.ProductID, 10)
		}
		handle := ""
		if o.Handle != nil {
			handle = *o.Handle
		}
		imageFile := ""
		if o.Filename != nil {
			imageFile = *o.Filename
		}
		writer.Write([]string{
			strconv.Itoa(o.RowIndex),
			string(o.Status),
			o.Title,
			o.SKU,
			productID,
			handle,
			strconv.Itoa(o.ImagesAttached),
			imageFile,
			o.Detail,
		})
	}
}

// CancelImport stops a running import
// POST /api/v1/imports/:id/cancel
func (h *ImportHandler) CancelImport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, "INVALID_ID", "Invalid run ID")
		return
	}

	if err := h.importService.CancelRun(c.Request.Context(), id); err != nil {
		h.errorResponse(c, http.StatusConflict, "CANCEL_FAILED", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetImportTemplate returns the import template definition or file
// GET /api/v1/imports/template
func (h *ImportHandler) GetImportTemplate(c *gin.Context) {
	format := c.DefaultQuery("format", "json")

	template := models.ProductImportTemplate()

	switch format {
	case "csv":
		h.generateCSVTemplate(c, template)
	case "xlsx":
		h.generateXLSXTemplate(c, template)
	default:
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"template": template,
		})
	}
}

// generateCSVTemplate generates and downloads a CSV template (headers only)
func (h *ImportHandler) generateCSVTemplate(c *gin.Context, template models.ImportTemplate) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=products_import_template.csv")

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	headers := make([]string, len(template.Columns))
	for i, col := range template.Columns {
		headers[i] = col.Name
	}
	writer.Write(headers)
}

// generateXLSXTemplate generates and downloads an Excel template
func (h *ImportHandler) generateXLSXTemplate(c *gin.Context, template models.ImportTemplate) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Products"
	f.SetSheetName("Sheet1", sheetName)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	requiredStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C65911"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	for i, col := range template.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		headerText := col.Name
		if col.Required {
			headerText = col.Name + " *"
		}
		f.SetCellValue(sheetName, cell, headerText)

		if col.Required {
			f.SetCellStyle(sheetName, cell, cell, requiredStyle)
		} else {
			f.SetCellStyle(sheetName, cell, cell, headerStyle)
		}

		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, colName, colName, 20)
	}

	// Add Instructions sheet
	f.NewSheet("Instructions")
	f.SetCellValue("Instructions", "A1", "Product Import Instructions")
	f.SetCellValue("Instructions", "A3", "Each row becomes one Shopify product with a single variant priced at the configured default.")
	f.SetCellValue("Instructions", "A4", "Rows without a Product Title are skipped, not failed.")
	f.SetCellValue("Instructions", "A5", "Images in the uploaded ZIP are matched when their filename contains the row's SKU or URL handle.")

	f.SetCellValue("Instructions", "A7", "Column Definitions:")
	f.SetCellValue("Instructions", "A8", "Column")
	f.SetCellValue("Instructions", "B8", "Description")
	f.SetCellValue("Instructions", "C8", "Required")
	f.SetCellValue("Instructions", "D8", "Example")

	for i, col := range template.Columns {
		row := i + 9
		f.SetCellValue("Instructions", fmt.Sprintf("A%d", row), col.Name)
		f.SetCellValue("Instructions", fmt.Sprintf("B%d", row), col.Description)
		required := "Optional"
		if col.Required {
			required = "Required"
		}
		f.SetCellValue("Instructions", fmt.Sprintf("C%d", row), required)
		f.SetCellValue("Instructions", fmt.Sprintf("D%d", row), col.Example)
	}

	f.SetColWidth("Instructions", "A", "A", 25)
	f.SetColWidth("Instructions", "B", "B", 60)
	f.SetColWidth("Instructions", "C", "C", 15)
	f.SetColWidth("Instructions", "D", "D", 40)

	sheetIdx, _ := f.GetSheetIndex(sheetName)
	f.SetActiveSheet(sheetIdx)

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=products_import_template.xlsx")

	f.Write(c.Writer)
}

// parseCSV parses a CSV file into rows. Files that are not valid
// UTF-8 are re-decoded as Latin-1 before parsing.
func (h *ImportHandler) parseCSV(file io.Reader) ([]map[string]string, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if !utf8.Valid(data) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode file: %w", err)
		}
		data = decoded
	}

	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	normalizeHeaders(headers)

	var rows []map[string]string
	lineNum := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading line %d: %w", lineNum+1, err)
		}

		row := make(map[string]string)
		for i, value := range record {
			if i < len(headers) {
				row[headers[i]] = strings.TrimSpace(value)
			}
		}
		row["_row"] = strconv.Itoa(lineNum + 1) // Track row number for error reporting
		rows = append(rows, row)
		lineNum++
	}

	return rows, nil
}

// parseXLSX parses an Excel file into rows
func (h *ImportHandler) parseXLSX(file io.Reader) ([]map[string]string, error) {
	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}

	sheetName := sheets[0]
	for _, name := range sheets {
		if strings.EqualFold(name, "Products") {
			sheetName = name
			break
		}
	}

	excelRows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}

	if len(excelRows) < 2 {
		return nil, fmt.Errorf("file must have a header row and at least one data row")
	}

	headers := excelRows[0]
	normalizeHeaders(headers)

	var rows []map[string]string
	for rowIdx, excelRow := range excelRows[1:] {
		row := make(map[string]string)
		for i, value := range excelRow {
			if i < len(headers) {
				row[headers[i]] = strings.TrimSpace(value)
			}
		}
		row["_row"] = strconv.Itoa(rowIdx + 2) // 1-indexed, +1 for header
		rows = append(rows, row)
	}

	return rows, nil
}

func (h *ImportHandler) indexArchive(file multipart.File) (*services.ImageIndex, error) {
	data, err := io.ReadAll(io.LimitReader(file, MaxUploadSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	return services.IndexArchive(data)
}

func (h *ImportHandler) errorResponse(c *gin.Context, status int, code, message string) {
	c.JSON(status, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    code,
			Message: message,
		},
	})
}

// parseRunDefaults overlays optional upload form fields on the
// service-wide defaults. It returns nil when no field is set, so runs
// without overrides follow the environment configuration.
func parseRunDefaults(c *gin.Context, base models.RunDefaults) (*models.RunDefaults, error) {
	overridden := false

	if v, ok := c.GetPostForm("vendor"); ok {
		base.Vendor = strings.TrimSpace(v)
		overridden = true
	}
	if v, ok := c.GetPostForm("productType"); ok {
		base.ProductType = strings.TrimSpace(v)
		overridden = true
	}
	if v, ok := c.GetPostForm("price"); ok {
		price, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || price < 0 {
			return nil, fmt.Errorf("invalid price %q", v)
		}
		base.Price = price
		overridden = true
	}
	if v, ok := c.GetPostForm("status"); ok {
		status := strings.ToLower(strings.TrimSpace(v))
		if status != "active" && status != "draft" {
			return nil, fmt.Errorf("status must be active or draft, got %q", v)
		}
		base.Status = status
		overridden = true
	}
	if v, ok := c.GetPostForm("inventoryPolicy"); ok {
		policy := strings.ToLower(strings.TrimSpace(v))
		if policy != "deny" && policy != "continue" {
			return nil, fmt.Errorf("inventoryPolicy must be deny or continue, got %q", v)
		}
		base.InventoryPolicy = policy
		overridden = true
	}
	if v, ok := c.GetPostForm("inventoryQuantity"); ok {
		qty, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || qty < 0 {
			return nil, fmt.Errorf("invalid inventoryQuantity %q", v)
		}
		base.InventoryQuantity = qty
		overridden = true
	}
	if v, ok := c.GetPostForm("maxImages"); ok {
		max, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || max < 0 {
			return nil, fmt.Errorf("invalid maxImages %q", v)
		}
		base.MaxImages = max
		overridden = true
	}

	if !overridden {
		return nil, nil
	}
	return &base, nil
}

// normalizeHeaders strips whitespace and the required marker so
// template downloads round-trip as uploads.
func normalizeHeaders(headers []string) {
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
		headers[i] = strings.TrimSuffix(headers[i], " *")
	}
}

func parseIntQuery(c *gin.Context, key string, defaultValue int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return defaultValue
}
