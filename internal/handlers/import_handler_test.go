package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"shopify-import-service/internal/clients"
	"shopify-import-service/internal/models"
	"shopify-import-service/internal/repository"
	"shopify-import-service/internal/services"
)

type fakeCommerceClient struct {
	created int
	failAll bool
}

func (f *fakeCommerceClient) CreateProduct(ctx context.Context, payload *clients.ProductPayload) (*clients.Product, error) {
	if f.failAll {
		return nil, &clients.APIError{StatusCode: 500, Method: "POST", Path: "/products.json"}
	}
	f.created++
	return &clients.Product{ID: int64(f.created), Title: payload.Title, Handle: payload.Handle}, nil
}

func (f *fakeCommerceClient) UpdateProductSEO(ctx context.Context, productID int64, seoTitle, seoDescription string) error {
	return nil
}

func (f *fakeCommerceClient) AttachImage(ctx context.Context, productID int64, image *clients.ImagePayload) error {
	return nil
}

func (f *fakeCommerceClient) GetShop(ctx context.Context) (*clients.Shop, error) {
	return &clients.Shop{ID: 1, Name: "Test Shop", Domain: "test-shop.myshopify.com"}, nil
}

func setupTestRouter(t *testing.T) (*gin.Engine, *repository.ImportRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.ImportRun{}, &models.ImportOutcome{}))

	repo := repository.NewImportRepository(db)
	retrier := clients.NewRetrier(&clients.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		BackoffFactor:  2.0,
	})
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	svc := services.NewImportService(repo, &fakeCommerceClient{}, retrier, models.RunDefaults{
		Vendor: "Acme", Price: 1.0, Status: "active", InventoryPolicy: "deny", MaxImages: 10,
	}, time.Minute, log)

	importHandler := NewImportHandler(svc)
	connectionHandler := NewConnectionHandler(&fakeCommerceClient{})
	healthHandler := NewHealthHandler(db)

	router := gin.New()
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)
	v1 := router.Group("/api/v1")
	imports := v1.Group("/imports")
	imports.GET("", importHandler.ListImports)
	imports.POST("", importHandler.CreateImport)
	imports.GET("/template", importHandler.GetImportTemplate)
	imports.GET("/:id", importHandler.GetImport)
	imports.GET("/:id/outcomes", importHandler.GetOutcomes)
	imports.GET("/:id/outcomes.csv", importHandler.DownloadOutcomesCSV)
	v1.POST("/connection/test", connectionHandler.TestConnection)

	return router, repo
}

func multipartUpload(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, value := range fields {
		require.NoError(t, w.WriteField(name, value))
	}
	for filename, content := range files {
		field := "file"
		if filename == "images.zip" {
			field = "images"
		}
		fw, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func waitForCompletion(t *testing.T, repo *repository.ImportRepository, id uuid.UUID) *models.ImportRun {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		run, err := repo.GetRunByID(context.Background(), id)
		require.NoError(t, err)
		if run.Status != models.RunStatusRunning {
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("run did not finish in time")
	return nil
}

func TestCreateImportCSV(t *testing.T) {
	router, repo := setupTestRouter(t)

	csvBody := "Product Title,SKU,Tags\nRed Mug,MUG01,\"kitchen, ceramic\"\n,NOPE,\n"
	body, contentType := multipartUpload(t, nil, map[string][]byte{"products.csv": []byte(csvBody)})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Success bool             `json:"success"`
		Run     models.ImportRun `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "products.csv", resp.Run.SpreadsheetName)

	run := waitForCompletion(t, repo, resp.Run.ID)
	assert.Equal(t, models.RunStatusCompleted, run.Status)

	progress := run.GetProgress()
	assert.Equal(t, 2, progress.TotalRows)
	assert.Equal(t, 1, progress.CreatedRows)
	assert.Equal(t, 1, progress.SkippedRows)
}

func TestCreateImportWithArchive(t *testing.T) {
	router, repo := setupTestRouter(t)

	var zipBuf bytes.Buffer
	zw := zip.NewWriter(&zipBuf)
	f, err := zw.Create("MUG01-hero.jpg")
	require.NoError(t, err)
	_, err = f.Write([]byte("img"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	body, contentType := multipartUpload(t, nil, map[string][]byte{
		"products.csv": []byte("Product Title,SKU\nRed Mug,MUG01\n"),
		"images.zip":   zipBuf.Bytes(),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Run models.ImportRun `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Run.IndexedImages)
	assert.Equal(t, "images.zip", resp.Run.ArchiveName)

	run := waitForCompletion(t, repo, resp.Run.ID)
	assert.Equal(t, 1, run.GetProgress().ImagesAttached)
}

func TestCreateImportInvalidArchive(t *testing.T) {
	router, _ := setupTestRouter(t)

	body, contentType := multipartUpload(t, nil, map[string][]byte{
		"products.csv": []byte("Product Title\nRed Mug\n"),
		"images.zip":   []byte("not a zip"),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_ARCHIVE", resp.Error.Code)
}

func TestCreateImportLatin1CSV(t *testing.T) {
	router, repo := setupTestRouter(t)

	// "Café" encoded as Latin-1, invalid as UTF-8
	csvBody := append([]byte("Product Title\nCaf"), 0xE9, '\n')
	body, contentType := multipartUpload(t, nil, map[string][]byte{"products.csv": csvBody})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Run models.ImportRun `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	run := waitForCompletion(t, repo, resp.Run.ID)
	outcomes, err := repo.ListOutcomes(context.Background(), run.ID, repository.OutcomeListOptions{})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "Café", outcomes[0].Title)
}

func TestCreateImportRejectsUnknownFormat(t *testing.T) {
	router, _ := setupTestRouter(t)

	body, contentType := multipartUpload(t, nil, map[string][]byte{"products.pdf": []byte("nope")})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_FORMAT", resp.Error.Code)
}

func TestCreateImportRequiresFile(t *testing.T) {
	router, _ := setupTestRouter(t)

	body, contentType := multipartUpload(t, map[string]string{"validateOnly": "true"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetImportAndOutcomes(t *testing.T) {
	router, repo := setupTestRouter(t)

	body, contentType := multipartUpload(t, nil, map[string][]byte{
		"products.csv": []byte("Product Title\nRed Mug\n"),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var created struct {
		Run models.ImportRun `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	waitForCompletion(t, repo, created.Run.ID)

	// GET run
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/imports/"+created.Run.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// GET outcomes
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/imports/"+created.Run.ID.String()+"/outcomes", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var outcomesResp struct {
		Outcomes []models.ImportOutcome `json:"outcomes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcomesResp))
	require.Len(t, outcomesResp.Outcomes, 1)
	assert.Equal(t, models.OutcomeCreated, outcomesResp.Outcomes[0].Status)

	// CSV report
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/imports/"+created.Run.ID.String()+"/outcomes.csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Body.String(), "created")
	assert.Contains(t, rec.Body.String(), "Red Mug")
}

func TestGetImportNotFound(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/imports/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/imports/not-a-uuid", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetImportTemplate(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/imports/template", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Template models.ImportTemplate `json:"template"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Template.Columns, 8)
	assert.Equal(t, "Product Title", resp.Template.Columns[0].Name)
	assert.True(t, resp.Template.Columns[0].Required)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/imports/template?format=csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Product Title")
}

func TestTestConnection(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/connection/test", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Test Shop")
}

func TestHealthEndpoints(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateImportDefaultsOverride(t *testing.T) {
	router, repo := setupTestRouter(t)

	fields := map[string]string{
		"vendor": "Override Co",
		"price":  "4.50",
		"status": "draft",
	}
	body, contentType := multipartUpload(t, fields, map[string][]byte{
		"products.csv": []byte("Product Title\nRed Mug\n"),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Run models.ImportRun `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	run := waitForCompletion(t, repo, resp.Run.ID)

	assert.Equal(t, "Override Co", run.Defaults["vendor"])
	assert.Equal(t, "draft", run.Defaults["status"])
	assert.InDelta(t, 4.5, run.Defaults["price"], 0.001)
}

func TestCreateImportRejectsInvalidDefaults(t *testing.T) {
	router, _ := setupTestRouter(t)

	cases := map[string]map[string]string{
		"bad price":  {"price": "free"},
		"bad status": {"status": "published"},
		"bad policy": {"inventoryPolicy": "allow"},
		"bad cap":    {"maxImages": "-3"},
	}
	for name, fields := range cases {
		t.Run(name, func(t *testing.T) {
			body, contentType := multipartUpload(t, fields, map[string][]byte{
				"products.csv": []byte("Product Title\nRed Mug\n"),
			})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			var resp models.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "INVALID_DEFAULTS", resp.Error.Code)
		})
	}
}

func TestDownloadOutcomesCSVNotFound(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/imports/"+uuid.NewString()+"/outcomes.csv", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "RUN_NOT_FOUND", resp.Error.Code)
}
