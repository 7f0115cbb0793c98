package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"shopify-import-service/internal/clients"
	"shopify-import-service/internal/clients/shopify"
	"shopify-import-service/internal/config"
	"shopify-import-service/internal/database"
	"shopify-import-service/internal/handlers"
	"shopify-import-service/internal/middleware"
	"shopify-import-service/internal/models"
	"shopify-import-service/internal/repository"
	"shopify-import-service/internal/secrets"
	"shopify-import-service/internal/services"
)

func main() {
	// Load .env if present, environment wins otherwise
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Environment == "development" {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto-migrate models
	if err := db.AutoMigrate(
		&models.ImportRun{},
		&models.ImportOutcome{},
	); err != nil {
		log.Printf("Warning: Auto-migration failed: %v", err)
	}
	log.Println("Database models migrated")

	// Resolve the access token, from Secret Manager when configured
	accessToken := cfg.ShopifyToken
	if cfg.ShopifyTokenSecret != "" {
		ctx := context.Background()
		secretManager, err := secrets.NewGCPSecretManager(ctx, cfg.GCPProjectID)
		if err != nil {
			log.Fatalf("Failed to initialize GCP Secret Manager: %v", err)
		}
		defer secretManager.Close()

		creds, err := secretManager.GetShopifyCredentials(ctx, cfg.ShopifyTokenSecret)
		if err != nil {
			log.Fatalf("Failed to fetch store credentials: %v", err)
		}
		accessToken = creds.AccessToken
		log.Println("Store credentials loaded from Secret Manager")
	}

	shopifyClient := shopify.NewClient(
		cfg.ShopifyStore,
		accessToken,
		cfg.ShopifyAPIVersion,
		cfg.ConnectTimeout,
		cfg.ReadTimeout,
	)

	// Initialize repositories and services
	importRepo := repository.NewImportRepository(db)
	retrier := clients.NewRetrier(clients.DefaultRetryConfig())
	defaults := models.RunDefaults{
		Vendor:            cfg.DefaultVendor,
		ProductType:       cfg.DefaultProductType,
		Price:             cfg.DefaultPrice,
		Status:            cfg.DefaultStatus,
		InventoryPolicy:   cfg.InventoryPolicy,
		InventoryQuantity: cfg.InventoryQuantity,
		MaxImages:         cfg.MaxImagesPerRow,
	}
	importService := services.NewImportService(importRepo, shopifyClient, retrier, defaults, cfg.RunTimeout, logger)
	importService.SetRunSemaphore(services.NewRunSemaphore(cfg.MaxConcurrentRuns))

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db)
	importHandler := handlers.NewImportHandler(importService)
	connectionHandler := handlers.NewConnectionHandler(shopifyClient)

	// Setup router
	router := setupRouter(cfg, logger, healthHandler, importHandler, connectionHandler)

	// Start server
	log.Printf("Shopify Import Service starting on port %s (env: %s, store: %s)", cfg.Port, cfg.Environment, cfg.ShopifyStore)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// setupRouter configures the HTTP router
func setupRouter(
	cfg *config.Config,
	logger *logrus.Logger,
	healthHandler *handlers.HealthHandler,
	importHandler *handlers.ImportHandler,
	connectionHandler *handlers.ConnectionHandler,
) *gin.Engine {
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.MaxMultipartMemory = handlers.MaxUploadSize

	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.SecurityHeaders())

	origins := cfg.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{
			"http://localhost:3000",
			"http://localhost:3001",
		}
	}
	router.Use(middleware.CORS(origins))

	// Health check
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		imports := v1.Group("/imports")
		{
			imports.GET("", importHandler.ListImports)
			imports.POST("", importHandler.CreateImport)
			imports.GET("/template", importHandler.GetImportTemplate)
			imports.GET("/:id", importHandler.GetImport)
			imports.GET("/:id/outcomes", importHandler.GetOutcomes)
			imports.GET("/:id/outcomes.csv", importHandler.DownloadOutcomesCSV)
			imports.POST("/:id/cancel", importHandler.CancelImport)
		}

		v1.POST("/connection/test", connectionHandler.TestConnection)
	}

	return router
}
