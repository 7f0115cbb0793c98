package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the import service
type Config struct {
	// Server
	Port               string
	Environment        string
	CORSAllowedOrigins []string

	// Database
	DatabaseURL string

	// Shopify
	ShopifyStore      string // normalized bare host
	ShopifyToken      string
	ShopifyAPIVersion string
	ConnectTimeout    time.Duration
	ReadTimeout       time.Duration
	RunTimeout        time.Duration
	MaxConcurrentRuns int

	// GCP (optional, for fetching the access token from Secret Manager)
	GCPProjectID       string
	ShopifyTokenSecret string

	// Run defaults applied to every created product
	DefaultVendor      string
	DefaultProductType string
	DefaultPrice       float64
	DefaultStatus      string
	InventoryPolicy    string
	InventoryQuantity  int
	MaxImagesPerRow    int
}

// Load loads configuration from environment variables
func Load() *Config {
	databaseURL := getEnv("DATABASE_URL", "")
	if databaseURL == "" {
		dbHost := getEnv("DB_HOST", "localhost")
		dbPort := getEnv("DB_PORT", "5432")
		dbUser := getEnv("DB_USER", "postgres")
		dbPassword := getEnv("DB_PASSWORD", "postgres")
		dbName := getEnv("DB_NAME", "shopify_import")
		dbSSLMode := getEnv("DB_SSLMODE", "disable")

		databaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			dbUser, dbPassword, dbHost, dbPort, dbName, dbSSLMode)
	}

	config := &Config{
		Port:               getEnv("PORT", "8105"),
		Environment:        getEnv("ENVIRONMENT", "development"),
		CORSAllowedOrigins: splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "")),
		DatabaseURL:        databaseURL,

		// Shopify
		ShopifyStore:      NormalizeStoreHost(getEnv("SHOPIFY_STORE", "")),
		ShopifyToken:      getEnv("SHOPIFY_TOKEN", ""),
		ShopifyAPIVersion: getEnv("SHOPIFY_API_VERSION", "2024-07"),
		ConnectTimeout:    getEnvAsDuration("SHOPIFY_CONNECT_TIMEOUT", 10*time.Second),
		ReadTimeout:       getEnvAsDuration("SHOPIFY_READ_TIMEOUT", 180*time.Second),
		RunTimeout:        getEnvAsDuration("IMPORT_RUN_TIMEOUT", 2*time.Hour),
		MaxConcurrentRuns: getEnvAsInt("MAX_CONCURRENT_RUNS", 2),

		// GCP
		GCPProjectID:       getEnv("GCP_PROJECT_ID", ""),
		ShopifyTokenSecret: getEnv("SHOPIFY_TOKEN_SECRET_NAME", ""),

		// Run defaults
		DefaultVendor:      getEnv("DEFAULT_VENDOR", "Default"),
		DefaultProductType: getEnv("DEFAULT_PRODUCT_TYPE", ""),
		DefaultPrice:       getEnvAsFloat("DEFAULT_PRICE", 0.0),
		DefaultStatus:      getEnv("DEFAULT_STATUS", "active"),
		InventoryPolicy:    getEnv("INVENTORY_POLICY", "deny"),
		InventoryQuantity:  getEnvAsInt("INVENTORY_QUANTITY", 0),
		MaxImagesPerRow:    getEnvAsInt("MAX_IMAGES_PER_PRODUCT", 10),
	}

	// Validate required fields
	if config.ShopifyStore == "" {
		log.Fatal("SHOPIFY_STORE is required")
	}
	if !ValidStoreHost(config.ShopifyStore) {
		log.Fatalf("SHOPIFY_STORE %q does not look like a store host", config.ShopifyStore)
	}
	if config.ShopifyToken == "" && config.ShopifyTokenSecret == "" {
		log.Fatal("SHOPIFY_TOKEN or SHOPIFY_TOKEN_SECRET_NAME is required")
	}
	if config.ShopifyTokenSecret != "" && config.GCPProjectID == "" {
		log.Fatal("GCP_PROJECT_ID is required when SHOPIFY_TOKEN_SECRET_NAME is set")
	}

	return config
}

// NormalizeStoreHost reduces a pasted store URL to its bare host:
// scheme, trailing slashes, and an "/admin" suffix are stripped.
func NormalizeStoreHost(store string) string {
	host := strings.TrimSpace(store)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimRight(host, "/")
	host = strings.TrimSuffix(host, "/admin")
	return strings.TrimRight(host, "/")
}

// ValidStoreHost reports whether host is plausibly a Shopify store
// host, either a custom domain or a *.myshopify.com subdomain.
func ValidStoreHost(host string) bool {
	if host == "" {
		return false
	}
	return strings.Contains(host, ".") || strings.HasSuffix(host, ".myshopify.com")
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}
