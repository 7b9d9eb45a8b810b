package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DatabaseURL    string
	DatabaseDriver string

	// Kafka
	KafkaBrokers      []string
	KafkaGroupID      string
	KafkaRequestTopic string
	KafkaOutcomeTopic string

	// API Configuration
	APIPort            string
	APIHost            string
	CORSAllowedOrigins []string

	// Supplier spreadsheet
	SupplierUsername string
	SupplierPassword string
	SupplierLoginURL string
	SupplierSheetURL string
	VendorName       string

	// Shopify
	ShopifyShopURL     string
	ShopifyAccessToken string
	ShopifyAPIVersion  string

	// Sync
	SyncTimes            []string
	SyncDelay            time.Duration
	SyncWorkers          int
	FullBatchSize        int
	IncrementalBatchSize int
	ProductTimeout       time.Duration
	HTTPTimeout          time.Duration
	DefaultStockQuantity int
	DefaultProductType   string
	RequireImage         bool

	// Export
	ExportDir string

	// MetricsAddr is where the worker serves Prometheus metrics; empty disables it.
	MetricsAddr string

	// Environment
	Env         string
	LogLevel    string
	LogEncoding string
}

func Load() (*Config, error) {
	// Load .env file
	godotenv.Load()

	cfg := &Config{
		DatabaseURL:          getEnv("DATABASE_URL", "sqlite://catalogsync.db"),
		DatabaseDriver:       getEnv("DB_DRIVER", "pgx"),
		KafkaBrokers:         getEnvAsList("KAFKA_BROKERS", nil),
		KafkaGroupID:         getEnv("KAFKA_GROUP_ID", "catalogsync-worker"),
		KafkaRequestTopic:    getEnv("KAFKA_REQUEST_TOPIC", "catalog-sync-requests"),
		KafkaOutcomeTopic:    getEnv("KAFKA_OUTCOME_TOPIC", "catalog-sync-outcomes"),
		APIPort:              getEnv("API_PORT", "8080"),
		APIHost:              getEnv("API_HOST", "0.0.0.0"),
		CORSAllowedOrigins:   getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		SupplierUsername:     getEnv("INSIZE_USERNAME", ""),
		SupplierPassword:     getEnv("INSIZE_PASSWORD", ""),
		SupplierLoginURL:     getEnv("INSIZE_LOGIN_URL", "https://eshop.insize-eu.com/documentacion.php"),
		SupplierSheetURL:     getEnv("INSIZE_EXCEL_URL", ""),
		VendorName:           getEnv("VENDOR_NAME", "INSIZE"),
		ShopifyShopURL:       getEnv("SHOPIFY_SHOP_URL", ""),
		ShopifyAccessToken:   getEnv("SHOPIFY_ACCESS_TOKEN", ""),
		ShopifyAPIVersion:    getEnv("SHOPIFY_API_VERSION", "2024-01"),
		SyncTimes:            syncTimes(),
		SyncDelay:            getEnvAsDuration("SYNC_DELAY", 500*time.Millisecond),
		SyncWorkers:          getEnvAsInt("SYNC_WORKERS", 1),
		FullBatchSize:        getEnvAsInt("SYNC_FULL_BATCH_SIZE", 1000),
		IncrementalBatchSize: getEnvAsInt("SYNC_INCREMENTAL_BATCH_SIZE", 50),
		ProductTimeout:       getEnvAsDuration("SYNC_PRODUCT_TIMEOUT", 60*time.Second),
		HTTPTimeout:          getEnvAsDuration("HTTP_TIMEOUT", 30*time.Second),
		DefaultStockQuantity: getEnvAsInt("DEFAULT_STOCK_QUANTITY", 100),
		DefaultProductType:   getEnv("DEFAULT_PRODUCT_TYPE", "Measuring Tools"),
		RequireImage:         getEnvAsBool("SYNC_REQUIRE_IMAGE", false),
		ExportDir:            getEnv("EXPORT_DIR", "shopify_exports"),
		MetricsAddr:          getEnv("METRICS_ADDR", ":9091"),
		Env:                  getEnv("ENV", "development"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogEncoding:          getEnv("LOG_ENCODING", "console"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	for _, t := range c.SyncTimes {
		if _, _, err := ParseClock(t); err != nil {
			return err
		}
	}
	if c.SyncWorkers < 1 {
		return fmt.Errorf("SYNC_WORKERS must be at least 1, got %d", c.SyncWorkers)
	}
	if c.FullBatchSize < 1 || c.IncrementalBatchSize < 1 {
		return fmt.Errorf("batch sizes must be positive (full=%d, incremental=%d)", c.FullBatchSize, c.IncrementalBatchSize)
	}
	if c.SyncDelay < 0 {
		return fmt.Errorf("SYNC_DELAY must not be negative")
	}
	if c.DefaultStockQuantity < 0 {
		return fmt.Errorf("DEFAULT_STOCK_QUANTITY must not be negative")
	}
	switch c.DatabaseDriver {
	case "pgx", "pq":
	default:
		return fmt.Errorf("DB_DRIVER must be pgx or pq, got %q", c.DatabaseDriver)
	}
	return nil
}

// KafkaEnabled reports whether brokers are configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// ParseClock parses an "HH:MM" daily time.
func ParseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid sync time %q, want HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in sync time %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in sync time %q", s)
	}
	return hour, minute, nil
}

// syncTimes reads SYNC_TIMES as a list, falling back to SYNC_TIME_1/SYNC_TIME_2.
func syncTimes() []string {
	if times := getEnvAsList("SYNC_TIMES", nil); len(times) > 0 {
		return times
	}
	var times []string
	for _, key := range []string{"SYNC_TIME_1", "SYNC_TIME_2"} {
		if v := getEnv(key, ""); v != "" {
			times = append(times, v)
		}
	}
	if len(times) == 0 {
		return []string{"06:00", "18:00"}
	}
	return times
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
