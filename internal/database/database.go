package database

import (
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	DB *gorm.DB
}

// Options tunes how the connection is opened.
type Options struct {
	// Driver selects the database/sql driver behind the postgres dialector:
	// "pgx" (default) or "pq".
	Driver   string
	LogLevel string
}

// schema is portable between PostgreSQL and SQLite.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		sku VARCHAR(255) PRIMARY KEY,
		title TEXT,
		description TEXT,
		price DECIMAL(12,2),
		original_price DECIMAL(12,2),
		discount_percent DECIMAL(5,2),
		availability VARCHAR(64),
		measuring_range VARCHAR(255),
		reading VARCHAR(255),
		family VARCHAR(255),
		weight VARCHAR(64),
		dimensions VARCHAR(255),
		category VARCHAR(255),
		subcategory VARCHAR(255),
		image_url TEXT,
		product_url TEXT,
		last_updated TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_last_updated ON products (last_updated)`,
	`CREATE TABLE IF NOT EXISTS sync_outcomes (
		id VARCHAR(36) PRIMARY KEY,
		sync_time TIMESTAMP NOT NULL,
		mode VARCHAR(16),
		products_updated INTEGER NOT NULL DEFAULT 0,
		products_added INTEGER NOT NULL DEFAULT 0,
		products_failed INTEGER NOT NULL DEFAULT 0,
		status VARCHAR(32) NOT NULL,
		error_message TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_outcomes_sync_time ON sync_outcomes (sync_time)`,
}

func New(databaseURL string, opts ...Options) (*Database, error) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(o.LogLevel)),
	}

	var db *gorm.DB
	var err error

	if strings.HasPrefix(databaseURL, "sqlite://") {
		// SQLite for development
		dbPath := strings.TrimPrefix(databaseURL, "sqlite://")
		db, err = gorm.Open(sqlite.Open(dbPath), gormConfig)
	} else if o.Driver == "pq" {
		db, err = gorm.Open(postgres.New(postgres.Config{
			DriverName: "postgres",
			DSN:        databaseURL,
		}), gormConfig)
	} else {
		// PostgreSQL for production
		db, err = gorm.Open(postgres.Open(databaseURL), gormConfig)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return &Database{DB: db}, nil
}

// Migrate creates the tables when they do not exist yet.
func Migrate(db *gorm.DB) error {
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logger.Info
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
