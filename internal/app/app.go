// Package app assembles the sync pipeline from configuration.
package app

import (
	"catalogsync/internal/config"
	"catalogsync/internal/database"
	"catalogsync/internal/events"
	"catalogsync/internal/logger"
	"catalogsync/internal/metrics"
	"catalogsync/internal/pipeline"
	"catalogsync/internal/reconcile"
	"catalogsync/internal/services/shopify"
	"catalogsync/internal/services/supplier"
	"catalogsync/internal/store"
	"catalogsync/internal/worker/processors/export"
)

// App holds the long-lived components shared by the binaries.
type App struct {
	DB          *database.Database
	Store       *store.CatalogStore
	Coordinator *pipeline.Coordinator
	Exporter    *export.Exporter
	Metrics     *metrics.Registry
	Publisher   *events.Publisher
}

// Build opens the database and wires the pipeline. The publisher is only
// created when Kafka brokers are configured.
func Build(cfg *config.Config, logger *logger.Logger) (*App, error) {
	db, err := database.New(cfg.DatabaseURL, database.Options{
		Driver:   cfg.DatabaseDriver,
		LogLevel: cfg.LogLevel,
	})
	if err != nil {
		return nil, err
	}

	catalog := store.NewCatalogStore(db.DB)
	reg := metrics.NewRegistry()

	fetcher := supplier.NewFetcher(supplier.FetcherConfig{
		LoginURL: cfg.SupplierLoginURL,
		SheetURL: cfg.SupplierSheetURL,
		Username: cfg.SupplierUsername,
		Password: cfg.SupplierPassword,
		Timeout:  cfg.HTTPTimeout,
	}, logger.With("component", "fetcher"))
	transformer := supplier.NewTransformer(supplier.DefaultSchema, logger.With("component", "transformer"))

	client := shopify.NewClient(shopify.Config{
		ShopURL:     cfg.ShopifyShopURL,
		AccessToken: cfg.ShopifyAccessToken,
		APIVersion:  cfg.ShopifyAPIVersion,
		Timeout:     cfg.HTTPTimeout,
	}, logger.With("component", "shopify"))

	engine := reconcile.NewEngine(client, reconcile.Options{
		Vendor:               cfg.VendorName,
		DefaultProductType:   cfg.DefaultProductType,
		StockQuantity:        cfg.DefaultStockQuantity,
		Delay:                cfg.SyncDelay,
		Workers:              cfg.SyncWorkers,
		FullBatchSize:        cfg.FullBatchSize,
		IncrementalBatchSize: cfg.IncrementalBatchSize,
		OperationTimeout:     cfg.ProductTimeout,
		RequireImage:         cfg.RequireImage,
	}, logger.With("component", "reconcile"))

	opts := []pipeline.Option{
		pipeline.WithSource(fetcher, transformer),
		pipeline.WithMetrics(reg),
		pipeline.WithProductFilter(store.ProductFilter{RequireImage: cfg.RequireImage}),
	}

	var publisher *events.Publisher
	if cfg.KafkaEnabled() {
		publisher = events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaRequestTopic, cfg.KafkaOutcomeTopic, logger)
		opts = append(opts, pipeline.WithPublisher(publisher))
	}

	exporter := export.New(catalog, export.Options{
		Vendor:             cfg.VendorName,
		DefaultProductType: cfg.DefaultProductType,
		StockQuantity:      cfg.DefaultStockQuantity,
	}, logger.With("component", "export"))

	return &App{
		DB:          db,
		Store:       catalog,
		Coordinator: pipeline.NewCoordinator(catalog, engine, logger, opts...),
		Exporter:    exporter,
		Metrics:     reg,
		Publisher:   publisher,
	}, nil
}

// Close releases the publisher and the database.
func (a *App) Close() error {
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			a.DB.Close()
			return err
		}
	}
	return a.DB.Close()
}
