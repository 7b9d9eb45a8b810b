package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"catalogsync/internal/app"
	"catalogsync/internal/config"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"
)

func main() {
	modeFlag := flag.String("mode", "incremental", "sync mode: full (alias initial) or incremental")
	skipIngest := flag.Bool("skip-ingest", false, "reconcile the stored catalog without downloading the supplier sheet")
	ingestOnly := flag.Bool("ingest-only", false, "download and store the supplier sheet, then stop")
	exportDir := flag.String("export", "", "write the bulk-import CSV into this directory instead of syncing")
	flag.Parse()

	mode, err := models.ParseSyncMode(*modeFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel, cfg.LogEncoding)
	defer logger.Sync()

	a, err := app.Build(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize pipeline: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, a, mode, *skipIngest, *ingestOnly, *exportDir, logger)
	stop()
	a.Close()
	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app.App, mode models.SyncMode, skipIngest, ingestOnly bool, exportDir string, logger *logger.Logger) error {
	switch {
	case exportDir != "":
		path, n, err := a.Exporter.ExportToFile(ctx, exportDir)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		logger.Info("Wrote %d products to %s", n, path)
		return nil
	case ingestOnly:
		report, err := a.Coordinator.Ingest(ctx)
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
		logger.Info("Ingested %d products (%d skipped, %d rejected)", len(report.Products), report.Skipped, report.Rejected)
		return nil
	}

	var outcome *models.SyncOutcome
	var err error
	if skipIngest {
		outcome, err = a.Coordinator.Run(ctx, mode)
	} else {
		outcome, err = a.Coordinator.Sync(ctx, mode)
	}
	if err != nil {
		return fmt.Errorf("%s sync failed: %w", mode, err)
	}

	logger.Info("%s sync finished with %s: %d added, %d updated, %d failed",
		mode, outcome.Status, outcome.ProductsAdded, outcome.ProductsUpdated, outcome.ProductsFailed)
	return nil
}
