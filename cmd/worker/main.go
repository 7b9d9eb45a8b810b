package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalogsync/internal/app"
	"catalogsync/internal/config"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/worker"
	"catalogsync/internal/worker/processors"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel, cfg.LogEncoding)
	defer logger.Sync()

	// Wire the pipeline
	a, err := app.Build(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize pipeline: %v", err)
	}
	defer a.Close()

	processor := processors.NewEventProcessor(a.Coordinator, a.Exporter, cfg.ExportDir, logger)

	// Initialize worker
	w := worker.New(cfg, logger, processor)
	if err := w.Schedule(cfg.SyncTimes, models.SyncModeIncremental); err != nil {
		logger.Fatal("Failed to schedule syncs: %v", err)
	}

	// Expose run metrics
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           a.Metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("Serving metrics on %s", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed: %v", err)
			}
		}()
	}

	// Start worker
	logger.Info("Starting worker...")
	go w.Start()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	w.Stop()

	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsServer.Shutdown(ctx)
	}
}
