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

	"catalogsync/internal/api"
	"catalogsync/internal/api/handlers"
	"catalogsync/internal/config"
	"catalogsync/internal/database"
	"catalogsync/internal/events"
	"catalogsync/internal/logger"
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

	// Initialize database
	db, err := database.New(cfg.DatabaseURL, database.Options{
		Driver:   cfg.DatabaseDriver,
		LogLevel: cfg.LogLevel,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run requests go to the worker over Kafka when it is configured.
	var requester handlers.SyncRequester
	if cfg.KafkaEnabled() {
		publisher := events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaRequestTopic, cfg.KafkaOutcomeTopic, logger)
		defer publisher.Close()
		requester = publisher
	} else {
		logger.Warn("KAFKA_BROKERS not set, sync trigger endpoints are disabled")
	}

	// Initialize API server. Run metrics are served by the worker.
	server := api.New(cfg, logger, db, nil, requester)

	// Start server
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Error("Server shutdown failed: %v", err)
	}
}
