package handler

import (
	"net/http"
	"sync"

	"catalogsync/internal/api"
	"catalogsync/internal/api/handlers"
	"catalogsync/internal/config"
	"catalogsync/internal/database"
	"catalogsync/internal/events"
	"catalogsync/internal/logger"
)

var (
	initOnce sync.Once
	router   http.Handler
	initErr  error
)

// initServer builds the read API once per serverless instance.
func initServer() {
	cfg, err := config.Load()
	if err != nil {
		initErr = err
		return
	}

	log := logger.New(cfg.LogLevel, "json")

	db, err := database.New(cfg.DatabaseURL, database.Options{
		Driver:   cfg.DatabaseDriver,
		LogLevel: cfg.LogLevel,
	})
	if err != nil {
		initErr = err
		return
	}

	var requester handlers.SyncRequester
	if cfg.KafkaEnabled() {
		requester = events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaRequestTopic, cfg.KafkaOutcomeTopic, log)
	}

	router = api.New(cfg, log, db, nil, requester).Router()
}

// Handler is the Vercel entrypoint.
func Handler(w http.ResponseWriter, r *http.Request) {
	initOnce.Do(initServer)
	if initErr != nil {
		http.Error(w, "service unavailable: "+initErr.Error(), http.StatusServiceUnavailable)
		return
	}
	router.ServeHTTP(w, r)
}
