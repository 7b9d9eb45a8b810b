package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"catalogsync/internal/api/handlers"
	"catalogsync/internal/api/middleware"
	"catalogsync/internal/config"
	"catalogsync/internal/database"
	"catalogsync/internal/logger"
	"catalogsync/internal/metrics"
	"catalogsync/internal/store"
	"catalogsync/internal/worker/processors/export"

	"github.com/gin-gonic/gin"
)

type Server struct {
	config *config.Config
	logger *logger.Logger
	db     *database.Database
	router *gin.Engine
	server *http.Server
}

// New wires the read API. requester may be nil, which disables the
// trigger endpoints.
func New(cfg *config.Config, logger *logger.Logger, db *database.Database, reg *metrics.Registry, requester handlers.SyncRequester) *Server {
	// Set Gin mode
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	catalog := store.NewCatalogStore(db.DB)
	exporter := export.New(catalog, export.Options{
		Vendor:             cfg.VendorName,
		DefaultProductType: cfg.DefaultProductType,
		StockQuantity:      cfg.DefaultStockQuantity,
	}, logger)

	// Initialize handlers
	productHandler := handlers.NewProductHandler(catalog, logger)
	syncHandler := handlers.NewSyncHandler(catalog, requester, exporter, logger)

	s := &Server{
		config: cfg,
		logger: logger,
		db:     db,
		router: router,
	}

	router.GET("/healthz", s.health)
	if reg != nil {
		router.GET("/metrics", gin.WrapH(reg.Handler()))
	}

	// Routes
	v1 := router.Group("/api/v1")
	{
		// Products
		products := v1.Group("/products")
		{
			products.GET("", productHandler.List)
			products.GET("/:sku", productHandler.Get)
		}

		// Sync runs
		syncs := v1.Group("/syncs")
		{
			syncs.GET("", syncHandler.ListOutcomes)
			syncs.POST("", syncHandler.Trigger)
		}

		// Bulk-import export
		exports := v1.Group("/export")
		{
			exports.GET("/products.csv", syncHandler.DownloadExport)
			exports.POST("", syncHandler.RequestExport)
		}
	}

	return s
}

func (s *Server) health(c *gin.Context) {
	sqlDB, err := s.db.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		s.logger.Error("Health check failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%s", s.config.APIHost, s.config.APIPort)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting server on %s", addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the handler for tests and embedding.
func (s *Server) Router() *gin.Engine {
	return s.router
}
