package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"catalogsync/internal/events"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/store"
	"catalogsync/internal/worker/processors/export"

	"github.com/gin-gonic/gin"
)

// SyncRequester hands run requests to the worker.
type SyncRequester interface {
	PublishSyncRequest(ctx context.Context, mode models.SyncMode, skipIngest bool) (events.Event, error)
	PublishExportRequest(ctx context.Context, path string) (events.Event, error)
}

type SyncHandler struct {
	store     *store.CatalogStore
	requester SyncRequester
	exporter  *export.Exporter
	logger    *logger.Logger
}

// NewSyncHandler builds the handler. requester may be nil when no broker
// is configured; trigger endpoints then answer 503.
func NewSyncHandler(store *store.CatalogStore, requester SyncRequester, exporter *export.Exporter, logger *logger.Logger) *SyncHandler {
	return &SyncHandler{
		store:     store,
		requester: requester,
		exporter:  exporter,
		logger:    logger,
	}
}

type triggerRequest struct {
	Mode       string `json:"mode"`
	SkipIngest bool   `json:"skip_ingest"`
}

func (h *SyncHandler) ListOutcomes(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > maxPageSize {
		limit = 50
	}

	outcomes, err := h.store.ListSyncOutcomes(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list sync outcomes: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sync outcomes"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": outcomes})
}

func (h *SyncHandler) Trigger(c *gin.Context) {
	if h.requester == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Sync requests are disabled: no broker configured"})
		return
	}

	var req triggerRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	mode, err := models.ParseSyncMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := h.requester.PublishSyncRequest(c.Request.Context(), mode, req.SkipIngest)
	if err != nil {
		h.logger.Error("Failed to publish sync request: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to queue sync request"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"data": gin.H{
			"event_id":    event.ID,
			"mode":        mode,
			"skip_ingest": req.SkipIngest,
		},
	})
}

// RequestExport asks the worker to write the bulk-import file to its export directory.
func (h *SyncHandler) RequestExport(c *gin.Context) {
	if h.requester == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Export requests are disabled: no broker configured"})
		return
	}

	event, err := h.requester.PublishExportRequest(c.Request.Context(), "")
	if err != nil {
		h.logger.Error("Failed to publish export request: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to queue export request"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"data": gin.H{"event_id": event.ID}})
}

// DownloadExport streams the bulk-import CSV directly.
func (h *SyncHandler) DownloadExport(c *gin.Context) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName))
	c.Status(http.StatusOK)

	n, err := h.exporter.Write(c.Request.Context(), c.Writer)
	if err != nil {
		// Headers are already sent; the truncated body is all we can do.
		h.logger.Error("Failed to stream export after %d products: %v", n, err)
		_ = c.Error(err)
		return
	}
	h.logger.Debug("Streamed export of %d products", n)
}
