package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"catalogsync/internal/logger"
	"catalogsync/internal/store"

	"github.com/gin-gonic/gin"
)

const maxPageSize = 200

type ProductHandler struct {
	store  *store.CatalogStore
	logger *logger.Logger
}

func NewProductHandler(store *store.CatalogStore, logger *logger.Logger) *ProductHandler {
	return &ProductHandler{
		store:  store,
		logger: logger,
	}
}

func (h *ProductHandler) List(c *gin.Context) {
	// Pagination
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxPageSize {
		limit = 20
	}

	// Filters
	withImage, _ := strconv.ParseBool(c.DefaultQuery("with_image", "false"))
	filter := store.ProductFilter{
		RequireImage: withImage,
		Category:     strings.TrimSpace(c.Query("category")),
		Search:       strings.TrimSpace(c.Query("search")),
	}

	total, err := h.store.CountProducts(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to count products: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch products"})
		return
	}

	filter.Limit = limit
	filter.Offset = (page - 1) * limit
	products, err := h.store.AllProducts(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list products: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch products"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": products,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

func (h *ProductHandler) Get(c *gin.Context) {
	sku := c.Param("sku")

	product, err := h.store.GetProduct(c.Request.Context(), sku)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		h.logger.Error("Failed to fetch product %s: %v", sku, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch product"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": product})
}
