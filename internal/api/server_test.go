package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"catalogsync/internal/api/handlers"
	"catalogsync/internal/config"
	"catalogsync/internal/database"
	"catalogsync/internal/events"
	"catalogsync/internal/logger"
	"catalogsync/internal/metrics"
	"catalogsync/internal/models"
	"catalogsync/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRequester struct {
	modes []models.SyncMode
	skips []bool
	exps  int
}

func (f *fakeRequester) PublishSyncRequest(ctx context.Context, mode models.SyncMode, skipIngest bool) (events.Event, error) {
	f.modes = append(f.modes, mode)
	f.skips = append(f.skips, skipIngest)
	return events.Event{ID: "evt-1", Type: events.TypeSyncRequested, Mode: mode}, nil
}

func (f *fakeRequester) PublishExportRequest(ctx context.Context, path string) (events.Event, error) {
	f.exps++
	return events.Event{ID: "evt-2", Type: events.TypeExportRequested}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		CORSAllowedOrigins:   []string{"*"},
		VendorName:           "INSIZE",
		DefaultProductType:   "Measuring Tools",
		DefaultStockQuantity: 100,
	}
}

func newTestServer(t *testing.T, requester *fakeRequester) (*Server, *store.CatalogStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.New("sqlite://"+filepath.Join(t.TempDir(), "api.db"), database.Options{LogLevel: "silent"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var r handlers.SyncRequester
	if requester != nil {
		r = requester
	}
	s := New(testConfig(), logger.Nop(), db, metrics.NewRegistry(), r)
	return s, store.NewCatalogStore(db.DB)
}

func seed(t *testing.T, catalog *store.CatalogStore) {
	t.Helper()
	price := decimal.RequireFromString("25.50")
	products := []models.Product{
		{SKU: "1108-150", Title: "Digital caliper", Price: price, OriginalPrice: price, Availability: "In Stock",
			ImageURL: "https://img.example.com/1108.jpg", Attributes: models.ProductAttributes{Category: "Calipers"}},
		{SKU: "3203-25A", Title: "Micrometer", Price: price, OriginalPrice: price, Availability: "In Stock",
			Attributes: models.ProductAttributes{Category: "Micrometers"}},
		{SKU: "7101-1", Title: "Gauge block", Price: price, OriginalPrice: price, Availability: "Out of stock"},
	}
	_, err := catalog.UpsertMany(context.Background(), products)
	require.NoError(t, err)
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)

	rec = do(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "catalogsync_last_success_timestamp_seconds")
}

func TestListProducts_Paginates(t *testing.T) {
	s, catalog := newTestServer(t, nil)
	seed(t, catalog)

	rec := do(s, http.MethodGet, "/api/v1/products?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data       []models.Product `json:"data"`
		Pagination struct {
			Page  int   `json:"page"`
			Limit int   `json:"limit"`
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Data, 2)
	assert.Equal(t, "1108-150", body.Data[0].SKU)
	assert.Equal(t, int64(3), body.Pagination.Total)

	rec = do(s, http.MethodGet, "/api/v1/products?with_image=true", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Data, 1)
	assert.Equal(t, int64(1), body.Pagination.Total)

	rec = do(s, http.MethodGet, "/api/v1/products?category=Micrometers", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "3203-25A", body.Data[0].SKU)
}

func TestGetProduct(t *testing.T) {
	s, catalog := newTestServer(t, nil)
	seed(t, catalog)

	rec := do(s, http.MethodGet, "/api/v1/products/3203-25A", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Micrometer")

	rec = do(s, http.MethodGet, "/api/v1/products/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerSync(t *testing.T) {
	requester := &fakeRequester{}
	s, _ := newTestServer(t, requester)

	rec := do(s, http.MethodPost, "/api/v1/syncs", `{"mode":"full","skip_ingest":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "evt-1")

	rec = do(s, http.MethodPost, "/api/v1/syncs", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(s, http.MethodPost, "/api/v1/syncs", `{"mode":"weekly"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, []models.SyncMode{models.SyncModeFull, models.SyncModeIncremental}, requester.modes)
	assert.Equal(t, []bool{true, false}, requester.skips)

	rec = do(s, http.MethodPost, "/api/v1/export", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, requester.exps)
}

func TestTriggerSync_WithoutBroker(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(s, http.MethodPost, "/api/v1/syncs", `{"mode":"full"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListOutcomes(t *testing.T) {
	s, catalog := newTestServer(t, nil)
	require.NoError(t, catalog.AppendSyncOutcome(context.Background(), &models.SyncOutcome{
		Mode: models.SyncModeFull, Status: models.SyncStatusSuccess, ProductsAdded: 3,
	}))

	rec := do(s, http.MethodGet, "/api/v1/syncs", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []models.SyncOutcome `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, models.SyncStatusSuccess, body.Data[0].Status)
	assert.Equal(t, 3, body.Data[0].ProductsAdded)
}

func TestDownloadExport(t *testing.T) {
	s, catalog := newTestServer(t, nil)
	seed(t, catalog)

	rec := do(s, http.MethodGet, "/api/v1/export/products.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "shopify_products.csv")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Handle,Title"))
	assert.Contains(t, lines[1], "1108-150")
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/products", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
