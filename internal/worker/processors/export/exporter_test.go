package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProducts struct {
	products []models.Product
	filter   store.ProductFilter
}

func (s *stubProducts) AllProducts(ctx context.Context, filter store.ProductFilter) ([]models.Product, error) {
	s.filter = filter
	var out []models.Product
	for _, p := range s.products {
		if filter.RequireImage && !p.HasImage() {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func testOptions() Options {
	return Options{Vendor: "INSIZE", DefaultProductType: "Measuring Tools", StockQuantity: 100}
}

func TestWrite_SkipsProductsWithoutImage(t *testing.T) {
	discounted := models.Product{
		SKU:             "1108 150",
		Title:           "Digital caliper",
		Price:           decimal.NewFromInt(90),
		OriginalPrice:   decimal.NewFromInt(100),
		DiscountPercent: decimal.NewFromInt(10),
		Availability:    "In Stock",
		ImageURL:        "https://img.example/1108.jpg",
		Attributes:      models.ProductAttributes{Range: "0-150mm", Category: "Calipers"},
	}
	noImage := models.Product{SKU: "X", Price: decimal.NewFromInt(1), OriginalPrice: decimal.NewFromInt(1)}

	src := &stubProducts{products: []models.Product{discounted, noImage}}
	e := New(src, testOptions(), logger.Nop())

	var buf bytes.Buffer
	n, err := e.Write(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, src.filter.RequireImage)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	row := map[string]string{}
	for i, col := range records[0] {
		row[col] = records[1][i]
	}
	assert.Equal(t, "1108-150", row["Handle"])
	assert.Equal(t, "Calipers", row["Type"])
	assert.Equal(t, "INSIZE, Calipers", row["Tags"])
	assert.Equal(t, "90.00", row["Variant Price"])
	assert.Equal(t, "100.00", row["Variant Compare At Price"])
	assert.Equal(t, "100", row["Variant Inventory Qty"])
	assert.Equal(t, "active", row["Status"])
	assert.Equal(t, "0-150mm", row["Custom Field [custom.range]"])
}

func TestWrite_OutOfStockIsDraft(t *testing.T) {
	p := models.Product{
		SKU:           "Y",
		Price:         decimal.NewFromInt(5),
		OriginalPrice: decimal.NewFromInt(5),
		Availability:  "On request",
		ImageURL:      "https://img.example/y.jpg",
	}
	e := New(&stubProducts{products: []models.Product{p}}, testOptions(), logger.Nop())

	var buf bytes.Buffer
	_, err := e.Write(context.Background(), &buf)
	require.NoError(t, err)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	row := records[1]
	assert.Equal(t, "INSIZE Y", row[1])
	assert.Equal(t, "Measuring Tools", row[4])
	assert.Equal(t, "FALSE", row[6])
	assert.Equal(t, "0", row[11])
	assert.Equal(t, "", row[15])
	assert.Equal(t, "draft", row[20])
}

func TestExportToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	p := models.Product{SKU: "Z", Title: "z", Price: decimal.NewFromInt(1), OriginalPrice: decimal.NewFromInt(1), ImageURL: "https://img.example/z.jpg"}
	e := New(&stubProducts{products: []models.Product{p}}, testOptions(), logger.Nop())

	path, n, err := e.ExportToFile(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, filepath.Join(dir, FileName), path)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file should be gone")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "üö", truncate("üöä", 2))
}
