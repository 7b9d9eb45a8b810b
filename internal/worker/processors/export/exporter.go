package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/store"
)

// FileName is the name of the export inside the export directory.
const FileName = "shopify_products.csv"

var header = []string{
	"Handle", "Title", "Body (HTML)", "Vendor", "Type", "Tags", "Published",
	"Option1 Name", "Option1 Value", "Variant SKU", "Variant Inventory Tracker",
	"Variant Inventory Qty", "Variant Inventory Policy", "Variant Fulfillment Service",
	"Variant Price", "Variant Compare At Price", "Variant Requires Shipping",
	"Variant Taxable", "Image Src", "Image Position", "Status", "SEO Title",
	"SEO Description",
	"Custom Field [custom.range]", "Custom Field [custom.reading]",
	"Custom Field [custom.family]", "Custom Field [custom.weight]",
	"Custom Field [custom.dimensions]",
}

type ProductSource interface {
	AllProducts(ctx context.Context, filter store.ProductFilter) ([]models.Product, error)
}

type Options struct {
	Vendor             string
	DefaultProductType string
	StockQuantity      int
}

// Exporter writes the stored catalog as a Shopify product-import CSV.
// Products without an image are left out.
type Exporter struct {
	products ProductSource
	opts     Options
	logger   *logger.Logger
}

func New(products ProductSource, opts Options, logger *logger.Logger) *Exporter {
	return &Exporter{
		products: products,
		opts:     opts,
		logger:   logger,
	}
}

// Write streams the CSV to w and returns the number of products written.
func (e *Exporter) Write(ctx context.Context, w io.Writer) (int, error) {
	products, err := e.products.AllProducts(ctx, store.ProductFilter{RequireImage: true})
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}
	for _, p := range products {
		if err := cw.Write(e.record(p)); err != nil {
			return 0, fmt.Errorf("failed to write %s: %w", p.SKU, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("failed to flush csv: %w", err)
	}

	e.logger.Info("Exported %d products", len(products))
	return len(products), nil
}

// ExportToFile writes dir/shopify_products.csv, replacing any previous
// export only once the new one is complete.
func (e *Exporter) ExportToFile(ctx context.Context, dir string) (string, int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create export dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".export-*.csv")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create export file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := e.Write(ctx, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, err
	}

	path := filepath.Join(dir, FileName)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", 0, fmt.Errorf("failed to move export into place: %w", err)
	}
	return path, n, nil
}

func (e *Exporter) record(p models.Product) []string {
	title := p.DisplayTitle(e.opts.Vendor)

	productType := p.Attributes.Category
	if productType == "" {
		productType = e.opts.DefaultProductType
	}

	published, status := "FALSE", models.RemoteStatusDraft
	if p.InStock() {
		published, status = "TRUE", models.RemoteStatusActive
	}

	compareAt := ""
	if p.Discounted() {
		compareAt = p.OriginalPrice.StringFixed(2)
	}

	seoTitle := fmt.Sprintf("%s %s", e.opts.Vendor, p.SKU)
	if strings.TrimSpace(p.Title) != "" {
		seoTitle = truncate(seoTitle+" - "+p.Title, 70)
	}

	a := p.Attributes
	return []string{
		Handle(p.SKU),
		title,
		p.Description,
		e.opts.Vendor,
		productType,
		joinNonEmpty(e.opts.Vendor, a.Category, a.Subcategory),
		published,
		"Title",
		"Default Title",
		p.SKU,
		"shopify",
		strconv.Itoa(p.StockQuantity(e.opts.StockQuantity)),
		"deny",
		"manual",
		p.Price.StringFixed(2),
		compareAt,
		"TRUE",
		"TRUE",
		p.ImageURL,
		"1",
		status,
		seoTitle,
		truncate(p.Description, 320),
		a.Range,
		a.Reading,
		a.Family,
		a.Weight,
		a.Dimensions,
	}
}

// Handle turns a SKU into a URL-friendly product handle.
func Handle(sku string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(sku)), " ", "-")
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}
