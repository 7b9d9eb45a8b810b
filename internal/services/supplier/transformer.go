package supplier

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ErrUnreadableSheet is returned when the blob is not a readable workbook.
var ErrUnreadableSheet = errors.New("unreadable spreadsheet")

var hundred = decimal.NewFromInt(100)

type RowOutcome int

const (
	RowAccepted RowOutcome = iota
	// RowSkipped covers blank rows and the sheet's own header rows.
	RowSkipped
	// RowRejected is a malformed row; it is counted as an error.
	RowRejected
)

func (o RowOutcome) String() string {
	switch o {
	case RowAccepted:
		return "accepted"
	case RowSkipped:
		return "skipped"
	case RowRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// RowResult is the per-row verdict of the transformer.
type RowResult struct {
	Row      int
	Outcome  RowOutcome
	Product  models.Product
	Reason   string
	Warnings []string
}

// Report aggregates a whole sheet.
type Report struct {
	Products   []models.Product
	Rows       int
	Skipped    int
	Rejected   int
	Warnings   int
	Rejections []RowResult
}

type Transformer struct {
	schema *Schema
	logger *logger.Logger
}

func NewTransformer(schema *Schema, logger *logger.Logger) *Transformer {
	if schema == nil {
		schema = DefaultSchema
	}
	return &Transformer{
		schema: schema,
		logger: logger,
	}
}

// Parse reads the first sheet of an xlsx blob and transforms every row.
func (t *Transformer) Parse(blob []byte) (Report, error) {
	f, err := excelize.OpenReader(bytes.NewReader(blob))
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrUnreadableSheet, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Report{}, fmt.Errorf("%w: workbook has no sheets", ErrUnreadableSheet)
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return Report{}, fmt.Errorf("%w: read sheet %q: %v", ErrUnreadableSheet, sheets[0], err)
	}

	t.logger.Info("Read %d rows from sheet %q", len(rows), sheets[0])
	return t.Transform(rows), nil
}

// Transform converts rows into products. Row failures never abort the batch.
func (t *Transformer) Transform(rows [][]string) Report {
	report := Report{Rows: len(rows)}

	for i, row := range rows {
		res := t.TransformRow(i, row)
		switch res.Outcome {
		case RowAccepted:
			report.Products = append(report.Products, res.Product)
			report.Warnings += len(res.Warnings)
			for _, w := range res.Warnings {
				t.logger.Warn("Row %d (sku %s): %s", i, res.Product.SKU, w)
			}
		case RowSkipped:
			report.Skipped++
		case RowRejected:
			report.Rejected++
			report.Rejections = append(report.Rejections, res)
			t.logger.Error("Failed to transform row %d: %s", i, res.Reason)
		}
	}

	t.logger.Info("Transformed %d products (%d skipped, %d rejected, %d warnings)",
		len(report.Products), report.Skipped, report.Rejected, report.Warnings)
	return report
}

// TransformRow converts a single positional row into a product.
func (t *Transformer) TransformRow(index int, row []string) (res RowResult) {
	res.Row = index
	defer func() {
		if r := recover(); r != nil {
			res = RowResult{Row: index, Outcome: RowRejected, Reason: fmt.Sprintf("coercion panic: %v", r)}
		}
	}()

	s := t.schema

	sku := s.Cell(row, FieldSKU)
	if sku == "" || s.IsSentinel(FieldSKU, sku) {
		return skipped(index, "blank or header sku")
	}
	if utf8.RuneCountInString(sku) > models.MaxSKULength {
		return RowResult{Row: index, Outcome: RowRejected, Reason: fmt.Sprintf("sku longer than %d characters", models.MaxSKULength)}
	}

	description := s.Cell(row, FieldDescription)
	description2 := s.Cell(row, FieldDescription2)
	title := description
	if description2 != "" {
		title = description + " - " + description2
	}

	availability := s.Cell(row, FieldAvailability)
	if s.IsSentinel(FieldAvailability, availability) {
		return skipped(index, "header availability")
	}

	rawPrice := s.Cell(row, FieldPrice)
	rawDiscount := s.Cell(row, FieldDiscount)
	if s.IsSentinel(FieldPrice, rawPrice) || s.IsSentinel(FieldDiscount, rawDiscount) {
		return skipped(index, "header price")
	}

	var warnings []string

	price, err := parseDecimal(rawPrice)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("unparseable price %q, using 0", rawPrice))
		price = decimal.Zero
	}
	if price.IsNegative() {
		warnings = append(warnings, fmt.Sprintf("negative price %s, using 0", price))
		price = decimal.Zero
	}

	discount, err := parseDecimal(rawDiscount)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("unparseable discount %q, using 0", rawDiscount))
		discount = decimal.Zero
	}
	if discount.IsNegative() || discount.GreaterThan(hundred) {
		warnings = append(warnings, fmt.Sprintf("discount %s outside [0,100], clamped", discount))
		discount = decimal.Min(decimal.Max(discount, decimal.Zero), hundred)
	}

	originalPrice := price
	if discount.IsPositive() {
		price = ApplyDiscount(originalPrice, discount)
	}

	p := models.Product{
		SKU:             sku,
		Title:           title,
		Description:     description,
		Price:           price,
		OriginalPrice:   originalPrice,
		DiscountPercent: discount,
		Availability:    availability,
		Attributes: models.ProductAttributes{
			Range:       s.Cell(row, FieldRange),
			Reading:     s.Cell(row, FieldReading),
			Family:      s.Cell(row, FieldFamily),
			Weight:      s.Cell(row, FieldWeight),
			Dimensions:  s.Cell(row, FieldDimensions),
			Category:    s.Cell(row, FieldCategory),
			Subcategory: s.Cell(row, FieldSubcategory),
		},
		ImageURL:   s.Cell(row, FieldImageURL),
		ProductURL: s.Cell(row, FieldProductURL),
	}

	if p.Title == "" {
		warnings = append(warnings, "missing title")
	}
	if p.Price.IsZero() {
		warnings = append(warnings, "price is zero")
	}

	return RowResult{Row: index, Outcome: RowAccepted, Product: p, Warnings: warnings}
}

func skipped(index int, reason string) RowResult {
	return RowResult{Row: index, Outcome: RowSkipped, Reason: reason}
}

// ApplyDiscount returns price * (1 - discount/100) rounded to cents.
func ApplyDiscount(price, discount decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Sub(discount.Div(hundred))
	return price.Mul(factor).Round(2)
}

// parseDecimal accepts plain numbers as well as the sheet's European
// formatting ("1.234,50", "12,5"), currency symbols and percent signs.
// An empty cell is zero. A lone dot is always a decimal point, since raw
// numeric cells come through that way. A lone comma is a decimal point
// unless it groups exactly three digits after a non-zero integer part
// ("1,234" is 1234, "0,125" and "12,5" are fractions).
func parseDecimal(raw string) (decimal.Decimal, error) {
	s := strings.NewReplacer("€", "", "$", "", "%", "", " ", "", " ", "").Replace(strings.TrimSpace(raw))
	if s == "" {
		return decimal.Zero, nil
	}

	comma := strings.LastIndex(s, ",")
	dot := strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case comma >= 0 && dot >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ",") > 1:
		s = strings.ReplaceAll(s, ",", "")
	case comma >= 0 && isThousandsGroup(s, comma):
		s = strings.Replace(s, ",", "", 1)
	case comma >= 0:
		s = strings.Replace(s, ",", ".", 1)
	}

	return decimal.NewFromString(s)
}

func isThousandsGroup(s string, comma int) bool {
	if len(s)-comma-1 != 3 {
		return false
	}
	return strings.TrimLeft(s[:comma], "+-0") != ""
}
