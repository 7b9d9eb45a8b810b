package supplier

import (
	"fmt"
	"strings"
)

// Field names a column of the supplier sheet.
type Field string

const (
	FieldSKU          Field = "sku"
	FieldDescription  Field = "description"
	FieldDescription2 Field = "description2"
	FieldAvailability Field = "availability"
	FieldRange        Field = "range"
	FieldReading      Field = "reading"
	FieldFamily       Field = "family"
	FieldWeight       Field = "weight"
	FieldDimensions   Field = "dimensions"
	FieldImageURL     Field = "image_url"
	FieldProductURL   Field = "product_url"
	FieldCategory     Field = "category"
	FieldSubcategory  Field = "subcategory"
	FieldPrice        Field = "price"
	FieldDiscount     Field = "discount"
)

// Column binds a field to its position in a row. Sentinel is the value the
// sheet's own header row carries in that column, if any.
type Column struct {
	Field    Field
	Index    int
	Sentinel string
}

// Schema is a validated, fixed column layout.
type Schema struct {
	columns map[Field]Column
}

// DefaultColumns is the layout of the supplier's price list.
var DefaultColumns = []Column{
	{Field: FieldSKU, Index: 1, Sentinel: "No"},
	{Field: FieldDescription, Index: 2},
	{Field: FieldDescription2, Index: 3},
	{Field: FieldAvailability, Index: 4, Sentinel: "Availability"},
	{Field: FieldRange, Index: 5},
	{Field: FieldReading, Index: 6},
	{Field: FieldFamily, Index: 7},
	{Field: FieldWeight, Index: 8},
	{Field: FieldDimensions, Index: 9},
	{Field: FieldImageURL, Index: 10},
	{Field: FieldProductURL, Index: 11},
	{Field: FieldCategory, Index: 12},
	{Field: FieldSubcategory, Index: 13},
	{Field: FieldPrice, Index: 16, Sentinel: "Precio"},
	{Field: FieldDiscount, Index: 17, Sentinel: "Descuento EU"},
}

// DefaultSchema is DefaultColumns validated once at init.
var DefaultSchema = MustSchema(DefaultColumns)

// NewSchema validates a column layout. Every field may appear once, indices
// must be unique and non-negative, and the SKU column is mandatory.
func NewSchema(columns []Column) (*Schema, error) {
	s := &Schema{columns: make(map[Field]Column, len(columns))}
	seen := make(map[int]Field, len(columns))

	for _, c := range columns {
		if c.Field == "" {
			return nil, fmt.Errorf("column at index %d has no field name", c.Index)
		}
		if c.Index < 0 {
			return nil, fmt.Errorf("column %s has negative index %d", c.Field, c.Index)
		}
		if _, dup := s.columns[c.Field]; dup {
			return nil, fmt.Errorf("field %s mapped twice", c.Field)
		}
		if other, dup := seen[c.Index]; dup {
			return nil, fmt.Errorf("index %d mapped to both %s and %s", c.Index, other, c.Field)
		}
		seen[c.Index] = c.Field
		s.columns[c.Field] = c
	}

	if _, ok := s.columns[FieldSKU]; !ok {
		return nil, fmt.Errorf("schema has no %s column", FieldSKU)
	}
	return s, nil
}

// MustSchema is NewSchema for package-level schemas; it panics on an invalid mapping.
func MustSchema(columns []Column) *Schema {
	s, err := NewSchema(columns)
	if err != nil {
		panic(err)
	}
	return s
}

// Cell returns the trimmed value of field in row, or "" when the field is
// unmapped or the row is too short.
func (s *Schema) Cell(row []string, f Field) string {
	c, ok := s.columns[f]
	if !ok || c.Index >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[c.Index])
}

// IsSentinel reports whether value is the header text of field's column.
func (s *Schema) IsSentinel(f Field, value string) bool {
	c, ok := s.columns[f]
	if !ok || c.Sentinel == "" {
		return false
	}
	return strings.TrimSpace(value) == c.Sentinel
}
