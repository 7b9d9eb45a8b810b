package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxSKULength matches the width of the products.sku key column.
const MaxSKULength = 255

// Product is the canonical catalog entry produced from a supplier row.
type Product struct {
	SKU             string            `json:"sku" gorm:"primaryKey;column:sku;size:255"`
	Title           string            `json:"title" gorm:"column:title"`
	Description     string            `json:"description" gorm:"column:description"`
	Price           decimal.Decimal   `json:"price" gorm:"column:price;type:decimal(12,2)"`
	OriginalPrice   decimal.Decimal   `json:"original_price" gorm:"column:original_price;type:decimal(12,2)"`
	DiscountPercent decimal.Decimal   `json:"discount_percent" gorm:"column:discount_percent;type:decimal(5,2)"`
	Availability    string            `json:"availability" gorm:"column:availability"`
	Attributes      ProductAttributes `json:"attributes" gorm:"embedded"`
	ImageURL        string            `json:"image_url" gorm:"column:image_url"`
	ProductURL      string            `json:"product_url" gorm:"column:product_url"`
	LastUpdated     time.Time         `json:"last_updated" gorm:"column:last_updated"`
}

// ProductAttributes holds the supplier's domain-specific columns.
type ProductAttributes struct {
	Range       string `json:"range" gorm:"column:measuring_range"`
	Reading     string `json:"reading" gorm:"column:reading"`
	Family      string `json:"family" gorm:"column:family"`
	Weight      string `json:"weight" gorm:"column:weight"`
	Dimensions  string `json:"dimensions" gorm:"column:dimensions"`
	Category    string `json:"category" gorm:"column:category"`
	Subcategory string `json:"subcategory" gorm:"column:subcategory"`
}

// Metafield is a single custom attribute written to the remote catalog.
type Metafield struct {
	Key   string
	Value string
}

func (Product) TableName() string {
	return "products"
}

// InStock reports whether the supplier lists the product as "in stock".
func (p Product) InStock() bool {
	return strings.EqualFold(strings.TrimSpace(p.Availability), "in stock")
}

// StockQuantity maps availability onto an inventory level.
func (p Product) StockQuantity(defaultQty int) int {
	if p.InStock() {
		return defaultQty
	}
	return 0
}

// DisplayTitle returns the title, or "<VENDOR> <sku>" when the source had none.
func (p Product) DisplayTitle(vendor string) string {
	if t := strings.TrimSpace(p.Title); t != "" {
		return t
	}
	return fmt.Sprintf("%s %s", vendor, p.SKU)
}

func (p Product) HasImage() bool {
	return strings.TrimSpace(p.ImageURL) != ""
}

// Discounted reports whether the effective price is below the list price.
func (p Product) Discounted() bool {
	return p.DiscountPercent.IsPositive() && p.OriginalPrice.GreaterThan(p.Price)
}

// Metafields returns the non-empty attributes mirrored as remote metadata,
// in a stable order. Category and subcategory are carried by product type
// and tags instead.
func (a ProductAttributes) Metafields() []Metafield {
	all := []Metafield{
		{Key: "range", Value: a.Range},
		{Key: "reading", Value: a.Reading},
		{Key: "family", Value: a.Family},
		{Key: "weight", Value: a.Weight},
		{Key: "dimensions", Value: a.Dimensions},
	}

	fields := make([]Metafield, 0, len(all))
	for _, f := range all {
		if v := strings.TrimSpace(f.Value); v != "" {
			fields = append(fields, Metafield{Key: f.Key, Value: v})
		}
	}
	return fields
}
