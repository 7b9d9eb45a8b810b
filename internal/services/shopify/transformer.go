package shopify

import (
	"fmt"
	"strconv"
	"strings"

	"catalogsync/internal/models"
)

const (
	metafieldNamespace = "custom"
	metafieldType      = "single_line_text_field"
)

// Transformer maps between the catalog's transfer values and Shopify's
// wire representation.
type Transformer struct{}

func NewTransformer() *Transformer {
	return &Transformer{}
}

// DraftToProduct builds the REST payload for a new listing.
func (t *Transformer) DraftToProduct(d models.ProductDraft) Product {
	qty := d.Variant.InventoryQuantity
	p := Product{
		Title:       d.Title,
		BodyHTML:    d.BodyHTML,
		Vendor:      d.Vendor,
		ProductType: d.ProductType,
		Status:      d.Status,
		Tags:        joinTags(d.Tags),
		Variants: []Variant{{
			Sku:                 d.Variant.SKU,
			Price:               d.Variant.Price,
			CompareAtPrice:      d.Variant.CompareAtPrice,
			InventoryManagement: "shopify",
			InventoryQuantity:   &qty,
		}},
	}
	if d.Image != nil && d.Image.Src != "" {
		p.Images = []Image{{Src: d.Image.Src}}
	}
	return p
}

// PatchToProduct builds the REST payload for an update. Images are left
// out entirely unless the patch carries one.
func (t *Transformer) PatchToProduct(id int64, patch models.ProductPatch) Product {
	p := Product{
		ID:          id,
		Title:       patch.Title,
		BodyHTML:    patch.BodyHTML,
		Vendor:      patch.Vendor,
		ProductType: patch.ProductType,
		Status:      patch.Status,
		Tags:        joinTags(patch.Tags),
		Variants: []Variant{{
			ID:             patch.Variant.ID,
			Sku:            patch.Variant.SKU,
			Price:          patch.Variant.Price,
			CompareAtPrice: patch.Variant.CompareAtPrice,
		}},
	}
	if patch.Image != nil && patch.Image.Src != "" {
		p.Images = []Image{{Src: patch.Image.Src}}
	}
	return p
}

// ToRemote extracts the identifiers the reconciler needs from a REST product.
func (t *Transformer) ToRemote(p Product) *models.RemoteProduct {
	remote := &models.RemoteProduct{
		ID:       p.ID,
		HasImage: len(p.Images) > 0,
	}
	if len(p.Variants) > 0 {
		v := p.Variants[0]
		remote.VariantID = v.ID
		remote.InventoryItemID = v.InventoryItemID
		remote.SKU = v.Sku
	}
	return remote
}

// VariantNodeToRemote converts a GraphQL variant node.
func (t *Transformer) VariantNodeToRemote(n variantNode) (*models.RemoteProduct, error) {
	productID, err := parseGID(n.Product.ID)
	if err != nil {
		return nil, err
	}
	variantID, err := parseGID(n.ID)
	if err != nil {
		return nil, err
	}

	remote := &models.RemoteProduct{
		ID:        productID,
		VariantID: variantID,
		SKU:       n.Sku,
		HasImage:  n.Product.FeaturedImage != nil,
	}
	if n.InventoryItem != nil {
		if remote.InventoryItemID, err = parseGID(n.InventoryItem.ID); err != nil {
			return nil, err
		}
	}
	return remote, nil
}

// MetafieldFor builds the metafieldsSet entry for a product attribute.
func (t *Transformer) MetafieldFor(productID int64, key, value string) MetafieldInput {
	return MetafieldInput{
		OwnerID:   productGID(productID),
		Namespace: metafieldNamespace,
		Key:       key,
		Type:      metafieldType,
		Value:     value,
	}
}

func joinTags(tags []string) string {
	clean := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			clean = append(clean, tag)
		}
	}
	return strings.Join(clean, ", ")
}

// parseGID returns the numeric tail of "gid://shopify/<Type>/<id>".
func parseGID(gid string) (int64, error) {
	i := strings.LastIndex(gid, "/")
	if i < 0 || i == len(gid)-1 {
		return 0, fmt.Errorf("invalid global id %q", gid)
	}
	id, err := strconv.ParseInt(gid[i+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid global id %q: %w", gid, err)
	}
	return id, nil
}

func productGID(id int64) string {
	return fmt.Sprintf("gid://shopify/Product/%d", id)
}
