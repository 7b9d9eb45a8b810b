package shopify

import "encoding/json"

// Product is the REST representation of a Shopify product.
type Product struct {
	ID          int64     `json:"id,omitempty"`
	Title       string    `json:"title"`
	BodyHTML    string    `json:"body_html"`
	Vendor      string    `json:"vendor"`
	ProductType string    `json:"product_type"`
	Status      string    `json:"status,omitempty"`
	Tags        string    `json:"tags"`
	Variants    []Variant `json:"variants,omitempty"`
	Images      []Image   `json:"images,omitempty"`
}

// Variant represents a product variant. CompareAtPrice is always sent so
// that a null clears a previous discount.
type Variant struct {
	ID                  int64   `json:"id,omitempty"`
	ProductID           int64   `json:"product_id,omitempty"`
	Sku                 string  `json:"sku"`
	Price               string  `json:"price"`
	CompareAtPrice      *string `json:"compare_at_price"`
	InventoryManagement string  `json:"inventory_management,omitempty"`
	InventoryQuantity   *int    `json:"inventory_quantity,omitempty"`
	InventoryItemID     int64   `json:"inventory_item_id,omitempty"`
}

// Image represents a product image
type Image struct {
	ID  int64  `json:"id,omitempty"`
	Src string `json:"src"`
}

// Location is a stock location of the shop.
type Location struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type productEnvelope struct {
	Product Product `json:"product"`
}

type variantEnvelope struct {
	Variant Variant `json:"variant"`
}

type locationsResponse struct {
	Locations []Location `json:"locations"`
}

type inventoryLevelRequest struct {
	LocationID      int64 `json:"location_id"`
	InventoryItemID int64 `json:"inventory_item_id"`
	Available       int   `json:"available"`
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type gidRef struct {
	ID string `json:"id"`
}

type variantNode struct {
	ID            string  `json:"id"`
	Sku           string  `json:"sku"`
	InventoryItem *gidRef `json:"inventoryItem"`
	Product       struct {
		ID            string  `json:"id"`
		FeaturedImage *gidRef `json:"featuredImage"`
	} `json:"product"`
}

type productVariantsData struct {
	ProductVariants struct {
		PageInfo struct {
			HasNextPage bool   `json:"hasNextPage"`
			EndCursor   string `json:"endCursor"`
		} `json:"pageInfo"`
		Edges []struct {
			Node variantNode `json:"node"`
		} `json:"edges"`
	} `json:"productVariants"`
}

// MetafieldInput is one entry of a metafieldsSet mutation.
type MetafieldInput struct {
	OwnerID   string `json:"ownerId"`
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Type      string `json:"type"`
	Value     string `json:"value"`
}

type userError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

type metafieldsSetData struct {
	MetafieldsSet struct {
		UserErrors []userError `json:"userErrors"`
	} `json:"metafieldsSet"`
}
