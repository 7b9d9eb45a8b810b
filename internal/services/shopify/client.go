package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"
)

const (
	maxAttempts       = 3
	defaultRetryAfter = 2 * time.Second
)

// APIError is a non-2xx answer from the Admin API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API request failed: %d - %s", e.StatusCode, e.Body)
}

type Config struct {
	// ShopURL is "https://name.myshopify.com", "name.myshopify.com" or
	// just "name".
	ShopURL     string
	AccessToken string
	APIVersion  string
	Timeout     time.Duration
}

// Client talks to the Shopify Admin API. It implements the five catalog
// primitives the reconciler needs and nothing more.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	transformer *Transformer
	logger      *logger.Logger

	mu         sync.Mutex
	locationID int64

	// inventoryItems maps variant IDs to inventory item IDs seen in
	// lookups and creates.
	itemsMu        sync.Mutex
	inventoryItems map[int64]int64
}

func NewClient(cfg Config, logger *logger.Logger) *Client {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-01"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:     fmt.Sprintf("%s/admin/api/%s", shopOrigin(cfg.ShopURL), cfg.APIVersion),
		accessToken: cfg.AccessToken,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		transformer:    NewTransformer(),
		logger:         logger,
		inventoryItems: map[int64]int64{},
	}
}

func shopOrigin(shop string) string {
	shop = strings.TrimRight(strings.TrimSpace(shop), "/")
	if strings.HasPrefix(shop, "http://") || strings.HasPrefix(shop, "https://") {
		return shop
	}
	if !strings.Contains(shop, ".") {
		shop += ".myshopify.com"
	}
	return "https://" + shop
}

// Search is tokenized, so a page can hold near matches ranked ahead of the
// exact SKU. Lookups scan up to maxLookupPages pages of lookupPageSize.
const (
	lookupPageSize = 25
	maxLookupPages = 4
)

const findBySKUQuery = `query($query: String!, $first: Int!, $after: String) {
  productVariants(first: $first, after: $after, query: $query) {
    pageInfo { hasNextPage endCursor }
    edges {
      node {
        id
        sku
        inventoryItem { id }
        product {
          id
          featuredImage { id }
        }
      }
    }
  }
}`

const metafieldsSetMutation = `mutation($metafields: [MetafieldsSetInput!]!) {
  metafieldsSet(metafields: $metafields) {
    userErrors { field message }
  }
}`

// FindBySKU returns the listing whose variant carries exactly this SKU, or
// nil when there is none.
func (c *Client) FindBySKU(ctx context.Context, sku string) (*models.RemoteProduct, error) {
	vars := map[string]interface{}{
		"query": "sku:" + strconv.Quote(sku),
		"first": lookupPageSize,
	}

	for page := 0; page < maxLookupPages; page++ {
		var data productVariantsData
		if err := c.graphql(ctx, findBySKUQuery, vars, &data); err != nil {
			return nil, fmt.Errorf("failed to look up sku %s: %w", sku, err)
		}

		for _, edge := range data.ProductVariants.Edges {
			if edge.Node.Sku != sku {
				continue
			}
			remote, err := c.transformer.VariantNodeToRemote(edge.Node)
			if err != nil {
				return nil, err
			}
			c.rememberInventoryItem(remote)
			return remote, nil
		}

		info := data.ProductVariants.PageInfo
		if !info.HasNextPage || info.EndCursor == "" {
			return nil, nil
		}
		vars["after"] = info.EndCursor
	}

	c.logger.Warn("No exact match for sku %s in the first %d search results", sku, lookupPageSize*maxLookupPages)
	return nil, nil
}

// Create publishes a new listing.
func (c *Client) Create(ctx context.Context, draft models.ProductDraft) (*models.RemoteProduct, error) {
	payload := productEnvelope{Product: c.transformer.DraftToProduct(draft)}

	var resp productEnvelope
	if err := c.do(ctx, http.MethodPost, "/products.json", payload, &resp); err != nil {
		return nil, fmt.Errorf("failed to create product %s: %w", draft.Variant.SKU, err)
	}
	remote := c.transformer.ToRemote(resp.Product)
	c.rememberInventoryItem(remote)
	return remote, nil
}

// Update overwrites an existing listing in place.
func (c *Client) Update(ctx context.Context, id int64, patch models.ProductPatch) error {
	payload := productEnvelope{Product: c.transformer.PatchToProduct(id, patch)}

	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/products/%d.json", id), payload, nil); err != nil {
		return fmt.Errorf("failed to update product %d: %w", id, err)
	}
	return nil
}

// SetMetadata writes one custom text metafield on a product.
func (c *Client) SetMetadata(ctx context.Context, ownerID int64, key, value string) error {
	vars := map[string]interface{}{
		"metafields": []MetafieldInput{c.transformer.MetafieldFor(ownerID, key, value)},
	}

	var data metafieldsSetData
	if err := c.graphql(ctx, metafieldsSetMutation, vars, &data); err != nil {
		return fmt.Errorf("failed to set metafield %s: %w", key, err)
	}
	if errs := data.MetafieldsSet.UserErrors; len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Message
		}
		return fmt.Errorf("metafield %s rejected: %s", key, strings.Join(msgs, "; "))
	}
	return nil
}

// SetInventory sets the available quantity of a variant at the shop's
// primary location.
func (c *Client) SetInventory(ctx context.Context, variantID int64, qty int) error {
	itemID, err := c.inventoryItem(ctx, variantID)
	if err != nil {
		return err
	}

	locationID, err := c.primaryLocation(ctx)
	if err != nil {
		return err
	}

	payload := inventoryLevelRequest{
		LocationID:      locationID,
		InventoryItemID: itemID,
		Available:       qty,
	}
	if err := c.do(ctx, http.MethodPost, "/inventory_levels/set.json", payload, nil); err != nil {
		return fmt.Errorf("failed to set inventory for variant %d: %w", variantID, err)
	}
	return nil
}

// inventoryItem resolves a variant's inventory item, fetching the variant
// only when no earlier lookup or create reported it.
func (c *Client) inventoryItem(ctx context.Context, variantID int64) (int64, error) {
	c.itemsMu.Lock()
	itemID, ok := c.inventoryItems[variantID]
	c.itemsMu.Unlock()
	if ok {
		return itemID, nil
	}

	var variant variantEnvelope
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/variants/%d.json", variantID), nil, &variant); err != nil {
		return 0, fmt.Errorf("failed to get variant %d: %w", variantID, err)
	}
	if variant.Variant.InventoryItemID == 0 {
		return 0, fmt.Errorf("variant %d has no inventory item", variantID)
	}

	c.itemsMu.Lock()
	c.inventoryItems[variantID] = variant.Variant.InventoryItemID
	c.itemsMu.Unlock()
	return variant.Variant.InventoryItemID, nil
}

func (c *Client) rememberInventoryItem(remote *models.RemoteProduct) {
	if remote == nil || remote.VariantID == 0 || remote.InventoryItemID == 0 {
		return
	}
	c.itemsMu.Lock()
	c.inventoryItems[remote.VariantID] = remote.InventoryItemID
	c.itemsMu.Unlock()
}

// primaryLocation returns the first active location, cached after the
// first successful lookup.
func (c *Client) primaryLocation(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.locationID != 0 {
		return c.locationID, nil
	}

	var resp locationsResponse
	if err := c.do(ctx, http.MethodGet, "/locations.json", nil, &resp); err != nil {
		return 0, fmt.Errorf("failed to list locations: %w", err)
	}
	for _, loc := range resp.Locations {
		if loc.Active || len(resp.Locations) == 1 {
			c.locationID = loc.ID
			c.logger.Debug("Using inventory location %d (%s)", loc.ID, loc.Name)
			return loc.ID, nil
		}
	}
	return 0, errors.New("shop has no active location")
}

func (c *Client) graphql(ctx context.Context, query string, vars map[string]interface{}, out interface{}) error {
	var resp graphQLResponse
	if err := c.do(ctx, http.MethodPost, "/graphql.json", graphQLRequest{Query: query, Variables: vars}, &resp); err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, len(resp.Errors))
		for i, e := range resp.Errors {
			msgs[i] = e.Message
		}
		return fmt.Errorf("graphql: %s", strings.Join(msgs, "; "))
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// do sends a JSON request, retrying when the API throttles.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	for attempt := 1; ; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("X-Shopify-Access-Token", c.accessToken)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to make request: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxAttempts {
			wait := retryAfter(resp.Header.Get("Retry-After"))
			resp.Body.Close()
			c.logger.Warn("Shopify throttled %s %s, retrying in %s (attempt %d/%d)", method, path, wait, attempt, maxAttempts)

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			continue
		}

		err = decodeResponse(resp, out)
		resp.Body.Close()
		return err
	}
}

func decodeResponse(resp *http.Response, out interface{}) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}
	secs, err := strconv.ParseFloat(header, 64)
	if err != nil || secs < 0 {
		return defaultRetryAfter
	}
	return time.Duration(secs * float64(time.Second))
}
