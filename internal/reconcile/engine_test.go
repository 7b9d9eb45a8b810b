package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	mu sync.Mutex

	existing     map[string]*models.RemoteProduct
	lookupErr    map[string]error
	createErr    error
	updateErr    map[int64]error
	inventoryErr map[int64]error
	metadataErr  error
	nextID       int64
	drafts       []models.ProductDraft
	patches      map[int64]models.ProductPatch
	metadata     []string
	inventory    map[int64]int
	lookups      int
	onLookup     func()
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		existing:     map[string]*models.RemoteProduct{},
		lookupErr:    map[string]error{},
		updateErr:    map[int64]error{},
		inventoryErr: map[int64]error{},
		patches:      map[int64]models.ProductPatch{},
		inventory:    map[int64]int{},
		nextID:       100,
	}
}

func (f *fakeRemote) FindBySKU(ctx context.Context, sku string) (*models.RemoteProduct, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.onLookup != nil {
		f.onLookup()
	}
	if err := f.lookupErr[sku]; err != nil {
		return nil, err
	}
	return f.existing[sku], nil
}

func (f *fakeRemote) Create(ctx context.Context, draft models.ProductDraft) (*models.RemoteProduct, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	f.drafts = append(f.drafts, draft)
	return &models.RemoteProduct{ID: f.nextID, VariantID: f.nextID + 1000, SKU: draft.Variant.SKU}, nil
}

func (f *fakeRemote) Update(ctx context.Context, id int64, patch models.ProductPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.updateErr[id]; err != nil {
		return err
	}
	f.patches[id] = patch
	return nil
}

func (f *fakeRemote) SetMetadata(ctx context.Context, ownerID int64, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.metadataErr != nil {
		return f.metadataErr
	}
	f.metadata = append(f.metadata, fmt.Sprintf("%d:%s=%s", ownerID, key, value))
	return nil
}

func (f *fakeRemote) SetInventory(ctx context.Context, variantID int64, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.inventoryErr[variantID]; err != nil {
		return err
	}
	f.inventory[variantID] = qty
	return nil
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Delay = 0
	return opts
}

func product(sku string) models.Product {
	return models.Product{
		SKU:             sku,
		Title:           "Caliper " + sku,
		Price:           decimal.NewFromInt(90),
		OriginalPrice:   decimal.NewFromInt(90),
		DiscountPercent: decimal.Zero,
		Availability:    "In Stock",
	}
}

func TestReconcile_LookupFailureIsIsolated(t *testing.T) {
	remote := newFakeRemote()
	remote.lookupErr["P3"] = errors.New("timeout")

	var products []models.Product
	for i := 1; i <= 5; i++ {
		products = append(products, product(fmt.Sprintf("P%d", i)))
	}

	e := NewEngine(remote, testOptions(), logger.Nop())
	res, err := e.Reconcile(context.Background(), products, models.SyncModeFull)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Processed)
	assert.Equal(t, 4, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 5, remote.lookups)
	assert.Equal(t, models.SyncStatusPartialSuccess, res.Status())

	var opErr *OperationError
	require.True(t, errors.As(res.Items[2].Err, &opErr))
	assert.Equal(t, StageLookup, opErr.Stage)
	assert.Equal(t, "P3", opErr.SKU)
}

func TestReconcile_CreateOrUpdate(t *testing.T) {
	remote := newFakeRemote()
	remote.existing["OLD"] = &models.RemoteProduct{ID: 7, VariantID: 8, SKU: "OLD"}

	outOfStock := product("OLD")
	outOfStock.Availability = "Out of stock"

	e := NewEngine(remote, testOptions(), logger.Nop())
	res, err := e.Reconcile(context.Background(), []models.Product{product("NEW"), outOfStock}, models.SyncModeIncremental)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, models.SyncStatusSuccess, res.Status())

	require.Len(t, remote.drafts, 1)
	draft := remote.drafts[0]
	assert.Equal(t, "NEW", draft.Variant.SKU)
	assert.Equal(t, "90.00", draft.Variant.Price)
	assert.Nil(t, draft.Variant.CompareAtPrice)
	assert.Equal(t, 100, draft.Variant.InventoryQuantity)
	assert.Equal(t, models.RemoteStatusActive, draft.Status)
	assert.Equal(t, "Measuring Tools", draft.ProductType)

	patch, ok := remote.patches[7]
	require.True(t, ok)
	assert.Equal(t, int64(8), patch.Variant.ID)
	assert.Equal(t, models.RemoteStatusDraft, patch.Status)
	qty, ok := remote.inventory[8]
	require.True(t, ok, "inventory should be set on update")
	assert.Equal(t, 0, qty)

	qty, ok = remote.inventory[1101]
	require.True(t, ok, "inventory should be set on create")
	assert.Equal(t, 100, qty)
}

func TestReconcile_DiscountSetsCompareAt(t *testing.T) {
	remote := newFakeRemote()

	p := product("D1")
	p.OriginalPrice = decimal.NewFromInt(100)
	p.DiscountPercent = decimal.NewFromInt(10)
	p.Title = ""
	p.Attributes.Category = "Calipers"

	e := NewEngine(remote, testOptions(), logger.Nop())
	_, err := e.Reconcile(context.Background(), []models.Product{p}, models.SyncModeFull)
	require.NoError(t, err)

	require.Len(t, remote.drafts, 1)
	draft := remote.drafts[0]
	require.NotNil(t, draft.Variant.CompareAtPrice)
	assert.Equal(t, "100.00", *draft.Variant.CompareAtPrice)
	assert.Equal(t, "INSIZE D1", draft.Title)
	assert.Equal(t, "Calipers", draft.ProductType)
	assert.Equal(t, []string{"INSIZE", "Calipers", ""}, draft.Tags)
}

func TestReconcile_MetafieldFailureDoesNotFailProduct(t *testing.T) {
	remote := newFakeRemote()
	remote.metadataErr = errors.New("userErrors")

	p := product("M1")
	p.Attributes.Range = "0-150mm"
	p.Attributes.Weight = "0.2kg"

	e := NewEngine(remote, testOptions(), logger.Nop())
	res, err := e.Reconcile(context.Background(), []models.Product{p}, models.SyncModeFull)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 0, res.Failed)
	assert.Len(t, res.Items[0].Warnings, 2)
}

func TestReconcile_WritesMetafields(t *testing.T) {
	remote := newFakeRemote()
	p := product("M1")
	p.Attributes.Range = "0-150mm"
	p.Attributes.Family = "Calipers"

	e := NewEngine(remote, testOptions(), logger.Nop())
	_, err := e.Reconcile(context.Background(), []models.Product{p}, models.SyncModeFull)
	require.NoError(t, err)

	assert.Equal(t, []string{"101:range=0-150mm", "101:family=Calipers"}, remote.metadata)
}

func TestReconcile_UpdateKeepsExistingImage(t *testing.T) {
	remote := newFakeRemote()
	remote.existing["IMG"] = &models.RemoteProduct{ID: 1, VariantID: 2, HasImage: true}
	remote.existing["NOIMG"] = &models.RemoteProduct{ID: 3, VariantID: 4, HasImage: false}

	withImage := func(sku string) models.Product {
		p := product(sku)
		p.ImageURL = "https://img.example/new.jpg"
		return p
	}

	e := NewEngine(remote, testOptions(), logger.Nop())
	_, err := e.Reconcile(context.Background(), []models.Product{withImage("IMG"), withImage("NOIMG")}, models.SyncModeIncremental)
	require.NoError(t, err)

	assert.Nil(t, remote.patches[1].Image)
	require.NotNil(t, remote.patches[3].Image)
	assert.Equal(t, "https://img.example/new.jpg", remote.patches[3].Image.Src)
}

func TestReconcile_RequireImageSkips(t *testing.T) {
	remote := newFakeRemote()
	opts := testOptions()
	opts.RequireImage = true

	e := NewEngine(remote, opts, logger.Nop())
	res, err := e.Reconcile(context.Background(), []models.Product{product("A")}, models.SyncModeFull)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, remote.lookups)
	assert.Equal(t, models.SyncStatusSuccess, res.Status())
}

func TestReconcile_CreateFailure(t *testing.T) {
	remote := newFakeRemote()
	remote.createErr = errors.New("422")

	e := NewEngine(remote, testOptions(), logger.Nop())
	res, err := e.Reconcile(context.Background(), []models.Product{product("A"), product("B")}, models.SyncModeFull)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, ActionCreate, res.Items[0].Action)
}

func TestReconcile_ConcurrentWorkersKeepOrder(t *testing.T) {
	remote := newFakeRemote()
	opts := testOptions()
	opts.Workers = 4
	opts.IncrementalBatchSize = 3

	var products []models.Product
	for i := 0; i < 10; i++ {
		products = append(products, product(fmt.Sprintf("W%02d", i)))
	}

	e := NewEngine(remote, opts, logger.Nop())
	res, err := e.Reconcile(context.Background(), products, models.SyncModeIncremental)
	require.NoError(t, err)

	require.Len(t, res.Items, 10)
	for i, item := range res.Items {
		assert.Equal(t, products[i].SKU, item.SKU)
	}
	assert.Equal(t, 10, res.Created)
}

func TestReconcile_CancellationStopsEarly(t *testing.T) {
	remote := newFakeRemote()
	ctx, cancel := context.WithCancel(context.Background())

	remote.onLookup = func() {
		if remote.lookups == 2 {
			cancel()
		}
	}

	var products []models.Product
	for i := 0; i < 5; i++ {
		products = append(products, product(fmt.Sprintf("C%d", i)))
	}

	e := NewEngine(remote, testOptions(), logger.Nop())
	res, err := e.Reconcile(ctx, products, models.SyncModeFull)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, remote.lookups)
	assert.Less(t, res.Processed, 5)
}

func TestReconcile_UpdateAndInventoryFailuresAreIsolated(t *testing.T) {
	remote := newFakeRemote()
	remote.existing["U1"] = &models.RemoteProduct{ID: 1, VariantID: 11, SKU: "U1"}
	remote.existing["U2"] = &models.RemoteProduct{ID: 2, VariantID: 12, SKU: "U2"}
	remote.existing["U3"] = &models.RemoteProduct{ID: 3, VariantID: 13, SKU: "U3"}
	remote.updateErr[1] = errors.New("422 unprocessable")
	remote.inventoryErr[12] = errors.New("location missing")

	e := NewEngine(remote, testOptions(), logger.Nop())
	res, err := e.Reconcile(context.Background(), []models.Product{product("U1"), product("U2"), product("U3")}, models.SyncModeIncremental)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, models.SyncStatusPartialSuccess, res.Status())

	var opErr *OperationError
	require.True(t, errors.As(res.Items[0].Err, &opErr))
	assert.Equal(t, StageUpdate, opErr.Stage)
	require.True(t, errors.As(res.Items[1].Err, &opErr))
	assert.Equal(t, StageInventory, opErr.Stage)
	assert.NoError(t, res.Items[2].Err)
	assert.Equal(t, 100, remote.inventory[13])
}

func TestReconcile_CreateInventoryFailure(t *testing.T) {
	remote := newFakeRemote()
	remote.inventoryErr[1101] = errors.New("location missing")

	e := NewEngine(remote, testOptions(), logger.Nop())
	res, err := e.Reconcile(context.Background(), []models.Product{product("N1")}, models.SyncModeFull)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Failed)
	var opErr *OperationError
	require.True(t, errors.As(res.Items[0].Err, &opErr))
	assert.Equal(t, StageInventory, opErr.Stage)
	assert.Equal(t, ActionCreate, res.Items[0].Action)
}

func TestReconcile_DelaySpacesOperations(t *testing.T) {
	remote := newFakeRemote()
	opts := testOptions()
	opts.Delay = 20 * time.Millisecond
	opts.Workers = 3

	const n = 5
	var products []models.Product
	for i := 0; i < n; i++ {
		products = append(products, product(fmt.Sprintf("R%d", i)))
	}

	e := NewEngine(remote, opts, logger.Nop())
	start := time.Now()
	res, err := e.Reconcile(context.Background(), products, models.SyncModeFull)
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Equal(t, n, res.Succeeded)
	assert.GreaterOrEqual(t, elapsed, time.Duration(n-1)*opts.Delay)
}
