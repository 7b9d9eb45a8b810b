// Package reconcile drives the remote catalog towards the local store.
//
// Every product goes through LOOKUP followed by CREATE or UPDATE. Product
// failures are recorded per item and never abort the run; only
// cancellation stops it early.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// RemoteCatalog is the set of primitives the engine needs from the store
// front. FindBySKU returns nil, nil when nothing matches.
type RemoteCatalog interface {
	FindBySKU(ctx context.Context, sku string) (*models.RemoteProduct, error)
	Create(ctx context.Context, draft models.ProductDraft) (*models.RemoteProduct, error)
	Update(ctx context.Context, id int64, patch models.ProductPatch) error
	SetMetadata(ctx context.Context, ownerID int64, key, value string) error
	SetInventory(ctx context.Context, variantID int64, qty int) error
}

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionSkip   Action = "skip"
)

const (
	StageLookup    = "lookup"
	StageCreate    = "create"
	StageUpdate    = "update"
	StageInventory = "inventory"
)

// OperationError is a failed remote call for one product.
type OperationError struct {
	Stage string
	SKU   string
	Err   error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.SKU, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// ItemResult is the outcome for a single product. Action is the branch
// taken; it is empty when the lookup itself failed.
type ItemResult struct {
	SKU      string
	Action   Action
	Err      error
	Warnings []string
}

func (r ItemResult) Failed() bool {
	return r.Err != nil
}

type Result struct {
	Processed int
	Succeeded int
	Failed    int
	Skipped   int
	Created   int
	Updated   int
	Items     []ItemResult
}

// Status maps the counts onto a run status. Product failures never make a
// run FAILED.
func (r Result) Status() models.SyncStatus {
	if r.Failed == 0 {
		return models.SyncStatusSuccess
	}
	return models.SyncStatusPartialSuccess
}

func (r *Result) add(item ItemResult) {
	r.Processed++
	r.Items = append(r.Items, item)
	switch {
	case item.Failed():
		r.Failed++
	case item.Action == ActionSkip:
		r.Skipped++
	case item.Action == ActionCreate:
		r.Created++
		r.Succeeded++
	case item.Action == ActionUpdate:
		r.Updated++
		r.Succeeded++
	}
}

type Options struct {
	Vendor               string
	DefaultProductType   string
	StockQuantity        int
	Delay                time.Duration
	Workers              int
	FullBatchSize        int
	IncrementalBatchSize int
	OperationTimeout     time.Duration
	RequireImage         bool
}

func DefaultOptions() Options {
	return Options{
		Vendor:               "INSIZE",
		DefaultProductType:   "Measuring Tools",
		StockQuantity:        100,
		Delay:                500 * time.Millisecond,
		Workers:              1,
		FullBatchSize:        1000,
		IncrementalBatchSize: 50,
		OperationTimeout:     60 * time.Second,
	}
}

type Engine struct {
	remote  RemoteCatalog
	opts    Options
	limiter *rate.Limiter
	logger  *logger.Logger
}

func NewEngine(remote RemoteCatalog, opts Options, logger *logger.Logger) *Engine {
	def := DefaultOptions()
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.FullBatchSize < 1 {
		opts.FullBatchSize = def.FullBatchSize
	}
	if opts.IncrementalBatchSize < 1 {
		opts.IncrementalBatchSize = def.IncrementalBatchSize
	}
	if opts.DefaultProductType == "" {
		opts.DefaultProductType = def.DefaultProductType
	}

	limit := rate.Inf
	if opts.Delay > 0 {
		limit = rate.Every(opts.Delay)
	}

	return &Engine{
		remote:  remote,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

func (e *Engine) batchSize(mode models.SyncMode) int {
	if mode == models.SyncModeFull {
		return e.opts.FullBatchSize
	}
	return e.opts.IncrementalBatchSize
}

// Reconcile processes products in order. On cancellation it stops before
// the next remote mutation and returns what was done together with the
// context error.
func (e *Engine) Reconcile(ctx context.Context, products []models.Product, mode models.SyncMode) (Result, error) {
	var result Result
	size := e.batchSize(mode)
	batches := (len(products) + size - 1) / size

	for b := 0; b < batches; b++ {
		start := b * size
		end := start + size
		if end > len(products) {
			end = len(products)
		}

		e.logger.Info("Processing batch %d/%d (%d products)", b+1, batches, end-start)
		items, done := e.runBatch(ctx, products[start:end])
		for i, item := range items {
			if done[i] {
				result.add(item)
			}
		}

		if err := ctx.Err(); err != nil {
			e.logger.Warn("Reconciliation cancelled after %d products", result.Processed)
			return result, err
		}
		e.logger.Info("Batch %d/%d done: %d succeeded, %d failed so far", b+1, batches, result.Succeeded, result.Failed)
	}

	return result, nil
}

// runBatch keeps results in input order; done marks the products that were
// actually attempted.
func (e *Engine) runBatch(ctx context.Context, batch []models.Product) ([]ItemResult, []bool) {
	items := make([]ItemResult, len(batch))
	done := make([]bool, len(batch))

	var g errgroup.Group
	g.SetLimit(e.opts.Workers)

	for i := range batch {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil
			}
			items[i] = e.reconcileOne(ctx, batch[i])
			done[i] = true
			return nil
		})
	}
	g.Wait()

	return items, done
}

func (e *Engine) reconcileOne(ctx context.Context, p models.Product) ItemResult {
	if e.opts.RequireImage && !p.HasImage() {
		e.logger.Debug("Skipping %s: no image", p.SKU)
		return ItemResult{SKU: p.SKU, Action: ActionSkip}
	}

	if e.opts.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.OperationTimeout)
		defer cancel()
	}

	remote, err := e.remote.FindBySKU(ctx, p.SKU)
	if err != nil {
		return e.fail(p.SKU, "", StageLookup, err)
	}
	if err := ctx.Err(); err != nil {
		return e.fail(p.SKU, "", StageLookup, err)
	}
	if remote == nil {
		return e.create(ctx, p)
	}
	return e.update(ctx, p, remote)
}

func (e *Engine) create(ctx context.Context, p models.Product) ItemResult {
	created, err := e.remote.Create(ctx, e.draft(p))
	if err != nil {
		return e.fail(p.SKU, ActionCreate, StageCreate, err)
	}

	// Stock is always written through SetInventory, on create as on update.
	if created.VariantID != 0 {
		if ctx.Err() != nil {
			return e.fail(p.SKU, ActionCreate, StageInventory, ctx.Err())
		}
		if err := e.remote.SetInventory(ctx, created.VariantID, p.StockQuantity(e.opts.StockQuantity)); err != nil {
			return e.fail(p.SKU, ActionCreate, StageInventory, err)
		}
	}

	e.logger.Info("Created product %s (id %d)", p.SKU, created.ID)
	return ItemResult{
		SKU:      p.SKU,
		Action:   ActionCreate,
		Warnings: e.writeMetafields(ctx, created.ID, p),
	}
}

func (e *Engine) update(ctx context.Context, p models.Product, remote *models.RemoteProduct) ItemResult {
	if err := e.remote.Update(ctx, remote.ID, e.patch(p, remote)); err != nil {
		return e.fail(p.SKU, ActionUpdate, StageUpdate, err)
	}

	if remote.VariantID != 0 {
		if ctx.Err() != nil {
			return e.fail(p.SKU, ActionUpdate, StageInventory, ctx.Err())
		}
		if err := e.remote.SetInventory(ctx, remote.VariantID, p.StockQuantity(e.opts.StockQuantity)); err != nil {
			return e.fail(p.SKU, ActionUpdate, StageInventory, err)
		}
	}

	e.logger.Info("Updated product %s (id %d)", p.SKU, remote.ID)
	return ItemResult{
		SKU:      p.SKU,
		Action:   ActionUpdate,
		Warnings: e.writeMetafields(ctx, remote.ID, p),
	}
}

// writeMetafields never fails the product; failures come back as warnings.
func (e *Engine) writeMetafields(ctx context.Context, productID int64, p models.Product) []string {
	var warnings []string
	for _, mf := range p.Attributes.Metafields() {
		if ctx.Err() != nil {
			warnings = append(warnings, fmt.Sprintf("metafield %s not written: %v", mf.Key, ctx.Err()))
			break
		}
		if err := e.remote.SetMetadata(ctx, productID, mf.Key, mf.Value); err != nil {
			e.logger.Warn("Failed to set metafield %s on %s: %v", mf.Key, p.SKU, err)
			warnings = append(warnings, fmt.Sprintf("metafield %s: %v", mf.Key, err))
		}
	}
	return warnings
}

func (e *Engine) fail(sku string, action Action, stage string, err error) ItemResult {
	e.logger.Error("Failed to %s product %s: %v", stage, sku, err)
	return ItemResult{
		SKU:    sku,
		Action: action,
		Err:    &OperationError{Stage: stage, SKU: sku, Err: err},
	}
}

func (e *Engine) productType(p models.Product) string {
	if p.Attributes.Category != "" {
		return p.Attributes.Category
	}
	return e.opts.DefaultProductType
}

func (e *Engine) status(p models.Product) string {
	if p.InStock() {
		return models.RemoteStatusActive
	}
	return models.RemoteStatusDraft
}

func (e *Engine) tags(p models.Product) []string {
	return []string{e.opts.Vendor, p.Attributes.Category, p.Attributes.Subcategory}
}

// compareAt is the list price when the product is discounted, else nil.
func compareAt(p models.Product) *string {
	if !p.Discounted() {
		return nil
	}
	s := p.OriginalPrice.StringFixed(2)
	return &s
}

func (e *Engine) draft(p models.Product) models.ProductDraft {
	d := models.ProductDraft{
		Title:       p.DisplayTitle(e.opts.Vendor),
		BodyHTML:    p.Description,
		Vendor:      e.opts.Vendor,
		ProductType: e.productType(p),
		Status:      e.status(p),
		Tags:        e.tags(p),
		Variant: models.VariantInput{
			SKU:               p.SKU,
			Price:             p.Price.StringFixed(2),
			CompareAtPrice:    compareAt(p),
			InventoryQuantity: p.StockQuantity(e.opts.StockQuantity),
		},
	}
	if p.HasImage() {
		d.Image = &models.ImageInput{Src: p.ImageURL}
	}
	return d
}

// patch never carries an image when the listing already has one.
func (e *Engine) patch(p models.Product, remote *models.RemoteProduct) models.ProductPatch {
	patch := models.ProductPatch{
		Title:       p.DisplayTitle(e.opts.Vendor),
		BodyHTML:    p.Description,
		Vendor:      e.opts.Vendor,
		ProductType: e.productType(p),
		Status:      e.status(p),
		Tags:        e.tags(p),
		Variant: models.VariantPatch{
			ID:             remote.VariantID,
			SKU:            p.SKU,
			Price:          p.Price.StringFixed(2),
			CompareAtPrice: compareAt(p),
		},
	}
	if p.HasImage() && !remote.HasImage {
		patch.Image = &models.ImageInput{Src: p.ImageURL}
	}
	return patch
}
