// Package pipeline orchestrates ingestion and reconciliation runs and keeps
// the sync log.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/reconcile"
	"catalogsync/internal/services/supplier"
	"catalogsync/internal/store"
)

var (
	// ErrNoSource is returned by Ingest when no supplier source is wired.
	ErrNoSource = errors.New("no supplier source configured")
	// ErrEmptySheet means the sheet parsed but held no usable product.
	ErrEmptySheet = errors.New("supplier sheet contains no products")
)

const recordTimeout = 10 * time.Second

type CatalogStore interface {
	UpsertMany(ctx context.Context, products []models.Product) (int, error)
	AllProducts(ctx context.Context, filter store.ProductFilter) ([]models.Product, error)
	ModifiedProducts(ctx context.Context, since time.Time, filter store.ProductFilter) ([]models.Product, error)
	AppendSyncOutcome(ctx context.Context, outcome *models.SyncOutcome) error
	LastSuccessfulSync(ctx context.Context) (time.Time, bool, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, products []models.Product, mode models.SyncMode) (reconcile.Result, error)
}

type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
}

type Parser interface {
	Parse(blob []byte) (supplier.Report, error)
}

type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, outcome *models.SyncOutcome) error
}

type Metrics interface {
	ObserveRun(mode, status string, took time.Duration)
	ObserveProduct(action, result string)
	ObserveRows(accepted, skipped, rejected int)
	ObserveUpserted(n int)
}

type Coordinator struct {
	store     CatalogStore
	engine    Reconciler
	source    Source
	parser    Parser
	publisher OutcomePublisher
	metrics   Metrics
	filter    store.ProductFilter
	now       func() time.Time
	logger    *logger.Logger
}

type Option func(*Coordinator)

// WithSource enables Ingest.
func WithSource(source Source, parser Parser) Option {
	return func(c *Coordinator) {
		c.source = source
		c.parser = parser
	}
}

func WithPublisher(p OutcomePublisher) Option {
	return func(c *Coordinator) {
		c.publisher = p
	}
}

func WithMetrics(m Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithProductFilter narrows every scope scan, e.g. to products with images.
func WithProductFilter(f store.ProductFilter) Option {
	return func(c *Coordinator) {
		c.filter = f
	}
}

func NewCoordinator(store CatalogStore, engine Reconciler, logger *logger.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  store,
		engine: engine,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sync ingests the supplier sheet, then reconciles.
func (c *Coordinator) Sync(ctx context.Context, mode models.SyncMode) (*models.SyncOutcome, error) {
	if _, err := c.ingest(ctx, mode); err != nil {
		return nil, err
	}
	return c.Run(ctx, mode)
}

// Ingest fetches, parses and stores the supplier sheet. A successful ingest
// leaves no outcome behind so it never moves the watermark.
func (c *Coordinator) Ingest(ctx context.Context) (supplier.Report, error) {
	return c.ingest(ctx, models.SyncModeFull)
}

func (c *Coordinator) ingest(ctx context.Context, mode models.SyncMode) (supplier.Report, error) {
	started := c.now().UTC()

	report, err := c.doIngest(ctx)
	if err != nil {
		c.recordFailure(ctx, mode, started, err)
		return report, err
	}
	return report, nil
}

func (c *Coordinator) doIngest(ctx context.Context) (supplier.Report, error) {
	if c.source == nil || c.parser == nil {
		return supplier.Report{}, ErrNoSource
	}

	c.logger.Info("Fetching supplier sheet")
	blob, err := c.source.Fetch(ctx)
	if err != nil {
		return supplier.Report{}, err
	}

	report, err := c.parser.Parse(blob)
	if err != nil {
		return report, fmt.Errorf("failed to parse supplier sheet: %w", err)
	}
	if c.metrics != nil {
		c.metrics.ObserveRows(len(report.Products), report.Skipped, report.Rejected)
	}
	if len(report.Products) == 0 {
		return report, ErrEmptySheet
	}

	n, err := c.store.UpsertMany(ctx, report.Products)
	if err != nil {
		return report, err
	}
	if c.metrics != nil {
		c.metrics.ObserveUpserted(n)
	}

	c.logger.Info("Stored %d products (%d rows skipped, %d rejected)", n, report.Skipped, report.Rejected)
	return report, nil
}

// Run reconciles the remote catalog against the store and appends the
// outcome. Any error is recorded as a FAILED outcome and returned as is.
func (c *Coordinator) Run(ctx context.Context, mode models.SyncMode) (*models.SyncOutcome, error) {
	started := c.now().UTC()

	outcome, err := c.run(ctx, mode, started)
	if err != nil {
		c.recordFailure(ctx, mode, started, err)
		return nil, err
	}

	c.observeRun(outcome, started)
	c.publish(ctx, outcome)
	return outcome, nil
}

func (c *Coordinator) run(ctx context.Context, mode models.SyncMode, started time.Time) (*models.SyncOutcome, error) {
	products, err := c.resolveScope(ctx, mode)
	if err != nil {
		return nil, err
	}

	// sync_time is the start of the run so rows written while it reconciles
	// stay ahead of the watermark.
	outcome := &models.SyncOutcome{
		SyncTime: started,
		Mode:     mode,
		Status:   models.SyncStatusSuccess,
	}

	if len(products) == 0 {
		c.logger.Info("No products to sync (%s)", mode)
	} else {
		c.logger.Info("Starting %s sync of %d products", mode, len(products))

		result, err := c.engine.Reconcile(ctx, products, mode)
		c.observeProducts(result)
		if err != nil {
			return nil, fmt.Errorf("reconciliation aborted after %d products: %w", result.Processed, err)
		}

		outcome.ProductsAdded = result.Created
		outcome.ProductsUpdated = result.Updated
		outcome.ProductsFailed = result.Failed
		outcome.Status = result.Status()
	}

	if err := c.store.AppendSyncOutcome(ctx, outcome); err != nil {
		return nil, err
	}

	c.logger.Info("Sync finished: %s (%d added, %d updated, %d failed)",
		outcome.Status, outcome.ProductsAdded, outcome.ProductsUpdated, outcome.ProductsFailed)
	return outcome, nil
}

func (c *Coordinator) resolveScope(ctx context.Context, mode models.SyncMode) ([]models.Product, error) {
	if mode == models.SyncModeFull {
		return c.store.AllProducts(ctx, c.filter)
	}

	since, ok, err := c.store.LastSuccessfulSync(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		c.logger.Info("No previous successful sync, falling back to all products")
		return c.store.AllProducts(ctx, c.filter)
	}

	c.logger.Info("Syncing products modified since %s", since.Format(time.RFC3339))
	return c.store.ModifiedProducts(ctx, since, c.filter)
}

// recordFailure is best effort; its own failure is only logged.
func (c *Coordinator) recordFailure(ctx context.Context, mode models.SyncMode, started time.Time, cause error) {
	c.logger.Error("Sync failed: %v", cause)

	msg := cause.Error()
	outcome := &models.SyncOutcome{
		SyncTime:     started,
		Mode:         mode,
		Status:       models.SyncStatusFailed,
		ErrorMessage: &msg,
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := c.store.AppendSyncOutcome(rctx, outcome); err != nil {
		c.logger.Error("Failed to record sync failure: %v", err)
		return
	}
	c.observeRun(outcome, started)
	c.publish(rctx, outcome)
}

func (c *Coordinator) publish(ctx context.Context, outcome *models.SyncOutcome) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.PublishOutcome(ctx, outcome); err != nil {
		c.logger.Warn("Failed to publish sync outcome %s: %v", outcome.ID, err)
	}
}

func (c *Coordinator) observeRun(outcome *models.SyncOutcome, started time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.ObserveRun(string(outcome.Mode), string(outcome.Status), c.now().Sub(started))
}

func (c *Coordinator) observeProducts(result reconcile.Result) {
	if c.metrics == nil {
		return
	}
	for _, item := range result.Items {
		action := string(item.Action)
		if action == "" {
			action = reconcile.StageLookup
		}
		switch {
		case item.Failed():
			c.metrics.ObserveProduct(action, "failed")
		case item.Action == reconcile.ActionSkip:
			c.metrics.ObserveProduct(action, "skipped")
		default:
			c.metrics.ObserveProduct(action, "ok")
		}
	}
}
