// Package store persists canonical products and the append-only sync log.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalogsync/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned by GetProduct when no row matches.
var ErrNotFound = errors.New("product not found")

// Error wraps any persistence failure with the operation that hit it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("catalog store: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// upsertBatchSize bounds the number of rows per INSERT statement.
const upsertBatchSize = 500

// upsertColumns are overwritten on key collision.
var upsertColumns = []string{
	"title", "description", "price", "original_price", "discount_percent",
	"availability", "measuring_range", "reading", "family", "weight",
	"dimensions", "category", "subcategory", "image_url", "product_url",
	"last_updated",
}

// ProductFilter narrows product scans. The quality filter is always applied.
type ProductFilter struct {
	RequireImage bool
	Category     string
	Search       string
	Limit        int
	Offset       int
}

type CatalogStore struct {
	db  *gorm.DB
	now func() time.Time
}

type Option func(*CatalogStore)

// WithClock overrides the clock used for last_updated.
func WithClock(now func() time.Time) Option {
	return func(s *CatalogStore) {
		s.now = now
	}
}

func NewCatalogStore(db *gorm.DB, opts ...Option) *CatalogStore {
	s := &CatalogStore{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpsertMany writes products keyed by SKU in a single transaction. Later
// entries win over earlier ones sharing a SKU. Returns the number of
// distinct rows written.
func (s *CatalogStore) UpsertMany(ctx context.Context, products []models.Product) (int, error) {
	rows := dedupeBySKU(products)
	if len(rows) == 0 {
		return 0, nil
	}

	stamp := s.now().UTC()
	for i := range rows {
		if rows[i].SKU == "" {
			return 0, &Error{Op: "upsert products", Err: fmt.Errorf("row %d has an empty sku", i)}
		}
		rows[i].LastUpdated = stamp
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sku"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).CreateInBatches(&rows, upsertBatchSize).Error
	})
	if err != nil {
		return 0, &Error{Op: "upsert products", Err: err}
	}
	return len(rows), nil
}

// dedupeBySKU keeps the last occurrence of each SKU in first-seen order.
// A single INSERT ... ON CONFLICT cannot touch the same key twice.
func dedupeBySKU(products []models.Product) []models.Product {
	index := make(map[string]int, len(products))
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if i, ok := index[p.SKU]; ok {
			out[i] = p
			continue
		}
		index[p.SKU] = len(out)
		out = append(out, p)
	}
	return out
}

// AllProducts returns products passing the quality filter, ordered by SKU.
func (s *CatalogStore) AllProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	var products []models.Product
	if err := s.query(ctx, filter).Find(&products).Error; err != nil {
		return nil, &Error{Op: "list products", Err: err}
	}
	return products, nil
}

// ModifiedProducts returns products whose last_updated is after since.
func (s *CatalogStore) ModifiedProducts(ctx context.Context, since time.Time, filter ProductFilter) ([]models.Product, error) {
	var products []models.Product
	err := s.query(ctx, filter).
		Where("last_updated > ?", since.UTC()).
		Find(&products).Error
	if err != nil {
		return nil, &Error{Op: "list modified products", Err: err}
	}
	return products, nil
}

// CountProducts counts products matching the filter, ignoring paging.
func (s *CatalogStore) CountProducts(ctx context.Context, filter ProductFilter) (int64, error) {
	filter.Limit, filter.Offset = 0, 0

	var total int64
	if err := s.filtered(ctx, filter).Count(&total).Error; err != nil {
		return 0, &Error{Op: "count products", Err: err}
	}
	return total, nil
}

func (s *CatalogStore) GetProduct(ctx context.Context, sku string) (*models.Product, error) {
	var product models.Product
	err := s.db.WithContext(ctx).First(&product, "sku = ?", sku).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &Error{Op: "get product", Err: err}
	}
	return &product, nil
}

func (s *CatalogStore) filtered(ctx context.Context, filter ProductFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.Product{}).
		Where("sku IS NOT NULL AND sku <> ''").
		Where("title IS NOT NULL").
		Where("price IS NOT NULL").
		Where("availability IS NOT NULL")

	if filter.RequireImage {
		q = q.Where("image_url IS NOT NULL AND image_url <> ''")
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		q = q.Where("(LOWER(title) LIKE LOWER(?) OR LOWER(sku) LIKE LOWER(?))", like, like)
	}
	return q
}

func (s *CatalogStore) query(ctx context.Context, filter ProductFilter) *gorm.DB {
	q := s.filtered(ctx, filter).Order("sku ASC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	return q
}

// AppendSyncOutcome inserts a log entry. Entries are never updated.
func (s *CatalogStore) AppendSyncOutcome(ctx context.Context, outcome *models.SyncOutcome) error {
	if outcome.SyncTime.IsZero() {
		outcome.SyncTime = s.now()
	}
	outcome.SyncTime = outcome.SyncTime.UTC()

	if err := s.db.WithContext(ctx).Create(outcome).Error; err != nil {
		return &Error{Op: "append sync outcome", Err: err}
	}
	return nil
}

// LastSuccessfulSync returns the time of the latest SUCCESS or
// PARTIAL_SUCCESS outcome. ok is false when there is none.
func (s *CatalogStore) LastSuccessfulSync(ctx context.Context) (t time.Time, ok bool, err error) {
	var outcomes []models.SyncOutcome
	err = s.db.WithContext(ctx).
		Where("status IN ?", []models.SyncStatus{models.SyncStatusSuccess, models.SyncStatusPartialSuccess}).
		Order("sync_time DESC").
		Limit(1).
		Find(&outcomes).Error
	if err != nil {
		return time.Time{}, false, &Error{Op: "last successful sync", Err: err}
	}
	if len(outcomes) == 0 {
		return time.Time{}, false, nil
	}
	return outcomes[0].SyncTime, true, nil
}

// ListSyncOutcomes returns the newest outcomes first.
func (s *CatalogStore) ListSyncOutcomes(ctx context.Context, limit int) ([]models.SyncOutcome, error) {
	if limit <= 0 {
		limit = 50
	}
	var outcomes []models.SyncOutcome
	err := s.db.WithContext(ctx).
		Order("sync_time DESC").
		Limit(limit).
		Find(&outcomes).Error
	if err != nil {
		return nil, &Error{Op: "list sync outcomes", Err: err}
	}
	return outcomes, nil
}
