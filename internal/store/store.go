// Package store persists reference data, raw purchase records, and cost
// history. Implementations: SQLite (default), Postgres, and an in-memory
// store for tests and one-shot runs.
package store

import (
	"context"
	"time"

	"github.com/brasserie-group/cost-cli/internal/model"
)

// Store defines the persistence interface for the cost pipeline. It also
// satisfies the read-only repository interfaces the resolver, conversion
// service, and calculator consume.
type Store interface {
	// Reference data: products and consolidation rules are mutated only by
	// administrative actions, never by the pipeline itself (the single
	// exception is auto-created products during resolution).
	CreateProduct(ctx context.Context, p model.CanonicalProduct) error
	GetProduct(ctx context.Context, id string) (*model.CanonicalProduct, error)
	FindProductByNormalizedName(ctx context.Context, normalizedName string) (*model.CanonicalProduct, error)
	ListProducts(ctx context.Context) ([]model.CanonicalProduct, error)

	UpsertConsolidationRule(ctx context.Context, rule model.ConsolidationRule) error
	LookupConsolidation(ctx context.Context, normalizedRawName string) ([]model.ConsolidationRule, error)

	UpsertConversionRule(ctx context.Context, rule model.UnitConversionRule) error
	LookupConversion(ctx context.Context, fromUnit, toUnit, productID string) (*model.UnitConversionRule, error)

	// Raw purchases, the regenerated inputs for each pipeline run.
	InsertRawPurchases(ctx context.Context, records []model.RawPurchaseRecord) (int64, error)
	ListRawPurchases(ctx context.Context, from, to time.Time) ([]model.RawPurchaseRecord, error)

	// Cost history. UpsertCostEntry is keyed by (product_id, as_of_date):
	// re-running a date overwrites rather than duplicates.
	UpsertCostEntry(ctx context.Context, entry model.CostHistoryEntry) error
	LatestCostEntry(ctx context.Context, productID string, before time.Time) (*model.CostHistoryEntry, error)
	GetCostAsOf(ctx context.Context, productID string, asOf time.Time) (*model.CostHistoryEntry, error)
	ListCostHistory(ctx context.Context, productID string, from, to time.Time) ([]model.CostHistoryEntry, error)
	CategoryAverageCost(ctx context.Context, category string, asOf time.Time) (float64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// dateKey truncates a timestamp to its calendar date, the granularity cost
// history is keyed on.
func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
