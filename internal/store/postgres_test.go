package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brasserie-group/cost-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func TestPostgresStore_GetProduct_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name, category, recipe_unit, auto_created, created_at FROM products WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	p, err := s.GetProduct(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetProduct_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, name, category, recipe_unit, auto_created, created_at FROM products WHERE id = \$1`).
		WithArgs("prod-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "category", "recipe_unit", "auto_created", "created_at"}).
			AddRow("prod-1", "Beurre", "dairy", "g", false, created))

	p, err := s.GetProduct(context.Background(), "prod-1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Beurre", p.Name)
	assert.Equal(t, "g", p.RecipeUnit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateProduct_NormalizesName(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO products`).
		WithArgs("prod-1", "Crème Fraîche", "CREME FRAICHE", "dairy", "ml", false, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.CreateProduct(context.Background(), model.CanonicalProduct{
		ID: "prod-1", Name: "Crème Fraîche", Category: "dairy", RecipeUnit: "ml",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LookupConversion_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, from_unit, to_unit, product_id, factor FROM conversion_rules`).
		WithArgs("oz", "g", "").
		WillReturnError(pgx.ErrNoRows)

	rule, err := s.LookupConversion(context.Background(), "oz", "g", "")
	require.NoError(t, err)
	assert.Nil(t, rule)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertConversionRule(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO conversion_rules .* ON CONFLICT`).
		WithArgs(pgxmock.AnyArg(), "caisse", "kg", "", 10.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertConversionRule(context.Background(), model.UnitConversionRule{
		FromUnit: "caisse", ToUnit: "kg", Factor: 10,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertCostEntry_ConflictOnProductDate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO cost_history .* ON CONFLICT \(product_id, as_of_date\) DO UPDATE`).
		WithArgs(pgxmock.AnyArg(), "prod-1", "2026-08-01", 0.0025, "linear",
			pgxmock.AnyArg(), "low", 2, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertCostEntry(context.Background(), model.CostHistoryEntry{
		ProductID:     "prod-1",
		AsOfDate:      time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		UnitCost:      0.0025,
		Strategy:      model.StrategyLinear,
		Weights:       []float64{0.6, 0.4},
		Confidence:    model.ConfidenceLow,
		PurchaseCount: 2,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestCostEntry_StrictlyBefore(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	asOf := time.Date(2026, 7, 8, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM cost_history WHERE product_id = \$1 AND as_of_date < \$2`).
		WithArgs("prod-1", "2026-07-15").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "product_id", "as_of_date", "unit_cost", "strategy", "weights",
			"confidence", "purchase_count", "computed_at",
		}).AddRow("e1", "prod-1", asOf, 3.10, "fallback", []byte(`[]`), "low", 0, asOf))

	entry, err := s.LatestCostEntry(context.Background(), "prod-1", time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 3.10, entry.UnitCost)
	assert.Equal(t, model.StrategyFallback, entry.Strategy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestCostEntry_NoHistory(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .* FROM cost_history WHERE product_id = \$1 AND as_of_date < \$2`).
		WithArgs("prod-1", "2026-07-15").
		WillReturnError(pgx.ErrNoRows)

	entry, err := s.LatestCostEntry(context.Background(), "prod-1", time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CategoryAverageCost(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COALESCE\(AVG\(ch\.unit_cost\), 0\)`).
		WithArgs("dairy", "2026-08-01").
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(3.0))

	avg, err := s.CategoryAverageCost(context.Background(), "dairy", time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 3.0, avg)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertRawPurchases_Empty(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	n, err := s.InsertRawPurchases(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
