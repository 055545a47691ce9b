package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/brasserie-group/cost-cli/internal/db"
	"github.com/brasserie-group/cost-cli/internal/model"
	"github.com/brasserie-group/cost-cli/internal/resolve"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects to Postgres and verifies the connection.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse dsn")
	}
	cfg.MaxConns = 8

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS products (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	normalized_name TEXT NOT NULL,
	category        TEXT NOT NULL DEFAULT '',
	recipe_unit     TEXT NOT NULL,
	auto_created    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS consolidation_rules (
	id                  TEXT PRIMARY KEY,
	raw_name            TEXT NOT NULL,
	normalized_raw_name TEXT NOT NULL,
	product_id          TEXT NOT NULL REFERENCES products(id),
	reason              TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS conversion_rules (
	id         TEXT PRIMARY KEY,
	from_unit  TEXT NOT NULL,
	to_unit    TEXT NOT NULL,
	product_id TEXT NOT NULL DEFAULT '',
	factor     DOUBLE PRECISION NOT NULL CHECK (factor > 0),
	UNIQUE (from_unit, to_unit, product_id)
);

CREATE TABLE IF NOT EXISTS raw_purchases (
	id              TEXT PRIMARY KEY,
	raw_name        TEXT NOT NULL,
	purchase_date   TIMESTAMPTZ NOT NULL,
	quantity        DOUBLE PRECISION NOT NULL,
	unit            TEXT NOT NULL,
	total_cost      DOUBLE PRECISION NOT NULL,
	source_batch_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS cost_history (
	id             TEXT PRIMARY KEY,
	product_id     TEXT NOT NULL REFERENCES products(id),
	as_of_date     DATE NOT NULL,
	unit_cost      DOUBLE PRECISION NOT NULL,
	strategy       TEXT NOT NULL,
	weights        JSONB NOT NULL DEFAULT '[]',
	confidence     TEXT NOT NULL,
	purchase_count INTEGER NOT NULL DEFAULT 0,
	computed_at    TIMESTAMPTZ NOT NULL,
	UNIQUE (product_id, as_of_date)
);

CREATE INDEX IF NOT EXISTS idx_products_normalized_name ON products(normalized_name);
CREATE INDEX IF NOT EXISTS idx_cons_rules_normalized ON consolidation_rules(normalized_raw_name);
CREATE INDEX IF NOT EXISTS idx_raw_purchases_date ON raw_purchases(purchase_date);
CREATE INDEX IF NOT EXISTS idx_cost_history_product ON cost_history(product_id, as_of_date);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateProduct(ctx context.Context, p model.CanonicalProduct) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO products (id, name, normalized_name, category, recipe_unit, auto_created, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Name, resolve.NormalizeName(p.Name), p.Category, p.RecipeUnit, p.AutoCreated, p.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert product %s", p.Name)
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*model.CanonicalProduct, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, category, recipe_unit, auto_created, created_at FROM products WHERE id = $1`, id)
	return scanPgProduct(row)
}

func (s *PostgresStore) FindProductByNormalizedName(ctx context.Context, normalizedName string) (*model.CanonicalProduct, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, category, recipe_unit, auto_created, created_at FROM products WHERE normalized_name = $1 LIMIT 1`,
		normalizedName)
	return scanPgProduct(row)
}

func (s *PostgresStore) ListProducts(ctx context.Context) ([]model.CanonicalProduct, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, category, recipe_unit, auto_created, created_at FROM products ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list products")
	}
	defer rows.Close()

	var products []model.CanonicalProduct
	for rows.Next() {
		var p model.CanonicalProduct
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.RecipeUnit, &p.AutoCreated, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan product")
		}
		products = append(products, p)
	}
	return products, eris.Wrap(rows.Err(), "postgres: iterate products")
}

func (s *PostgresStore) UpsertConsolidationRule(ctx context.Context, rule model.ConsolidationRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO consolidation_rules (id, raw_name, normalized_raw_name, product_id, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET raw_name = EXCLUDED.raw_name,
			normalized_raw_name = EXCLUDED.normalized_raw_name,
			product_id = EXCLUDED.product_id,
			reason = EXCLUDED.reason`,
		rule.ID, rule.RawName, resolve.NormalizeName(rule.RawName), rule.ProductID, rule.Reason, rule.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert consolidation rule %q", rule.RawName)
}

func (s *PostgresStore) LookupConsolidation(ctx context.Context, normalizedRawName string) ([]model.ConsolidationRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, raw_name, product_id, reason, created_at FROM consolidation_rules WHERE normalized_raw_name = $1`,
		normalizedRawName)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: lookup consolidation")
	}
	defer rows.Close()

	var rules []model.ConsolidationRule
	for rows.Next() {
		var r model.ConsolidationRule
		if err := rows.Scan(&r.ID, &r.RawName, &r.ProductID, &r.Reason, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan consolidation rule")
		}
		rules = append(rules, r)
	}
	return rules, eris.Wrap(rows.Err(), "postgres: iterate consolidation rules")
}

func (s *PostgresStore) UpsertConversionRule(ctx context.Context, rule model.UnitConversionRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversion_rules (id, from_unit, to_unit, product_id, factor)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (from_unit, to_unit, product_id) DO UPDATE SET factor = EXCLUDED.factor`,
		rule.ID, rule.FromUnit, rule.ToUnit, rule.ProductID, rule.Factor,
	)
	return eris.Wrapf(err, "postgres: upsert conversion rule %s->%s", rule.FromUnit, rule.ToUnit)
}

func (s *PostgresStore) LookupConversion(ctx context.Context, fromUnit, toUnit, productID string) (*model.UnitConversionRule, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, from_unit, to_unit, product_id, factor FROM conversion_rules
		 WHERE from_unit = $1 AND to_unit = $2 AND product_id = $3 LIMIT 1`,
		fromUnit, toUnit, productID)

	var r model.UnitConversionRule
	err := row.Scan(&r.ID, &r.FromUnit, &r.ToUnit, &r.ProductID, &r.Factor)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: lookup conversion rule")
	}
	return &r, nil
}

// InsertRawPurchases bulk upserts via temp table + COPY. Re-importing a
// batch is idempotent on record IDs.
func (s *PostgresStore) InsertRawPurchases(ctx context.Context, records []model.RawPurchaseRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(records))
	for _, r := range records {
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		rows = append(rows, []any{r.ID, r.RawName, r.Date.UTC(), r.Quantity, r.Unit, r.TotalCost, r.SourceBatchID})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "raw_purchases",
		Columns:      []string{"id", "raw_name", "purchase_date", "quantity", "unit", "total_cost", "source_batch_id"},
		ConflictKeys: []string{"id"},
	}, rows)
	return n, eris.Wrap(err, "postgres: insert raw purchases")
}

func (s *PostgresStore) ListRawPurchases(ctx context.Context, from, to time.Time) ([]model.RawPurchaseRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, raw_name, purchase_date, quantity, unit, total_cost, source_batch_id
		 FROM raw_purchases WHERE purchase_date >= $1 AND purchase_date <= $2 ORDER BY purchase_date`,
		from.UTC(), to.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list purchases")
	}
	defer rows.Close()

	var records []model.RawPurchaseRecord
	for rows.Next() {
		var r model.RawPurchaseRecord
		if err := rows.Scan(&r.ID, &r.RawName, &r.Date, &r.Quantity, &r.Unit, &r.TotalCost, &r.SourceBatchID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan purchase")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: iterate purchases")
}

func (s *PostgresStore) UpsertCostEntry(ctx context.Context, entry model.CostHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.ComputedAt.IsZero() {
		entry.ComputedAt = time.Now().UTC()
	}
	weights, err := json.Marshal(entry.Weights)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal weights")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO cost_history (id, product_id, as_of_date, unit_cost, strategy, weights, confidence, purchase_count, computed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (product_id, as_of_date) DO UPDATE SET
			unit_cost = EXCLUDED.unit_cost,
			strategy = EXCLUDED.strategy,
			weights = EXCLUDED.weights,
			confidence = EXCLUDED.confidence,
			purchase_count = EXCLUDED.purchase_count,
			computed_at = EXCLUDED.computed_at`,
		entry.ID, entry.ProductID, dateKey(entry.AsOfDate), entry.UnitCost, string(entry.Strategy),
		weights, string(entry.Confidence), entry.PurchaseCount, entry.ComputedAt,
	)
	return eris.Wrapf(err, "postgres: upsert cost entry %s@%s", entry.ProductID, dateKey(entry.AsOfDate))
}

func (s *PostgresStore) LatestCostEntry(ctx context.Context, productID string, before time.Time) (*model.CostHistoryEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, product_id, as_of_date, unit_cost, strategy, weights, confidence, purchase_count, computed_at
		 FROM cost_history WHERE product_id = $1 AND as_of_date < $2 ORDER BY as_of_date DESC LIMIT 1`,
		productID, dateKey(before))
	return scanPgCostEntry(row)
}

func (s *PostgresStore) GetCostAsOf(ctx context.Context, productID string, asOf time.Time) (*model.CostHistoryEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, product_id, as_of_date, unit_cost, strategy, weights, confidence, purchase_count, computed_at
		 FROM cost_history WHERE product_id = $1 AND as_of_date <= $2 ORDER BY as_of_date DESC LIMIT 1`,
		productID, dateKey(asOf))
	return scanPgCostEntry(row)
}

func (s *PostgresStore) ListCostHistory(ctx context.Context, productID string, from, to time.Time) ([]model.CostHistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, product_id, as_of_date, unit_cost, strategy, weights, confidence, purchase_count, computed_at
		 FROM cost_history WHERE product_id = $1 AND as_of_date >= $2 AND as_of_date <= $3 ORDER BY as_of_date`,
		productID, dateKey(from), dateKey(to))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cost history")
	}
	defer rows.Close()

	var entries []model.CostHistoryEntry
	for rows.Next() {
		entry, err := scanPgCostEntryRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: iterate cost history")
}

func (s *PostgresStore) CategoryAverageCost(ctx context.Context, category string, asOf time.Time) (float64, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT COALESCE(AVG(ch.unit_cost), 0)
		FROM cost_history ch
		JOIN products p ON p.id = ch.product_id
		WHERE p.category = $1
		  AND ch.unit_cost > 0
		  AND ch.as_of_date = (
			SELECT MAX(as_of_date) FROM cost_history
			WHERE product_id = ch.product_id AND as_of_date <= $2
		  )`,
		category, dateKey(asOf))

	var avg float64
	if err := row.Scan(&avg); err != nil {
		return 0, eris.Wrapf(err, "postgres: category average for %q", category)
	}
	return avg, nil
}

func scanPgProduct(row pgx.Row) (*model.CanonicalProduct, error) {
	var p model.CanonicalProduct
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.RecipeUnit, &p.AutoCreated, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan product")
	}
	return &p, nil
}

func scanPgCostEntry(row pgx.Row) (*model.CostHistoryEntry, error) {
	entry, err := scanPgCostEntryRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

func scanPgCostEntryRow(row pgx.Row) (*model.CostHistoryEntry, error) {
	var e model.CostHistoryEntry
	var asOf time.Time
	var strategy, confidence string
	var weights []byte
	err := row.Scan(&e.ID, &e.ProductID, &asOf, &e.UnitCost, &strategy, &weights, &confidence, &e.PurchaseCount, &e.ComputedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan cost entry")
	}

	e.AsOfDate = asOf.UTC()
	e.Strategy = model.Strategy(strategy)
	e.Confidence = model.Confidence(confidence)
	if err := json.Unmarshal(weights, &e.Weights); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal weights")
	}
	return &e, nil
}
