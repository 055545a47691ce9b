package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/brasserie-group/cost-cli/internal/model"
	"github.com/brasserie-group/cost-cli/internal/resolve"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS products (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	normalized_name TEXT NOT NULL,
	category        TEXT NOT NULL DEFAULT '',
	recipe_unit     TEXT NOT NULL,
	auto_created    INTEGER NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS consolidation_rules (
	id                  TEXT PRIMARY KEY,
	raw_name            TEXT NOT NULL,
	normalized_raw_name TEXT NOT NULL,
	product_id          TEXT NOT NULL REFERENCES products(id),
	reason              TEXT NOT NULL DEFAULT '',
	created_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS conversion_rules (
	id         TEXT PRIMARY KEY,
	from_unit  TEXT NOT NULL,
	to_unit    TEXT NOT NULL,
	product_id TEXT NOT NULL DEFAULT '',
	factor     REAL NOT NULL CHECK (factor > 0),
	UNIQUE (from_unit, to_unit, product_id)
);

CREATE TABLE IF NOT EXISTS raw_purchases (
	id              TEXT PRIMARY KEY,
	raw_name        TEXT NOT NULL,
	purchase_date   DATETIME NOT NULL,
	quantity        REAL NOT NULL,
	unit            TEXT NOT NULL,
	total_cost      REAL NOT NULL,
	source_batch_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS cost_history (
	id             TEXT PRIMARY KEY,
	product_id     TEXT NOT NULL REFERENCES products(id),
	as_of_date     TEXT NOT NULL,
	unit_cost      REAL NOT NULL,
	strategy       TEXT NOT NULL,
	weights        TEXT NOT NULL DEFAULT '[]',
	confidence     TEXT NOT NULL,
	purchase_count INTEGER NOT NULL DEFAULT 0,
	computed_at    DATETIME NOT NULL,
	UNIQUE (product_id, as_of_date)
);

CREATE INDEX IF NOT EXISTS idx_products_normalized_name ON products(normalized_name);
CREATE INDEX IF NOT EXISTS idx_cons_rules_normalized ON consolidation_rules(normalized_raw_name);
CREATE INDEX IF NOT EXISTS idx_raw_purchases_date ON raw_purchases(purchase_date);
CREATE INDEX IF NOT EXISTS idx_cost_history_product ON cost_history(product_id, as_of_date);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateProduct(ctx context.Context, p model.CanonicalProduct) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (id, name, normalized_name, category, recipe_unit, auto_created, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, resolve.NormalizeName(p.Name), p.Category, p.RecipeUnit, boolToInt(p.AutoCreated), p.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert product %s", p.Name)
}

func (s *SQLiteStore) GetProduct(ctx context.Context, id string) (*model.CanonicalProduct, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, category, recipe_unit, auto_created, created_at FROM products WHERE id = ?`, id)
	return scanProduct(row)
}

func (s *SQLiteStore) FindProductByNormalizedName(ctx context.Context, normalizedName string) (*model.CanonicalProduct, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, category, recipe_unit, auto_created, created_at FROM products WHERE normalized_name = ? LIMIT 1`,
		normalizedName)
	return scanProduct(row)
}

func (s *SQLiteStore) ListProducts(ctx context.Context) ([]model.CanonicalProduct, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, category, recipe_unit, auto_created, created_at FROM products ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list products")
	}
	defer rows.Close()

	var products []model.CanonicalProduct
	for rows.Next() {
		var p model.CanonicalProduct
		var autoCreated int
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.RecipeUnit, &autoCreated, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product")
		}
		p.AutoCreated = autoCreated != 0
		products = append(products, p)
	}
	return products, eris.Wrap(rows.Err(), "sqlite: iterate products")
}

func (s *SQLiteStore) UpsertConsolidationRule(ctx context.Context, rule model.ConsolidationRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO consolidation_rules (id, raw_name, normalized_raw_name, product_id, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET raw_name = excluded.raw_name,
			normalized_raw_name = excluded.normalized_raw_name,
			product_id = excluded.product_id,
			reason = excluded.reason`,
		rule.ID, rule.RawName, resolve.NormalizeName(rule.RawName), rule.ProductID, rule.Reason, rule.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert consolidation rule %q", rule.RawName)
}

func (s *SQLiteStore) LookupConsolidation(ctx context.Context, normalizedRawName string) ([]model.ConsolidationRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, raw_name, product_id, reason, created_at FROM consolidation_rules WHERE normalized_raw_name = ?`,
		normalizedRawName)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: lookup consolidation")
	}
	defer rows.Close()

	var rules []model.ConsolidationRule
	for rows.Next() {
		var r model.ConsolidationRule
		if err := rows.Scan(&r.ID, &r.RawName, &r.ProductID, &r.Reason, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan consolidation rule")
		}
		rules = append(rules, r)
	}
	return rules, eris.Wrap(rows.Err(), "sqlite: iterate consolidation rules")
}

func (s *SQLiteStore) UpsertConversionRule(ctx context.Context, rule model.UnitConversionRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversion_rules (id, from_unit, to_unit, product_id, factor)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (from_unit, to_unit, product_id) DO UPDATE SET factor = excluded.factor`,
		rule.ID, rule.FromUnit, rule.ToUnit, rule.ProductID, rule.Factor,
	)
	return eris.Wrapf(err, "sqlite: upsert conversion rule %s->%s", rule.FromUnit, rule.ToUnit)
}

func (s *SQLiteStore) LookupConversion(ctx context.Context, fromUnit, toUnit, productID string) (*model.UnitConversionRule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, from_unit, to_unit, product_id, factor FROM conversion_rules
		 WHERE from_unit = ? AND to_unit = ? AND product_id = ? LIMIT 1`,
		fromUnit, toUnit, productID)

	var r model.UnitConversionRule
	err := row.Scan(&r.ID, &r.FromUnit, &r.ToUnit, &r.ProductID, &r.Factor)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: lookup conversion rule")
	}
	return &r, nil
}

func (s *SQLiteStore) InsertRawPurchases(ctx context.Context, records []model.RawPurchaseRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert purchases")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO raw_purchases (id, raw_name, purchase_date, quantity, unit, total_cost, source_batch_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert purchases")
	}
	defer stmt.Close()

	for _, r := range records {
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.RawName, r.Date.UTC(), r.Quantity, r.Unit, r.TotalCost, r.SourceBatchID); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert purchase %q", r.RawName)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert purchases")
	}
	return int64(len(records)), nil
}

func (s *SQLiteStore) ListRawPurchases(ctx context.Context, from, to time.Time) ([]model.RawPurchaseRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, raw_name, purchase_date, quantity, unit, total_cost, source_batch_id
		 FROM raw_purchases WHERE purchase_date >= ? AND purchase_date <= ? ORDER BY purchase_date`,
		from.UTC(), to.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list purchases")
	}
	defer rows.Close()

	var records []model.RawPurchaseRecord
	for rows.Next() {
		var r model.RawPurchaseRecord
		if err := rows.Scan(&r.ID, &r.RawName, &r.Date, &r.Quantity, &r.Unit, &r.TotalCost, &r.SourceBatchID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan purchase")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: iterate purchases")
}

func (s *SQLiteStore) UpsertCostEntry(ctx context.Context, entry model.CostHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.ComputedAt.IsZero() {
		entry.ComputedAt = time.Now().UTC()
	}
	weights, err := json.Marshal(entry.Weights)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal weights")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cost_history (id, product_id, as_of_date, unit_cost, strategy, weights, confidence, purchase_count, computed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (product_id, as_of_date) DO UPDATE SET
			unit_cost = excluded.unit_cost,
			strategy = excluded.strategy,
			weights = excluded.weights,
			confidence = excluded.confidence,
			purchase_count = excluded.purchase_count,
			computed_at = excluded.computed_at`,
		entry.ID, entry.ProductID, dateKey(entry.AsOfDate), entry.UnitCost, string(entry.Strategy),
		string(weights), string(entry.Confidence), entry.PurchaseCount, entry.ComputedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert cost entry %s@%s", entry.ProductID, dateKey(entry.AsOfDate))
}

func (s *SQLiteStore) LatestCostEntry(ctx context.Context, productID string, before time.Time) (*model.CostHistoryEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, product_id, as_of_date, unit_cost, strategy, weights, confidence, purchase_count, computed_at
		 FROM cost_history WHERE product_id = ? AND as_of_date < ? ORDER BY as_of_date DESC LIMIT 1`,
		productID, dateKey(before))
	return scanCostEntry(row)
}

func (s *SQLiteStore) GetCostAsOf(ctx context.Context, productID string, asOf time.Time) (*model.CostHistoryEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, product_id, as_of_date, unit_cost, strategy, weights, confidence, purchase_count, computed_at
		 FROM cost_history WHERE product_id = ? AND as_of_date <= ? ORDER BY as_of_date DESC LIMIT 1`,
		productID, dateKey(asOf))
	return scanCostEntry(row)
}

func (s *SQLiteStore) ListCostHistory(ctx context.Context, productID string, from, to time.Time) ([]model.CostHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, product_id, as_of_date, unit_cost, strategy, weights, confidence, purchase_count, computed_at
		 FROM cost_history WHERE product_id = ? AND as_of_date >= ? AND as_of_date <= ? ORDER BY as_of_date`,
		productID, dateKey(from), dateKey(to))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cost history")
	}
	defer rows.Close()

	var entries []model.CostHistoryEntry
	for rows.Next() {
		entry, err := scanCostEntryRows(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: iterate cost history")
}

func (s *SQLiteStore) CategoryAverageCost(ctx context.Context, category string, asOf time.Time) (float64, error) {
	// Average the newest entry per product within the category.
	row := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(ch.unit_cost), 0)
		FROM cost_history ch
		JOIN products p ON p.id = ch.product_id
		WHERE p.category = ?
		  AND ch.unit_cost > 0
		  AND ch.as_of_date = (
			SELECT MAX(as_of_date) FROM cost_history
			WHERE product_id = ch.product_id AND as_of_date <= ?
		  )`,
		category, dateKey(asOf))

	var avg float64
	if err := row.Scan(&avg); err != nil {
		return 0, eris.Wrapf(err, "sqlite: category average for %q", category)
	}
	return avg, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*model.CanonicalProduct, error) {
	var p model.CanonicalProduct
	var autoCreated int
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.RecipeUnit, &autoCreated, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan product")
	}
	p.AutoCreated = autoCreated != 0
	return &p, nil
}

func scanCostEntry(row *sql.Row) (*model.CostHistoryEntry, error) {
	entry, err := scanCostEntryFrom(row)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func scanCostEntryRows(rows *sql.Rows) (*model.CostHistoryEntry, error) {
	return scanCostEntryFrom(rows)
}

func scanCostEntryFrom(row rowScanner) (*model.CostHistoryEntry, error) {
	var e model.CostHistoryEntry
	var asOf, strategy, weights, confidence string
	err := row.Scan(&e.ID, &e.ProductID, &asOf, &e.UnitCost, &strategy, &weights, &confidence, &e.PurchaseCount, &e.ComputedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan cost entry")
	}

	e.AsOfDate, err = time.ParseInLocation("2006-01-02", asOf, time.UTC)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse as_of_date %q", asOf)
	}
	e.Strategy = model.Strategy(strategy)
	e.Confidence = model.Confidence(confidence)
	if err := json.Unmarshal([]byte(weights), &e.Weights); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal weights")
	}
	return &e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
