// Package importer converts supplier purchase extracts into raw purchase
// records. Rows that fail validation are counted and skipped, never fatal.
package importer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brasserie-group/cost-cli/internal/fetcher"
	"github.com/brasserie-group/cost-cli/internal/model"
)

// DefaultMaxMalformedRate is the fraction of malformed rows above which the
// import logs a loud warning, used when the operator configures no other
// threshold. A high rate usually means the column map is wrong for this
// supplier, not that the data is bad.
const DefaultMaxMalformedRate = 0.2

// ColumnMap gives the zero-based column index of each required field.
type ColumnMap struct {
	Name      int `mapstructure:"name" yaml:"name"`
	Date      int `mapstructure:"date" yaml:"date"`
	Quantity  int `mapstructure:"quantity" yaml:"quantity"`
	Unit      int `mapstructure:"unit" yaml:"unit"`
	TotalCost int `mapstructure:"total_cost" yaml:"total_cost"`
}

func (m ColumnMap) max() int {
	max := m.Name
	for _, i := range []int{m.Date, m.Quantity, m.Unit, m.TotalCost} {
		if i > max {
			max = i
		}
	}
	return max
}

// DefaultColumnMap matches the common extract layout:
// product, date, quantity, unit, total.
var DefaultColumnMap = ColumnMap{Name: 0, Date: 1, Quantity: 2, Unit: 3, TotalCost: 4}

// dateLayouts are tried in order when parsing purchase dates.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006", // French extracts: day first
	"02-01-2006",
	time.RFC3339,
}

// Options configures one import.
type Options struct {
	Columns          ColumnMap
	HasHeader        bool
	Delimiter        rune    // CSV only; default ','
	Encoding         string  // CSV only; "latin1", "windows-1252", "utf-8"
	SheetName        string  // XLSX only
	SkipRows         int     // XLSX only
	MaxMalformedRate float64 // warn above this skip rate; default DefaultMaxMalformedRate
}

// Result summarizes one import.
type Result struct {
	BatchID   string
	Total     int
	Imported  int
	Malformed int
}

// MalformedRate returns the fraction of rows that failed validation.
func (r Result) MalformedRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Malformed) / float64(r.Total)
}

// Store is the subset of the persistence layer the importer writes to.
type Store interface {
	InsertRawPurchases(ctx context.Context, records []model.RawPurchaseRecord) (int64, error)
}

// Importer parses extracts and persists the resulting records.
type Importer struct {
	store Store
}

// New creates an Importer writing to the given store.
func New(store Store) *Importer {
	return &Importer{store: store}
}

// ImportFile dispatches on the file extension: .csv, .xlsx, or .zip
// containing a single csv extract.
func (im *Importer) ImportFile(ctx context.Context, path string, opts Options) (Result, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return Result{}, eris.Wrapf(err, "importer: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return im.ImportCSV(ctx, f, opts)
	case ".xlsx":
		return im.ImportXLSX(ctx, path, opts)
	case ".zip":
		inner, err := fetcher.ExtractZIPSingle(path, filepath.Dir(path))
		if err != nil {
			return Result{}, eris.Wrapf(err, "importer: extract %s", path)
		}
		return im.ImportFile(ctx, inner, opts)
	default:
		return Result{}, eris.Errorf("importer: unsupported extract format %q", filepath.Ext(path))
	}
}

// ImportCSV parses a CSV extract and persists its valid rows.
func (im *Importer) ImportCSV(ctx context.Context, r io.Reader, opts Options) (Result, error) {
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		Delimiter: opts.Delimiter,
		HasHeader: opts.HasHeader,
		Encoding:  opts.Encoding,
		TrimSpace: true,
	})

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return Result{}, eris.Wrap(err, "importer: read csv")
	}

	return im.importRows(ctx, rows, opts)
}

// ImportXLSX parses a spreadsheet extract and persists its valid rows.
func (im *Importer) ImportXLSX(ctx context.Context, path string, opts Options) (Result, error) {
	skip := opts.SkipRows
	if opts.HasHeader && skip == 0 {
		skip = 1
	}
	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{
		SheetName: opts.SheetName,
		SkipRows:  skip,
	})
	if err != nil {
		return Result{}, eris.Wrap(err, "importer: read xlsx")
	}
	return im.importRows(ctx, rows, opts)
}

func (im *Importer) importRows(ctx context.Context, rows [][]string, opts Options) (Result, error) {
	cols := opts.Columns
	if cols == (ColumnMap{}) {
		cols = DefaultColumnMap
	}

	result := Result{BatchID: uuid.New().String(), Total: len(rows)}
	records := make([]model.RawPurchaseRecord, 0, len(rows))

	for i, row := range rows {
		rec, err := parseRow(row, cols)
		if err != nil {
			result.Malformed++
			zap.L().Debug("importer: skipping malformed row",
				zap.Int("row", i+1),
				zap.Error(err),
			)
			continue
		}
		rec.ID = uuid.New().String()
		rec.SourceBatchID = result.BatchID
		records = append(records, rec)
	}

	threshold := opts.MaxMalformedRate
	if threshold <= 0 {
		threshold = DefaultMaxMalformedRate
	}
	if rate := result.MalformedRate(); rate > threshold {
		zap.L().Warn("importer: high malformed row rate, check the column map",
			zap.Float64("rate", rate),
			zap.Float64("threshold", threshold),
			zap.Int("malformed", result.Malformed),
			zap.Int("total", result.Total),
		)
	}

	n, err := im.store.InsertRawPurchases(ctx, records)
	if err != nil {
		return result, eris.Wrap(err, "importer: persist records")
	}
	result.Imported = int(n)

	zap.L().Info("importer: batch imported",
		zap.String("batch_id", result.BatchID),
		zap.Int("imported", result.Imported),
		zap.Int("malformed", result.Malformed),
	)
	return result, nil
}

// parseRow validates one extract row. Quantity and cost must parse as
// numbers; the date must match a known layout; name and unit must be
// non-empty. Sign checks happen later, in the window aggregator.
func parseRow(row []string, cols ColumnMap) (model.RawPurchaseRecord, error) {
	if len(row) <= cols.max() {
		return model.RawPurchaseRecord{}, eris.Errorf("row has %d fields, need %d", len(row), cols.max()+1)
	}

	name := strings.TrimSpace(row[cols.Name])
	if name == "" {
		return model.RawPurchaseRecord{}, eris.New("empty product name")
	}
	unit := strings.TrimSpace(row[cols.Unit])
	if unit == "" {
		return model.RawPurchaseRecord{}, eris.New("empty unit")
	}

	date, err := parseDate(row[cols.Date])
	if err != nil {
		return model.RawPurchaseRecord{}, err
	}

	qty, err := parseNumber(row[cols.Quantity])
	if err != nil {
		return model.RawPurchaseRecord{}, eris.Wrap(err, "quantity")
	}
	cost, err := parseNumber(row[cols.TotalCost])
	if err != nil {
		return model.RawPurchaseRecord{}, eris.Wrap(err, "total cost")
	}

	return model.RawPurchaseRecord{
		RawName:   name,
		Date:      date,
		Quantity:  qty,
		Unit:      unit,
		TotalCost: cost,
	}, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("unparseable date %q", s)
}

// parseNumber accepts both "12.50" and the French "12,50".
func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "")
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Errorf("unparseable number %q", s)
	}
	return f, nil
}
