// Package window builds the ordered purchase history a cost computation
// consumes: raw records filtered to a lookback period and normalized to the
// product's canonical recipe unit.
package window

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brasserie-group/cost-cli/internal/convert"
	"github.com/brasserie-group/cost-cli/internal/model"
)

// DefaultLookbackDays is the trailing period of purchase history considered
// when the caller does not override it.
const DefaultLookbackDays = 90

// Aggregator normalizes raw purchase records into cost windows.
type Aggregator struct {
	converter *convert.Service
}

// NewAggregator creates an Aggregator using the given conversion service.
func NewAggregator(converter *convert.Service) *Aggregator {
	return &Aggregator{converter: converter}
}

// Build filters records to [asOf - lookbackDays, asOf], converts each to the
// product's recipe unit, and orders the result most recent first. Records
// that cannot be converted or carry a non-positive cost are skipped and
// counted, never fatal. An empty window signals the fallback strategy.
func (a *Aggregator) Build(ctx context.Context, product model.CanonicalProduct, records []model.RawPurchaseRecord, asOf time.Time, lookbackDays int) (model.Window, error) {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	cutoff := asOf.AddDate(0, 0, -lookbackDays)

	w := model.Window{
		ProductID:    product.ID,
		AsOf:         asOf,
		LookbackDays: lookbackDays,
	}

	for _, rec := range records {
		if rec.Date.Before(cutoff) || rec.Date.After(asOf) {
			continue
		}

		if rec.Quantity <= 0 || rec.TotalCost <= 0 {
			zap.L().Warn("window: skipping record with non-positive quantity or cost",
				zap.String("product", product.Name),
				zap.Time("date", rec.Date),
				zap.Float64("quantity", rec.Quantity),
				zap.Float64("total_cost", rec.TotalCost),
			)
			w.Skipped++
			continue
		}

		event, err := a.normalize(ctx, product, rec, asOf)
		if err != nil {
			if !convert.IsUnsupported(err) {
				return w, err
			}
			zap.L().Warn("window: skipping record with unsupported unit",
				zap.String("product", product.Name),
				zap.Time("date", rec.Date),
				zap.String("unit", rec.Unit),
				zap.String("recipe_unit", product.RecipeUnit),
			)
			w.Skipped++
			continue
		}

		w.Events = append(w.Events, event)
	}

	// Most recent first simplifies weight assignment downstream.
	sort.SliceStable(w.Events, func(i, j int) bool {
		return w.Events[i].Date.After(w.Events[j].Date)
	})

	return w, nil
}

// normalize converts one raw record into a purchase event in recipe units.
func (a *Aggregator) normalize(ctx context.Context, product model.CanonicalProduct, rec model.RawPurchaseRecord, asOf time.Time) (model.PurchaseEvent, error) {
	factor, err := a.converter.Factor(ctx, rec.Unit, product.RecipeUnit, product.ID)
	if err != nil {
		return model.PurchaseEvent{}, err
	}

	recipeQty := rec.Quantity * factor
	if recipeQty <= 0 {
		return model.PurchaseEvent{}, eris.Errorf("window: non-positive recipe quantity for %s on %s", product.Name, rec.Date.Format("2006-01-02"))
	}

	return model.PurchaseEvent{
		ProductID:        product.ID,
		Date:             rec.Date,
		DaysAgo:          daysBetween(rec.Date, asOf),
		Quantity:         recipeQty,
		UnitCost:         rec.TotalCost / recipeQty,
		RawTotalCost:     rec.TotalCost,
		PurchaseUnit:     rec.Unit,
		ConversionFactor: factor,
	}, nil
}

func daysBetween(from, to time.Time) int {
	days := int(to.Sub(from).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
