// Package costing turns a normalized purchase window into a single unit cost
// plus a confidence signal, selecting a weighting strategy from the number
// of purchases observed.
package costing

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brasserie-group/cost-cli/internal/model"
)

// Strategy selection bands, by purchase count in the lookback window.
const (
	// LinearMaxPurchases is the upper bound of the linear band; below it
	// there are too few points for decay tuning.
	LinearMaxPurchases = 3
	// AdaptiveMaxPurchases is the upper bound of the adaptive exponential
	// band; above it history justifies the sophisticated weighting.
	AdaptiveMaxPurchases = 8
)

// FallbackSource supplies prior knowledge for products with an empty window.
type FallbackSource interface {
	// LatestCostEntry returns the newest entry for the product strictly
	// before the given date, or nil if none exists.
	LatestCostEntry(ctx context.Context, productID string, before time.Time) (*model.CostHistoryEntry, error)
	// CategoryAverageCost returns the mean latest unit cost across the
	// category, or 0 if the category has no costed products.
	CategoryAverageCost(ctx context.Context, category string, asOf time.Time) (float64, error)
}

// Calculator computes weighted average costs.
type Calculator struct {
	fallback FallbackSource
}

// NewCalculator creates a Calculator. fallback may be nil, in which case
// empty windows produce a zero cost with no confidence.
func NewCalculator(fallback FallbackSource) *Calculator {
	return &Calculator{fallback: fallback}
}

// Compute selects and executes a weighting strategy for the window.
// Selection is purely a function of the usable event count:
//
//	0    fallback (last known entry, else category average)
//	1-3  linear recency weighting
//	4-8  exponential decay with cadence-adaptive half-life
//	>=9  sophisticated (decay + recency bonus + volume factor, capped at 15)
func (c *Calculator) Compute(ctx context.Context, product model.CanonicalProduct, window model.Window) (model.CostResult, error) {
	events := usableEvents(window.Events)

	n := len(events)
	switch {
	case n == 0:
		return c.computeFallback(ctx, product, window.AsOf)
	case n <= LinearMaxPurchases:
		return finishWeighted(events, linearWeights(events), model.StrategyLinear, 0)
	case n <= AdaptiveMaxPurchases:
		halfLife := adaptiveHalfLife(events)
		return finishWeighted(events, exponentialWeights(events, halfLife), model.StrategyAdaptiveExponential, halfLife)
	default:
		capped := events
		if len(capped) > SophisticatedMaxEvents {
			capped = capped[:SophisticatedMaxEvents]
		}
		result, err := finishWeighted(capped, sophisticatedWeights(capped), model.StrategySophisticated, 0)
		if err != nil {
			return result, err
		}
		// Confidence considers the full window, not just the capped slice.
		result.PurchaseCount = n
		result.Confidence = confidenceFor(result.Strategy, n, newestDaysAgo(events))
		return result, nil
	}
}

// computeFallback resolves a cost for a product with zero usable purchases.
func (c *Calculator) computeFallback(ctx context.Context, product model.CanonicalProduct, asOf time.Time) (model.CostResult, error) {
	result := model.CostResult{
		Strategy:   model.StrategyFallback,
		Confidence: ConfidenceFallback,
	}

	if c.fallback == nil {
		result.Confidence = model.ConfidenceNone
		return result, nil
	}

	entry, err := c.fallback.LatestCostEntry(ctx, product.ID, asOf)
	if err != nil {
		return result, eris.Wrapf(err, "costing: fallback lookup for product %s", product.ID)
	}
	if entry != nil {
		result.UnitCost = entry.UnitCost
		return result, nil
	}

	avg, err := c.fallback.CategoryAverageCost(ctx, product.Category, asOf)
	if err != nil {
		return result, eris.Wrapf(err, "costing: category average for %q", product.Category)
	}
	if avg > 0 {
		result.UnitCost = avg
		return result, nil
	}

	zap.L().Warn("costing: no cost information available",
		zap.String("product_id", product.ID),
		zap.String("product", product.Name),
	)
	result.Confidence = model.ConfidenceNone
	return result, nil
}

// finishWeighted normalizes raw weights and folds them into a unit cost.
func finishWeighted(events []model.PurchaseEvent, raw []float64, strategy model.Strategy, halfLife float64) (model.CostResult, error) {
	weights, ok := normalizeWeights(raw)
	if !ok {
		// Cannot occur given the strategy formulas, but the division is
		// guarded anyway: degrade to a plain average.
		zap.L().Warn("costing: zero weight sum, using uniform weights",
			zap.String("strategy", string(strategy)),
			zap.Int("events", len(events)),
		)
		weights = uniformWeights(len(events))
	}

	var unitCost float64
	for i, e := range events {
		unitCost += weights[i] * e.UnitCost
	}

	return model.CostResult{
		UnitCost:      unitCost,
		Strategy:      strategy,
		Weights:       weights,
		Confidence:    confidenceFor(strategy, len(events), newestDaysAgo(events)),
		PurchaseCount: len(events),
		HalfLifeDays:  halfLife,
	}, nil
}

// usableEvents drops events with non-positive unit costs. These indicate
// malformed source rows and must not be silently zero-weighted.
func usableEvents(events []model.PurchaseEvent) []model.PurchaseEvent {
	usable := make([]model.PurchaseEvent, 0, len(events))
	for _, e := range events {
		if e.UnitCost <= 0 {
			zap.L().Warn("costing: excluding event with non-positive unit cost",
				zap.String("product_id", e.ProductID),
				zap.Time("date", e.Date),
				zap.Float64("unit_cost", e.UnitCost),
			)
			continue
		}
		usable = append(usable, e)
	}
	return usable
}

func newestDaysAgo(events []model.PurchaseEvent) int {
	if len(events) == 0 {
		return 0
	}
	newest := events[0].DaysAgo
	for _, e := range events[1:] {
		if e.DaysAgo < newest {
			newest = e.DaysAgo
		}
	}
	return newest
}
