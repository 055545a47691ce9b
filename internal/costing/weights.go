package costing

import (
	"math"

	"github.com/brasserie-group/cost-cli/internal/model"
)

// Adaptive half-life bands: average gap between purchases (days) -> chosen
// half-life (days). Frequent buying gets a short half-life so weighting
// matches the actual buying rhythm.
const (
	weeklyGapDays    = 7
	biweeklyGapDays  = 15
	monthlyGapDays   = 30
	weeklyHalfLife   = 7
	biweeklyHalfLife = 15
	monthlyHalfLife  = 25
	sparseHalfLife   = 35
)

// Sophisticated strategy tuning.
const (
	// SophisticatedMaxEvents caps the window to bound computation and keep
	// stale purchases from dragging the estimate.
	SophisticatedMaxEvents = 15
	// sophisticatedHalfLife is the fixed decay half-life in days.
	sophisticatedHalfLife = 20
	// recencyBonusBase gives each step back in position a 1/1.5 weight cut.
	recencyBonusBase = 1.5
	// volumeBonusCap limits the extra weight a high-volume purchase earns.
	volumeBonusCap = 0.2
	// volumeQuantityScale divides recipe-unit quantity into a bonus fraction.
	volumeQuantityScale = 100
)

// linearWeights assigns recency-proportional raw weights: the most recent
// event gets the highest weight, the oldest gets 1.
func linearWeights(events []model.PurchaseEvent) []float64 {
	maxDays := 0
	for _, e := range events {
		if e.DaysAgo > maxDays {
			maxDays = e.DaysAgo
		}
	}

	raw := make([]float64, len(events))
	for i, e := range events {
		raw[i] = float64(maxDays - e.DaysAgo + 1)
	}
	return raw
}

// adaptiveHalfLife derives a decay half-life from the observed purchase
// cadence: the mean gap between consecutive purchase dates.
func adaptiveHalfLife(events []model.PurchaseEvent) float64 {
	if len(events) < 2 {
		return sparseHalfLife
	}

	// Events are ordered most recent first, so consecutive DaysAgo
	// differences are the purchase gaps.
	var total float64
	for i := 1; i < len(events); i++ {
		total += float64(events[i].DaysAgo - events[i-1].DaysAgo)
	}
	avgGap := total / float64(len(events)-1)

	switch {
	case avgGap <= weeklyGapDays:
		return weeklyHalfLife
	case avgGap <= biweeklyGapDays:
		return biweeklyHalfLife
	case avgGap <= monthlyGapDays:
		return monthlyHalfLife
	default:
		return sparseHalfLife
	}
}

// exponentialWeights applies half-life decay: weight = 2^(-daysAgo/halfLife).
func exponentialWeights(events []model.PurchaseEvent, halfLife float64) []float64 {
	raw := make([]float64, len(events))
	for i, e := range events {
		raw[i] = math.Pow(2, -float64(e.DaysAgo)/halfLife)
	}
	return raw
}

// sophisticatedWeights combines fixed exponential decay with a positional
// recency bonus and a volume factor giving high-quantity purchases up to
// +20% weight. Events must be ordered most recent first.
func sophisticatedWeights(events []model.PurchaseEvent) []float64 {
	raw := make([]float64, len(events))
	for i, e := range events {
		base := math.Pow(2, -float64(e.DaysAgo)/sophisticatedHalfLife)
		recencyBonus := math.Pow(recencyBonusBase, -float64(i))
		volumeFactor := 1 + math.Min(volumeBonusCap, e.Quantity/volumeQuantityScale)
		raw[i] = base * recencyBonus * volumeFactor
	}
	return raw
}

// normalizeWeights scales raw weights to sum to 1. Returns false when the
// sum is not positive.
func normalizeWeights(raw []float64) ([]float64, bool) {
	var sum float64
	for _, w := range raw {
		sum += w
	}
	if sum <= 0 {
		return nil, false
	}

	weights := make([]float64, len(raw))
	for i, w := range raw {
		weights[i] = w / sum
	}
	return weights, true
}

func uniformWeights(n int) []float64 {
	if n == 0 {
		return nil
	}
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1 / float64(n)
	}
	return weights
}
