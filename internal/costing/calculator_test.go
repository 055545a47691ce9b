package costing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brasserie-group/cost-cli/internal/model"
)

var testAsOf = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

// event builds a purchase event daysAgo days before the test as-of date.
func event(daysAgo int, unitCost, quantity float64) model.PurchaseEvent {
	return model.PurchaseEvent{
		ProductID: "p-1",
		Date:      testAsOf.AddDate(0, 0, -daysAgo),
		DaysAgo:   daysAgo,
		Quantity:  quantity,
		UnitCost:  unitCost,
	}
}

func window(events ...model.PurchaseEvent) model.Window {
	return model.Window{ProductID: "p-1", AsOf: testAsOf, LookbackDays: 90, Events: events}
}

type fakeFallback struct {
	entry       *model.CostHistoryEntry
	categoryAvg float64
}

func (f *fakeFallback) LatestCostEntry(context.Context, string, time.Time) (*model.CostHistoryEntry, error) {
	return f.entry, nil
}

func (f *fakeFallback) CategoryAverageCost(context.Context, string, time.Time) (float64, error) {
	return f.categoryAvg, nil
}

func compute(t *testing.T, c *Calculator, w model.Window) model.CostResult {
	t.Helper()
	result, err := c.Compute(context.Background(), model.CanonicalProduct{ID: "p-1", Category: "Viandes"}, w)
	require.NoError(t, err)
	return result
}

func TestCompute_StrategySelectionByWindowSize(t *testing.T) {
	c := NewCalculator(nil)

	tests := []struct {
		n        int
		expected model.Strategy
	}{
		{0, model.StrategyFallback},
		{1, model.StrategyLinear},
		{3, model.StrategyLinear},
		{4, model.StrategyAdaptiveExponential},
		{8, model.StrategyAdaptiveExponential},
		{9, model.StrategySophisticated},
		{20, model.StrategySophisticated},
	}

	for _, tc := range tests {
		events := make([]model.PurchaseEvent, tc.n)
		for i := range events {
			events[i] = event(i*5+1, 2.0, 10)
		}
		result := compute(t, c, window(events...))
		assert.Equal(t, tc.expected, result.Strategy, "n=%d", tc.n)
	}
}

func TestCompute_WeightsSumToOne(t *testing.T) {
	c := NewCalculator(nil)

	for _, n := range []int{1, 2, 3, 5, 8, 9, 12, 20} {
		events := make([]model.PurchaseEvent, n)
		for i := range events {
			events[i] = event(i*4+1, 2.0+float64(i)*0.1, 15)
		}
		result := compute(t, c, window(events...))

		var sum float64
		for _, w := range result.Weights {
			assert.GreaterOrEqual(t, w, 0.0)
			sum += w
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "n=%d", n)
	}
}

func TestCompute_MonotonicRecencyPreference(t *testing.T) {
	c := NewCalculator(nil)

	// Equal quantity and cost: a more recent event never weighs less.
	for _, n := range []int{2, 3, 6, 12} {
		events := make([]model.PurchaseEvent, n)
		for i := range events {
			events[i] = event(i*6+2, 3.0, 20)
		}
		result := compute(t, c, window(events...))

		for i := 1; i < len(result.Weights); i++ {
			assert.GreaterOrEqual(t, result.Weights[i-1], result.Weights[i],
				"n=%d: weight %d should not exceed weight %d", n, i, i-1)
		}
	}
}

func TestCompute_SingleEvent(t *testing.T) {
	c := NewCalculator(nil)

	result := compute(t, c, window(event(10, 4.25, 5)))
	assert.Equal(t, model.StrategyLinear, result.Strategy)
	assert.InDelta(t, 4.25, result.UnitCost, 1e-9)
	require.Len(t, result.Weights, 1)
	assert.InDelta(t, 1.0, result.Weights[0], 1e-9)
}

func TestCompute_LinearScenario(t *testing.T) {
	// Purchases at 5 days ago ($2.50) and 15 days ago ($2.30): the result
	// lands strictly between, closer to the recent price.
	c := NewCalculator(nil)

	result := compute(t, c, window(event(5, 2.50, 10), event(15, 2.30, 10)))

	assert.Equal(t, model.StrategyLinear, result.Strategy)
	assert.Greater(t, result.UnitCost, 2.30)
	assert.Less(t, result.UnitCost, 2.50)
	assert.Less(t, 2.50-result.UnitCost, result.UnitCost-2.30, "should sit closer to the recent price")
	assert.Equal(t, model.ConfidenceLow, result.Confidence)
}

func TestCompute_AdaptiveWeeklyCadence(t *testing.T) {
	// Six purchases roughly 7 days apart: half-life 7, most recent weight
	// is the single largest.
	c := NewCalculator(nil)

	events := []model.PurchaseEvent{
		event(2, 2.10, 10),
		event(9, 2.00, 10),
		event(16, 2.05, 10),
		event(23, 1.95, 10),
		event(30, 2.00, 10),
		event(37, 1.90, 10),
	}
	result := compute(t, c, window(events...))

	assert.Equal(t, model.StrategyAdaptiveExponential, result.Strategy)
	assert.Equal(t, 7.0, result.HalfLifeDays)
	for _, w := range result.Weights[1:] {
		assert.Greater(t, result.Weights[0], w)
	}
	assert.Equal(t, model.ConfidenceMedium, result.Confidence)
}

func TestConfidence_AdaptiveBandIsAlwaysMedium(t *testing.T) {
	// The band spans four to eight purchases; every count in it lands on
	// medium no matter how stale the newest purchase is.
	for _, n := range []int{4, 6, 8} {
		assert.Equal(t, model.ConfidenceMedium, confidenceFor(model.StrategyAdaptiveExponential, n, 80))
	}
}

func TestAdaptiveHalfLife_Bands(t *testing.T) {
	build := func(gap int) []model.PurchaseEvent {
		events := make([]model.PurchaseEvent, 5)
		for i := range events {
			events[i] = event(1+i*gap, 2.0, 10)
		}
		return events
	}

	assert.Equal(t, 7.0, adaptiveHalfLife(build(5)))
	assert.Equal(t, 15.0, adaptiveHalfLife(build(12)))
	assert.Equal(t, 25.0, adaptiveHalfLife(build(20)))
	assert.Equal(t, 35.0, adaptiveHalfLife(build(40)))
}

func TestCompute_SophisticatedPullsTowardRecentPurchase(t *testing.T) {
	// Twelve purchases; the newest (1 day ago, above-median quantity) costs
	// well above the rest. The weighted cost must land closer to it than a
	// naive unweighted average would.
	c := NewCalculator(nil)

	events := []model.PurchaseEvent{event(1, 3.40, 60)}
	for i := 1; i < 12; i++ {
		events = append(events, event(i*7+1, 2.80, 20))
	}
	result := compute(t, c, window(events...))

	var naive float64
	for _, e := range events {
		naive += e.UnitCost
	}
	naive /= float64(len(events))

	assert.Equal(t, model.StrategySophisticated, result.Strategy)
	assert.Greater(t, result.UnitCost, naive)
	assert.Less(t, 3.40-result.UnitCost, 3.40-naive)
	assert.Equal(t, model.ConfidenceHigh, result.Confidence)
}

func TestCompute_SophisticatedCapsAtFifteenEvents(t *testing.T) {
	c := NewCalculator(nil)

	events := make([]model.PurchaseEvent, 30)
	for i := range events {
		events[i] = event(i*2+1, 2.0, 10)
	}
	result := compute(t, c, window(events...))

	assert.Len(t, result.Weights, SophisticatedMaxEvents)
	assert.Equal(t, 30, result.PurchaseCount)
}

func TestCompute_VolumeBonusCapped(t *testing.T) {
	// Quantity 1000 would be a 10x volume bonus uncapped; the factor must
	// stop at +20%. Single-event slices isolate the volume factor.
	huge := sophisticatedWeights([]model.PurchaseEvent{event(1, 2.0, 1000)})[0]
	atCap := sophisticatedWeights([]model.PurchaseEvent{event(1, 2.0, 20)})[0]
	modest := sophisticatedWeights([]model.PurchaseEvent{event(1, 2.0, 10)})[0]

	assert.InDelta(t, atCap, huge, 1e-12, "bonus beyond the cap is ignored")
	assert.InDelta(t, 1.2/1.1, huge/modest, 1e-9)
}

func TestCompute_FallbackUsesLastKnownEntry(t *testing.T) {
	c := NewCalculator(&fakeFallback{
		entry: &model.CostHistoryEntry{ProductID: "p-1", UnitCost: 3.10},
	})

	result := compute(t, c, window())
	assert.Equal(t, model.StrategyFallback, result.Strategy)
	assert.Equal(t, 3.10, result.UnitCost)
	assert.Equal(t, model.ConfidenceLow, result.Confidence)
	assert.Empty(t, result.Weights)
}

func TestCompute_FallbackCategoryAverage(t *testing.T) {
	c := NewCalculator(&fakeFallback{categoryAvg: 2.45})

	result := compute(t, c, window())
	assert.Equal(t, model.StrategyFallback, result.Strategy)
	assert.Equal(t, 2.45, result.UnitCost)
	assert.Equal(t, model.ConfidenceLow, result.Confidence)
}

func TestCompute_FallbackNoDataAtAll(t *testing.T) {
	c := NewCalculator(&fakeFallback{})

	result := compute(t, c, window())
	assert.Equal(t, model.StrategyFallback, result.Strategy)
	assert.Equal(t, 0.0, result.UnitCost)
	assert.Equal(t, model.ConfidenceNone, result.Confidence)
}

func TestCompute_NonPositiveCostExcluded(t *testing.T) {
	c := NewCalculator(nil)

	// Four events, one with a zero cost: the zero-cost event is dropped
	// and the remaining three select the linear strategy.
	result := compute(t, c, window(
		event(1, 2.0, 10),
		event(5, 0, 10),
		event(9, 2.2, 10),
		event(13, 2.1, 10),
	))

	assert.Equal(t, model.StrategyLinear, result.Strategy)
	assert.Equal(t, 3, result.PurchaseCount)
}

func TestNormalizeWeights_ZeroSum(t *testing.T) {
	_, ok := normalizeWeights([]float64{0, 0, 0})
	assert.False(t, ok)

	weights, ok := normalizeWeights([]float64{1, 3})
	require.True(t, ok)
	assert.InDelta(t, 0.25, weights[0], 1e-12)
	assert.InDelta(t, 0.75, weights[1], 1e-12)
}
