package costing

import "github.com/brasserie-group/cost-cli/internal/model"

// Confidence thresholds. These are tunable policy, not a contract; keep
// them as named constants so operators can reason about them.
const (
	// HighConfidenceMinPurchases is the minimum window size for high
	// confidence (the sophisticated band).
	HighConfidenceMinPurchases = 9
	// HighConfidenceMaxAgeDays is how fresh the newest purchase must be
	// for high confidence.
	HighConfidenceMaxAgeDays = 7
	// ConfidenceFallback is assigned to fallback costs backed by a prior
	// entry or category average: the lowest tier with any data behind it.
	ConfidenceFallback = model.ConfidenceLow
)

// confidenceFor derives the confidence tier from the strategy band, the
// usable purchase count, and the age of the newest purchase.
func confidenceFor(strategy model.Strategy, n, newestDaysAgo int) model.Confidence {
	switch strategy {
	case model.StrategySophisticated:
		if n >= HighConfidenceMinPurchases && newestDaysAgo <= HighConfidenceMaxAgeDays {
			return model.ConfidenceHigh
		}
		return model.ConfidenceMedium
	case model.StrategyAdaptiveExponential:
		// The adaptive band only starts at four purchases, which is
		// already enough data for the medium tier.
		return model.ConfidenceMedium
	case model.StrategyLinear:
		return model.ConfidenceLow
	default:
		return ConfidenceFallback
	}
}
