package model

import "time"

// Strategy identifies the weighting algorithm used for a cost computation.
// Selection is purely a function of the number of purchases in the window.
type Strategy string

const (
	StrategyFallback            Strategy = "fallback"
	StrategyLinear              Strategy = "linear"
	StrategyAdaptiveExponential Strategy = "adaptive_exponential"
	StrategySophisticated       Strategy = "sophisticated"
)

// Confidence indicates how trustworthy a computed cost is, derived from
// purchase count and recency.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceNone   Confidence = "none" // fallback with no history at all
)

// CostResult is the output of one weighted cost computation.
type CostResult struct {
	UnitCost      float64    `json:"unit_cost"`
	Strategy      Strategy   `json:"strategy"`
	Weights       []float64  `json:"weights"` // one per event considered, sums to 1
	Confidence    Confidence `json:"confidence"`
	PurchaseCount int        `json:"purchase_count"`
	HalfLifeDays  float64    `json:"half_life_days,omitempty"` // adaptive strategy only
}

// CostHistoryEntry is the persisted, authoritative unit cost for a product
// as of a computation date. Re-running the pipeline for the same date
// overwrites the entry; latest wins.
type CostHistoryEntry struct {
	ID            string     `json:"id"`
	ProductID     string     `json:"product_id"`
	AsOfDate      time.Time  `json:"as_of_date"`
	UnitCost      float64    `json:"unit_cost"`
	Strategy      Strategy   `json:"strategy"`
	Weights       []float64  `json:"weights"`
	Confidence    Confidence `json:"confidence"`
	PurchaseCount int        `json:"purchase_count"`
	ComputedAt    time.Time  `json:"computed_at"`
}

// ProductOutcome records one product's result within a pipeline run.
type ProductOutcome struct {
	ProductID   string     `json:"product_id"`
	ProductName string     `json:"product_name"`
	UnitCost    float64    `json:"unit_cost"`
	Strategy    Strategy   `json:"strategy"`
	Confidence  Confidence `json:"confidence"`
	Skipped     int        `json:"skipped"`
	Error       string     `json:"error,omitempty"`
}

// RunSummary aggregates per-product outcomes for one pipeline run.
// Per-product failures are reported here, never escalated past the run.
type RunSummary struct {
	AsOf            time.Time        `json:"as_of"`
	LookbackDays    int              `json:"lookback_days"`
	Products        int              `json:"products"`
	Computed        int              `json:"computed"`
	Failed          int              `json:"failed"`
	RecordsSkipped  int              `json:"records_skipped"`
	SkipRatio       float64          `json:"skip_ratio"`
	Outcomes        []ProductOutcome `json:"outcomes"`
	StartedAt       time.Time        `json:"started_at"`
	DurationSeconds float64          `json:"duration_seconds"`
}
