package model

import "time"

// RawPurchaseRecord is one row of a purchase extract after boundary
// validation. Quantity and cost are in the supplier's purchase unit; the
// product name is unresolved.
type RawPurchaseRecord struct {
	ID            string    `json:"id"`
	RawName       string    `json:"raw_name"`
	Date          time.Time `json:"date"`
	Quantity      float64   `json:"quantity"`
	Unit          string    `json:"unit"`
	TotalCost     float64   `json:"total_cost"`
	SourceBatchID string    `json:"source_batch_id"`
}

// UnitCost returns the per-purchase-unit cost of the record.
func (r RawPurchaseRecord) UnitCost() float64 {
	if r.Quantity <= 0 {
		return 0
	}
	return r.TotalCost / r.Quantity
}

// PurchaseEvent is a raw record after identity resolution and unit
// conversion: quantity and unit cost are expressed in the product's
// canonical recipe unit.
type PurchaseEvent struct {
	ProductID        string    `json:"product_id"`
	Date             time.Time `json:"date"`
	DaysAgo          int       `json:"days_ago"` // relative to the window's as-of date
	Quantity         float64   `json:"quantity"` // in recipe units
	UnitCost         float64   `json:"unit_cost"` // per recipe unit
	RawTotalCost     float64   `json:"raw_total_cost"`
	PurchaseUnit     string    `json:"purchase_unit"`     // unit the supplier invoiced in
	ConversionFactor float64   `json:"conversion_factor"` // purchase unit -> recipe unit
}

// Window is the ordered purchase history considered for one cost
// computation, most recent event first.
type Window struct {
	ProductID    string          `json:"product_id"`
	AsOf         time.Time       `json:"as_of"`
	LookbackDays int             `json:"lookback_days"`
	Events       []PurchaseEvent `json:"events"`
	Skipped      int             `json:"skipped"` // records excluded (conversion failure, bad cost)
}
