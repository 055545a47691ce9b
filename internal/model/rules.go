package model

// UnitConversionRule converts quantities between two unit codes. A rule with
// a ProductID overrides the global rule for the same unit pair. Factor must
// be positive; conversion is invertible (factor(A→B) = 1/factor(B→A)).
type UnitConversionRule struct {
	ID        string  `json:"id"`
	FromUnit  string  `json:"from_unit"`
	ToUnit    string  `json:"to_unit"`
	ProductID string  `json:"product_id,omitempty"` // empty = global rule
	Factor    float64 `json:"factor"`
}
