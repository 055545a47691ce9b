// Package model defines the typed records flowing through the cost pipeline.
package model

import "time"

// CanonicalProduct is the single deduplicated identity an ingredient is
// tracked under, regardless of how many raw name variants refer to it.
// Products are never deleted, only merged-into by consolidation rules.
type CanonicalProduct struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	RecipeUnit  string    `json:"recipe_unit"` // unit costs are expressed in, e.g. "g", "ml"
	AutoCreated bool      `json:"auto_created"`
	CreatedAt   time.Time `json:"created_at"`
}

// ConsolidationRule maps a raw product name variant to a canonical product.
// Rules are administratively maintained; a raw name maps to at most one
// canonical product at any time.
type ConsolidationRule struct {
	ID        string    `json:"id"`
	RawName   string    `json:"raw_name"`
	ProductID string    `json:"product_id"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MatchType tags how a raw name was resolved to a canonical product.
type MatchType string

const (
	MatchedByRule      MatchType = "rule"       // explicit consolidation rule
	MatchedByExactName MatchType = "exact_name" // case-insensitive display-name match
	AutoCreated        MatchType = "auto_created"
)

// Resolution is the tagged outcome of identity resolution. AutoCreated
// entries are data-quality warnings, not vetted consolidations.
type Resolution struct {
	Product   CanonicalProduct `json:"product"`
	MatchType MatchType        `json:"match_type"`
	RawName   string           `json:"raw_name"`
}
