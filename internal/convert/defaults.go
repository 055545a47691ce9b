package convert

import (
	"context"
	"strings"

	"github.com/brasserie-group/cost-cli/internal/model"
)

type unitPair struct {
	from string
	to   string
}

// defaultFactors is the built-in metric conversion table. It sits beneath
// any stored rules and is always available.
var defaultFactors = map[unitPair]float64{
	{"kg", "g"}:    1000,
	{"g", "kg"}:    0.001,
	{"l", "ml"}:    1000,
	{"ml", "l"}:    0.001,
	{"cl", "ml"}:   10,
	{"ml", "cl"}:   0.1,
	{"unit", "pc"}: 1,
	{"pc", "unit"}: 1,
}

// StaticRules is an in-memory RuleSource, used in tests and for rules
// loaded from YAML files.
type StaticRules struct {
	rules []model.UnitConversionRule
}

// NewStaticRules creates a StaticRules source from a rule slice.
func NewStaticRules(rules []model.UnitConversionRule) *StaticRules {
	return &StaticRules{rules: rules}
}

// LookupConversion returns the first rule matching the unit pair and product
// scope, or nil if none exists.
func (s *StaticRules) LookupConversion(_ context.Context, fromUnit, toUnit, productID string) (*model.UnitConversionRule, error) {
	for i := range s.rules {
		r := &s.rules[i]
		if strings.EqualFold(r.FromUnit, fromUnit) &&
			strings.EqualFold(r.ToUnit, toUnit) &&
			r.ProductID == productID {
			return r, nil
		}
	}
	return nil, nil
}
