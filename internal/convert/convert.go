// Package convert resolves purchase/recipe unit pairs to multiplicative
// factors using product-specific rules, stored global rules, and a built-in
// metric default table.
package convert

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/brasserie-group/cost-cli/internal/model"
)

// ErrUnsupportedConversion is returned when no rule, default, or identity
// applies to a unit pair. Unresolvable pairs always fail explicitly; the
// service never guesses.
var ErrUnsupportedConversion = eris.New("convert: unsupported unit conversion")

// RuleSource is a read-only repository of unit conversion rules.
// productID is empty for global rules. A nil rule with a nil error means
// no rule exists for the pair.
type RuleSource interface {
	LookupConversion(ctx context.Context, fromUnit, toUnit, productID string) (*model.UnitConversionRule, error)
}

// Service converts quantities between units. It has no side effects beyond
// reading the supplied rule source.
type Service struct {
	rules RuleSource
}

// NewService creates a conversion service backed by the given rule source.
// A nil source leaves only the built-in defaults and identity conversions.
func NewService(rules RuleSource) *Service {
	return &Service{rules: rules}
}

// Factor resolves the multiplicative factor from fromUnit to toUnit.
// Resolution order: product-specific rule, global stored rule, stored rule
// for the reverse pair (inverted), built-in default table, identity.
func (s *Service) Factor(ctx context.Context, fromUnit, toUnit, productID string) (float64, error) {
	from := normalizeUnit(fromUnit)
	to := normalizeUnit(toUnit)

	if from == "" || to == "" {
		return 0, eris.Wrapf(ErrUnsupportedConversion, "convert: empty unit code (%q -> %q)", fromUnit, toUnit)
	}
	if from == to {
		return 1, nil
	}

	if s.rules != nil {
		// Product-specific rule wins over everything.
		if productID != "" {
			rule, err := s.rules.LookupConversion(ctx, from, to, productID)
			if err != nil {
				return 0, eris.Wrap(err, "convert: lookup product rule")
			}
			if rule != nil {
				return rule.Factor, nil
			}
		}

		rule, err := s.rules.LookupConversion(ctx, from, to, "")
		if err != nil {
			return 0, eris.Wrap(err, "convert: lookup global rule")
		}
		if rule != nil {
			return rule.Factor, nil
		}

		// Only the reverse pair stored: invert it.
		reverse, err := s.rules.LookupConversion(ctx, to, from, "")
		if err != nil {
			return 0, eris.Wrap(err, "convert: lookup reverse rule")
		}
		if reverse != nil && reverse.Factor > 0 {
			return 1 / reverse.Factor, nil
		}
	}

	if factor, ok := defaultFactors[unitPair{from, to}]; ok {
		return factor, nil
	}

	return 0, eris.Wrapf(ErrUnsupportedConversion, "convert: no rule for %q -> %q", from, to)
}

// Convert converts a non-negative quantity from fromUnit to toUnit.
func (s *Service) Convert(ctx context.Context, quantity float64, fromUnit, toUnit, productID string) (float64, error) {
	if quantity < 0 {
		return 0, eris.Errorf("convert: negative quantity %v", quantity)
	}
	factor, err := s.Factor(ctx, fromUnit, toUnit, productID)
	if err != nil {
		return 0, err
	}
	return quantity * factor, nil
}

// IsUnsupported reports whether err is (or wraps) ErrUnsupportedConversion.
func IsUnsupported(err error) bool {
	return eris.Is(err, ErrUnsupportedConversion)
}

// normalizeUnit lowercases and trims a unit code so "Kg" and "kg " match.
func normalizeUnit(unit string) string {
	return strings.ToLower(strings.TrimSpace(unit))
}
