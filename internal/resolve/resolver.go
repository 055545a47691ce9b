package resolve

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brasserie-group/cost-cli/internal/model"
)

// RuleSource is a read-only repository of consolidation rules.
// LookupConsolidation returns every rule whose raw name matches the
// normalized name, so the resolver can detect contradictory configuration.
type RuleSource interface {
	LookupConsolidation(ctx context.Context, normalizedRawName string) ([]model.ConsolidationRule, error)
}

// ProductStore is the product reference-data surface the resolver needs.
type ProductStore interface {
	GetProduct(ctx context.Context, id string) (*model.CanonicalProduct, error)
	FindProductByNormalizedName(ctx context.Context, normalizedName string) (*model.CanonicalProduct, error)
	CreateProduct(ctx context.Context, p model.CanonicalProduct) error
}

// AmbiguousIdentityError indicates two consolidation rules map the same raw
// name to different canonical products. This is a configuration error: the
// affected product fails loudly while the rest of the run proceeds.
type AmbiguousIdentityError struct {
	RawName    string
	ProductIDs []string
}

func (e *AmbiguousIdentityError) Error() string {
	return fmt.Sprintf("resolve: raw name %q maps to %d different products %v", e.RawName, len(e.ProductIDs), e.ProductIDs)
}

// Hint supplies attributes for a product the resolver has to auto-create.
type Hint struct {
	RecipeUnit string
	Category   string
}

// Resolver maps raw product names to canonical products. Resolution for the
// same raw name is idempotent within one resolver instance, so retries never
// create duplicate products.
type Resolver struct {
	rules    RuleSource
	products ProductStore
	seen     map[string]model.Resolution // normalized raw name -> outcome
}

// New creates a Resolver. One instance is scoped to one pipeline run.
func New(rules RuleSource, products ProductStore) *Resolver {
	return &Resolver{
		rules:    rules,
		products: products,
		seen:     make(map[string]model.Resolution),
	}
}

// Resolve maps rawName to a canonical product. Lookup order: explicit
// consolidation rule, case-insensitive display-name match, auto-create.
// Auto-created products are logged as unvetted data-quality decisions.
func (r *Resolver) Resolve(ctx context.Context, rawName, sourceBatch string, hint Hint) (model.Resolution, error) {
	normalized := NormalizeName(rawName)
	if normalized == "" {
		return model.Resolution{}, eris.Errorf("resolve: empty raw product name (batch %s)", sourceBatch)
	}

	if res, ok := r.seen[normalized]; ok {
		return res, nil
	}

	rules, err := r.rules.LookupConsolidation(ctx, normalized)
	if err != nil {
		return model.Resolution{}, eris.Wrapf(err, "resolve: lookup rules for %q", rawName)
	}

	if len(rules) > 0 {
		if ids := distinctTargets(rules); len(ids) > 1 {
			return model.Resolution{}, &AmbiguousIdentityError{RawName: rawName, ProductIDs: ids}
		}

		product, err := r.products.GetProduct(ctx, rules[0].ProductID)
		if err != nil {
			return model.Resolution{}, eris.Wrapf(err, "resolve: load product %s for rule", rules[0].ProductID)
		}
		if product == nil {
			return model.Resolution{}, eris.Errorf("resolve: rule for %q targets missing product %s", rawName, rules[0].ProductID)
		}

		res := model.Resolution{Product: *product, MatchType: model.MatchedByRule, RawName: rawName}
		r.seen[normalized] = res
		return res, nil
	}

	product, err := r.products.FindProductByNormalizedName(ctx, normalized)
	if err != nil {
		return model.Resolution{}, eris.Wrapf(err, "resolve: match name %q", rawName)
	}
	if product != nil {
		res := model.Resolution{Product: *product, MatchType: model.MatchedByExactName, RawName: rawName}
		r.seen[normalized] = res
		return res, nil
	}

	// First-seen-wins: create an unvetted canonical product from the raw name.
	created := model.CanonicalProduct{
		ID:          uuid.New().String(),
		Name:        rawName,
		Category:    hint.Category,
		RecipeUnit:  hint.RecipeUnit,
		AutoCreated: true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.products.CreateProduct(ctx, created); err != nil {
		return model.Resolution{}, eris.Wrapf(err, "resolve: auto-create product for %q", rawName)
	}

	zap.L().Warn("resolve: auto-created canonical product",
		zap.String("raw_name", rawName),
		zap.String("product_id", created.ID),
		zap.String("source_batch", sourceBatch),
	)

	res := model.Resolution{Product: created, MatchType: model.AutoCreated, RawName: rawName}
	r.seen[normalized] = res
	return res, nil
}

// distinctTargets returns the distinct product IDs a rule set points at.
func distinctTargets(rules []model.ConsolidationRule) []string {
	seen := make(map[string]bool, len(rules))
	var ids []string
	for _, rule := range rules {
		if !seen[rule.ProductID] {
			seen[rule.ProductID] = true
			ids = append(ids, rule.ProductID)
		}
	}
	return ids
}
