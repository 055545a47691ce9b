package resolve

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brasserie-group/cost-cli/internal/model"
)

type fakeRules struct {
	rules map[string][]model.ConsolidationRule
}

func (f *fakeRules) LookupConsolidation(_ context.Context, normalized string) ([]model.ConsolidationRule, error) {
	return f.rules[normalized], nil
}

type fakeProducts struct {
	byID    map[string]model.CanonicalProduct
	created []model.CanonicalProduct
}

func newFakeProducts(products ...model.CanonicalProduct) *fakeProducts {
	f := &fakeProducts{byID: make(map[string]model.CanonicalProduct)}
	for _, p := range products {
		f.byID[p.ID] = p
	}
	return f
}

func (f *fakeProducts) GetProduct(_ context.Context, id string) (*model.CanonicalProduct, error) {
	if p, ok := f.byID[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (f *fakeProducts) FindProductByNormalizedName(_ context.Context, normalized string) (*model.CanonicalProduct, error) {
	for _, p := range f.byID {
		if NormalizeName(p.Name) == normalized {
			return &p, nil
		}
	}
	return nil, nil
}

func (f *fakeProducts) CreateProduct(_ context.Context, p model.CanonicalProduct) error {
	f.byID[p.ID] = p
	f.created = append(f.created, p)
	return nil
}

func TestResolve_MatchedByRule(t *testing.T) {
	chicken := model.CanonicalProduct{ID: "p-1", Name: "Poulet (Entier)", RecipeUnit: "g", CreatedAt: time.Now()}
	rules := &fakeRules{rules: map[string][]model.ConsolidationRule{
		NormalizeName("Poulet Cru (Kg)"): {{ID: "r-1", RawName: "Poulet Cru (Kg)", ProductID: "p-1"}},
	}}
	r := New(rules, newFakeProducts(chicken))

	res, err := r.Resolve(context.Background(), "Poulet Cru (Kg)", "batch-1", Hint{})
	require.NoError(t, err)
	assert.Equal(t, model.MatchedByRule, res.MatchType)
	assert.Equal(t, "p-1", res.Product.ID)
}

func TestResolve_MatchedByExactName(t *testing.T) {
	mayo := model.CanonicalProduct{ID: "p-2", Name: "Sauce Mayo", RecipeUnit: "ml"}
	r := New(&fakeRules{}, newFakeProducts(mayo))

	res, err := r.Resolve(context.Background(), "  sauce mayo ", "batch-1", Hint{})
	require.NoError(t, err)
	assert.Equal(t, model.MatchedByExactName, res.MatchType)
	assert.Equal(t, "p-2", res.Product.ID)
}

func TestResolve_AutoCreate(t *testing.T) {
	products := newFakeProducts()
	r := New(&fakeRules{}, products)

	res, err := r.Resolve(context.Background(), "Gingembre Frais", "batch-9", Hint{RecipeUnit: "g", Category: "Légumes"})
	require.NoError(t, err)
	assert.Equal(t, model.AutoCreated, res.MatchType)
	assert.True(t, res.Product.AutoCreated)
	assert.Equal(t, "Gingembre Frais", res.Product.Name)
	assert.Equal(t, "g", res.Product.RecipeUnit)
	require.Len(t, products.created, 1)
}

func TestResolve_IdempotentWithinRun(t *testing.T) {
	products := newFakeProducts()
	r := New(&fakeRules{}, products)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "Gingembre Frais", "batch-1", Hint{RecipeUnit: "g"})
	require.NoError(t, err)

	// Retry with a spelling variant of the same name: no duplicate product.
	second, err := r.Resolve(ctx, "gingembre  frais", "batch-2", Hint{RecipeUnit: "g"})
	require.NoError(t, err)

	assert.Equal(t, first.Product.ID, second.Product.ID)
	assert.Len(t, products.created, 1)
}

func TestResolve_AmbiguousIdentity(t *testing.T) {
	rules := &fakeRules{rules: map[string][]model.ConsolidationRule{
		NormalizeName("Huile"): {
			{ID: "r-1", RawName: "Huile", ProductID: "p-1"},
			{ID: "r-2", RawName: "Huile", ProductID: "p-2"},
		},
	}}
	r := New(rules, newFakeProducts())

	_, err := r.Resolve(context.Background(), "Huile", "batch-1", Hint{})
	require.Error(t, err)

	var ambiguous *AmbiguousIdentityError
	require.True(t, errors.As(err, &ambiguous))
	assert.Len(t, ambiguous.ProductIDs, 2)
}

func TestResolve_DuplicateRulesSameTarget(t *testing.T) {
	// Two rules pointing at the same product is redundant, not ambiguous.
	beef := model.CanonicalProduct{ID: "p-1", Name: "FAUX FILET", RecipeUnit: "g"}
	rules := &fakeRules{rules: map[string][]model.ConsolidationRule{
		NormalizeName("Filet de Bœuf"): {
			{ID: "r-1", RawName: "Filet de Bœuf", ProductID: "p-1"},
			{ID: "r-2", RawName: "Filet de Boeuf", ProductID: "p-1"},
		},
	}}
	r := New(rules, newFakeProducts(beef))

	res, err := r.Resolve(context.Background(), "Filet de Bœuf", "batch-1", Hint{})
	require.NoError(t, err)
	assert.Equal(t, model.MatchedByRule, res.MatchType)
}

func TestResolve_EmptyName(t *testing.T) {
	r := New(&fakeRules{}, newFakeProducts())

	_, err := r.Resolve(context.Background(), "   ", "batch-1", Hint{})
	assert.Error(t, err)
}
