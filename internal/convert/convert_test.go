package convert

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brasserie-group/cost-cli/internal/model"
)

func TestConvert_BuiltinDefaults(t *testing.T) {
	svc := NewService(nil)
	ctx := context.Background()

	got, err := svc.Convert(ctx, 2.5, "kg", "g", "")
	require.NoError(t, err)
	assert.Equal(t, 2500.0, got)

	got, err = svc.Convert(ctx, 330, "ml", "l", "")
	require.NoError(t, err)
	assert.InDelta(t, 0.33, got, 1e-9)

	got, err = svc.Convert(ctx, 75, "cl", "ml", "")
	require.NoError(t, err)
	assert.Equal(t, 750.0, got)

	got, err = svc.Convert(ctx, 12, "unit", "pc", "")
	require.NoError(t, err)
	assert.Equal(t, 12.0, got)
}

func TestConvert_Identity(t *testing.T) {
	svc := NewService(nil)

	got, err := svc.Convert(context.Background(), 7.2, "g", "g", "")
	require.NoError(t, err)
	assert.Equal(t, 7.2, got)
}

func TestConvert_CaseInsensitiveUnits(t *testing.T) {
	svc := NewService(nil)

	got, err := svc.Convert(context.Background(), 1, "Kg", "G", "")
	require.NoError(t, err)
	assert.Equal(t, 1000.0, got)
}

func TestConvert_UnsupportedPair(t *testing.T) {
	svc := NewService(nil)

	_, err := svc.Convert(context.Background(), 16, "oz", "g", "")
	require.Error(t, err)
	assert.True(t, IsUnsupported(err))
}

func TestConvert_EmptyUnit(t *testing.T) {
	svc := NewService(nil)

	_, err := svc.Convert(context.Background(), 1, "", "g", "")
	require.Error(t, err)
	assert.True(t, IsUnsupported(err))
}

func TestConvert_NegativeQuantity(t *testing.T) {
	svc := NewService(nil)

	_, err := svc.Convert(context.Background(), -1, "kg", "g", "")
	require.Error(t, err)
	assert.False(t, IsUnsupported(err))
}

func TestConvert_ProductRuleOverridesGlobal(t *testing.T) {
	// A 25kg sack counted as one "sac" for this product only.
	rules := NewStaticRules([]model.UnitConversionRule{
		{FromUnit: "sac", ToUnit: "kg", ProductID: "", Factor: 50},
		{FromUnit: "sac", ToUnit: "kg", ProductID: "prod-1", Factor: 25},
	})
	svc := NewService(rules)
	ctx := context.Background()

	got, err := svc.Convert(ctx, 2, "sac", "kg", "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 50.0, got)

	got, err = svc.Convert(ctx, 2, "sac", "kg", "prod-2")
	require.NoError(t, err)
	assert.Equal(t, 100.0, got)
}

func TestConvert_ReverseRuleInverted(t *testing.T) {
	rules := NewStaticRules([]model.UnitConversionRule{
		{FromUnit: "caisse", ToUnit: "pc", Factor: 24},
	})
	svc := NewService(rules)

	got, err := svc.Factor(context.Background(), "pc", "caisse", "")
	require.NoError(t, err)
	assert.InDelta(t, 1.0/24, got, 1e-12)
}

func TestConvert_RoundTrip(t *testing.T) {
	rules := NewStaticRules([]model.UnitConversionRule{
		{FromUnit: "botte", ToUnit: "g", Factor: 250},
		{FromUnit: "g", ToUnit: "botte", Factor: 1.0 / 250},
	})
	svc := NewService(rules)
	ctx := context.Background()

	pairs := [][2]string{
		{"kg", "g"}, {"l", "ml"}, {"cl", "ml"}, {"unit", "pc"}, {"botte", "g"},
	}
	for _, pair := range pairs {
		x := 3.7
		there, err := svc.Convert(ctx, x, pair[0], pair[1], "")
		require.NoError(t, err, "%s -> %s", pair[0], pair[1])
		back, err := svc.Convert(ctx, there, pair[1], pair[0], "")
		require.NoError(t, err, "%s -> %s", pair[1], pair[0])
		assert.InDelta(t, x, back, 1e-9, "round trip %s <-> %s", pair[0], pair[1])
	}
}
