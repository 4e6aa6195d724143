package risk_test

import (
	"LiqWatch/internal/risk"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test: HealthFactor
// ============================================================================

func TestFinite_Clamping(t *testing.T) {
	assert.True(t, risk.Finite(math.Inf(1)).IsUnbounded())
	assert.True(t, risk.Finite(risk.HealthFactorCap*2).IsUnbounded())
	assert.False(t, risk.Finite(risk.HealthFactorCap).IsUnbounded())

	v, ok := risk.Finite(-3).Value()
	require.True(t, ok)
	assert.Zero(t, v)

	v, ok = risk.Finite(math.NaN()).Value()
	require.True(t, ok)
	assert.Zero(t, v)
}

func TestHealthFactor_Comparisons(t *testing.T) {
	u := risk.Unbounded()
	assert.False(t, u.Below(1e300))
	assert.True(t, u.AtLeast(1e300))
	assert.False(t, u.IsAtRisk())
	assert.False(t, u.IsLiquidatable())
	assert.True(t, math.IsInf(u.Float64(), 1))

	hf := risk.Finite(0.9)
	assert.True(t, hf.Below(1))
	assert.False(t, hf.AtLeast(1))
	assert.True(t, hf.IsAtRisk())
	assert.True(t, hf.IsLiquidatable())

	zero := risk.Finite(0)
	assert.False(t, zero.IsAtRisk())
	assert.False(t, zero.IsLiquidatable())
}

func TestHealthFactor_JSON(t *testing.T) {
	data, err := json.Marshal(risk.Unbounded())
	require.NoError(t, err)
	assert.JSONEq(t, `"unbounded"`, string(data))

	data, err = json.Marshal(risk.Finite(1.25))
	require.NoError(t, err)
	assert.JSONEq(t, `1.25`, string(data))

	var back risk.HealthFactor
	require.NoError(t, json.Unmarshal([]byte(`"unbounded"`), &back))
	assert.True(t, back.IsUnbounded())

	require.NoError(t, json.Unmarshal([]byte(`1.25`), &back))
	v, ok := back.Value()
	require.True(t, ok)
	assert.Equal(t, 1.25, v)

	assert.Error(t, json.Unmarshal([]byte(`"nope"`), &back))
}

func TestPosition_JSONRoundTrip(t *testing.T) {
	liq := 1250.0
	pos := risk.Position{
		Address:                   "0x01",
		HealthFactor:              risk.Finite(1.6),
		TotalCollateralUSD:        20_000,
		TotalDebtUSD:              10_000,
		EstimatedLiquidationPrice: &liq,
	}
	data, err := json.Marshal(pos)
	require.NoError(t, err)

	var back risk.Position
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, pos, back)
}

// ============================================================================
// Test: AssetCategory
// ============================================================================

func TestParseAssetCategory(t *testing.T) {
	cases := map[string]risk.AssetCategory{
		"eth":            risk.CategoryETHCorrelated,
		"ETH-correlated": risk.CategoryETHCorrelated,
		"btc":            risk.CategoryBTCCorrelated,
		" stable ":       risk.CategoryStable,
		"":               risk.CategoryOther,
		"other":          risk.CategoryOther,
	}
	for in, want := range cases {
		got, err := risk.ParseAssetCategory(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := risk.ParseAssetCategory("doge")
	assert.Error(t, err)
}

func TestAssetCategory_JSON(t *testing.T) {
	data, err := json.Marshal(risk.CategoryStable)
	require.NoError(t, err)
	assert.Equal(t, `"stable"`, string(data))

	var c risk.AssetCategory
	require.NoError(t, json.Unmarshal([]byte(`"btc-correlated"`), &c))
	assert.Equal(t, risk.CategoryBTCCorrelated, c)
}
