package main

import (
	"LiqWatch/internal/chain"
	"LiqWatch/internal/config"
	"LiqWatch/internal/monitor"
	"LiqWatch/internal/risk"
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test: commands that need no chain access
// ============================================================================

func TestRangeCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := rootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"range", "2000"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "min $1,000.00  max $2,200.00  step $50.00  (25 points)\n", out.String())
}

func TestRangeCommand_InvalidPrice(t *testing.T) {
	cmd := rootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"range", "two thousand"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid price")
}

func TestCheckCommand_RequiresAddress(t *testing.T) {
	cmd := rootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"check"})

	assert.Error(t, cmd.Execute())
}

// ============================================================================
// Test: output helpers
// ============================================================================

func TestWriteSnapshot(t *testing.T) {
	liq := 1250.0
	snap := &monitor.Snapshot{
		TakenAt: time.Now(),
		Price:   chain.Price{Value: 2000, UpdatedAt: time.Now()},
		Positions: []risk.Position{{
			Address:                   "0x00000000000000000000000000000000000000aa",
			HealthFactor:              risk.Finite(1.2),
			TotalCollateralUSD:        20_000,
			TotalDebtUSD:              10_000,
			LiquidationThresholdPct:   80,
			EstimatedLiquidationPrice: &liq,
			IsAtRisk:                  true,
		}},
		Range:   risk.ScanRange{Min: 1000, Max: 1100, Step: 50},
		Curve:   []risk.RiskCurvePoint{{ReferencePrice: 1000}, {ReferencePrice: 1050}, {ReferencePrice: 1100}},
		Summary: risk.Summary{Positions: 1, AtRisk: 1, AtRiskCollateral: 20_000},
	}

	var plain bytes.Buffer
	require.NoError(t, writeSnapshot(&plain, snap, false))
	assert.Contains(t, plain.String(), "ETH/USD $2,000.00 (updated just now)")
	assert.Contains(t, plain.String(), "0x0000...00aa")
	assert.Contains(t, plain.String(), "$1,250.00")
	assert.Contains(t, plain.String(), "1 positions, 1 at risk ($20.00K collateral), 0 liquidatable")
	assert.NotContains(t, plain.String(), "Risk curve")

	var withCurve bytes.Buffer
	require.NoError(t, writeSnapshot(&withCurve, snap, true))
	assert.Contains(t, withCurve.String(), "Risk curve $1,000.00 to $1,100.00, step $50.00")
	assert.Contains(t, withCurve.String(), "$1,050.00")
}

func TestSeedEntries(t *testing.T) {
	entries := seedEntries([]config.SeedAddress{
		{Address: "0x00000000000000000000000000000000000000aa", Label: "treasury"},
		{Address: "0x00000000000000000000000000000000000000bb"},
	})
	require.Len(t, entries, 2)
	assert.Equal(t, "treasury", entries[0].Label)
	assert.Equal(t, "0x00000000000000000000000000000000000000bb", entries[1].Address)
}
