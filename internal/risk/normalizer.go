package risk

import (
	fp "LiqWatch/internal/math"
	"strings"
)

// Normalize turns one account's raw data into a Position priced against
// referencePrice. A non-positive reference price yields a nil liquidation
// price rather than Inf or NaN.
func Normalize(in Input, referencePrice float64) Position {
	raw := in.AccountSummary()

	collateral := fp.BaseCurrencyConfig.Decode(raw.CollateralRaw)
	debt := fp.BaseCurrencyConfig.Decode(raw.DebtRaw)
	hf := Finite(fp.HealthFactorConfig.Decode(raw.HealthFactorRaw))

	pos := Position{
		Address:                 NormalizeAddress(raw.Address),
		HealthFactor:            hf,
		TotalCollateralUSD:      collateral,
		TotalDebtUSD:            debt,
		AvailableBorrowsUSD:     fp.BaseCurrencyConfig.Decode(raw.AvailableBorrowsRaw),
		LiquidationThresholdPct: fp.PercentageConfig.Decode(raw.LiquidationThresholdRaw) * 100,
		LTVPct:                  fp.PercentageConfig.Decode(raw.LTVRaw) * 100,
		IsAtRisk:                hf.IsAtRisk(),
	}

	if d, ok := in.(DetailedInput); ok && len(d.Legs) > 0 {
		pos.Breakdown = buildBreakdown(d.Legs)
		pos.EstimatedLiquidationPrice = EstimateWeighted(d.Legs, referencePrice)
		return pos
	}

	pos.EstimatedLiquidationPrice = EstimateSimple(
		pos.TotalCollateralUSD, pos.TotalDebtUSD, pos.LiquidationThresholdPct, referencePrice)
	return pos
}

// NormalizeAll normalizes every input against the same reference price.
func NormalizeAll(inputs []Input, referencePrice float64) []Position {
	out := make([]Position, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, Normalize(in, referencePrice))
	}
	return out
}

// StrategyFor reports which estimator Normalize applies to the input.
func StrategyFor(in Input) Strategy {
	if d, ok := in.(DetailedInput); ok && len(d.Legs) > 0 {
		return StrategyWeighted
	}
	return StrategySimple
}

// NormalizeAddress lowercases a hex address and trims whitespace.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func buildBreakdown(legs []AssetLeg) *Breakdown {
	sums := SumLegs(legs)
	b := &Breakdown{
		ETHCorrelatedCollateralUSD:  sums.ETHCollateral,
		ETHCorrelatedDebtUSD:        sums.ETHDebt,
		NonETHDebtUSD:               sums.NonETHDebt,
		ETHWeightedCollateralUSD:    sums.ETHWeighted,
		NonETHWeightedCollateralUSD: sums.NonETHWeighted,
		Assets:                      make([]AssetLeg, len(legs)),
	}
	copy(b.Assets, legs)

	for _, leg := range legs {
		switch leg.Category {
		case CategoryBTCCorrelated:
			b.BTCCorrelatedCollateralUSD += leg.CollateralUSD
		case CategoryStable:
			b.StableCollateralUSD += leg.CollateralUSD
		case CategoryOther:
			b.OtherCollateralUSD += leg.CollateralUSD
		}
	}
	return b
}
