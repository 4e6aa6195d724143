package risk

import "math"

// HealthFactorAtPrice projects a position's health factor at targetPrice
// under the simple model: all collateral scales with targetPrice/currentPrice
// and debt is fixed. Positions without debt are Unbounded.
func HealthFactorAtPrice(p Position, currentPrice, targetPrice float64) HealthFactor {
	if p.TotalDebtUSD == 0 {
		return Unbounded()
	}
	if !validPrice(currentPrice) || targetPrice < 0 || isNaNOrInf(targetPrice) {
		return p.HealthFactor
	}

	ratio := targetPrice / currentPrice
	collateral := p.TotalCollateralUSD * ratio
	return Finite(collateral * (p.LiquidationThresholdPct / 100) / p.TotalDebtUSD)
}

// Summary aggregates a cycle's positions for reporting.
type Summary struct {
	Positions          int     `json:"positions"`
	AtRisk             int     `json:"at_risk"`
	Liquidatable       int     `json:"liquidatable"`
	WithLiquidation    int     `json:"with_liquidation_price"`
	TotalCollateralUSD float64 `json:"total_collateral_usd"`
	TotalDebtUSD       float64 `json:"total_debt_usd"`
	AtRiskCollateral   float64 `json:"at_risk_collateral_usd"`

	// LowestHealthFactor is nil when every position is Unbounded.
	LowestHealthFactor *float64 `json:"lowest_health_factor"`
}

// Aggregate summarizes positions.
func Aggregate(positions []Position) Summary {
	s := Summary{Positions: len(positions)}
	lowest := math.Inf(1)
	for _, p := range positions {
		s.TotalCollateralUSD += p.TotalCollateralUSD
		s.TotalDebtUSD += p.TotalDebtUSD
		if p.IsAtRisk {
			s.AtRisk++
			s.AtRiskCollateral += p.TotalCollateralUSD
		}
		if p.HealthFactor.IsLiquidatable() {
			s.Liquidatable++
		}
		if p.HasLiquidationPrice() {
			s.WithLiquidation++
		}
		if v, ok := p.HealthFactor.Value(); ok && v > 0 && v < lowest {
			lowest = v
		}
	}
	if !math.IsInf(lowest, 1) {
		s.LowestHealthFactor = &lowest
	}
	return s
}

func isNaNOrInf(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
