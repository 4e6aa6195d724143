package risk

import "math"

// Strategy identifies how a liquidation price was estimated.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategySimple
	StrategyWeighted
)

func (s Strategy) String() string {
	switch s {
	case StrategySimple:
		return "simple"
	case StrategyWeighted:
		return "weighted"
	default:
		return "none"
	}
}

// EstimateSimple assumes all collateral moves with the reference price and
// debt does not. It solves qty * price * threshold == debt for price, where
// qty = collateral / referencePrice.
//
// Returns nil when any of collateral, debt, threshold or reference price is
// non-positive, or when the result would not lie strictly below the
// reference price.
func EstimateSimple(collateralUSD, debtUSD, thresholdPct, referencePrice float64) *float64 {
	if !validPrice(referencePrice) {
		return nil
	}
	if collateralUSD <= 0 || debtUSD <= 0 || thresholdPct <= 0 {
		return nil
	}

	referenceQty := collateralUSD / referencePrice
	liq := debtUSD / (referenceQty * (thresholdPct / 100))

	return acceptLiquidationPrice(liq, referencePrice)
}

// WeightedSums are the per-bucket totals used by EstimateWeighted.
type WeightedSums struct {
	ETHCollateral  float64
	ETHDebt        float64
	ETHWeighted    float64
	NonETHDebt     float64
	NonETHWeighted float64
}

// SumLegs partitions legs into eth-correlated and everything else.
// BTC-correlated, stable and other legs are all treated as not moving with
// the reference price.
func SumLegs(legs []AssetLeg) WeightedSums {
	var s WeightedSums
	for _, leg := range legs {
		if leg.IsETHCorrelated() {
			s.ETHCollateral += leg.CollateralUSD
			s.ETHDebt += leg.DebtUSD
			s.ETHWeighted += leg.WeightedCollateral()
		} else {
			s.NonETHDebt += leg.DebtUSD
			s.NonETHWeighted += leg.WeightedCollateral()
		}
	}
	return s
}

// Multiplier solves HF(x) = 1 for
//
//	HF(x) = (nonEthWeighted + ethWeighted*x) / (nonEthDebt + ethDebt*x)
//
// giving x = (nonEthDebt - nonEthWeighted) / (ethWeighted - ethDebt).
// ok is false unless the denominator and numerator are strictly positive and
// 0 < x < 1.
func (s WeightedSums) Multiplier() (x float64, ok bool) {
	denominator := s.ETHWeighted - s.ETHDebt
	if denominator <= 0 {
		return 0, false
	}
	numerator := s.NonETHDebt - s.NonETHWeighted
	if numerator <= 0 {
		return 0, false
	}
	x = numerator / denominator
	if math.IsNaN(x) || math.IsInf(x, 0) || x <= 0 || x >= 1 {
		return 0, false
	}
	return x, true
}

// EstimateWeighted scales the reference price by the multiplier at which the
// eth-correlated legs alone drive the health factor to 1.
func EstimateWeighted(legs []AssetLeg, referencePrice float64) *float64 {
	if !validPrice(referencePrice) || len(legs) == 0 {
		return nil
	}
	x, ok := SumLegs(legs).Multiplier()
	if !ok {
		return nil
	}
	return acceptLiquidationPrice(referencePrice*x, referencePrice)
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

// acceptLiquidationPrice enforces 0 < liq < referencePrice and finiteness.
func acceptLiquidationPrice(liq, referencePrice float64) *float64 {
	if math.IsNaN(liq) || math.IsInf(liq, 0) || liq <= 0 || liq >= referencePrice {
		return nil
	}
	return &liq
}
