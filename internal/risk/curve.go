package risk

import "math"

// maxPrealloc caps the initial capacity of a curve.
const maxPrealloc = 4096

// BuildRiskCurve samples the cumulative collateral that would be liquidated
// if the reference price fell to each price in r.
//
// A position is liquidated by p iff its estimated liquidation price is >= p,
// so the curve is non-increasing in p. Positions without a positive
// estimate never contribute. Positions already at or past liquidation have
// no estimate below the reference price and are absent from the curve.
// Sampling stops early once the step no longer moves the price, so the
// points are strictly ascending. referencePrice is accepted for symmetry with
// the normalizer and does not affect sampling.
func BuildRiskCurve(positions []Position, referencePrice float64, r ScanRange) []RiskCurvePoint {
	if r.Step <= 0 || r.Min > r.Max || !validRange(r) {
		return nil
	}

	priced := make([]Position, 0, len(positions))
	for _, p := range positions {
		if p.HasLiquidationPrice() {
			priced = append(priced, p)
		}
	}

	n := math.MaxInt32
	if span := (r.Max - r.Min) / r.Step; span < float64(math.MaxInt32) {
		n = int(span) + 1
	}
	points := make([]RiskCurvePoint, 0, min(n, maxPrealloc))
	for i := 0; i < n; i++ {
		// Index-based stepping keeps sampled prices free of accumulated drift.
		price := r.Min + float64(i)*r.Step
		if price > r.Max {
			break
		}
		if i > 0 && price <= points[i-1].ReferencePrice {
			break
		}

		var cumulative float64
		var count int
		for _, p := range priced {
			if *p.EstimatedLiquidationPrice >= price {
				cumulative += p.TotalCollateralUSD
				count++
			}
		}

		points = append(points, RiskCurvePoint{
			ReferencePrice:      price,
			CumulativeAtRiskUSD: cumulative,
			PositionCount:       count,
		})
	}
	return points
}

func validRange(r ScanRange) bool {
	return !isNaNOrInf(r.Min) && !isNaNOrInf(r.Max) && !isNaNOrInf(r.Step)
}
