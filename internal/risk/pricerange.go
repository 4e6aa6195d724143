package risk

import "github.com/shopspring/decimal"

const (
	// MinScanStep is the smallest step the selector returns.
	MinScanStep = 50.0

	scanSamples = 20
)

var (
	rangeLowFactor  = decimal.RequireFromString("0.5")
	rangeHighFactor = decimal.RequireFromString("1.1")
	rangeRounding   = decimal.NewFromInt(100)
	stepRounding    = decimal.NewFromInt(50)
)

// SelectPriceRange returns a default scan range of roughly 20 samples from
// 50% to 110% of the current price, biased toward the downside where
// liquidations happen.
//
// min rounds down and max rounds up to the nearest 100; step is the larger of
// 50 and (max-min)/20 floored to a multiple of 50. Arithmetic is decimal so
// that e.g. 2000 * 1.1 is exactly 2200. A non-positive price returns
// {0, 0, 50}.
func SelectPriceRange(currentPrice float64) ScanRange {
	if !validPrice(currentPrice) {
		return ScanRange{Step: MinScanStep}
	}

	p := decimal.NewFromFloat(currentPrice)
	lo := p.Mul(rangeLowFactor).Div(rangeRounding).Floor().Mul(rangeRounding)
	hi := p.Mul(rangeHighFactor).Div(rangeRounding).Ceil().Mul(rangeRounding)

	step := hi.Sub(lo).Div(decimal.NewFromInt(scanSamples)).Div(stepRounding).Floor().Mul(stepRounding)
	if step.LessThan(decimal.NewFromFloat(MinScanStep)) {
		step = decimal.NewFromFloat(MinScanStep)
	}

	return ScanRange{
		Min:  lo.InexactFloat64(),
		Max:  hi.InexactFloat64(),
		Step: step.InexactFloat64(),
	}
}
