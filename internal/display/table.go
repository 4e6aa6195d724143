package display

import (
	"LiqWatch/internal/risk"
	"fmt"
	"io"
	"text/tabwriter"
)

// WritePositions renders positions as an aligned table, one row per account.
func WritePositions(w io.Writer, positions []risk.Position) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tHEALTH\tBAND\tCOLLATERAL\tDEBT\tLIQ. THRESHOLD\tLIQ. PRICE")
	for _, p := range positions {
		liq := "-"
		if p.HasLiquidationPrice() {
			liq = FormatPrice(*p.EstimatedLiquidationPrice)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			FormatAddress(p.Address),
			FormatHealthFactor(p.HealthFactor),
			HealthBand(p.HealthFactor),
			FormatUSD(p.TotalCollateralUSD),
			FormatUSD(p.TotalDebtUSD),
			FormatPercent(p.LiquidationThresholdPct, 2),
			liq,
		)
	}
	return tw.Flush()
}

// WriteCurve renders a risk curve, one row per sampled price.
func WriteCurve(w io.Writer, curve []risk.RiskCurvePoint) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "PRICE\tAT RISK\tPOSITIONS\t")
	for _, pt := range curve {
		fmt.Fprintf(tw, "%s\t%s\t%d\t\n",
			FormatPrice(pt.ReferencePrice), FormatUSD(pt.CumulativeAtRiskUSD), pt.PositionCount)
	}
	return tw.Flush()
}
