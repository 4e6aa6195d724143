package main

import (
	"LiqWatch/internal/display"
	"LiqWatch/internal/risk"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func rangeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "range <price>",
		Short: "Prints the scan range selected for a reference price",
		Args:  cobra.ExactArgs(1),
		RunE:  rangeFunc,
	}
}

func rangeFunc(c *cobra.Command, args []string) error {
	price, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid price %q: %w", args[0], err)
	}

	r := risk.SelectPriceRange(price)
	points := len(risk.BuildRiskCurve(nil, price, r))

	fmt.Fprintf(c.OutOrStdout(), "min %s  max %s  step %s  (%d points)\n",
		display.FormatPrice(r.Min), display.FormatPrice(r.Max), display.FormatPrice(r.Step), points)
	return nil
}
