package main

import (
	"LiqWatch/internal/display"
	"LiqWatch/internal/monitor"
	"LiqWatch/internal/observability"
	"LiqWatch/internal/persistence"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func checkCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "check <address>...",
		Short: "Runs one refresh cycle for the given addresses and prints the result",
		Args:  cobra.MinimumNArgs(1),
		RunE:  checkFunc,
	}
	addCheckFlags(c.Flags())
	return c
}

func checkFunc(c *cobra.Command, args []string) error {
	f, err := parseCheckFlags(c.Flags())
	if err != nil {
		return err
	}
	cfg, err := loadConfig(f.ConfigPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context(), f.Timeout)
	defer cancel()

	watch := persistence.NewMemoryWatchList()
	for _, addr := range args {
		if _, err := watch.Add(ctx, addr, ""); err != nil {
			return err
		}
	}

	src, err := dialChain(cfg, cfg.DetailedBreakdown && !f.Simple)
	if err != nil {
		return err
	}
	defer src.Close()

	opts := src.options()
	opts.Addresses = watch
	opts.CycleTimeout = f.Timeout
	opts.Logger = observability.NewLoggerWithLevel("check", zerolog.WarnLevel)

	snap, err := monitor.New(opts).RunCycle(ctx)
	if err != nil {
		return err
	}

	out := c.OutOrStdout()
	if f.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	return writeSnapshot(out, snap, f.Curve)
}

func writeSnapshot(w io.Writer, snap *monitor.Snapshot, withCurve bool) error {
	fmt.Fprintf(w, "ETH/USD %s (updated %s)\n\n",
		display.FormatPrice(snap.Price.Value),
		display.FormatRelativeTime(snap.Price.UpdatedAt, time.Now()))

	if err := display.WritePositions(w, snap.Positions); err != nil {
		return err
	}

	s := snap.Summary
	fmt.Fprintf(w, "\n%d positions, %d at risk (%s collateral), %d liquidatable\n",
		s.Positions, s.AtRisk, display.FormatUSD(s.AtRiskCollateral), s.Liquidatable)

	if !withCurve {
		return nil
	}
	fmt.Fprintf(w, "\nRisk curve %s to %s, step %s\n\n",
		display.FormatPrice(snap.Range.Min),
		display.FormatPrice(snap.Range.Max),
		display.FormatPrice(snap.Range.Step))
	return display.WriteCurve(w, snap.Curve)
}
