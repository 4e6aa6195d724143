package main

import (
	"LiqWatch/internal/display"
	"LiqWatch/internal/query"
	"LiqWatch/internal/risk"
	"LiqWatch/internal/server"
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// dialServer connects to a running serve instance.
func dialServer(c *cobra.Command) (*server.Client, context.Context, func(), error) {
	f, err := parseClientFlags(c.Flags())
	if err != nil {
		return nil, nil, nil, err
	}
	conn, err := grpc.NewClient(f.Server, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("dial %s: %w", f.Server, err)
	}
	ctx, cancel := context.WithTimeout(c.Context(), f.Timeout)
	return server.NewClient(conn), ctx, func() {
		cancel()
		conn.Close()
	}, nil
}

func statusCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "status",
		Short: "Prints the current snapshot of a running server",
		Args:  cobra.NoArgs,
		RunE:  statusFunc,
	}
	addClientFlags(c.Flags())
	c.Flags().Bool(AtRiskKey, false, "Only list positions below the risk threshold")
	c.Flags().String(SortKey, query.SortHealth, "Order: health, collateral or liquidation")
	c.Flags().Int(LimitKey, 0, "Maximum positions to list, 0 for all")
	return c
}

func statusFunc(c *cobra.Command, _ []string) error {
	atRisk, err := c.Flags().GetBool(AtRiskKey)
	if err != nil {
		return err
	}
	sort, err := c.Flags().GetString(SortKey)
	if err != nil {
		return err
	}
	limit, err := c.Flags().GetInt(LimitKey)
	if err != nil {
		return err
	}

	client, ctx, done, err := dialServer(c)
	if err != nil {
		return err
	}
	defer done()

	snap, err := client.GetSnapshot(ctx, &query.GetSnapshotRequest{})
	if err != nil {
		return err
	}
	list, err := client.ListPositions(ctx, &query.ListPositionsRequest{AtRiskOnly: atRisk, Sort: sort, Limit: limit})
	if err != nil {
		return err
	}

	out := c.OutOrStdout()
	fmt.Fprintf(out, "cycle %s at %s, ETH/USD %s\n\n",
		snap.CycleID, snap.TakenAt.Format(time.RFC3339), display.FormatPrice(snap.ReferencePrice))

	positions := make([]risk.Position, 0, len(list.Positions))
	for _, v := range list.Positions {
		positions = append(positions, v.Position)
	}
	if err := display.WritePositions(out, positions); err != nil {
		return err
	}

	s := snap.Summary
	fmt.Fprintf(out, "\n%d positions, %d at risk (%s collateral), %d liquidatable\n",
		s.Positions, s.AtRisk, display.FormatUSD(s.AtRiskCollateral), s.Liquidatable)
	return nil
}

func simulateCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "simulate <price>",
		Short: "Projects health factors of a running server's positions at a price",
		Args:  cobra.ExactArgs(1),
		RunE:  simulateFunc,
	}
	addClientFlags(c.Flags())
	return c
}

func simulateFunc(c *cobra.Command, args []string) error {
	price, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid price %q: %w", args[0], err)
	}

	client, ctx, done, err := dialServer(c)
	if err != nil {
		return err
	}
	defer done()

	resp, err := client.SimulatePrice(ctx, &query.SimulatePriceRequest{Price: price})
	if err != nil {
		return err
	}

	out := c.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tHEALTH NOW\tHEALTH AT TARGET\tLIQUIDATABLE")
	for _, p := range resp.Positions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n",
			display.FormatAddress(p.Address),
			display.FormatHealthFactor(p.CurrentHealth),
			display.FormatHealthFactor(p.ProjectedHealth),
			p.Liquidatable)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nAt %s: %d liquidatable, %s collateral\n",
		display.FormatPrice(resp.TargetPrice), resp.Liquidatable, display.FormatUSD(resp.LiquidatableCollateralUSD))
	return nil
}

func watchCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "watch",
		Short: "Manages the watch list of a running server",
	}

	add := &cobra.Command{
		Use:   "add <address>",
		Short: "Adds an address or updates its label",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			label, err := c.Flags().GetString(LabelKey)
			if err != nil {
				return err
			}
			client, ctx, done, err := dialServer(c)
			if err != nil {
				return err
			}
			defer done()

			resp, err := client.AddAddress(ctx, &query.AddAddressRequest{Address: args[0], Label: label})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "watching %s\n", resp.Entry.Address)
			return nil
		},
	}
	addClientFlags(add.Flags())
	add.Flags().String(LabelKey, "", "Label shown next to the address")

	remove := &cobra.Command{
		Use:   "remove <address>",
		Short: "Stops watching an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			client, ctx, done, err := dialServer(c)
			if err != nil {
				return err
			}
			defer done()

			if _, err := client.RemoveAddress(ctx, &query.RemoveAddressRequest{Address: args[0]}); err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
	addClientFlags(remove.Flags())

	list := &cobra.Command{
		Use:   "list",
		Short: "Lists watched addresses",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			client, ctx, done, err := dialServer(c)
			if err != nil {
				return err
			}
			defer done()

			resp, err := client.ListAddresses(ctx, &query.ListAddressesRequest{})
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(c.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ADDRESS\tLABEL\tADDED")
			for _, e := range resp.Addresses {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Address, e.Label, e.AddedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	addClientFlags(list.Flags())

	c.AddCommand(add, remove, list)
	return c
}
