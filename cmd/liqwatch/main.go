package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "liqwatch: %v\n", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	c := &cobra.Command{
		Use:           "liqwatch",
		Short:         "Tracks liquidation risk of lending-protocol positions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	c.AddCommand(
		serveCommand(),
		checkCommand(),
		rangeCommand(),
		simulateCommand(),
		statusCommand(),
		watchCommand(),
	)
	return c
}
