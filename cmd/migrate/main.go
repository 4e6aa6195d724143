package main

import (
	"LiqWatch/internal/observability"
	"LiqWatch/internal/persistence"
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

func main() {
	if err := command().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

func command() *cobra.Command {
	c := &cobra.Command{
		Use:   "migrate",
		Short: "Applies LiqWatch schema migrations",
		Long: "Environment:\n" +
			"  LIQ_POSTGRES_DSN    Postgres connection string\n" +
			"  LIQ_MIGRATIONS_DIR  path to the migrations directory (default: migrations)",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	c.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(ctx context.Context, c *cobra.Command, m *persistence.Migrator) error {
				return m.Up(ctx)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(ctx context.Context, c *cobra.Command, m *persistence.Migrator) error {
				return m.Down(ctx)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations not yet applied",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(ctx context.Context, c *cobra.Command, m *persistence.Migrator) error {
				pending, err := m.Pending(ctx)
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					fmt.Fprintln(c.OutOrStdout(), "schema is up to date")
					return nil
				}
				for _, file := range pending {
					fmt.Fprintf(c.OutOrStdout(), "pending  %s\n", file)
				}
				return nil
			}),
		},
	)
	return c
}

type migrateFunc func(ctx context.Context, c *cobra.Command, m *persistence.Migrator) error

func withMigrator(fn migrateFunc) func(*cobra.Command, []string) error {
	return func(c *cobra.Command, _ []string) error {
		logger := observability.NewLogger("migrate")

		dsn := os.Getenv("LIQ_POSTGRES_DSN")
		if dsn == "" {
			dsn = "postgres://localhost:5432/liqwatch?sslmode=disable"
		}
		dir := os.Getenv("LIQ_MIGRATIONS_DIR")
		if dir == "" {
			dir = "migrations"
		}

		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()

		if err := fn(c.Context(), c, persistence.NewMigrator(db, dir, logger)); err != nil {
			return fmt.Errorf("%s: %w", c.Name(), err)
		}
		logger.Info().Str("command", c.Name()).Msg("done")
		return nil
	}
}
