package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/amadeus/internal/adapters/sqlite"
	"github.com/emiliopalmerini/amadeus/internal/migrate"
	"github.com/emiliopalmerini/amadeus/internal/settings"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [version]",
	Short: "Run SQLite schema migrations",
	Long: `Run schema migrations on the SQLite document store.

Without arguments, runs all pending migrations (up).
With a version number, migrates to that specific version (up or down as needed).

Examples:
  amadeus migrate      # Run all pending migrations
  amadeus migrate 1    # Migrate to version 1
  amadeus migrate 0    # Rollback all migrations`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMigrate,
}

var migrateDSN string

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().StringVar(&migrateDSN, "connection", "", "SQLite connection string (default from settings)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	target := -1
	if len(args) == 1 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 0 {
			return fmt.Errorf("invalid version number: %s", args[0])
		}
		target = v
	}

	dsn := migrateDSN
	if dsn == "" {
		dsn = settings.Global().ExperimentRunner.DBClientParams["connection_string"]
	}
	client, err := sqlite.New(ctx, dsn, sqlite.WithLogger(logger), sqlite.WithoutMigrations())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer client.Close()

	m := migrate.New(client.DB(), logger)
	if err := m.EnsureMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	before, _, err := m.CurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	fmt.Fprintf(out, "Current version: %d\n", before)

	if target < 0 {
		n, err := m.Up(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Fprintln(out, "No migrations to run")
			return nil
		}
		after, _, err := m.CurrentVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Migrated to version %d (%d migrations applied)\n", after, n)
		return nil
	}

	if target == before {
		fmt.Fprintln(out, "Already at target version")
		return nil
	}
	if err := m.MigrateTo(ctx, target); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated to version %d\n", target)
	return nil
}
