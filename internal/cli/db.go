package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/amadeus/internal/domain"
	"github.com/emiliopalmerini/amadeus/internal/ports"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Query and modify documents in the configured store",
	Long: `Low-level access to the document store selected by experiment_runner.db_client.

Filters are key=value pairs on dotted field paths; values are parsed as
null, booleans, numbers or strings.`,
}

var dbQueryCmd = &cobra.Command{
	Use:   "query <collection>",
	Short: "Print matching documents as JSON",
	Long: `Print matching documents as JSON.

Examples:
  amadeus db query experiments --filter status=completed
  amadeus db query knowledge --order-by updated_at --desc --limit 5`,
	Args: cobra.ExactArgs(1),
	RunE: runDBQuery,
}

var dbUpdateCmd = &cobra.Command{
	Use:   "update <collection>",
	Short: "Merge fields into matching documents",
	Long: `Merge fields into every matching document.

Example:
  amadeus db update experiments --filter status=running --set status=cancelled`,
	Args: cobra.ExactArgs(1),
	RunE: runDBUpdate,
}

var dbDeleteCmd = &cobra.Command{
	Use:   "delete <collection>",
	Short: "Delete matching documents",
	Long:  `Delete matching documents. Deleting without a filter requires --all.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDBDelete,
}

var (
	dbFilters    []string
	dbSets       []string
	dbLimit      int
	dbOrderBy    string
	dbDesc       bool
	dbConnection string
	dbAll        bool
)

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbQueryCmd)
	dbCmd.AddCommand(dbUpdateCmd)
	dbCmd.AddCommand(dbDeleteCmd)

	dbCmd.PersistentFlags().StringArrayVarP(&dbFilters, "filter", "f", nil, "key=value equality filter (repeatable)")

	dbQueryCmd.Flags().IntVar(&dbLimit, "limit", 0, "maximum number of documents, 0 for all")
	dbQueryCmd.Flags().StringVar(&dbOrderBy, "order-by", "", "field path to sort by")
	dbQueryCmd.Flags().BoolVar(&dbDesc, "desc", false, "sort descending")
	dbQueryCmd.Flags().StringVar(&dbConnection, "connection", "", "query another connection string for this call")

	dbUpdateCmd.Flags().StringArrayVar(&dbSets, "set", nil, "key=value field to set (repeatable)")
	_ = dbUpdateCmd.MarkFlagRequired("set")

	dbDeleteCmd.Flags().BoolVar(&dbAll, "all", false, "allow deleting every document in the collection")
}

func runDBQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	filter, err := parseFilter(dbFilters)
	if err != nil {
		return err
	}

	var opts []ports.QueryOption
	if dbLimit > 0 {
		opts = append(opts, ports.WithLimit(dbLimit))
	}
	if dbOrderBy != "" {
		opts = append(opts, ports.WithOrderBy(dbOrderBy, dbDesc))
	}
	if dbConnection != "" {
		opts = append(opts, ports.WithConnection(dbConnection))
	}

	return withApp(ctx, func(app *AppContext) error {
		res, err := app.DB.Query(ctx, args[0], filter, opts...)
		if err != nil {
			return err
		}
		if res.Data == nil {
			res.Data = []domain.Document{}
		}
		return printJSON(cmd.OutOrStdout(), res)
	})
}

func runDBUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	filter, err := parseFilter(dbFilters)
	if err != nil {
		return err
	}
	patch, err := parsePairs(dbSets)
	if err != nil {
		return err
	}

	return withApp(ctx, func(app *AppContext) error {
		n, err := app.DB.Update(ctx, args[0], filter, domain.Document(patch))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %d document(s) in %s\n", n, args[0])
		return nil
	})
}

func runDBDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	filter, err := parseFilter(dbFilters)
	if err != nil {
		return err
	}
	if len(filter) == 0 && !dbAll {
		return fmt.Errorf("refusing to delete every document in %s without --all", args[0])
	}

	return withApp(ctx, func(app *AppContext) error {
		n, err := app.DB.Delete(ctx, args[0], filter)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d document(s) from %s\n", n, args[0])
		return nil
	})
}
