package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/amadeus/internal/logging"
	"github.com/emiliopalmerini/amadeus/internal/settings"
)

var (
	configFile string
	logLevel   string
	debugFlag  bool

	logger logging.Logger = logging.NoOpLogger{}
)

var rootCmd = &cobra.Command{
	Use:   "amadeus",
	Short: "Run and inspect knowledge-gathering agent experiments",
	Long: `amadeus runs knowledge-gathering agent pipelines as tracked experiments.

Every run is recorded with periodic snapshots of the agent state and metric
values, persisted to the configured document store, and can be inspected or
visualized afterwards.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file applied after the user and project files")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
}

// loadSettings layers config files, environment and flags into the global
// settings and builds the logger.
func loadSettings(cmd *cobra.Command, _ []string) error {
	s, err := settings.Load(settings.LoadOptions{ExplicitFile: configFile})
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		s.LogLevel = logLevel
	}
	if cmd.Flags().Changed("debug") {
		s.Debug = debugFlag
	}
	if err := settings.Replace(s); err != nil {
		return err
	}

	logger = logging.New(logging.Config{
		Level:  s.LogLevel,
		Format: s.LogFormat,
		Debug:  s.Debug,
		Output: cmd.ErrOrStderr(),
	})
	logger.Debug("settings loaded", "config", configFile, "db_client", s.ExperimentRunner.DBClient)
	return nil
}
