package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/emiliopalmerini/amadeus/internal/settings"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
	Long: `Inspect the effective configuration.

Settings are layered: built-in defaults, the user file, the project file
(.amadeus/config.yaml), --config, AMADEUS_* environment variables and
finally command-line flags.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file locations",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var configYAML bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)

	configShowCmd.Flags().BoolVar(&configYAML, "yaml", false, "print as YAML, loadable with --config")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	s := settings.Global()
	out := cmd.OutOrStdout()

	if configYAML {
		data, err := yaml.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to encode settings: %w", err)
		}
		_, err = out.Write(data)
		return err
	}

	w := newTable(out)
	for _, kv := range s.Flatten() {
		fmt.Fprintf(w, "%s\t%s\n", kv.Key, kv.Value)
	}
	return w.Flush()
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	w := newTable(cmd.OutOrStdout())
	fmt.Fprintf(w, "user\t%s\t%s\n", settings.UserConfigPath(), existsMarker(settings.UserConfigPath()))
	fmt.Fprintf(w, "project\t%s\t%s\n", settings.ProjectConfigPath(wd), existsMarker(settings.ProjectConfigPath(wd)))
	if configFile != "" {
		fmt.Fprintf(w, "explicit\t%s\t%s\n", configFile, existsMarker(configFile))
	}
	return w.Flush()
}

func existsMarker(path string) string {
	if _, err := os.Stat(path); err == nil {
		return "(found)"
	}
	return "(missing)"
}
