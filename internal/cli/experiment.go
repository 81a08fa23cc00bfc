package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/amadeus/internal/domain"
	"github.com/emiliopalmerini/amadeus/internal/experiment"
	"github.com/emiliopalmerini/amadeus/internal/ports"
	"github.com/emiliopalmerini/amadeus/internal/util"
	"github.com/emiliopalmerini/amadeus/internal/visualize"
)

var experimentCmd = &cobra.Command{
	Use:     "experiment",
	Aliases: []string{"exp"},
	Short:   "Inspect recorded experiments",
	Long:    `List, show and delete recorded experiments and browse their snapshots.`,
}

var experimentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List experiments, newest first",
	Long: `List recorded experiments.

Examples:
  amadeus experiment list
  amadeus experiment list --status failed
  amadeus experiment list --since week --pipeline curiosity`,
	Args: cobra.NoArgs,
	RunE: runExperimentList,
}

var experimentShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one experiment",
	Long:  `Show an experiment by id or unique id prefix.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runExperimentShow,
}

var experimentDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an experiment",
	Args:  cobra.ExactArgs(1),
	RunE:  runExperimentDelete,
}

var experimentSnapshotsCmd = &cobra.Command{
	Use:   "snapshots <id>",
	Short: "List the snapshots of an experiment",
	Long: `List the snapshots of an experiment.

With --state N the decoded agent state of snapshot N is printed as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: runExperimentSnapshots,
}

// Flags
var (
	expCollection string
	expStatus     string
	expPipeline   string
	expSince      string
	expLimit      int
	expJSON       bool
	expState      int
)

func init() {
	rootCmd.AddCommand(experimentCmd)

	experimentCmd.AddCommand(experimentListCmd)
	experimentCmd.AddCommand(experimentShowCmd)
	experimentCmd.AddCommand(experimentDeleteCmd)
	experimentCmd.AddCommand(experimentSnapshotsCmd)

	experimentCmd.PersistentFlags().StringVar(&expCollection, "collection", "", "experiment collection (default from settings)")

	experimentListCmd.Flags().StringVar(&expStatus, "status", "", "only experiments with this status")
	experimentListCmd.Flags().StringVar(&expPipeline, "pipeline", "", "only experiments of this pipeline type")
	experimentListCmd.Flags().StringVar(&expSince, "since", "all", "period: today, week, month or all")
	experimentListCmd.Flags().IntVar(&expLimit, "limit", 50, "maximum number of experiments")

	experimentShowCmd.Flags().BoolVar(&expJSON, "json", false, "print the full record as JSON")

	experimentSnapshotsCmd.Flags().IntVar(&expState, "state", 0, "print the decoded state of this snapshot sequence")
}

// findExperiment loads an experiment by full id, falling back to a unique
// id prefix.
func findExperiment(ctx context.Context, db ports.DBClient, idOrPrefix string) (*domain.ExperimentRecord, error) {
	rec, err := experiment.Load(ctx, db, expCollection, idOrPrefix)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}

	all, err := experiment.List(ctx, db, expCollection, nil)
	if err != nil {
		return nil, err
	}
	var matches []*domain.ExperimentRecord
	for _, r := range all {
		if strings.HasPrefix(r.ID, idOrPrefix) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("experiment %q not found", idOrPrefix)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("experiment prefix %q is ambiguous (%d matches)", idOrPrefix, len(matches))
	}
}

func runExperimentList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	filter := domain.Filter{}
	if expStatus != "" {
		status, err := domain.ParseExperimentStatus(expStatus)
		if err != nil {
			return err
		}
		filter["status"] = string(status)
	}
	if expPipeline != "" {
		filter["pipeline_type"] = expPipeline
	}
	since, err := util.StartOfPeriod(expSince, time.Now())
	if err != nil {
		return err
	}

	return withApp(ctx, func(app *AppContext) error {
		recs, err := experiment.List(ctx, app.DB, expCollection, filter)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		w := newTable(out)
		fmt.Fprintln(w, "ID\tNAME\tPIPELINE\tSTATUS\tSTARTED\tDURATION\tSNAPSHOTS")
		shown := 0
		now := time.Now()
		for _, r := range recs {
			if r.StartTime.Before(since) {
				continue
			}
			if expLimit > 0 && shown >= expLimit {
				break
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				truncateID(r.ID), r.Name, r.PipelineType, r.Status, formatTime(r.StartTime),
				formatDuration(r.Duration(now)), util.FormatNumber(int64(len(r.Snapshots))))
			shown++
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if shown == 0 {
			fmt.Fprintln(out, "No experiments found.")
		}
		return nil
	})
}

func runExperimentShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, func(app *AppContext) error {
		rec, err := findExperiment(ctx, app.DB, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if expJSON {
			return printJSON(out, rec)
		}

		w := newTable(out)
		fmt.Fprintf(w, "ID:\t%s\n", rec.ID)
		fmt.Fprintf(w, "Name:\t%s\n", rec.Name)
		if rec.Description != "" {
			fmt.Fprintf(w, "Description:\t%s\n", rec.Description)
		}
		if len(rec.Tags) > 0 {
			fmt.Fprintf(w, "Tags:\t%s\n", strings.Join(rec.Tags, ", "))
		}
		fmt.Fprintf(w, "Pipeline:\t%s\n", rec.PipelineType)
		fmt.Fprintf(w, "Input:\t%s\n", rec.InitialInput)
		fmt.Fprintf(w, "Status:\t%s\n", rec.Status)
		fmt.Fprintf(w, "Started:\t%s\n", formatTime(rec.StartTime))
		if rec.EndTime != nil {
			fmt.Fprintf(w, "Ended:\t%s\n", formatTime(*rec.EndTime))
		}
		fmt.Fprintf(w, "Duration:\t%s\n", formatDuration(rec.Duration(time.Now())))
		fmt.Fprintf(w, "Snapshots:\t%d\n", len(rec.Snapshots))
		if rec.Error != "" {
			fmt.Fprintf(w, "Error:\t%s\n", rec.Error)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if len(rec.Metrics) > 0 {
			fmt.Fprintln(out, "\nMetrics:")
			w = newTable(out)
			for _, name := range sortedKeys(rec.Metrics) {
				line := visualize.Sparkline(visualize.MetricSeries(rec.Snapshots, name))
				fmt.Fprintf(w, "  %s\t%v\t%s\n", name, rec.Metrics[name], line)
			}
			return w.Flush()
		}
		return nil
	})
}

func runExperimentDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, func(app *AppContext) error {
		rec, err := findExperiment(ctx, app.DB, args[0])
		if err != nil {
			return err
		}
		if _, err := experiment.Delete(ctx, app.DB, expCollection, rec.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted experiment %s (%s)\n", rec.Name, rec.ID)
		return nil
	})
}

func runExperimentSnapshots(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, func(app *AppContext) error {
		rec, err := findExperiment(ctx, app.DB, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if expState > 0 {
			for _, s := range rec.Snapshots {
				if s.Sequence != expState {
					continue
				}
				state, err := experiment.DecodeState(s)
				if err != nil {
					return err
				}
				return printJSON(out, state)
			}
			return fmt.Errorf("experiment %s has no snapshot %d", truncateID(rec.ID), expState)
		}

		w := newTable(out)
		fmt.Fprintln(w, "SEQ\tTIME\tSTEP\tENCODING\tMETRICS")
		for _, s := range rec.Snapshots {
			enc := s.Encoding
			if enc == "" {
				enc = "-"
			}
			var metrics []string
			for _, name := range sortedKeys(s.Metrics) {
				metrics = append(metrics, fmt.Sprintf("%s=%g", name, s.Metrics[name]))
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", s.Sequence, formatTime(s.Timestamp), s.Step, enc, strings.Join(metrics, " "))
		}
		return w.Flush()
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
