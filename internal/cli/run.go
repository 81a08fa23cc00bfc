package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/amadeus/internal/agent"
	"github.com/emiliopalmerini/amadeus/internal/compress"
	"github.com/emiliopalmerini/amadeus/internal/domain"
	"github.com/emiliopalmerini/amadeus/internal/experiment"
	"github.com/emiliopalmerini/amadeus/internal/llm"
	"github.com/emiliopalmerini/amadeus/internal/settings"
)

var runCmd = &cobra.Command{
	Use:   "run <question>",
	Short: "Run a pipeline as a tracked experiment",
	Long: `Run a knowledge-gathering pipeline on a question and record it as an experiment.

Pipelines: structured_learning (default), adaptive_learning, curiosity.

Examples:
  amadeus run "How do tides work?"
  amadeus run "Why is the sky blue?" --pipeline adaptive_learning --model claude-sonnet-4-5
  amadeus run "What limits battery density?" --pipeline curiosity --search`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runPipeline         string
	runModel            string
	runName             string
	runDescription      string
	runTags             []string
	runSearch           bool
	runSnapshotInterval time.Duration
	runMaxSnapshots     int
	runCompressor       string
	runCollection       string
	runMetrics          []string
)

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVarP(&runPipeline, "pipeline", "p", string(agent.DefaultType), "pipeline type")
	f.StringVarP(&runModel, "model", "m", "", "LLM model for this run (default from settings)")
	f.StringVarP(&runName, "name", "n", "", "experiment name (default derived from the pipeline and time)")
	f.StringVarP(&runDescription, "description", "d", "", "experiment description")
	f.StringSliceVarP(&runTags, "tag", "t", nil, "experiment tag (repeatable)")
	f.BoolVar(&runSearch, "search", false, "enable web search through the Perplexity API")
	f.DurationVar(&runSnapshotInterval, "snapshot-interval", 0, "auto-snapshot period for this run, 0 disables")
	f.IntVar(&runMaxSnapshots, "max-snapshots", 0, "snapshot limit for this run")
	f.StringVar(&runCompressor, "compressor", "", "snapshot compressor for this run: json, binary or none")
	f.StringVar(&runCollection, "collection", "", "collection to store the experiment in")
	f.StringSliceVar(&runMetrics, "metric", nil, "metric to compute (repeatable)")
}

// runOverrides turns the flags the user actually set into call-level
// overrides.
func runOverrides(cmd *cobra.Command) (experiment.Overrides, error) {
	var o experiment.Overrides
	f := cmd.Flags()
	if f.Changed("snapshot-interval") {
		o.SnapshotInterval = settings.Ptr(runSnapshotInterval)
	}
	if f.Changed("max-snapshots") {
		o.MaxSnapshots = settings.Ptr(runMaxSnapshots)
	}
	if f.Changed("compressor") {
		t := compress.Type(runCompressor)
		if runCompressor == "none" {
			t = compress.None
		}
		if _, err := compress.Get(t); err != nil {
			return o, err
		}
		o.Compressor = &t
	}
	o.Collection = runCollection
	o.Metrics = runMetrics
	return o, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	question := args[0]

	overrides, err := runOverrides(cmd)
	if err != nil {
		return err
	}

	return withApp(ctx, func(app *AppContext) error {
		deps := agent.Deps{
			Model:  runModel,
			Memory: app.DB,
			Logger: app.Logger,
		}
		if runSearch {
			searcher, err := llm.NewPerplexity(settings.Global().Search)
			if err != nil {
				return err
			}
			deps.Searcher = searcher
		}

		pipeline, err := agent.New(agent.Type(runPipeline), deps)
		if err != nil {
			return err
		}

		name := runName
		if name == "" {
			name = fmt.Sprintf("%s-%s", pipeline.Name(), time.Now().UTC().Format("20060102-150405"))
		}

		runner := experiment.NewRunner(pipeline, app.DB,
			experiment.WithExporter(app.Exporter),
			experiment.WithLogger(app.Logger),
		)
		rec, runErr := runner.Execute(ctx, name, question,
			experiment.WithDescription(runDescription),
			experiment.WithTags(runTags...),
			experiment.WithRunOverrides(overrides),
		)
		if rec != nil {
			printRunSummary(cmd, rec, pipeline.CurrentState())
		}
		return runErr
	})
}

func printRunSummary(cmd *cobra.Command, rec *domain.ExperimentRecord, state *domain.AgentState) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Experiment: %s (%s)\n", rec.Name, rec.ID)
	fmt.Fprintf(out, "Pipeline:   %s\n", rec.PipelineType)
	fmt.Fprintf(out, "Status:     %s\n", rec.Status)
	if rec.EndTime != nil {
		fmt.Fprintf(out, "Duration:   %s\n", formatDuration(rec.Duration(*rec.EndTime)))
	}
	fmt.Fprintf(out, "Snapshots:  %d\n", len(rec.Snapshots))
	if rec.Error != "" {
		fmt.Fprintf(out, "Error:      %s\n", rec.Error)
	}

	if len(rec.Metrics) > 0 {
		names := make([]string, 0, len(rec.Metrics))
		for n := range rec.Metrics {
			names = append(names, n)
		}
		sort.Strings(names)
		fmt.Fprintln(out, "\nMetrics:")
		w := newTable(out)
		for _, n := range names {
			fmt.Fprintf(w, "  %s\t%v\n", n, rec.Metrics[n])
		}
		_ = w.Flush()
	}

	if state == nil {
		return
	}
	if state.AnswerText != "" {
		fmt.Fprintf(out, "\nAnswer:\n%s\n", strings.TrimSpace(state.AnswerText))
	}
	if len(state.ConfidenceScores) > 0 {
		topics := make([]string, 0, len(state.ConfidenceScores))
		for t := range state.ConfidenceScores {
			topics = append(topics, t)
		}
		sort.Strings(topics)
		fmt.Fprintln(out, "\nConfidence:")
		w := newTable(out)
		for _, t := range topics {
			fmt.Fprintf(w, "  %s\t%.2f\n", t, state.ConfidenceScores[t])
		}
		_ = w.Flush()
	}
}
