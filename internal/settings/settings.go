// Package settings holds the process-wide configuration shared by every
// amadeus component.
//
// Values resolve in three tiers: the global Settings (this package), an
// instance override set when a component is constructed, and a call-site
// override passed to a single operation. The most specific non-empty layer
// wins. Components read Global at use time, so a change made through Update
// is observed by the next operation that has no more specific override.
package settings

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/emiliopalmerini/amadeus/internal/metrics"
)

// ErrInvalidSettings is returned when a Settings value fails validation.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings is the full configuration tree.
type Settings struct {
	LLM           string  `yaml:"llm" envconfig:"LLM"`
	Temperature   float64 `yaml:"temperature" envconfig:"TEMPERATURE"`
	MaxTokens     int     `yaml:"max_tokens" envconfig:"MAX_TOKENS"`
	MemoryBackend string  `yaml:"memory_backend" envconfig:"MEMORY_BACKEND"`
	MemorySize    int     `yaml:"memory_size" envconfig:"MEMORY_SIZE"`

	SQLite           SQLiteSettings           `yaml:"sqlite" envconfig:"SQLITE"`
	ExperimentRunner ExperimentRunnerSettings `yaml:"experiment_runner" envconfig:"EXPERIMENT"`
	Visualizer       VisualizerSettings       `yaml:"visualizer" envconfig:"VISUALIZER"`
	Search           SearchSettings           `yaml:"search" envconfig:"SEARCH"`

	Debug     bool   `yaml:"debug" envconfig:"DEBUG"`
	LogLevel  string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" envconfig:"LOG_FORMAT"`
}

// SQLiteSettings configures the SQLite document store.
type SQLiteSettings struct {
	ConnectionString string        `yaml:"connection_string" envconfig:"CONNECTION_STRING"`
	JournalMode      string        `yaml:"journal_mode" envconfig:"JOURNAL_MODE"`
	Timeout          time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// ExperimentRunnerSettings configures experiment bookkeeping.
type ExperimentRunnerSettings struct {
	// SnapshotInterval is the auto-snapshot period. Zero disables the loop.
	SnapshotInterval  time.Duration     `yaml:"snapshot_interval" envconfig:"SNAPSHOT_INTERVAL"`
	MaxSnapshots      int               `yaml:"max_snapshots" envconfig:"MAX_SNAPSHOTS"`
	SnapshotOnMetrics bool              `yaml:"snapshot_on_metrics" envconfig:"SNAPSHOT_ON_METRICS"`
	CollectionName    string            `yaml:"collection_name" envconfig:"COLLECTION_NAME"`
	Compressor        string            `yaml:"compressor" envconfig:"COMPRESSOR"`
	DBClient          string            `yaml:"db_client" envconfig:"DB_CLIENT"`
	DBClientParams    map[string]string `yaml:"db_client_params" envconfig:"DB_CLIENT_PARAMS"`
	Metrics           []string          `yaml:"metrics" envconfig:"METRICS"`
}

// VisualizerSettings holds visualizer defaults.
type VisualizerSettings struct {
	Width        int    `yaml:"width" envconfig:"WIDTH"`
	Height       int    `yaml:"height" envconfig:"HEIGHT"`
	Theme        string `yaml:"theme" envconfig:"THEME"`
	Interactive  bool   `yaml:"interactive" envconfig:"INTERACTIVE"`
	ExportFormat string `yaml:"export_format" envconfig:"EXPORT_FORMAT"`
}

// SearchSettings configures the web search backend used by the curiosity pipeline.
type SearchSettings struct {
	BaseURL string `yaml:"base_url" envconfig:"BASE_URL"`
	Model   string `yaml:"model" envconfig:"MODEL"`
}

// Defaults returns the built-in configuration.
func Defaults() Settings {
	return Settings{
		LLM:           "gpt-4",
		Temperature:   0.7,
		MemoryBackend: "sqlite",
		MemorySize:    1000,
		SQLite: SQLiteSettings{
			ConnectionString: "experiments.db",
			JournalMode:      "WAL",
			Timeout:          30 * time.Second,
		},
		ExperimentRunner: ExperimentRunnerSettings{
			SnapshotInterval:  5 * time.Second,
			MaxSnapshots:      1000,
			SnapshotOnMetrics: true,
			CollectionName:    "experiments",
			DBClient:          "sqlite",
			DBClientParams:    map[string]string{},
			Metrics:           []string{"num_knowledge_nodes", "num_knowledge_edges"},
		},
		Visualizer: VisualizerSettings{
			Width:        800,
			Height:       600,
			Theme:        "light",
			Interactive:  true,
			ExportFormat: "html",
		},
		Search: SearchSettings{
			BaseURL: "https://api.perplexity.ai",
			Model:   "sonar-pro",
		},
		LogLevel:  "INFO",
		LogFormat: "text",
	}
}

// Clone returns a deep copy of s.
func (s Settings) Clone() Settings {
	out := s
	if s.ExperimentRunner.DBClientParams != nil {
		out.ExperimentRunner.DBClientParams = make(map[string]string, len(s.ExperimentRunner.DBClientParams))
		for k, v := range s.ExperimentRunner.DBClientParams {
			out.ExperimentRunner.DBClientParams[k] = v
		}
	}
	if s.ExperimentRunner.Metrics != nil {
		out.ExperimentRunner.Metrics = append([]string(nil), s.ExperimentRunner.Metrics...)
	}
	return out
}

var (
	journalModes  = []string{"DELETE", "TRUNCATE", "PERSIST", "MEMORY", "WAL", "OFF"}
	compressors   = []string{"", "json", "binary"}
	dbClients     = []string{"sqlite", "json", "mongo", "neo4j"}
	logLevels     = []string{"DEBUG", "INFO", "WARN", "WARNING", "ERROR"}
	logFormats    = []string{"text", "json"}
	themes        = []string{"light", "dark"}
	exportFormats = []string{"html", "json", "svg"}
)

// Validate reports every problem with s joined into one error.
func (s Settings) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(s.LLM) == "" {
		add("llm must not be empty")
	}
	if s.Temperature < 0 || s.Temperature > 2 {
		add("temperature %.2f out of range [0, 2]", s.Temperature)
	}
	if s.MaxTokens < 0 {
		add("max_tokens must not be negative")
	}
	if s.MemorySize <= 0 {
		add("memory_size must be positive")
	}
	if s.SQLite.ConnectionString == "" {
		add("sqlite.connection_string must not be empty")
	}
	if !oneOf(strings.ToUpper(s.SQLite.JournalMode), journalModes) {
		add("sqlite.journal_mode %q not one of %v", s.SQLite.JournalMode, journalModes)
	}
	if s.SQLite.Timeout < 0 {
		add("sqlite.timeout must not be negative")
	}

	er := s.ExperimentRunner
	if er.SnapshotInterval < 0 {
		add("experiment_runner.snapshot_interval must not be negative")
	}
	if er.MaxSnapshots <= 0 {
		add("experiment_runner.max_snapshots must be positive")
	}
	if er.CollectionName == "" {
		add("experiment_runner.collection_name must not be empty")
	}
	if !oneOf(er.Compressor, compressors) {
		add("experiment_runner.compressor %q not one of json, binary", er.Compressor)
	}
	if !oneOf(er.DBClient, dbClients) {
		add("experiment_runner.db_client %q not one of %v", er.DBClient, dbClients)
	}
	for _, m := range er.Metrics {
		if strings.TrimSpace(m) == "" {
			add("experiment_runner.metrics contains an empty name")
			continue
		}
		if _, err := metrics.Get(metrics.Type(m)); err != nil {
			add("experiment_runner.metrics: %v", err)
		}
	}

	if s.Visualizer.Width <= 0 || s.Visualizer.Height <= 0 {
		add("visualizer width and height must be positive")
	}
	if !oneOf(s.Visualizer.Theme, themes) {
		add("visualizer.theme %q not one of %v", s.Visualizer.Theme, themes)
	}
	if !oneOf(s.Visualizer.ExportFormat, exportFormats) {
		add("visualizer.export_format %q not one of %v", s.Visualizer.ExportFormat, exportFormats)
	}

	if !oneOf(strings.ToUpper(s.LogLevel), logLevels) {
		add("log_level %q not one of DEBUG, INFO, WARN, ERROR", s.LogLevel)
	}
	if !oneOf(s.LogFormat, logFormats) {
		add("log_format %q not one of %v", s.LogFormat, logFormats)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(problems, "; "))
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// KeyValue is one flattened setting.
type KeyValue struct {
	Key   string
	Value string
}

// Flatten lists every setting with a dotted key, in a stable order.
func (s Settings) Flatten() []KeyValue {
	er := s.ExperimentRunner
	params := make([]string, 0, len(er.DBClientParams))
	for k, v := range er.DBClientParams {
		params = append(params, k+"="+v)
	}
	sort.Strings(params)

	return []KeyValue{
		{"llm", s.LLM},
		{"temperature", fmt.Sprintf("%g", s.Temperature)},
		{"max_tokens", fmt.Sprintf("%d", s.MaxTokens)},
		{"memory_backend", s.MemoryBackend},
		{"memory_size", fmt.Sprintf("%d", s.MemorySize)},
		{"sqlite.connection_string", s.SQLite.ConnectionString},
		{"sqlite.journal_mode", s.SQLite.JournalMode},
		{"sqlite.timeout", s.SQLite.Timeout.String()},
		{"experiment_runner.snapshot_interval", er.SnapshotInterval.String()},
		{"experiment_runner.max_snapshots", fmt.Sprintf("%d", er.MaxSnapshots)},
		{"experiment_runner.snapshot_on_metrics", fmt.Sprintf("%t", er.SnapshotOnMetrics)},
		{"experiment_runner.collection_name", er.CollectionName},
		{"experiment_runner.compressor", er.Compressor},
		{"experiment_runner.db_client", er.DBClient},
		{"experiment_runner.db_client_params", strings.Join(params, ",")},
		{"experiment_runner.metrics", strings.Join(er.Metrics, ",")},
		{"visualizer.width", fmt.Sprintf("%d", s.Visualizer.Width)},
		{"visualizer.height", fmt.Sprintf("%d", s.Visualizer.Height)},
		{"visualizer.theme", s.Visualizer.Theme},
		{"visualizer.interactive", fmt.Sprintf("%t", s.Visualizer.Interactive)},
		{"visualizer.export_format", s.Visualizer.ExportFormat},
		{"search.base_url", s.Search.BaseURL},
		{"search.model", s.Search.Model},
		{"debug", fmt.Sprintf("%t", s.Debug)},
		{"log_level", s.LogLevel},
		{"log_format", s.LogFormat},
	}
}
