package experiment

import (
	"time"

	"github.com/emiliopalmerini/amadeus/internal/compress"
	"github.com/emiliopalmerini/amadeus/internal/logging"
	"github.com/emiliopalmerini/amadeus/internal/ports"
	"github.com/emiliopalmerini/amadeus/internal/settings"
)

// Overrides replaces experiment_runner settings for one runner or one
// experiment. Nil fields fall through to the next layer.
type Overrides struct {
	SnapshotInterval  *time.Duration
	MaxSnapshots      *int
	SnapshotOnMetrics *bool
	Collection        string
	Compressor        *compress.Type
	Metrics           []string
}

// Option configures a Runner.
type Option func(*Runner)

// WithOverrides sets the instance-level overrides.
func WithOverrides(o Overrides) Option {
	return func(r *Runner) { r.overrides = o }
}

// WithExporter publishes snapshots and experiment outcomes to e.
func WithExporter(e ports.MetricsExporter) Option {
	return func(r *Runner) { r.exporter = e }
}

func WithLogger(l logging.Logger) Option {
	return func(r *Runner) { r.logger = logging.With(logging.OrNoOp(l), "component", "experiment") }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// StartOption configures a single experiment.
type StartOption func(*startConfig)

type startConfig struct {
	description string
	tags        []string
	overrides   Overrides
}

func WithDescription(d string) StartOption {
	return func(c *startConfig) { c.description = d }
}

func WithTags(tags ...string) StartOption {
	return func(c *startConfig) { c.tags = append(c.tags, tags...) }
}

// WithRunOverrides sets call-level overrides that apply until End.
func WithRunOverrides(o Overrides) StartOption {
	return func(c *startConfig) { c.overrides = o }
}

// knobs resolves each setting call > instance > global. Global is read on
// every call so settings.Update takes effect on a running experiment.
type knobs struct {
	call, instance Overrides
}

func (k knobs) interval() time.Duration {
	return settings.Pick(k.call.SnapshotInterval, k.instance.SnapshotInterval, settings.Global().ExperimentRunner.SnapshotInterval)
}

func (k knobs) maxSnapshots() int {
	return settings.Pick(k.call.MaxSnapshots, k.instance.MaxSnapshots, settings.Global().ExperimentRunner.MaxSnapshots)
}

func (k knobs) snapshotOnMetrics() bool {
	return settings.Pick(k.call.SnapshotOnMetrics, k.instance.SnapshotOnMetrics, settings.Global().ExperimentRunner.SnapshotOnMetrics)
}

func (k knobs) collection() string {
	return settings.Resolve(k.call.Collection, k.instance.Collection, settings.Global().ExperimentRunner.CollectionName)
}

func (k knobs) compressor() compress.Type {
	return settings.Pick(k.call.Compressor, k.instance.Compressor, compress.Type(settings.Global().ExperimentRunner.Compressor))
}

func (k knobs) metrics() []string {
	switch {
	case len(k.call.Metrics) > 0:
		return k.call.Metrics
	case len(k.instance.Metrics) > 0:
		return k.instance.Metrics
	default:
		return settings.Global().ExperimentRunner.Metrics
	}
}
