// Package experiment tracks pipeline runs as experiment records with
// periodic snapshots of the agent state.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emiliopalmerini/amadeus/internal/agent"
	"github.com/emiliopalmerini/amadeus/internal/compress"
	"github.com/emiliopalmerini/amadeus/internal/domain"
	"github.com/emiliopalmerini/amadeus/internal/logging"
	"github.com/emiliopalmerini/amadeus/internal/metrics"
	"github.com/emiliopalmerini/amadeus/internal/ports"
)

var (
	ErrNoExperiment         = errors.New("no experiment in progress")
	ErrExperimentInProgress = errors.New("experiment already in progress")
	ErrNonTerminalStatus    = errors.New("status does not end an experiment")
)

// Runner tracks one experiment at a time for a pipeline.
type Runner struct {
	pipeline  agent.Pipeline
	db        ports.DBClient
	exporter  ports.MetricsExporter
	logger    logging.Logger
	now       func() time.Time
	overrides Overrides

	mu         sync.Mutex
	current    *domain.ExperimentRecord
	knobs      knobs
	collection string
	stop       chan struct{}
	done       chan struct{}
}

// NewRunner creates a runner persisting to db.
func NewRunner(p agent.Pipeline, db ports.DBClient, opts ...Option) *Runner {
	r := &Runner{
		pipeline: p,
		db:       db,
		logger:   logging.NoOpLogger{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Current returns a copy of the running experiment, or nil.
func (r *Runner) Current() *domain.ExperimentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.Clone()
}

// Start opens a new experiment record and, when the resolved snapshot
// interval is positive, begins taking snapshots in the background.
func (r *Runner) Start(ctx context.Context, name, input string, opts ...StartOption) (*domain.ExperimentRecord, error) {
	var cfg startConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		return nil, fmt.Errorf("%w: %s", ErrExperimentInProgress, r.current.Name)
	}

	k := knobs{call: cfg.overrides, instance: r.overrides}
	rec := &domain.ExperimentRecord{
		ID:             uuid.NewString(),
		Name:           name,
		Description:    cfg.description,
		Tags:           cfg.tags,
		StartTime:      r.now().UTC(),
		PipelineType:   r.pipeline.Name(),
		PipelineConfig: r.pipeline.Config(),
		InitialInput:   input,
		Status:         domain.StatusRunning,
		Metrics:        map[string]any{},
		Snapshots:      []domain.Snapshot{},
	}

	collection := k.collection()
	if err := r.persist(ctx, collection, rec); err != nil {
		return nil, err
	}
	r.current = rec
	r.knobs = k
	r.collection = collection

	if interval := k.interval(); interval > 0 {
		r.stop = make(chan struct{})
		r.done = make(chan struct{})
		go r.autoSnapshot(context.WithoutCancel(ctx), interval, r.stop, r.done)
	}

	r.logger.Info("experiment started", "id", rec.ID, "name", name, "pipeline", rec.PipelineType, "collection", collection)
	return rec.Clone(), nil
}

func (r *Runner) autoSnapshot(ctx context.Context, interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := r.TakeSnapshot(ctx); err != nil {
				if errors.Is(err, ErrNoExperiment) {
					return
				}
				r.logger.Warn("auto snapshot failed", "error", err)
			}
		}
	}
}

// TakeSnapshot captures the pipeline state. It returns (nil, nil) once the
// experiment holds max_snapshots snapshots.
func (r *Runner) TakeSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil, ErrNoExperiment
	}
	return r.snapshotLocked(ctx)
}

func (r *Runner) snapshotLocked(ctx context.Context) (*domain.Snapshot, error) {
	rec := r.current
	if len(rec.Snapshots) >= r.knobs.maxSnapshots() {
		r.logger.Debug("snapshot skipped, limit reached", "id", rec.ID, "snapshots", len(rec.Snapshots))
		return nil, nil
	}

	ms, err := metrics.GetAll(r.knobs.metrics())
	if err != nil {
		return nil, err
	}
	c, err := compress.Get(r.knobs.compressor())
	if err != nil {
		return nil, err
	}

	state := r.pipeline.CurrentState()
	snap := domain.Snapshot{
		Timestamp: r.now().UTC(),
		State:     state,
		Metrics:   metrics.Evaluate(ms, state),
	}
	if state != nil {
		snap.Step = state.CurrentStep
	}
	if err := compress.Encode(c, &snap); err != nil {
		return nil, err
	}

	n := len(rec.Snapshots)
	snap = rec.AppendSnapshot(snap)
	if err := r.persist(ctx, r.collection, rec); err != nil {
		rec.Snapshots = rec.Snapshots[:n]
		return nil, err
	}
	if r.exporter != nil {
		if err := r.exporter.ExportSnapshot(ctx, ports.RefOf(rec), &snap); err != nil {
			r.logger.Warn("failed to export snapshot", "id", rec.ID, "error", err)
		}
	}

	r.logger.Debug("snapshot taken", "id", rec.ID, "sequence", snap.Sequence, "step", snap.Step)
	out := snap.Clone()
	return &out, nil
}

// RecordMetric stores a single metric value.
func (r *Runner) RecordMetric(ctx context.Context, name string, value any) error {
	return r.RecordMetrics(ctx, map[string]any{name: value})
}

// RecordMetrics stores metric values on the running experiment and takes
// one snapshot afterwards when snapshot_on_metrics is enabled.
func (r *Runner) RecordMetrics(ctx context.Context, values map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return ErrNoExperiment
	}

	for name, v := range values {
		r.current.Metrics[name] = v
	}
	if err := r.persist(ctx, r.collection, r.current); err != nil {
		return err
	}
	if r.knobs.snapshotOnMetrics() {
		if _, err := r.snapshotLocked(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Update applies fn to the running experiment and persists the result.
// The record id cannot be changed.
func (r *Runner) Update(ctx context.Context, fn func(*domain.ExperimentRecord)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return ErrNoExperiment
	}

	id := r.current.ID
	fn(r.current)
	r.current.ID = id
	if r.current.Metrics == nil {
		r.current.Metrics = map[string]any{}
	}
	return r.persist(ctx, r.collection, r.current)
}

// End stops automatic snapshots, takes a final snapshot, records status
// and clears the running experiment.
func (r *Runner) End(ctx context.Context, status domain.ExperimentStatus) (*domain.ExperimentRecord, error) {
	if !status.IsTerminal() {
		return nil, fmt.Errorf("%w: %q", ErrNonTerminalStatus, status)
	}

	r.mu.Lock()
	if r.current == nil {
		r.mu.Unlock()
		return nil, ErrNoExperiment
	}
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()

	// The loop takes the lock for each snapshot, so join it unlocked.
	if stop != nil {
		close(stop)
		<-done
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.current
	if rec == nil {
		return nil, ErrNoExperiment
	}

	end := r.now().UTC()
	rec.Status = status
	rec.EndTime = &end
	if _, err := r.snapshotLocked(ctx); err != nil {
		r.logger.Warn("final snapshot failed", "id", rec.ID, "error", err)
	}

	err := r.persist(ctx, r.collection, rec)
	if r.exporter != nil {
		if expErr := r.exporter.ExportExperimentEnd(ctx, rec); expErr != nil {
			r.logger.Warn("failed to export experiment end", "id", rec.ID, "error", expErr)
		}
	}
	r.current = nil

	r.logger.Info("experiment ended", "id", rec.ID, "status", status, "snapshots", len(rec.Snapshots),
		"duration", rec.Duration(end))
	return rec.Clone(), err
}

// Execute runs the pipeline on input inside a new experiment. Metric values
// computed from the final state are recorded before the experiment ends as
// completed, failed or cancelled.
func (r *Runner) Execute(ctx context.Context, name, input string, opts ...StartOption) (*domain.ExperimentRecord, error) {
	if _, err := r.Start(ctx, name, input, opts...); err != nil {
		return nil, err
	}

	state, runErr := r.pipeline.Run(ctx, input)
	// Finish bookkeeping even when ctx was cancelled mid-run.
	bg := context.WithoutCancel(ctx)

	if state != nil {
		r.mu.Lock()
		names := r.knobs.metrics()
		r.mu.Unlock()
		if ms, err := metrics.GetAll(names); err != nil {
			r.logger.Warn("skipping final metrics", "error", err)
		} else if values := metrics.Evaluate(ms, state); len(values) > 0 {
			if err := r.RecordMetrics(bg, toAny(values)); err != nil {
				r.logger.Warn("failed to record final metrics", "error", err)
			}
		}
	}

	status := domain.StatusCompleted
	if runErr != nil {
		status = domain.StatusFailed
		if ctx.Err() != nil {
			status = domain.StatusCancelled
		}
		msg := runErr.Error()
		if err := r.Update(bg, func(rec *domain.ExperimentRecord) { rec.Error = msg }); err != nil {
			r.logger.Warn("failed to record run error", "error", err)
		}
	}

	rec, endErr := r.End(bg, status)
	if runErr != nil {
		return rec, runErr
	}
	return rec, endErr
}

func (r *Runner) persist(ctx context.Context, collection string, rec *domain.ExperimentRecord) error {
	doc, err := domain.ToDocument(rec)
	if err != nil {
		return err
	}
	if err := r.db.Upsert(ctx, collection, rec.ID, doc); err != nil {
		return fmt.Errorf("failed to persist experiment %s: %w", rec.ID, err)
	}
	return nil
}

func toAny(values map[string]float64) map[string]any {
	out := make(map[string]any, len(values))
	for n, v := range values {
		out[n] = v
	}
	return out
}
