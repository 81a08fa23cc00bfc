package ports

import (
	"context"

	"github.com/emiliopalmerini/amadeus/internal/domain"
)

// MetricsExporter exports experiment telemetry to an external observability system.
type MetricsExporter interface {
	// ExportSnapshot records a captured snapshot and its metric values.
	ExportSnapshot(ctx context.Context, exp ExperimentRef, s *domain.Snapshot) error
	// ExportExperimentEnd records the outcome of a finished experiment.
	ExportExperimentEnd(ctx context.Context, rec *domain.ExperimentRecord) error
	// Close shuts down the exporter and flushes any pending metrics.
	Close(ctx context.Context) error
}

// ExperimentRef identifies the experiment a data point belongs to.
type ExperimentRef struct {
	ID       string
	Name     string
	Pipeline string
}

// RefOf builds an ExperimentRef from a record.
func RefOf(rec *domain.ExperimentRecord) ExperimentRef {
	return ExperimentRef{ID: rec.ID, Name: rec.Name, Pipeline: rec.PipelineType}
}
