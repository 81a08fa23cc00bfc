package otel

import (
	"context"

	"github.com/emiliopalmerini/amadeus/internal/domain"
	"github.com/emiliopalmerini/amadeus/internal/ports"
)

// NoOpExporter is a metrics exporter that does nothing.
type NoOpExporter struct{}

// NewNoOpExporter creates a new no-op exporter for graceful degradation.
func NewNoOpExporter() *NoOpExporter {
	return &NoOpExporter{}
}

func (e *NoOpExporter) ExportSnapshot(ctx context.Context, exp ports.ExperimentRef, s *domain.Snapshot) error {
	return nil
}

func (e *NoOpExporter) ExportExperimentEnd(ctx context.Context, rec *domain.ExperimentRecord) error {
	return nil
}

func (e *NoOpExporter) Close(ctx context.Context) error {
	return nil
}
