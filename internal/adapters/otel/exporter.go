package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/emiliopalmerini/amadeus/internal/domain"
	"github.com/emiliopalmerini/amadeus/internal/ports"
)

const (
	serviceName    = "amadeus"
	serviceVersion = "0.1.0"
)

// Exporter exports experiment metrics through an OTEL MeterProvider.
type Exporter struct {
	provider         *sdkmetric.MeterProvider
	snapshotsTotal   metric.Int64Counter
	metricValue      metric.Float64Histogram
	experimentsTotal metric.Int64Counter
	durationHist     metric.Float64Histogram
	snapshotsHist    metric.Int64Histogram
}

// NewExporter creates an exporter that pushes to an OTLP gRPC collector.
func NewExporter(ctx context.Context, cfg Config) (*Exporter, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTEL exporter is disabled or endpoint not configured")
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	e, err := NewExporterWithReader(sdkmetric.NewPeriodicReader(exp), res)
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(e.provider)
	return e, nil
}

// NewExporterWithReader builds the instruments on a provider fed by reader.
// Tests pass a ManualReader.
func NewExporterWithReader(reader sdkmetric.Reader, res *resource.Resource) (*Exporter, error) {
	providerOpts := []sdkmetric.Option{sdkmetric.WithReader(reader)}
	if res != nil {
		providerOpts = append(providerOpts, sdkmetric.WithResource(res))
	}
	provider := sdkmetric.NewMeterProvider(providerOpts...)
	meter := provider.Meter(serviceName)

	snapshotsTotal, err := meter.Int64Counter(
		"amadeus_snapshots_total",
		metric.WithDescription("Total snapshots captured"),
		metric.WithUnit("{snapshot}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating snapshots counter: %w", err)
	}

	metricValue, err := meter.Float64Histogram(
		"amadeus_metric_value",
		metric.WithDescription("Metric values observed at snapshot time"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating metric value histogram: %w", err)
	}

	experimentsTotal, err := meter.Int64Counter(
		"amadeus_experiments_total",
		metric.WithDescription("Total experiments finished, by status"),
		metric.WithUnit("{experiment}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating experiments counter: %w", err)
	}

	durationHist, err := meter.Float64Histogram(
		"amadeus_experiment_duration_seconds",
		metric.WithDescription("Experiment duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	snapshotsHist, err := meter.Int64Histogram(
		"amadeus_experiment_snapshots",
		metric.WithDescription("Snapshots per finished experiment"),
		metric.WithUnit("{snapshot}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating snapshots histogram: %w", err)
	}

	return &Exporter{
		provider:         provider,
		snapshotsTotal:   snapshotsTotal,
		metricValue:      metricValue,
		experimentsTotal: experimentsTotal,
		durationHist:     durationHist,
		snapshotsHist:    snapshotsHist,
	}, nil
}

func refAttrs(exp ports.ExperimentRef) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("experiment_id", exp.ID),
		attribute.String("experiment_name", exp.Name),
		attribute.String("pipeline", exp.Pipeline),
	}
}

// ExportSnapshot counts the snapshot and records each metric value.
func (e *Exporter) ExportSnapshot(ctx context.Context, exp ports.ExperimentRef, s *domain.Snapshot) error {
	attrs := refAttrs(exp)
	e.snapshotsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	for name, v := range s.Metrics {
		withName := append(append([]attribute.KeyValue(nil), attrs...), attribute.String("metric", name))
		e.metricValue.Record(ctx, v, metric.WithAttributes(withName...))
	}
	return nil
}

// ExportExperimentEnd records the final status, duration and snapshot count.
func (e *Exporter) ExportExperimentEnd(ctx context.Context, rec *domain.ExperimentRecord) error {
	attrs := append(refAttrs(ports.RefOf(rec)), attribute.String("status", string(rec.Status)))
	opt := metric.WithAttributes(attrs...)

	e.experimentsTotal.Add(ctx, 1, opt)
	e.durationHist.Record(ctx, rec.Duration(time.Now()).Seconds(), opt)
	e.snapshotsHist.Record(ctx, int64(len(rec.Snapshots)), opt)
	return nil
}

// Close shuts down the exporter and flushes any pending metrics.
func (e *Exporter) Close(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}
