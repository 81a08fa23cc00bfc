package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/emiliopalmerini/amadeus/internal/adapters"
	"github.com/emiliopalmerini/amadeus/internal/adapters/otel"
	"github.com/emiliopalmerini/amadeus/internal/logging"
	"github.com/emiliopalmerini/amadeus/internal/ports"
)

// AppContext holds all shared dependencies for CLI commands.
type AppContext struct {
	DB       ports.DBClient
	Exporter ports.MetricsExporter
	Logger   logging.Logger
}

// NewAppContext opens the configured document store and metrics exporter.
// A misconfigured exporter degrades to a no-op.
func NewAppContext(ctx context.Context, l logging.Logger) (*AppContext, error) {
	l = logging.OrNoOp(l)
	db, err := adapters.NewDBClient(ctx, "", nil, l)
	if err != nil {
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}

	var exporter ports.MetricsExporter = otel.NewNoOpExporter()
	if cfg := otel.LoadConfig(); cfg.Enabled {
		e, err := otel.NewExporter(ctx, cfg)
		if err != nil {
			l.Warn("metrics export disabled", "error", err)
		} else {
			exporter = e
		}
	}

	return &AppContext{DB: db, Exporter: exporter, Logger: l}, nil
}

// Close releases all resources held by the AppContext.
func (a *AppContext) Close(ctx context.Context) error {
	var errs []error
	if a.Exporter != nil {
		errs = append(errs, a.Exporter.Close(ctx))
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

// withApp runs fn with a fresh AppContext and closes it afterwards.
func withApp(ctx context.Context, fn func(*AppContext) error) error {
	app, err := NewAppContext(ctx, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to close resources", "error", err)
		}
	}()
	return fn(app)
}
