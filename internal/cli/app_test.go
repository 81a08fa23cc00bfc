package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emiliopalmerini/amadeus/internal/adapters/jsonfile"
	"github.com/emiliopalmerini/amadeus/internal/adapters/otel"
	"github.com/emiliopalmerini/amadeus/internal/logging"
	"github.com/emiliopalmerini/amadeus/internal/settings"
)

func TestNewAppContext(t *testing.T) {
	t.Cleanup(settings.Reset)
	t.Setenv("AMADEUS_OTEL_ENABLED", "")
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, settings.Update(func(s *settings.Settings) {
		s.ExperimentRunner.DBClient = "json"
		s.ExperimentRunner.DBClientParams = map[string]string{"path": path}
	}))

	app, err := NewAppContext(context.Background(), nil)
	require.NoError(t, err)
	assert.IsType(t, &jsonfile.Client{}, app.DB)
	assert.IsType(t, &otel.NoOpExporter{}, app.Exporter)
	assert.NotNil(t, app.Logger)
	assert.NoError(t, app.Close(context.Background()))
}

func TestNewAppContextUnsupportedBackend(t *testing.T) {
	t.Cleanup(settings.Reset)
	require.NoError(t, settings.Update(func(s *settings.Settings) {
		s.ExperimentRunner.DBClient = "mongo"
	}))

	_, err := NewAppContext(context.Background(), logging.NoOpLogger{})
	assert.ErrorContains(t, err, "unsupported database backend")
}

func TestAppContextCloseEmpty(t *testing.T) {
	a := &AppContext{}
	assert.NoError(t, a.Close(context.Background()))
}
