// Package adapters selects a DBClient implementation by name.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/emiliopalmerini/amadeus/internal/adapters/jsonfile"
	"github.com/emiliopalmerini/amadeus/internal/adapters/sqlite"
	"github.com/emiliopalmerini/amadeus/internal/logging"
	"github.com/emiliopalmerini/amadeus/internal/ports"
	"github.com/emiliopalmerini/amadeus/internal/settings"
)

// ErrUnsupportedBackend is returned for backends that are recognised but
// not built into this binary.
var ErrUnsupportedBackend = errors.New("unsupported database backend")

// Backend names accepted by NewDBClient.
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
	BackendMongo  = "mongo"
	BackendNeo4j  = "neo4j"
)

// Backends lists every recognised backend name.
func Backends() []string {
	return []string{BackendSQLite, BackendJSON, BackendMongo, BackendNeo4j}
}

// NewDBClient builds the named backend. An empty kind and nil params fall
// back to experiment_runner.db_client and db_client_params.
//
// Params: sqlite reads "connection_string"; json reads "path" and defaults
// to the sqlite connection string with a .json extension.
func NewDBClient(ctx context.Context, kind string, params map[string]string, logger logging.Logger) (ports.DBClient, error) {
	s := settings.Global()
	kind = settings.Resolve("", kind, s.ExperimentRunner.DBClient)
	if params == nil {
		params = s.ExperimentRunner.DBClientParams
	}

	switch kind {
	case BackendSQLite:
		c, err := sqlite.New(ctx, params["connection_string"], sqlite.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendJSON:
		path := params["path"]
		if path == "" {
			base := s.SQLite.ConnectionString
			path = base[:len(base)-len(filepath.Ext(base))] + ".json"
		}
		c, err := jsonfile.New(path)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendMongo, BackendNeo4j:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, kind)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q (available: %v)", ErrUnsupportedBackend, kind, Backends())
	}
}
