package ports

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/emiliopalmerini/amadeus/internal/domain"
)

// ErrInvalidFilter is returned for filters with malformed paths or values.
var ErrInvalidFilter = errors.New("invalid filter")

// DBClient stores schemaless documents grouped into collections.
//
// Lookups that find nothing return (nil, nil). Documents returned by Get and
// Query carry their id under the "id" key.
type DBClient interface {
	// Save inserts doc under a fresh id and returns it.
	Save(ctx context.Context, collection string, doc domain.Document) (string, error)
	// Upsert inserts or replaces the document with the given id.
	Upsert(ctx context.Context, collection, id string, doc domain.Document) error
	Get(ctx context.Context, collection, id string) (domain.Document, error)
	Query(ctx context.Context, collection string, filter domain.Filter, opts ...QueryOption) (*domain.QueryResult, error)
	// Update merges patch into every matching document and returns the count.
	Update(ctx context.Context, collection string, filter domain.Filter, patch domain.Document) (int64, error)
	// Delete removes every matching document and returns the count.
	Delete(ctx context.Context, collection string, filter domain.Filter) (int64, error)
	Close() error
}

// QueryOptions collects per-call query settings.
type QueryOptions struct {
	// Connection overrides the client's own connection for this call only.
	Connection string
	Limit      int
	OrderBy    string
	Descending bool
}

// QueryOption mutates QueryOptions.
type QueryOption func(*QueryOptions)

// WithConnection runs the query against another connection string.
func WithConnection(dsn string) QueryOption {
	return func(o *QueryOptions) { o.Connection = dsn }
}

// WithLimit caps the number of returned documents.
func WithLimit(n int) QueryOption {
	return func(o *QueryOptions) { o.Limit = n }
}

// WithOrderBy sorts by a document field path.
func WithOrderBy(field string, descending bool) QueryOption {
	return func(o *QueryOptions) {
		o.OrderBy = field
		o.Descending = descending
	}
}

// ApplyQueryOptions folds opts into a QueryOptions value.
func ApplyQueryOptions(opts []QueryOption) QueryOptions {
	var o QueryOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

var fieldPathPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// ValidateFieldPath checks that path is a dotted identifier path.
func ValidateFieldPath(path string) error {
	if !fieldPathPattern.MatchString(path) {
		return fmt.Errorf("%w: bad field path %q", ErrInvalidFilter, path)
	}
	return nil
}

// ValidateFilter checks every path and rejects non-scalar values.
func ValidateFilter(f domain.Filter) error {
	for path, v := range f {
		if err := ValidateFieldPath(path); err != nil {
			return err
		}
		switch v.(type) {
		case nil, string, bool, int, int32, int64, float32, float64:
		default:
			return fmt.Errorf("%w: %q has non-scalar value %T", ErrInvalidFilter, path, v)
		}
	}
	return nil
}
