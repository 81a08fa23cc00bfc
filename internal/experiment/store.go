package experiment

import (
	"context"
	"fmt"
	"sort"

	"github.com/emiliopalmerini/amadeus/internal/compress"
	"github.com/emiliopalmerini/amadeus/internal/domain"
	"github.com/emiliopalmerini/amadeus/internal/ports"
	"github.com/emiliopalmerini/amadeus/internal/settings"
)

func collectionOrDefault(c string) string {
	return settings.Resolve(c, "", settings.Global().ExperimentRunner.CollectionName)
}

// Load reads one experiment record. It returns (nil, nil) when id is not
// stored. An empty collection selects the configured one.
func Load(ctx context.Context, db ports.DBClient, collection, id string) (*domain.ExperimentRecord, error) {
	doc, err := db.Get(ctx, collectionOrDefault(collection), id)
	if err != nil {
		return nil, fmt.Errorf("failed to load experiment %s: %w", id, err)
	}
	if doc == nil {
		return nil, nil
	}
	var rec domain.ExperimentRecord
	if err := doc.Decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns the experiment records matching filter, newest first unless
// opts choose another order.
func List(ctx context.Context, db ports.DBClient, collection string, filter domain.Filter, opts ...ports.QueryOption) ([]*domain.ExperimentRecord, error) {
	o := ports.ApplyQueryOptions(opts)
	if o.OrderBy == "" {
		// start_time is stored as variable-width text, so the default order
		// is applied on decoded times and the limit after it.
		opts = nil
		if o.Connection != "" {
			opts = append(opts, ports.WithConnection(o.Connection))
		}
	}
	res, err := db.Query(ctx, collectionOrDefault(collection), filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}

	out := make([]*domain.ExperimentRecord, 0, len(res.Data))
	for _, doc := range res.Data {
		var rec domain.ExperimentRecord
		if err := doc.Decode(&rec); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}

	if o.OrderBy == "" {
		sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
		if o.Limit > 0 && len(out) > o.Limit {
			out = out[:o.Limit]
		}
	}
	return out, nil
}

// Delete removes the experiment with id and reports whether it existed.
func Delete(ctx context.Context, db ports.DBClient, collection, id string) (bool, error) {
	n, err := db.Delete(ctx, collectionOrDefault(collection), domain.Filter{"id": id})
	if err != nil {
		return false, fmt.Errorf("failed to delete experiment %s: %w", id, err)
	}
	return n > 0, nil
}

// DecodeState returns the agent state held by a snapshot, decompressing it
// when it was stored encoded.
func DecodeState(s domain.Snapshot) (*domain.AgentState, error) {
	return compress.DecodeState(s)
}
