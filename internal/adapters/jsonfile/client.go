// Package jsonfile implements ports.DBClient on a single JSON file. It suits
// small local runs and tests; every write rewrites the file atomically.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emiliopalmerini/amadeus/internal/domain"
	"github.com/emiliopalmerini/amadeus/internal/ports"
)

type record struct {
	Seq       int64           `json:"seq"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Content   domain.Document `json:"content"`
}

type fileData struct {
	Seq         int64                        `json:"seq"`
	Collections map[string]map[string]record `json:"collections"`
}

// Client is a ports.DBClient persisted to one JSON file.
type Client struct {
	mu   sync.Mutex
	path string
	data fileData
	now  func() time.Time
}

// New opens (or creates on first write) the store at path.
func New(path string) (*Client, error) {
	if path == "" {
		return nil, fmt.Errorf("failed to open json store: empty path")
	}
	data, err := load(path)
	if err != nil {
		return nil, err
	}
	return &Client{path: path, data: data, now: time.Now}, nil
}

func load(path string) (fileData, error) {
	fd := fileData{Collections: map[string]map[string]record{}}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fd, nil
		}
		return fd, fmt.Errorf("failed to read json store %s: %w", path, err)
	}
	if len(raw) == 0 {
		return fd, nil
	}
	if err := json.Unmarshal(raw, &fd); err != nil {
		return fd, fmt.Errorf("failed to parse json store %s: %w", path, err)
	}
	if fd.Collections == nil {
		fd.Collections = map[string]map[string]record{}
	}
	return fd, nil
}

// Path returns the backing file.
func (c *Client) Path() string {
	return c.path
}

// persist writes data via a temp file and rename, then makes it the live
// state. On error the live state is left as it was. Caller holds mu.
func (c *Client) persist(data fileData) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode json store: %w", err)
	}
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".amadeus-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write json store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to close json store: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace json store: %w", err)
	}
	c.data = data
	return nil
}

func normalize(doc domain.Document) (domain.Document, error) {
	out, err := domain.ToDocument(doc)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = domain.Document{}
	}
	delete(out, "id")
	return out, nil
}

// edit returns a copy of the live state in which collection name is a
// fresh map that may be changed freely.
func (c *Client) edit(name string) (fileData, map[string]record) {
	next := fileData{
		Seq:         c.data.Seq,
		Collections: make(map[string]map[string]record, len(c.data.Collections)+1),
	}
	for k, v := range c.data.Collections {
		next.Collections[k] = v
	}
	col := make(map[string]record, len(c.data.Collections[name])+1)
	for id, rec := range c.data.Collections[name] {
		col[id] = rec
	}
	next.Collections[name] = col
	return next, col
}

func (c *Client) put(collection, id string, content domain.Document) error {
	next, col := c.edit(collection)
	now := c.now().UTC()
	rec, exists := col[id]
	if !exists {
		next.Seq++
		rec = record{Seq: next.Seq, CreatedAt: now}
	}
	rec.UpdatedAt = now
	rec.Content = content
	col[id] = rec
	return c.persist(next)
}

func (c *Client) Save(ctx context.Context, collection string, doc domain.Document) (string, error) {
	content, err := normalize(doc)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	id := uuid.New().String()
	if err := c.put(collection, id, content); err != nil {
		return "", fmt.Errorf("failed to save document: %w", err)
	}
	return id, nil
}

func (c *Client) Upsert(ctx context.Context, collection, id string, doc domain.Document) error {
	if id == "" {
		return fmt.Errorf("failed to upsert document: empty id")
	}
	content, err := normalize(doc)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.put(collection, id, content); err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

// withID returns a deep copy of content carrying its id, so callers never
// share maps or slices with the store.
func withID(id string, content domain.Document) domain.Document {
	out := make(domain.Document, len(content)+1)
	for k, v := range content {
		out[k] = copyValue(v)
	}
	out["id"] = id
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = copyValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}

func (c *Client) Get(ctx context.Context, collection, id string) (domain.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.data.Collections[collection][id]
	if !ok {
		return nil, nil
	}
	return withID(id, rec.Content), nil
}

type match struct {
	id  string
	rec record
}

func matching(data fileData, collection string, filter domain.Filter) []match {
	var out []match
	for id, rec := range data.Collections[collection] {
		if Matches(withID(id, rec.Content), filter) {
			out = append(out, match{id: id, rec: rec})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].rec.Seq < out[j].rec.Seq })
	return out
}

// Query returns matching documents. WithConnection reads another store file
// for this call only.
func (c *Client) Query(ctx context.Context, collection string, filter domain.Filter, opts ...ports.QueryOption) (*domain.QueryResult, error) {
	if err := ports.ValidateFilter(filter); err != nil {
		return nil, err
	}
	o := ports.ApplyQueryOptions(opts)
	if o.OrderBy != "" {
		if err := ports.ValidateFieldPath(o.OrderBy); err != nil {
			return nil, err
		}
	}

	var data fileData
	if o.Connection != "" && o.Connection != c.path {
		other, err := load(o.Connection)
		if err != nil {
			return nil, fmt.Errorf("failed to open connection override: %w", err)
		}
		data = other
	} else {
		c.mu.Lock()
		defer c.mu.Unlock()
		data = c.data
	}

	found := matching(data, collection, filter)
	docs := make([]domain.Document, len(found))
	for i, m := range found {
		docs[i] = withID(m.id, m.rec.Content)
	}

	if o.OrderBy != "" {
		sort.SliceStable(docs, func(i, j int) bool {
			a, _ := Lookup(docs[i], o.OrderBy)
			b, _ := Lookup(docs[j], o.OrderBy)
			if o.Descending {
				return Compare(a, b) > 0
			}
			return Compare(a, b) < 0
		})
	}
	if o.Limit > 0 && len(docs) > o.Limit {
		docs = docs[:o.Limit]
	}

	params := make(map[string]any, len(filter))
	for k, v := range filter {
		params[k] = v
	}
	raw, _ := json.Marshal(filter)

	return &domain.QueryResult{
		Collection: collection,
		Data:       docs,
		Count:      len(docs),
		Query:      string(raw),
		Params:     params,
		Timestamp:  c.now().UTC(),
	}, nil
}

func (c *Client) Update(ctx context.Context, collection string, filter domain.Filter, patch domain.Document) (int64, error) {
	if err := ports.ValidateFilter(filter); err != nil {
		return 0, err
	}
	p, err := normalize(patch)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	found := matching(c.data, collection, filter)
	if len(found) == 0 {
		return 0, nil
	}
	now := c.now().UTC()
	next, col := c.edit(collection)
	for _, m := range found {
		rec := m.rec
		rec.Content = MergePatch(rec.Content, p)
		rec.UpdatedAt = now
		col[m.id] = rec
	}
	if err := c.persist(next); err != nil {
		return 0, fmt.Errorf("failed to update documents: %w", err)
	}
	return int64(len(found)), nil
}

func (c *Client) Delete(ctx context.Context, collection string, filter domain.Filter) (int64, error) {
	if err := ports.ValidateFilter(filter); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	found := matching(c.data, collection, filter)
	if len(found) == 0 {
		return 0, nil
	}
	next, col := c.edit(collection)
	for _, m := range found {
		delete(col, m.id)
	}
	if err := c.persist(next); err != nil {
		return 0, fmt.Errorf("failed to delete documents: %w", err)
	}
	return int64(len(found)), nil
}

func (c *Client) Close() error {
	return nil
}
