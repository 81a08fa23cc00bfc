// Package sqlite implements ports.DBClient on a libsql/SQLite database.
// Documents live in one table keyed by (collection, id) with a JSON body.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/emiliopalmerini/amadeus/internal/domain"
	"github.com/emiliopalmerini/amadeus/internal/logging"
	"github.com/emiliopalmerini/amadeus/internal/ports"
	"github.com/emiliopalmerini/amadeus/internal/settings"
)

// Fixed-width so lexical order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const busyRetries = 3

// Client is a ports.DBClient backed by SQLite.
type Client struct {
	db     *DB
	opts   Options
	logger logging.Logger
	now    func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.logger = logging.OrNoOp(l) }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithoutMigrations opens the database without applying pending
// migrations.
func WithoutMigrations() Option {
	return func(c *Client) { c.opts.SkipMigrations = true }
}

// New opens a client. An empty dsn falls back to the global sqlite
// connection string; journal mode and busy timeout always come from
// the global settings at open time.
func New(ctx context.Context, dsn string, opts ...Option) (*Client, error) {
	s := settings.Global()
	dsn = settings.Resolve("", dsn, s.SQLite.ConnectionString)

	c := &Client{
		opts: Options{
			JournalMode: s.SQLite.JournalMode,
			Timeout:     s.SQLite.Timeout,
		},
		logger: logging.NoOpLogger{},
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}

	db, err := Open(ctx, dsn, c.opts)
	if err != nil {
		return nil, err
	}
	c.db = db
	c.logger.Debug("sqlite client opened", "dsn", db.DSN)
	return c, nil
}

// DSN returns the normalized connection string the client owns.
func (c *Client) DSN() string {
	return c.db.DSN
}

// DB exposes the underlying pool, for migrations.
func (c *Client) DB() *sql.DB {
	return c.db.DB
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) timestamp() string {
	return c.now().UTC().Format(timeLayout)
}

func encodeContent(doc domain.Document) (string, error) {
	body := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "id" {
			continue
		}
		body[k] = v
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}
	return string(data), nil
}

func decodeContent(id, content string) (domain.Document, error) {
	var doc domain.Document
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	if doc == nil {
		doc = domain.Document{}
	}
	doc["id"] = id
	return doc, nil
}

func (c *Client) Save(ctx context.Context, collection string, doc domain.Document) (string, error) {
	id := uuid.New().String()
	content, err := encodeContent(doc)
	if err != nil {
		return "", err
	}
	now := c.timestamp()

	_, err = WithRetry(ctx, busyRetries, func() (sql.Result, error) {
		return c.db.ExecContext(ctx, `
			INSERT INTO documents (collection, id, content, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, collection, id, content, now, now)
	})
	if err != nil {
		return "", fmt.Errorf("failed to save document: %w", err)
	}
	return id, nil
}

func (c *Client) Upsert(ctx context.Context, collection, id string, doc domain.Document) error {
	if id == "" {
		return fmt.Errorf("failed to upsert document: empty id")
	}
	content, err := encodeContent(doc)
	if err != nil {
		return err
	}
	now := c.timestamp()

	_, err = WithRetry(ctx, busyRetries, func() (sql.Result, error) {
		return c.db.ExecContext(ctx, `
			INSERT INTO documents (collection, id, content, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (collection, id) DO UPDATE SET
				content = excluded.content,
				updated_at = excluded.updated_at
		`, collection, id, content, now, now)
	})
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, collection, id string) (domain.Document, error) {
	var content string
	err := c.db.QueryRowContext(ctx,
		`SELECT content FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&content)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return decodeContent(id, content)
}

// Query returns matching documents. WithConnection runs it against another
// database; naming the client's own DSN reuses the open pool.
func (c *Client) Query(ctx context.Context, collection string, filter domain.Filter, opts ...ports.QueryOption) (*domain.QueryResult, error) {
	o := ports.ApplyQueryOptions(opts)

	db := c.db
	if o.Connection != "" && NormalizeDSN(o.Connection) != c.db.DSN {
		if path := localPath(o.Connection); path != "" {
			if _, err := os.Stat(path); err != nil {
				return nil, fmt.Errorf("failed to open connection override: %w", err)
			}
		}
		// Reads must not touch the other database's schema or journal.
		opts := c.opts
		opts.SkipMigrations = true
		opts.JournalMode = ""
		other, err := Open(ctx, o.Connection, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to open connection override: %w", err)
		}
		defer other.Close()
		db = other
	}

	where, args, err := buildWhere(collection, filter)
	if err != nil {
		return nil, err
	}
	order, err := buildOrder(o)
	if err != nil {
		return nil, err
	}

	query := "SELECT id, content FROM documents " + where + " " + order
	if o.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, o.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	data := []domain.Document{}
	for rows.Next() {
		var id, content string
		if err := rows.Scan(&id, &content); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc, err := decodeContent(id, content)
		if err != nil {
			return nil, err
		}
		data = append(data, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}

	params := make(map[string]any, len(filter))
	for k, v := range filter {
		params[k] = v
	}

	return &domain.QueryResult{
		Collection: collection,
		Data:       data,
		Count:      len(data),
		Query:      query,
		Params:     params,
		Timestamp:  c.now().UTC(),
	}, nil
}

func (c *Client) Update(ctx context.Context, collection string, filter domain.Filter, patch domain.Document) (int64, error) {
	where, args, err := buildWhere(collection, filter)
	if err != nil {
		return 0, err
	}
	body, err := encodeContent(patch)
	if err != nil {
		return 0, err
	}

	args = append([]any{body, c.timestamp()}, args...)
	res, err := WithRetry(ctx, busyRetries, func() (sql.Result, error) {
		return c.db.ExecContext(ctx,
			"UPDATE documents SET content = json_patch(content, ?), updated_at = ? "+where,
			args...,
		)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to update documents: %w", err)
	}
	return res.RowsAffected()
}

func (c *Client) Delete(ctx context.Context, collection string, filter domain.Filter) (int64, error) {
	where, args, err := buildWhere(collection, filter)
	if err != nil {
		return 0, err
	}
	res, err := WithRetry(ctx, busyRetries, func() (sql.Result, error) {
		return c.db.ExecContext(ctx, "DELETE FROM documents "+where, args...)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete documents: %w", err)
	}
	return res.RowsAffected()
}

// Collections lists collection names with their document counts.
func (c *Client) Collections(ctx context.Context) (map[string]int64, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT collection, COUNT(*) FROM documents GROUP BY collection`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		out[name] = n
	}
	return out, rows.Err()
}
