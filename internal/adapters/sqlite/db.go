package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/emiliopalmerini/amadeus/internal/migrate"
)

// DB wraps a libsql connection pool opened for one DSN.
type DB struct {
	*sql.DB
	DSN string
}

// Options configures how a database is opened.
type Options struct {
	JournalMode string
	Timeout     time.Duration
	// SkipMigrations leaves the schema untouched.
	SkipMigrations bool
}

// NormalizeDSN turns a bare path or ":memory:" into a libsql DSN.
func NormalizeDSN(dsn string) string {
	switch {
	case dsn == ":memory:":
		return "file::memory:"
	case strings.HasPrefix(dsn, "file:"),
		strings.HasPrefix(dsn, "libsql:"),
		strings.HasPrefix(dsn, "http:"),
		strings.HasPrefix(dsn, "https:"),
		strings.HasPrefix(dsn, "ws:"),
		strings.HasPrefix(dsn, "wss:"):
		return dsn
	default:
		return "file:" + dsn
	}
}

func isLocal(dsn string) bool {
	return strings.HasPrefix(dsn, "file:")
}

// localPath returns the file behind a local DSN, or "" for in-memory and
// remote databases.
func localPath(dsn string) string {
	dsn = NormalizeDSN(dsn)
	if !isLocal(dsn) {
		return ""
	}
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == ":memory:" {
		return ""
	}
	return path
}

// Open connects to dsn, applies pragmas and runs pending migrations.
func Open(ctx context.Context, dsn string, opts Options) (*DB, error) {
	dsn = NormalizeDSN(dsn)
	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if isLocal(dsn) {
		// SQLite serializes writers; one connection keeps per-connection
		// pragmas and in-memory databases consistent.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(0)
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(0)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if isLocal(dsn) {
		if err := applyPragmas(ctx, db, opts); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	if !opts.SkipMigrations {
		if err := migrate.RunAll(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &DB{DB: db, DSN: dsn}, nil
}

var journalModes = map[string]bool{
	"DELETE": true, "TRUNCATE": true, "PERSIST": true,
	"MEMORY": true, "WAL": true, "OFF": true,
}

func applyPragmas(ctx context.Context, db *sql.DB, opts Options) error {
	// Both pragmas echo their new value as a row. The busy timeout goes
	// first so switching the journal mode waits out concurrent openers.
	if opts.Timeout > 0 {
		var ms int64
		q := fmt.Sprintf("PRAGMA busy_timeout = %d", opts.Timeout.Milliseconds())
		if err := db.QueryRowContext(ctx, q).Scan(&ms); err != nil {
			return fmt.Errorf("failed to set busy timeout: %w", err)
		}
	}
	if opts.JournalMode != "" {
		mode := strings.ToUpper(opts.JournalMode)
		if !journalModes[mode] {
			return fmt.Errorf("unsupported journal mode %q", opts.JournalMode)
		}
		q := "PRAGMA journal_mode = " + mode
		if err := db.QueryRowContext(ctx, q).Scan(&mode); err != nil {
			return fmt.Errorf("failed to set journal mode: %w", err)
		}
	}
	return nil
}

// IsBusyError reports whether err is a transient SQLite lock error.
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "stream not found")
}

// WithRetry runs fn, retrying up to maxRetries times on busy errors.
func WithRetry[T any](ctx context.Context, maxRetries int, fn func() (T, error)) (T, error) {
	var result T
	var err error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}
		if !IsBusyError(err) || attempt == maxRetries {
			return result, err
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 10 * time.Millisecond):
		}
	}
	return result, err
}
