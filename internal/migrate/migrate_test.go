package migrate

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "github.com/tursodatabase/go-libsql"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", "file:"+filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var testFS = fstest.MapFS{
	"002_second.up.sql":   {Data: []byte("CREATE TABLE b (id INTEGER);")},
	"002_second.down.sql": {Data: []byte("DROP TABLE b;")},
	"001_first.up.sql":    {Data: []byte("-- leading comment\nCREATE TABLE a (id INTEGER);\nINSERT INTO a VALUES (1);")},
	"001_first.down.sql":  {Data: []byte("DROP TABLE a;")},
	"README.md":           {Data: []byte("ignored")},
}

func TestLoadSortsAndPairsDown(t *testing.T) {
	m := NewWithFS(nil, testFS, nil)
	all, err := m.Load()
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d migrations, want 2", len(all))
	}
	if all[0].Version != 1 || all[1].Version != 2 {
		t.Errorf("versions = %d, %d", all[0].Version, all[1].Version)
	}
	if all[0].Name != "first" || all[0].DownSQL == "" {
		t.Errorf("first = %+v", all[0])
	}
}

func TestSplitSQL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"single", "SELECT 1;", 1},
		{"two with blank", "SELECT 1;\n\nSELECT 2;\n", 2},
		{"comment only tail", "SELECT 1;\n-- done\n", 1},
		{"empty", "  ", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SplitSQL(tt.in); len(got) != tt.want {
				t.Errorf("SplitSQL() = %q, want %d statements", got, tt.want)
			}
		})
	}
}

func TestUpAndMigrateTo(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	m := NewWithFS(db, testFS, nil)

	n, err := m.Up(ctx)
	if err != nil {
		t.Fatalf("Up() = %v", err)
	}
	if n != 2 {
		t.Errorf("applied %d, want 2", n)
	}
	version, dirty, err := m.CurrentVersion(ctx)
	if err != nil || version != 2 || dirty {
		t.Fatalf("CurrentVersion() = %d, %v, %v", version, dirty, err)
	}

	n, err = m.Up(ctx)
	if err != nil || n != 0 {
		t.Errorf("second Up() = %d, %v; want 0, nil", n, err)
	}

	if err := m.MigrateTo(ctx, 1); err != nil {
		t.Fatalf("MigrateTo(1) = %v", err)
	}
	version, _, _ = m.CurrentVersion(ctx)
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM a`).Scan(&count); err != nil || count != 1 {
		t.Errorf("table a count = %d, %v", count, err)
	}

	if err := m.MigrateTo(ctx, 0); err != nil {
		t.Fatalf("MigrateTo(0) = %v", err)
	}
	version, _, _ = m.CurrentVersion(ctx)
	if version != 0 {
		t.Errorf("version = %d, want 0", version)
	}
}

func TestDirtyStateBlocks(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	broken := fstest.MapFS{"001_bad.up.sql": {Data: []byte("CREATE TABLE;")}}
	m := NewWithFS(db, broken, nil)

	if _, err := m.Up(ctx); err == nil {
		t.Fatal("Up() with bad SQL should fail")
	}
	_, err := m.Up(ctx)
	if !errors.Is(err, ErrDirty) {
		t.Errorf("Up() after failure = %v, want ErrDirty", err)
	}
}

func TestRunAllEmbedded(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	if err := RunAll(ctx, db); err != nil {
		t.Fatalf("RunAll() = %v", err)
	}
	var name string
	err := db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name='documents'`).Scan(&name)
	if err != nil {
		t.Fatalf("documents table missing: %v", err)
	}
}
