package jsonfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/emiliopalmerini/amadeus/internal/domain"
	"github.com/emiliopalmerini/amadeus/internal/ports"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	return c
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	c := testClient(t)

	id, err := c.Save(ctx, "exp", domain.Document{"name": "first", "id": "ignored"})
	if err != nil {
		t.Fatal(err)
	}
	if id == "ignored" {
		t.Error("Save should assign its own id")
	}

	reopened, err := New(c.Path())
	if err != nil {
		t.Fatal(err)
	}
	doc, err := reopened.Get(ctx, "exp", id)
	if err != nil || doc == nil {
		t.Fatalf("Get() = %v, %v", doc, err)
	}
	if doc["name"] != "first" || doc.ID() != id {
		t.Errorf("doc = %v", doc)
	}
}

func TestQueryUpdateDelete(t *testing.T) {
	ctx := context.Background()
	c := testClient(t)

	for i, s := range []string{"running", "completed", "running"} {
		if err := c.Upsert(ctx, "exp", string(rune('a'+i)), domain.Document{"status": s, "n": i, "cfg": map[string]any{"depth": i % 2}}); err != nil {
			t.Fatal(err)
		}
	}

	res, err := c.Query(ctx, "exp", domain.Filter{"status": "running"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 2 || res.Data[0].ID() != "a" || res.Data[1].ID() != "c" {
		t.Errorf("Query() = %+v", res.Data)
	}

	res, err = c.Query(ctx, "exp", domain.Filter{"cfg.depth": 1})
	if err != nil || res.Count != 1 || res.Data[0].ID() != "b" {
		t.Errorf("nested Query() = %+v, %v", res, err)
	}

	res, err = c.Query(ctx, "exp", nil, ports.WithOrderBy("n", true), ports.WithLimit(1))
	if err != nil || res.Count != 1 || res.Data[0].ID() != "c" {
		t.Errorf("ordered Query() = %+v, %v", res, err)
	}

	n, err := c.Update(ctx, "exp", domain.Filter{"status": "running"}, domain.Document{"status": "failed", "cfg": map[string]any{"retries": 1}})
	if err != nil || n != 2 {
		t.Fatalf("Update() = %d, %v", n, err)
	}
	doc, _ := c.Get(ctx, "exp", "a")
	cfg := doc["cfg"].(map[string]any)
	if doc["status"] != "failed" || cfg["depth"] != 0.0 || cfg["retries"] != 1.0 {
		t.Errorf("merged doc = %v", doc)
	}

	n, err = c.Delete(ctx, "exp", domain.Filter{"status": "failed"})
	if err != nil || n != 2 {
		t.Errorf("Delete() = %d, %v", n, err)
	}
	res, _ = c.Query(ctx, "exp", nil)
	if res.Count != 1 {
		t.Errorf("remaining = %d", res.Count)
	}
}

func TestQueryConnectionOverride(t *testing.T) {
	ctx := context.Background()
	c := testClient(t)
	other := testClient(t)
	if _, err := other.Save(ctx, "exp", domain.Document{"x": 1}); err != nil {
		t.Fatal(err)
	}

	res, err := c.Query(ctx, "exp", nil, ports.WithConnection(other.Path()))
	if err != nil || res.Count != 1 {
		t.Errorf("override Query() = %+v, %v", res, err)
	}
	res, err = c.Query(ctx, "exp", nil)
	if err != nil || res.Count != 0 {
		t.Errorf("own Query() = %+v, %v", res, err)
	}
}

func TestFailedWriteLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "store")
	c, err := New(filepath.Join(dir, "store.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Upsert(ctx, "exp", "a", domain.Document{"v": 1}); err != nil {
		t.Fatal(err)
	}

	// Turn the store directory into a regular file so every write fails.
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dir, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := c.Upsert(ctx, "exp", "b", domain.Document{"v": 2}); err == nil {
		t.Error("Upsert() should fail")
	}
	if doc, _ := c.Get(ctx, "exp", "b"); doc != nil {
		t.Errorf("failed Upsert left %v", doc)
	}
	if n, err := c.Update(ctx, "exp", nil, domain.Document{"v": 3}); err == nil || n != 0 {
		t.Errorf("Update() = %d, %v; want error", n, err)
	}
	if n, err := c.Delete(ctx, "exp", nil); err == nil || n != 0 {
		t.Errorf("Delete() = %d, %v; want error", n, err)
	}

	doc, err := c.Get(ctx, "exp", "a")
	if err != nil || doc == nil {
		t.Fatalf("Get() = %v, %v", doc, err)
	}
	if doc["v"] != 1.0 {
		t.Errorf("v = %v, want 1", doc["v"])
	}
}

func TestReturnedDocumentsAreCopies(t *testing.T) {
	ctx := context.Background()
	c := testClient(t)
	doc := domain.Document{"m": map[string]any{"k": "v"}, "l": []any{"x"}}
	if err := c.Upsert(ctx, "exp", "a", doc); err != nil {
		t.Fatal(err)
	}

	got, _ := c.Get(ctx, "exp", "a")
	got["m"].(map[string]any)["k"] = "mutated"
	got["l"].([]any)[0] = "mutated"

	res, err := c.Query(ctx, "exp", nil)
	if err != nil || res.Count != 1 {
		t.Fatalf("Query() = %+v, %v", res, err)
	}
	res.Data[0]["m"].(map[string]any)["k"] = "mutated"

	again, _ := c.Get(ctx, "exp", "a")
	if again["m"].(map[string]any)["k"] != "v" || again["l"].([]any)[0] != "x" {
		t.Errorf("stored doc changed: %v", again)
	}
}

func TestInvalidFilter(t *testing.T) {
	c := testClient(t)
	_, err := c.Query(context.Background(), "exp", domain.Filter{"a b": 1})
	if !errors.Is(err, ports.ErrInvalidFilter) {
		t.Errorf("err = %v, want ErrInvalidFilter", err)
	}
}

func TestMatches(t *testing.T) {
	doc := domain.Document{"s": "x", "n": 2.0, "b": true, "nested": map[string]any{"k": "v"}, "null": nil}
	tests := []struct {
		name   string
		filter domain.Filter
		want   bool
	}{
		{"string", domain.Filter{"s": "x"}, true},
		{"int vs float", domain.Filter{"n": 2}, true},
		{"bool", domain.Filter{"b": true}, true},
		{"nested", domain.Filter{"nested.k": "v"}, true},
		{"nil on missing", domain.Filter{"missing": nil}, true},
		{"nil on null", domain.Filter{"null": nil}, true},
		{"nil on present", domain.Filter{"s": nil}, false},
		{"mismatch", domain.Filter{"s": "y"}, false},
		{"path through scalar", domain.Filter{"s.deeper": "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(doc, tt.filter); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMergePatch(t *testing.T) {
	target := map[string]any{"a": 1.0, "b": map[string]any{"c": 1.0, "d": 2.0}, "e": "x"}
	patch := map[string]any{"a": nil, "b": map[string]any{"c": 5.0}, "f": true}
	want := map[string]any{"b": map[string]any{"c": 5.0, "d": 2.0}, "e": "x", "f": true}

	if got := MergePatch(target, patch); !reflect.DeepEqual(got, want) {
		t.Errorf("MergePatch() = %v, want %v", got, want)
	}
	if _, ok := target["f"]; ok {
		t.Error("MergePatch mutated target")
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b any
		want int
	}{
		{nil, 1.0, -1},
		{1.0, 2, -1},
		{"b", "a", 1},
		{true, true, 0},
		{false, true, -1},
		{1.0, "a", -1},
	}
	for _, tt := range tests {
		got := Compare(tt.a, tt.b)
		if (got < 0) != (tt.want < 0) || (got > 0) != (tt.want > 0) {
			t.Errorf("Compare(%v, %v) = %d, want sign of %d", tt.a, tt.b, got, tt.want)
		}
	}
}
