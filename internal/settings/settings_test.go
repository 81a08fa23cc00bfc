package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("Defaults().Validate() = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"temperature too high", func(s *Settings) { s.Temperature = 2.5 }},
		{"temperature negative", func(s *Settings) { s.Temperature = -0.1 }},
		{"empty llm", func(s *Settings) { s.LLM = " " }},
		{"bad journal mode", func(s *Settings) { s.SQLite.JournalMode = "FAST" }},
		{"zero max snapshots", func(s *Settings) { s.ExperimentRunner.MaxSnapshots = 0 }},
		{"negative interval", func(s *Settings) { s.ExperimentRunner.SnapshotInterval = -time.Second }},
		{"unknown compressor", func(s *Settings) { s.ExperimentRunner.Compressor = "gzip" }},
		{"unknown db client", func(s *Settings) { s.ExperimentRunner.DBClient = "redis" }},
		{"empty metric name", func(s *Settings) { s.ExperimentRunner.Metrics = []string{""} }},
		{"unknown metric name", func(s *Settings) { s.ExperimentRunner.Metrics = []string{"num_knowledge_node"} }},
		{"bad export format", func(s *Settings) { s.Visualizer.ExportFormat = "png" }},
		{"bad log level", func(s *Settings) { s.LogLevel = "TRACE" }},
		{"bad theme", func(s *Settings) { s.Visualizer.Theme = "neon" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Defaults()
			tt.mutate(&s)
			err := s.Validate()
			if !errors.Is(err, ErrInvalidSettings) {
				t.Errorf("Validate() = %v, want ErrInvalidSettings", err)
			}
		})
	}
}

func TestValidateAcceptsLowercaseJournalMode(t *testing.T) {
	s := Defaults()
	s.SQLite.JournalMode = "wal"
	s.LogLevel = "debug"
	if err := s.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestUpdateRejectsInvalid(t *testing.T) {
	t.Cleanup(Reset)

	if err := Update(func(s *Settings) { s.LLM = "gpt-4o" }); err != nil {
		t.Fatalf("Update() = %v", err)
	}
	err := Update(func(s *Settings) { s.Temperature = 9 })
	if !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("Update() = %v, want ErrInvalidSettings", err)
	}

	got := Global()
	if got.LLM != "gpt-4o" {
		t.Errorf("LLM = %q, want gpt-4o", got.LLM)
	}
	if got.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want previous value 0.7", got.Temperature)
	}
}

func TestUpdateRejectsUnknownMetric(t *testing.T) {
	t.Cleanup(Reset)

	err := Update(func(s *Settings) { s.ExperimentRunner.Metrics = []string{"num_knowledge_node"} })
	if !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("Update() = %v, want ErrInvalidSettings", err)
	}
	got := Global().ExperimentRunner.Metrics
	if len(got) != 2 || got[0] != "num_knowledge_nodes" {
		t.Errorf("Metrics = %v, want defaults kept", got)
	}
}

func TestGlobalReturnsCopy(t *testing.T) {
	t.Cleanup(Reset)

	s := Global()
	s.ExperimentRunner.Metrics[0] = "mutated"
	s.ExperimentRunner.DBClientParams["k"] = "v"

	again := Global()
	if again.ExperimentRunner.Metrics[0] != "num_knowledge_nodes" {
		t.Errorf("Metrics leaked mutation: %v", again.ExperimentRunner.Metrics)
	}
	if _, ok := again.ExperimentRunner.DBClientParams["k"]; ok {
		t.Error("DBClientParams leaked mutation")
	}
}

func TestReset(t *testing.T) {
	if err := Update(func(s *Settings) { s.Debug = true; s.MemorySize = 5 }); err != nil {
		t.Fatalf("Update() = %v", err)
	}
	Reset()
	got := Global()
	if got.Debug || got.MemorySize != 1000 {
		t.Errorf("Reset() left Debug=%v MemorySize=%d", got.Debug, got.MemorySize)
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name                   string
		call, instance, global string
		want                   string
	}{
		{"call wins", "call", "instance", "global", "call"},
		{"instance over global", "", "instance", "global", "instance"},
		{"global fallback", "", "", "global", "global"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.call, tt.instance, tt.global); got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPickHonorsZeroOverrides(t *testing.T) {
	if got := Pick(Ptr(false), Ptr(true), true); got {
		t.Error("Pick() ignored explicit false call override")
	}
	if got := Pick(nil, Ptr(0), 5); got != 0 {
		t.Errorf("Pick() = %d, want 0 from instance", got)
	}
	if got := Pick[int](nil, nil, 5); got != 5 {
		t.Errorf("Pick() = %d, want global 5", got)
	}
}

func TestLoadFileLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `llm: claude-3-5-sonnet
sqlite:
  timeout: 10s
experiment_runner:
  snapshot_interval: 250ms
  metrics: [num_knowledge_nodes]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	s := Defaults()
	found, err := LoadFile(path, &s)
	if err != nil || !found {
		t.Fatalf("LoadFile() = %v, %v", found, err)
	}
	if s.LLM != "claude-3-5-sonnet" {
		t.Errorf("LLM = %q", s.LLM)
	}
	if s.SQLite.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v", s.SQLite.Timeout)
	}
	if s.SQLite.JournalMode != "WAL" {
		t.Errorf("JournalMode = %q, want untouched default", s.SQLite.JournalMode)
	}
	if s.ExperimentRunner.SnapshotInterval != 250*time.Millisecond {
		t.Errorf("SnapshotInterval = %v", s.ExperimentRunner.SnapshotInterval)
	}
	if len(s.ExperimentRunner.Metrics) != 1 {
		t.Errorf("Metrics = %v", s.ExperimentRunner.Metrics)
	}
}

func TestLoadFileMissing(t *testing.T) {
	s := Defaults()
	found, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"), &s)
	if err != nil || found {
		t.Errorf("LoadFile() = %v, %v; want false, nil", found, err)
	}
}

func TestLoadPrecedence(t *testing.T) {
	userDir := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", userDir)

	write := func(path, content string) {
		t.Helper()
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write(filepath.Join(userDir, "amadeus", "config.yaml"), "llm: user-model\nmemory_size: 10\n")
	write(ProjectConfigPath(projectDir), "llm: project-model\n")
	t.Setenv("AMADEUS_MEMORY_SIZE", "20")
	t.Setenv("AMADEUS_SQLITE_JOURNAL_MODE", "DELETE")

	s, err := Load(LoadOptions{ProjectDir: projectDir})
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if s.LLM != "project-model" {
		t.Errorf("LLM = %q, want project-model", s.LLM)
	}
	if s.MemorySize != 20 {
		t.Errorf("MemorySize = %d, want env value 20", s.MemorySize)
	}
	if s.SQLite.JournalMode != "DELETE" {
		t.Errorf("JournalMode = %q, want DELETE", s.SQLite.JournalMode)
	}
}

func TestLoadExplicitFileMissing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	_, err := Load(LoadOptions{ProjectDir: t.TempDir(), ExplicitFile: "/does/not/exist.yaml", SkipEnv: true})
	if err == nil {
		t.Fatal("Load() with missing explicit file should fail")
	}
}

func TestFlattenStableKeys(t *testing.T) {
	kv := Defaults().Flatten()
	if kv[0].Key != "llm" || kv[0].Value != "gpt-4" {
		t.Errorf("first entry = %+v", kv[0])
	}
	seen := map[string]bool{}
	for _, e := range kv {
		if seen[e.Key] {
			t.Errorf("duplicate key %q", e.Key)
		}
		seen[e.Key] = true
	}
}
