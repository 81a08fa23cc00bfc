package visualize

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emiliopalmerini/amadeus/internal/domain"
	"github.com/emiliopalmerini/amadeus/internal/settings"
)

func testConfig() Config {
	return Config{Width: 400, Height: 400, Theme: "light", Interactive: true, ExportFormat: FormatHTML}
}

func sampleState() *domain.AgentState {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := domain.NewAgentState("tides", base)
	s.KnowledgeBase["tides"] = domain.KnowledgeEntry{Summary: "moon pull", RelatedTopics: []string{"moon"}}
	s.ConfidenceScores["tides"] = 0.4
	s.ConfidenceScores["moon"] = 0.9
	s.UnderstandingGaps = []string{"tides"}
	s.QuizResults = []domain.QuizResult{
		{Timestamp: base.Add(2 * time.Minute), Topic: "tides", Score: 0.7},
		{Timestamp: base.Add(time.Minute), Topic: "tides", Score: 0.4},
		{Timestamp: base.Add(time.Minute), Topic: "moon", Score: 0.9},
	}
	return s
}

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Render(context.Background(), &buf))
	return buf.String()
}

func TestNew(t *testing.T) {
	for _, typ := range Types() {
		r, err := New(typ, testConfig())
		require.NoError(t, err)
		assert.Equal(t, typ, r.Type())
	}

	r, err := New("", testConfig())
	require.NoError(t, err)
	assert.Equal(t, KnowledgeGraph, r.Type())

	_, err = New("topic_network", testConfig())
	assert.ErrorIs(t, err, ErrUnknownVisualizer)
	assert.ErrorContains(t, err, "confidence_heatmap")
}

func TestDefaultConfig(t *testing.T) {
	settings.Reset()
	t.Cleanup(settings.Reset)

	cfg := DefaultConfig()
	assert.Equal(t, Config{Width: 800, Height: 600, Theme: "light", Interactive: true, ExportFormat: FormatHTML}, cfg)

	require.NoError(t, settings.Update(func(s *settings.Settings) {
		s.Visualizer.Width = 1024
		s.Visualizer.ExportFormat = "json"
	}))
	cfg = DefaultConfig()
	assert.Equal(t, 1024, cfg.Width)
	assert.Equal(t, FormatJSON, cfg.ExportFormat)
}

func TestKnowledgeGraphProcessData(t *testing.T) {
	data := NewKnowledgeGraph(testConfig()).ProcessData(sampleState())

	require.Len(t, data.Nodes, 2)
	assert.Equal(t, []GraphEdge{{From: "moon", To: "tides"}}, data.Edges)

	moon, tides := data.Nodes[0], data.Nodes[1]
	assert.Equal(t, "moon", moon.Topic)
	assert.Equal(t, StatusLearned, moon.Status)
	assert.InDelta(t, 200, moon.X, 1e-9)
	assert.InDelta(t, 60, moon.Y, 1e-9)

	assert.Equal(t, "tides", tides.Topic)
	assert.Equal(t, StatusGap, tides.Status)
	assert.Equal(t, 0.4, tides.Confidence)
	assert.InDelta(t, 200, tides.X, 1e-9)
	assert.InDelta(t, 340, tides.Y, 1e-9)
}

func TestKnowledgeGraphSingleNodeCentered(t *testing.T) {
	s := domain.NewAgentState("q", time.Now())
	s.KnowledgeBase["solo"] = domain.KnowledgeEntry{}
	data := NewKnowledgeGraph(testConfig()).ProcessData(s)
	require.Len(t, data.Nodes, 1)
	assert.Equal(t, 200.0, data.Nodes[0].X)
	assert.Equal(t, 200.0, data.Nodes[0].Y)
}

func TestKnowledgeGraphRender(t *testing.T) {
	s := sampleState()
	s.KnowledgeBase["<b>bold</b>"] = domain.KnowledgeEntry{}

	v := NewKnowledgeGraph(testConfig())
	out := render(t, v.Render(v.ProcessData(s)))
	assert.True(t, strings.HasPrefix(out, "<svg"))
	assert.True(t, strings.HasSuffix(out, "</svg>"))
	assert.Contains(t, out, `class="node gap"`)
	assert.Contains(t, out, `class="node learned"`)
	assert.Equal(t, 1, strings.Count(out, "<line"))
	assert.Contains(t, out, "<title>tides (gap, confidence 0.40)</title>")
	assert.Contains(t, out, "&lt;b&gt;bold&lt;/b&gt;")
	assert.NotContains(t, out, "<b>bold")

	cfg := testConfig()
	cfg.Interactive = false
	v = NewKnowledgeGraph(cfg)
	assert.NotContains(t, render(t, v.Render(v.ProcessData(s))), "<title>")
}

func TestLearningProgress(t *testing.T) {
	v := NewLearningProgress(testConfig())
	data := v.ProcessData(sampleState())

	require.Len(t, data.Series, 2)
	assert.Equal(t, "moon", data.Series[0].Topic)
	assert.Equal(t, "tides", data.Series[1].Topic)
	require.Len(t, data.Series[1].Points, 2)
	assert.Equal(t, 0.4, data.Series[1].Points[0].Score, "points ordered by time")
	assert.Equal(t, 0.7, data.Series[1].Points[1].Score)

	out := render(t, v.Render(data))
	assert.Equal(t, 2, strings.Count(out, "<polyline"))
	assert.Equal(t, 3, strings.Count(out, "<circle"))
}

func TestConfidenceHeatmap(t *testing.T) {
	v := NewConfidenceHeatmap(testConfig())
	data := v.ProcessData(sampleState())

	assert.Equal(t, []HeatmapCell{
		{Topic: "tides", Confidence: 0.4, Gap: true},
		{Topic: "moon", Confidence: 0.9},
	}, data.Cells)

	out := render(t, v.Render(data))
	assert.Equal(t, 2, strings.Count(out, "<rect"))
	assert.Contains(t, out, confidenceColor(0.4))

	empty := render(t, v.Render(HeatmapData{}))
	assert.NotContains(t, empty, "<rect")
}

func TestNilState(t *testing.T) {
	cfg := testConfig()
	assert.Empty(t, NewKnowledgeGraph(cfg).ProcessData(nil).Nodes)
	assert.Empty(t, NewLearningProgress(cfg).ProcessData(nil).Series)
	assert.Empty(t, NewConfidenceHeatmap(cfg).ProcessData(nil).Cells)
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("html", func(t *testing.T) {
		r, err := New(KnowledgeGraph, testConfig())
		require.NoError(t, err)
		path := filepath.Join(dir, "nested", "graph.html")
		require.NoError(t, r.Export(ctx, sampleState(), path))

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		out := string(raw)
		assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
		assert.Contains(t, out, "<title>Knowledge Graph</title>")
		assert.Contains(t, out, "<svg")
		assert.Contains(t, out, "background: #ffffff")
	})

	t.Run("dark theme", func(t *testing.T) {
		cfg := testConfig()
		cfg.Theme = "dark"
		r, err := New(ConfidenceHeatmap, cfg)
		require.NoError(t, err)
		path := filepath.Join(dir, "heatmap.html")
		require.NoError(t, r.Export(ctx, sampleState(), path))
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(raw), "background: #1e1e1e")
	})

	t.Run("json", func(t *testing.T) {
		cfg := testConfig()
		cfg.ExportFormat = FormatJSON
		r, err := New(KnowledgeGraph, cfg)
		require.NoError(t, err)
		path := filepath.Join(dir, "graph.json")
		require.NoError(t, r.Export(ctx, sampleState(), path))

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		var got GraphData
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, NewKnowledgeGraph(cfg).ProcessData(sampleState()), got)
	})

	t.Run("svg", func(t *testing.T) {
		cfg := testConfig()
		cfg.Theme = "dark"
		cfg.ExportFormat = FormatSVG
		r, err := New(LearningProgress, cfg)
		require.NoError(t, err)
		path := filepath.Join(dir, "progress.svg")
		require.NoError(t, r.Export(ctx, sampleState(), path))

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		out := string(raw)
		assert.True(t, strings.HasPrefix(out, "<?xml"))
		assert.Contains(t, out, `<svg xmlns="http://www.w3.org/2000/svg"`)
		assert.Contains(t, out, `fill="#1e1e1e"`)
		assert.NotContains(t, out, "<html")
		assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "</svg>"))
	})

	t.Run("unsupported", func(t *testing.T) {
		cfg := testConfig()
		cfg.ExportFormat = "png"
		r, err := New(LearningProgress, cfg)
		require.NoError(t, err)
		path := filepath.Join(dir, "progress.png")
		err = r.Export(ctx, sampleState(), path)
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
		assert.NoFileExists(t, path)
	})
}

func TestConfidenceColor(t *testing.T) {
	assert.Equal(t, "#d73027", confidenceColor(0))
	assert.Equal(t, "#1a9850", confidenceColor(1))
	assert.Equal(t, confidenceColor(1), confidenceColor(3), "clamped")
}

func TestSparkline(t *testing.T) {
	assert.Equal(t, "", Sparkline(nil))
	assert.Equal(t, "▁█", Sparkline([]float64{0, 1}))
	assert.Equal(t, "▅▅▅", Sparkline([]float64{2, 2, 2}))
	assert.Equal(t, 4, len([]rune(Sparkline([]float64{1, 5, 3, 9}))))
}

func TestMetricSeries(t *testing.T) {
	snaps := []domain.Snapshot{
		{Metrics: map[string]float64{"num_knowledge_nodes": 1}},
		{Metrics: map[string]float64{}},
		{Metrics: map[string]float64{"num_knowledge_nodes": 4}},
	}
	assert.Equal(t, []float64{1, 4}, MetricSeries(snaps, "num_knowledge_nodes"))
	assert.Nil(t, MetricSeries(snaps, "missing"))
}
