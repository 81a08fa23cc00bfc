package domain

import (
	"reflect"
	"testing"
	"time"
)

func TestAgentState_KnowledgeGraph(t *testing.T) {
	tests := []struct {
		name      string
		kb        map[string]KnowledgeEntry
		wantNodes []string
		wantEdges [][2]string
	}{
		{
			name:      "empty",
			kb:        nil,
			wantNodes: []string{},
			wantEdges: [][2]string{},
		},
		{
			name: "related topics become nodes",
			kb: map[string]KnowledgeEntry{
				"go": {RelatedTopics: []string{"concurrency"}},
			},
			wantNodes: []string{"concurrency", "go"},
			wantEdges: [][2]string{{"concurrency", "go"}},
		},
		{
			name: "reciprocal links collapse into one edge",
			kb: map[string]KnowledgeEntry{
				"a": {RelatedTopics: []string{"b", "a", ""}},
				"b": {RelatedTopics: []string{"a", "c"}},
			},
			wantNodes: []string{"a", "b", "c"},
			wantEdges: [][2]string{{"a", "b"}, {"b", "c"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &AgentState{KnowledgeBase: tt.kb}
			g := s.KnowledgeGraph()
			if !reflect.DeepEqual(g.Nodes, tt.wantNodes) {
				t.Errorf("Nodes = %v, want %v", g.Nodes, tt.wantNodes)
			}
			if !reflect.DeepEqual(g.Edges, tt.wantEdges) {
				t.Errorf("Edges = %v, want %v", g.Edges, tt.wantEdges)
			}
		})
	}
}

func TestAgentState_CloneIsDeep(t *testing.T) {
	s := NewAgentState("what is entropy?", time.Now())
	s.KnowledgeBase["entropy"] = KnowledgeEntry{Summary: "disorder", RelatedTopics: []string{"heat"}}
	s.ConfidenceScores["entropy"] = 0.5
	s.UnderstandingGaps = []string{"entropy"}

	cp := s.Clone()
	cp.KnowledgeBase["entropy"].RelatedTopics[0] = "cold"
	cp.ConfidenceScores["entropy"] = 0.9
	cp.UnderstandingGaps[0] = "other"
	cp.Messages[0].Content = "changed"

	if s.KnowledgeBase["entropy"].RelatedTopics[0] != "heat" {
		t.Error("related topics shared")
	}
	if s.ConfidenceScores["entropy"] != 0.5 {
		t.Error("confidence scores shared")
	}
	if s.UnderstandingGaps[0] != "entropy" {
		t.Error("gaps shared")
	}
	if s.Messages[0].Content != "what is entropy?" {
		t.Error("messages shared")
	}
}

func TestDocument_RoundTrip(t *testing.T) {
	rec := ExperimentRecord{ID: "abc", Name: "n", Status: StatusRunning, Metrics: map[string]any{"x": 1.5}}
	doc, err := ToDocument(rec)
	if err != nil {
		t.Fatal(err)
	}
	if doc.ID() != "abc" {
		t.Errorf("ID() = %q", doc.ID())
	}
	var back ExperimentRecord
	if err := doc.Decode(&back); err != nil {
		t.Fatal(err)
	}
	if back.Name != "n" || back.Status != StatusRunning || back.Metrics["x"] != 1.5 {
		t.Errorf("decoded = %+v", back)
	}
}
