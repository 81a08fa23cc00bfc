package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/emiliopalmerini/amadeus/internal/domain"
)

func graphState() *domain.AgentState {
	s := domain.NewAgentState("How does photosynthesis work?", time.Now())
	s.LearningObjectives = []string{"Understand chlorophyll"}
	s.KnowledgeBase["photosynthesis"] = domain.KnowledgeEntry{RelatedTopics: []string{"chlorophyll", "sunlight"}}
	s.KnowledgeBase["chlorophyll"] = domain.KnowledgeEntry{RelatedTopics: []string{"photosynthesis"}}
	s.KnowledgeBase["baking"] = domain.KnowledgeEntry{}
	s.Perplexity = 1.8
	return s
}

func TestGet(t *testing.T) {
	for _, typ := range Types() {
		m, err := Get(typ)
		if err != nil {
			t.Fatalf("Get(%q) = %v", typ, err)
		}
		if m.Name() != string(typ) {
			t.Errorf("Name() = %q, want %q", m.Name(), typ)
		}
		if m.Description() == "" {
			t.Errorf("%s has no description", typ)
		}
	}
	if _, err := Get("bogus"); !errors.Is(err, ErrUnknownMetric) {
		t.Errorf("Get(bogus) = %v, want ErrUnknownMetric", err)
	}
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		typ   Type
		state *domain.AgentState
		want  float64
	}{
		// nodes: baking, chlorophyll, photosynthesis, sunlight
		{NumKnowledgeNodes, graphState(), 4},
		// edges: chlorophyll-photosynthesis, photosynthesis-sunlight
		{NumKnowledgeEdges, graphState(), 2},
		// photosynthesis and chlorophyll match
		{NodeRelevance, graphState(), 0.5},
		{AveragePerplexity, graphState(), 1.8},
		{NumKnowledgeNodes, &domain.AgentState{}, 0},
		{NodeRelevance, &domain.AgentState{}, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			m, _ := Get(tt.typ)
			if got := m.Calculate(tt.state); got != tt.want {
				t.Errorf("Calculate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetAll(t *testing.T) {
	ms, err := GetAll([]string{"num_knowledge_nodes", "average_perplexity"})
	if err != nil {
		t.Fatal(err)
	}
	got := Evaluate(ms, graphState())
	if len(got) != 2 || got["num_knowledge_nodes"] != 4 || got["average_perplexity"] != 1.8 {
		t.Errorf("Evaluate() = %v", got)
	}

	if _, err := GetAll([]string{"num_knowledge_nodes", "nope"}); !errors.Is(err, ErrUnknownMetric) {
		t.Errorf("GetAll() = %v, want ErrUnknownMetric", err)
	}
}

func TestEvaluateNilState(t *testing.T) {
	ms, _ := GetAll([]string{"num_knowledge_nodes"})
	if got := Evaluate(ms, nil); len(got) != 0 {
		t.Errorf("Evaluate(nil) = %v, want empty", got)
	}
}

func TestKeywords(t *testing.T) {
	got := Keywords("How does the Moon's gravity affect tides?")
	for _, w := range []string{"moon", "gravity", "affect", "tides"} {
		if _, ok := got[w]; !ok {
			t.Errorf("Keywords missing %q: %v", w, got)
		}
	}
	for _, w := range []string{"how", "does", "the", "s"} {
		if _, ok := got[w]; ok {
			t.Errorf("Keywords kept %q", w)
		}
	}
}
