package agent

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emiliopalmerini/amadeus/internal/adapters/jsonfile"
	"github.com/emiliopalmerini/amadeus/internal/domain"
	"github.com/emiliopalmerini/amadeus/internal/llm"
	"github.com/emiliopalmerini/amadeus/internal/settings"
)

func resetSettings(t *testing.T) {
	t.Helper()
	settings.Reset()
	t.Cleanup(settings.Reset)
}

func fixedClock() func() time.Time {
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	var mu sync.Mutex
	n := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func learningMock() *llm.Mock {
	return llm.NewMock(
		llm.Rule{Contains: "key topics", Reply: "1. Tides\n2. Gravity"},
		llm.Rule{Contains: "learning objectives", Reply: "- Understand tides\n- Understand gravity"},
		llm.Rule{Contains: "Explain the topic", Reply: "Tides follow the moon.\nRelated: moon, gravity"},
		llm.Rule{Contains: "Explore the topic", Reply: "Water bulges toward the moon.\nRelated: moon"},
		llm.Rule{Contains: "Correct and deepen", Reply: "Two bulges form on opposite sides.\nRelated: moon"},
		llm.Rule{Contains: "still unclear", Reply: "NONE"},
		llm.Rule{Contains: "Synthesize", Reply: "Tides are driven by lunar gravity."},
		llm.Rule{Contains: "Rate your understanding", Reply: "0.9"},
	)
}

func TestStructuredLearningRun(t *testing.T) {
	resetSettings(t)
	mock := learningMock()
	p, err := NewStructuredLearning(Deps{LLM: mock, Now: fixedClock()})
	require.NoError(t, err)

	state, err := p.Run(context.Background(), "How do tides work?")
	require.NoError(t, err)

	assert.Equal(t, "completed", state.Status)
	assert.Equal(t, "validate", state.CurrentStep)
	assert.ElementsMatch(t, []string{"tides", "gravity"}, sortedTopics(state))
	assert.InDelta(t, 0.9, state.ConfidenceScores["tides"], 1e-9)
	assert.InDelta(t, 0.9, state.ConfidenceScores["gravity"], 1e-9)
	assert.Empty(t, state.UnderstandingGaps)
	assert.Equal(t, 2, state.Iterations, "synthesize should run twice")
	assert.Equal(t, []string{"Understand tides", "Understand gravity"}, state.LearningObjectives)
	assert.Equal(t, "Tides are driven by lunar gravity.", state.AnswerText)
	assert.InDelta(t, 1/0.9, state.Perplexity, 1e-9)

	require.Len(t, state.QuizResults, 2)
	assert.Equal(t, 0.9, state.QuizResults[0].Score)

	graph := state.KnowledgeGraph()
	assert.Equal(t, []string{"gravity", "moon", "tides"}, graph.Nodes)
	assert.Len(t, graph.Edges, 3)

	current := p.CurrentState()
	assert.Equal(t, state.Status, current.Status)
	assert.Equal(t, state.Timestamp, current.Timestamp)
}

func TestStructuredLearningSearch(t *testing.T) {
	resetSettings(t)
	var queries []string
	searcher := llm.SearchFunc(func(_ context.Context, q string) (string, error) {
		queries = append(queries, q)
		if q == "gravity" {
			return "", errors.New("rate limited")
		}
		return "search says " + q, nil
	})

	p, err := NewStructuredLearning(Deps{LLM: learningMock(), Searcher: searcher})
	require.NoError(t, err)

	state, err := p.Run(context.Background(), "How do tides work?")
	require.NoError(t, err)

	assert.Len(t, queries, 4, "two topics researched twice")
	for _, out := range state.ToolOutputs {
		assert.Equal(t, "web_search", out.Tool)
		assert.Equal(t, "tides", out.Input)
	}
	assert.Len(t, state.ToolOutputs, 2)
	assert.Equal(t, []string{"web_search"}, state.KnowledgeBase["tides"].Sources)
	assert.Equal(t, []string{"llm"}, state.KnowledgeBase["gravity"].Sources)
}

func TestStructuredLearningGapFromSynthesis(t *testing.T) {
	resetSettings(t)
	mock := llm.NewMock(
		llm.Rule{Contains: "key topics", Reply: "tides"},
		llm.Rule{Contains: "Explain the topic", Reply: "Explained.\nRelated: moon"},
	)
	mock.On("Synthesize", "Summary\nGAP: ocean basins")
	p, err := NewStructuredLearning(Deps{LLM: mock})
	require.NoError(t, err)

	state, err := p.Run(context.Background(), "tides")
	require.NoError(t, err)

	assert.Contains(t, state.KnowledgeBase, "ocean basins")
	assert.InDelta(t, 0.9, state.ConfidenceScores["ocean basins"], 1e-9)
	assert.Equal(t, "Summary", state.AnswerText)
}

func TestStructuredLearningFailure(t *testing.T) {
	resetSettings(t)
	mock := llm.NewMock()
	mock.Fail(errors.New("provider down"))

	p, err := NewStructuredLearning(Deps{LLM: mock})
	require.NoError(t, err)

	state, err := p.Run(context.Background(), "tides")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider down")
	assert.Equal(t, "failed", state.Status)
	assert.Contains(t, state.Error, "provider down")
	assert.Equal(t, "failed", p.CurrentState().Status)
}

func TestShouldContinueLearning(t *testing.T) {
	tests := []struct {
		name   string
		gaps   []string
		scores map[string]float64
		want   string
	}{
		{"gaps go to research", []string{"x"}, map[string]float64{"x": 1}, "research"},
		{"all confident validates", nil, map[string]float64{"x": 0.81, "y": 0.95}, "validate"},
		{"no scores validates", nil, map[string]float64{}, "validate"},
		{"threshold is exclusive", nil, map[string]float64{"x": 0.8}, "plan"},
		{"low confidence replans", nil, map[string]float64{"x": 0.9, "y": 0.2}, "plan"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &domain.AgentState{UnderstandingGaps: tt.gaps, ConfidenceScores: tt.scores}
			assert.Equal(t, tt.want, shouldContinueLearning(s))
		})
	}
}

func TestModelPrecedence(t *testing.T) {
	resetSettings(t)
	require.NoError(t, settings.Update(func(s *settings.Settings) {
		s.LLM = "global-model"
		s.Temperature = 0.2
		s.MaxTokens = 256
	}))

	mock := llm.NewMock()
	p, err := NewStructuredLearning(Deps{LLM: mock})
	require.NoError(t, err)
	assert.Equal(t, "global-model", p.Model())

	inst, err := NewStructuredLearning(Deps{LLM: mock, Model: "instance-model"})
	require.NoError(t, err)
	assert.Equal(t, "instance-model", inst.Model())

	_, err = inst.Run(context.Background(), "tides", WithModel("call-model"))
	require.NoError(t, err)
	calls := mock.Calls()
	require.NotEmpty(t, calls)
	for _, c := range calls {
		assert.Equal(t, "call-model", c.Model)
		require.NotNil(t, c.Temperature)
		assert.Equal(t, 0.2, *c.Temperature)
		assert.Equal(t, 256, c.MaxTokens)
	}
	assert.Equal(t, "instance-model", inst.Model(), "call override must not outlive the run")

	require.NoError(t, settings.Update(func(s *settings.Settings) { s.LLM = "changed" }))
	assert.Equal(t, "changed", p.Model(), "global is read at use time")
}

func TestAdaptiveLearningRun(t *testing.T) {
	resetSettings(t)
	p, err := NewAdaptiveLearning(Deps{LLM: learningMock()})
	require.NoError(t, err)

	state, err := p.Run(context.Background(), "How do tides work?")
	require.NoError(t, err)

	assert.Equal(t, "completed", state.Status)
	assert.Equal(t, 3, state.Iterations)
	assert.Equal(t, 1.0, state.ConfidenceScores["tides"])
	assert.Equal(t, 1.0, state.ConfidenceScores["gravity"])
	assert.Equal(t, "Water bulges toward the moon.", state.KnowledgeBase["tides"].Summary)

	path, ok := state.Metadata["learning_path"].([]string)
	require.True(t, ok)
	assert.Len(t, path, 6)
	assert.NotEmpty(t, state.QuizResults)
}

func TestAdaptiveLearningFlaggedGap(t *testing.T) {
	resetSettings(t)
	mock := llm.NewMock(
		llm.Rule{Contains: "key topics", Reply: "tides"},
		llm.Rule{Contains: "Explore the topic", Reply: "Explored."},
		llm.Rule{Contains: "still unclear", Reply: "tides"},
		llm.Rule{Contains: "Correct and deepen", Reply: "Refined."},
	)
	p, err := NewAdaptiveLearning(Deps{LLM: mock})
	require.NoError(t, err)

	state, err := p.Run(context.Background(), "tides")
	require.NoError(t, err)
	assert.Equal(t, adaptiveMaxIterations, state.Iterations)

	refines := 0
	for _, c := range mock.Calls() {
		if strings.Contains(c.System, "Correct and deepen") {
			refines++
		}
	}
	assert.Equal(t, adaptiveMaxIterations-1, refines)
}

func TestDecideNextStep(t *testing.T) {
	tests := []struct {
		name  string
		state domain.AgentState
		want  string
	}{
		{"iteration budget", domain.AgentState{Iterations: 5, UnderstandingGaps: []string{"x"}}, "end"},
		{"gaps refine", domain.AgentState{Iterations: 1, UnderstandingGaps: []string{"x"}}, "refine"},
		{"no scores explore", domain.AgentState{Iterations: 1}, "explore"},
		{"low score explore", domain.AgentState{Iterations: 1, ConfidenceScores: map[string]float64{"a": 0.95, "b": 0.5}}, "explore"},
		{"confident end", domain.AgentState{Iterations: 1, ConfidenceScores: map[string]float64{"a": 0.9}}, "end"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decideNextStep(&tt.state))
		})
	}
}

func curiosityMock(subquestions string) *llm.Mock {
	return llm.NewMock(
		llm.Rule{Contains: "knowledge base assistant", Reply: "The moon matters."},
		llm.Rule{Contains: "Answer the question", Reply: "Tides are caused by lunar gravity."},
		llm.Rule{Contains: "follow-up questions", Reply: subquestions},
		llm.Rule{Contains: "Integrate the external findings", Reply: "Tidal forces shape coasts and can generate power."},
	)
}

func TestCuriosityRun(t *testing.T) {
	resetSettings(t)
	ctx := context.Background()

	memory, err := jsonfile.New(filepath.Join(t.TempDir(), "memory.json"))
	require.NoError(t, err)
	_, err = memory.Save(ctx, KnowledgeCollection, domain.Document{"text": "Tides are driven by the moon", "created_at": "2024-01-01T00:00:00Z"})
	require.NoError(t, err)
	_, err = memory.Save(ctx, KnowledgeCollection, domain.Document{"text": "Bread needs yeast", "created_at": "2024-01-02T00:00:00Z"})
	require.NoError(t, err)

	searcher := llm.SearchFunc(func(_ context.Context, q string) (string, error) {
		return "finding about " + q, nil
	})

	p, err := NewCuriosity(Deps{
		LLM:      curiosityMock("How do tides affect marine ecosystems?\nCould tidal energy power cities?"),
		Searcher: searcher,
		Memory:   memory,
	})
	require.NoError(t, err)

	state, err := p.Run(ctx, "Why do tides happen?")
	require.NoError(t, err)

	assert.Equal(t, "completed", state.Status)
	assert.Equal(t, "knowledge_ingestion", state.CurrentStep)
	assert.Equal(t, "Tides are caused by lunar gravity.", state.AnswerText)
	assert.True(t, state.NoveltyPassed)
	assert.Equal(t, 1, state.NoveltyAttempts)
	require.Len(t, state.Subquestions, 2)
	require.Len(t, state.ExternalData, 2)
	assert.Equal(t, "How do tides affect marine ecosystems?: finding about How do tides affect marine ecosystems?", state.ExternalData[0])

	assert.Contains(t, state.KnowledgeChunks, "Tides are driven by the moon")
	assert.NotContains(t, state.KnowledgeChunks, "Bread needs yeast")

	root := state.KnowledgeBase["why do tides happen"]
	assert.Len(t, root.RelatedTopics, 2)
	graph := state.KnowledgeGraph()
	assert.Len(t, graph.Nodes, 3)
	assert.Len(t, graph.Edges, 2)

	stored, err := memory.Query(ctx, KnowledgeCollection, domain.Filter{"source": "web_search"})
	require.NoError(t, err)
	require.Equal(t, 1, stored.Count)
	assert.Equal(t, "Tidal forces shape coasts and can generate power.", stored.Data[0]["text"])
}

func TestCuriosityRegeneratesSubquestions(t *testing.T) {
	resetSettings(t)
	mock := curiosityMock("Only one?")
	p, err := NewCuriosity(Deps{LLM: mock})
	require.NoError(t, err)

	state, err := p.Run(context.Background(), "Why do tides happen?")
	require.NoError(t, err)

	assert.Equal(t, maxCuriosityRetries, state.NoveltyAttempts)
	curiosityCalls := 0
	for _, c := range mock.Calls() {
		if strings.Contains(c.System, "follow-up questions") {
			curiosityCalls++
		}
	}
	assert.Equal(t, maxCuriosityRetries, curiosityCalls)
	assert.Empty(t, state.ExternalData, "no searcher configured")
}

func TestNoveltyEvaluatorFiltersKnown(t *testing.T) {
	p := &Curiosity{BasePipeline: newBase("curiosity", Deps{})}
	s := &domain.AgentState{
		Question:     "Why do tides happen?",
		AnswerText:   "Lunar gravity.",
		Subquestions: []string{"Why do tides happen?", "Is lunar gravity real?", "What about volcanoes?", "what about volcanoes?"},
	}
	require.NoError(t, p.noveltyEvaluator(context.Background(), s))
	assert.True(t, s.NoveltyPassed)
	assert.Equal(t, []string{"Is lunar gravity real?", "What about volcanoes?"}, s.Subquestions)
}

func TestCuriosityTrimsChunks(t *testing.T) {
	resetSettings(t)
	require.NoError(t, settings.Update(func(s *settings.Settings) { s.MemorySize = 2 }))

	p := &Curiosity{BasePipeline: newBase("curiosity", Deps{})}
	s := &domain.AgentState{KnowledgeChunks: []string{"a", "b", "c"}}
	p.trimChunks(s)
	assert.Equal(t, []string{"b", "c"}, s.KnowledgeChunks)
}

func TestNew(t *testing.T) {
	resetSettings(t)
	for _, typ := range Types() {
		p, err := New(typ, Deps{LLM: llm.NewMock()})
		require.NoError(t, err)
		assert.Equal(t, string(typ), p.Name())
		cfg := p.Config()
		assert.Equal(t, string(typ), cfg["type"])
		assert.Equal(t, "gpt-4", cfg["llm"])
		assert.Nil(t, p.CurrentState())
	}

	p, err := New("", Deps{})
	require.NoError(t, err)
	assert.Equal(t, string(DefaultType), p.Name())

	_, err = New("reinforcement", Deps{})
	assert.ErrorIs(t, err, ErrUnknownPipeline)
}

func TestCurrentStateDuringRun(t *testing.T) {
	resetSettings(t)
	p, err := NewAdaptiveLearning(Deps{LLM: learningMock()})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			if s := p.CurrentState(); s != nil {
				_ = s.KnowledgeGraph()
			}
		}
	}()
	_, err = p.Run(context.Background(), "tides")
	require.NoError(t, err)
	<-done
}
