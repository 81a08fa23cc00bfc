package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emiliopalmerini/amadeus/internal/domain"
	"github.com/emiliopalmerini/amadeus/internal/llm"
	"github.com/emiliopalmerini/amadeus/internal/metrics"
	"github.com/emiliopalmerini/amadeus/internal/ports"
	"github.com/emiliopalmerini/amadeus/internal/settings"
)

// KnowledgeCollection is where the curiosity pipeline keeps ingested
// knowledge between runs.
const KnowledgeCollection = "knowledge"

const (
	minSubquestions     = 2
	maxCuriosityRetries = 3
)

const (
	knowledgeBaseSystem = "You are a knowledge base assistant. Using only the known facts below, state what is already known about the question. Reply NONE if nothing is relevant."
	finalAnswerSystem   = "Answer the question using the knowledge chunks provided. Say so when the knowledge is insufficient."
	curiositySystem     = "Given an answer, propose novel cross-disciplinary follow-up questions that would deepen understanding, one per line."
	ingestionSystem     = "Integrate the external findings below into concise, self-contained knowledge statements."
)

// Curiosity answers from stored knowledge, then generates novel
// subquestions, searches the web for them and ingests what it finds:
//
//	knowledge_base -> final_answer -> curiosity -> novelty_evaluator
//	novelty_evaluator -> {curiosity | web_search}
//	curiosity -> {curiosity | novelty_evaluator}
//	web_search -> knowledge_ingestion -> end
type Curiosity struct {
	*BasePipeline
}

func NewCuriosity(deps Deps) (*Curiosity, error) {
	p := &Curiosity{BasePipeline: newBase(string(TypeCuriosity), deps)}

	p.graph = NewGraph().
		AddNode("knowledge_base", p.knowledgeBase).
		AddNode("final_answer", p.finalAnswer).
		AddNode("curiosity", p.curiosity).
		AddNode("novelty_evaluator", p.noveltyEvaluator).
		AddNode("web_search", p.webSearch).
		AddNode("knowledge_ingestion", p.knowledgeIngestion).
		SetEntryPoint("knowledge_base").
		AddEdge("knowledge_base", "final_answer").
		AddEdge("final_answer", "curiosity").
		AddConditionalEdges("curiosity", routeCuriosity, map[string]string{
			"regenerate": "curiosity",
			"evaluate":   "novelty_evaluator",
		}).
		AddConditionalEdges("novelty_evaluator", routeNovelty, map[string]string{
			"curiosity":  "curiosity",
			"web_search": "web_search",
		}).
		AddEdge("web_search", "knowledge_ingestion").
		AddEdge("knowledge_ingestion", End)

	if err := p.graph.Compile(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Curiosity) Run(ctx context.Context, input string, opts ...RunOption) (*domain.AgentState, error) {
	return p.run(ctx, input, opts, func(s *domain.AgentState) {
		s.CurrentStep = "knowledge_base"
	})
}

func (p *Curiosity) Config() map[string]any {
	cfg := p.baseConfig()
	g := settings.Global()
	cfg["nodes"] = []string{"knowledge_base", "final_answer", "curiosity", "novelty_evaluator", "web_search", "knowledge_ingestion"}
	cfg["memory_backend"] = g.MemoryBackend
	cfg["memory_size"] = g.MemorySize
	cfg["min_subquestions"] = minSubquestions
	return cfg
}

func routeCuriosity(s *domain.AgentState) string {
	if len(s.Subquestions) < minSubquestions && s.NoveltyAttempts < maxCuriosityRetries {
		return "regenerate"
	}
	return "evaluate"
}

func routeNovelty(s *domain.AgentState) string {
	if s.NoveltyPassed || s.NoveltyAttempts >= maxCuriosityRetries {
		return "web_search"
	}
	return "curiosity"
}

// knowledgeBase loads stored knowledge relevant to the question into
// KnowledgeChunks.
func (p *Curiosity) knowledgeBase(ctx context.Context, s *domain.AgentState) error {
	if p.deps.Memory == nil {
		s.AddMessage("assistant", "[knowledge_base] no memory configured")
		return nil
	}

	limit := settings.Global().MemorySize
	res, err := p.deps.Memory.Query(ctx, KnowledgeCollection, nil,
		ports.WithOrderBy("created_at", true), ports.WithLimit(limit))
	if err != nil {
		return fmt.Errorf("failed to query knowledge: %w", err)
	}

	focus := metrics.Keywords(s.Question)
	for _, doc := range res.Data {
		text, _ := doc["text"].(string)
		if text == "" {
			continue
		}
		if overlaps(focus, metrics.Keywords(text)) {
			s.KnowledgeChunks = append(s.KnowledgeChunks, text)
		}
	}
	recordTool(s, "knowledge_base", s.Question, fmt.Sprintf("%d of %d chunks relevant", len(s.KnowledgeChunks), res.Count), p.deps.Now())

	if len(s.KnowledgeChunks) == 0 {
		s.AddMessage("assistant", "[knowledge_base] nothing relevant stored")
		return nil
	}
	out, err := p.complete(ctx, knowledgeBaseSystem,
		"Question: "+s.Question+"\nKnown facts:\n"+strings.Join(s.KnowledgeChunks, "\n"))
	if err != nil {
		return err
	}
	s.AddMessage("assistant", "[knowledge_base] "+out)
	return nil
}

func (p *Curiosity) finalAnswer(ctx context.Context, s *domain.AgentState) error {
	knowledge := strings.Join(s.KnowledgeChunks, "\n")
	if knowledge == "" {
		knowledge = "(no relevant knowledge stored)"
	}
	out, err := p.complete(ctx, finalAnswerSystem, "Question: "+s.Question+"\nKnowledge chunks:\n"+knowledge)
	if err != nil {
		return err
	}
	s.AnswerText = out
	s.AddMessage("assistant", "[final_answer] "+out)
	return nil
}

func (p *Curiosity) curiosity(ctx context.Context, s *domain.AgentState) error {
	s.NoveltyAttempts++
	out, err := p.complete(ctx, curiositySystem, "Question: "+s.Question+"\nAnswer: "+s.AnswerText)
	if err != nil {
		return err
	}
	s.Subquestions = llm.ParseList(out)
	s.NoveltyPassed = false
	s.AddMessage("assistant", fmt.Sprintf("[curiosity] %d subquestions", len(s.Subquestions)))
	return nil
}

// noveltyEvaluator keeps subquestions that bring at least one keyword not
// already present in the question, the answer or the stored knowledge.
func (p *Curiosity) noveltyEvaluator(_ context.Context, s *domain.AgentState) error {
	known := metrics.Keywords(s.Question + "\n" + s.AnswerText + "\n" + strings.Join(s.KnowledgeChunks, "\n"))

	seen := map[string]bool{}
	var novel []string
	for _, q := range s.Subquestions {
		key := strings.ToLower(strings.TrimSpace(q))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		for w := range metrics.Keywords(q) {
			if _, ok := known[w]; !ok {
				novel = append(novel, q)
				break
			}
		}
	}

	s.Subquestions = novel
	s.NoveltyPassed = len(novel) > 0
	if s.NoveltyPassed {
		s.AddMessage("assistant", "[novelty_evaluator] novel: "+strings.Join(novel, " | "))
	} else {
		s.AddMessage("assistant", "[novelty_evaluator] nothing novel, regenerating")
	}
	return nil
}

func (p *Curiosity) webSearch(ctx context.Context, s *domain.AgentState) error {
	if len(s.Subquestions) == 0 {
		s.AddMessage("assistant", "[web_search] no subquestions to search")
		return nil
	}
	if p.deps.Searcher == nil {
		s.AddMessage("assistant", "[web_search] "+llm.ErrSearchUnavailable.Error())
		return nil
	}

	var lines []string
	for _, q := range s.Subquestions {
		found, err := p.deps.Searcher.Search(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn("search failed", "query", q, "error", err)
			found = "[search error] " + err.Error()
		} else {
			s.Sources = append(s.Sources, domain.Source{Title: q})
		}
		recordTool(s, "web_search", q, found, p.deps.Now())
		lines = append(lines, q+": "+found)
	}

	s.ExternalData = append(s.ExternalData, lines...)
	s.KnowledgeChunks = append(s.KnowledgeChunks, "[web search]\n"+strings.Join(lines, "\n"))
	p.trimChunks(s)
	s.AddMessage("assistant", fmt.Sprintf("[web_search] searched %d subquestions", len(s.Subquestions)))
	return nil
}

// knowledgeIngestion condenses external data, adds it to the knowledge
// graph and persists it to memory.
func (p *Curiosity) knowledgeIngestion(ctx context.Context, s *domain.AgentState) error {
	if len(s.ExternalData) == 0 {
		s.AddMessage("assistant", "[knowledge_ingestion] no external data to ingest")
		return nil
	}

	out, err := p.complete(ctx, ingestionSystem, "External findings:\n"+strings.Join(s.ExternalData, "\n"))
	if err != nil {
		return err
	}
	s.KnowledgeChunks = append(s.KnowledgeChunks, out)
	p.trimChunks(s)

	root := normalizeTopic(s.Question)
	rootEntry := s.KnowledgeBase[root]
	rootEntry.Summary = s.AnswerText
	for _, q := range s.Subquestions {
		sub := normalizeTopic(q)
		if sub == "" || sub == root {
			continue
		}
		if !contains(rootEntry.RelatedTopics, sub) {
			rootEntry.RelatedTopics = append(rootEntry.RelatedTopics, sub)
		}
		s.KnowledgeBase[sub] = domain.KnowledgeEntry{
			Summary:       findingFor(s.ExternalData, q),
			RelatedTopics: []string{root},
			Sources:       []string{"web_search"},
		}
	}
	s.KnowledgeBase[root] = rootEntry

	if p.deps.Memory != nil {
		doc := domain.Document{
			"question":     s.Question,
			"text":         out,
			"subquestions": s.Subquestions,
			"source":       "web_search",
			"created_at":   p.deps.Now().UTC().Format(time.RFC3339Nano),
		}
		if _, err := p.deps.Memory.Save(ctx, KnowledgeCollection, doc); err != nil {
			return fmt.Errorf("failed to store knowledge: %w", err)
		}
	}
	s.AddMessage("assistant", "[knowledge_ingestion] "+out)
	return nil
}

// trimChunks keeps the most recent MemorySize chunks.
func (p *Curiosity) trimChunks(s *domain.AgentState) {
	limit := settings.Global().MemorySize
	if limit > 0 && len(s.KnowledgeChunks) > limit {
		s.KnowledgeChunks = append([]string(nil), s.KnowledgeChunks[len(s.KnowledgeChunks)-limit:]...)
	}
}

func findingFor(data []string, q string) string {
	prefix := q + ": "
	for _, d := range data {
		if strings.HasPrefix(d, prefix) {
			return strings.TrimPrefix(d, prefix)
		}
	}
	return ""
}

func overlaps(a, b map[string]struct{}) bool {
	for w := range a {
		if _, ok := b[w]; ok {
			return true
		}
	}
	return false
}
