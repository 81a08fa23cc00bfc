package agent

import (
	"context"
	"math"
	"strings"

	"github.com/emiliopalmerini/amadeus/internal/domain"
)

const (
	adaptiveMaxIterations = 5
	adaptiveTarget        = 0.9
	adaptiveGapThreshold  = 0.5
	exploreStep           = 0.3
	refineStep            = 0.2
	adaptiveMaxTopics     = 5
)

const (
	exploreTopicsSystem = "You map out a subject. List the key topics needed to understand it, one per line."
	exploreSystem       = "Explore the topic below and explain what you know. Finish with a single line of the form 'Related: topic, topic'."
	assessSystem        = "Assess the notes below. List the topics that are still unclear or possibly wrong, one per line, or reply NONE."
	refineSystem        = "Correct and deepen the explanation of the topic below. Finish with a single line of the form 'Related: topic, topic'."
)

// AdaptiveLearning is a self-correcting exploration loop:
//
//	explore -> assess -> {end | refine | explore}
//	refine -> explore
type AdaptiveLearning struct {
	*BasePipeline
}

func NewAdaptiveLearning(deps Deps) (*AdaptiveLearning, error) {
	p := &AdaptiveLearning{BasePipeline: newBase(string(TypeAdaptiveLearning), deps)}

	p.graph = NewGraph().
		AddNode("explore", p.explore).
		AddNode("assess", p.assess).
		AddNode("refine", p.refine).
		SetEntryPoint("explore").
		AddEdge("explore", "assess").
		AddConditionalEdges("assess", decideNextStep, map[string]string{
			"end":     End,
			"refine":  "refine",
			"explore": "explore",
		}).
		AddEdge("refine", "explore")

	if err := p.graph.Compile(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AdaptiveLearning) Run(ctx context.Context, input string, opts ...RunOption) (*domain.AgentState, error) {
	return p.run(ctx, input, opts, func(s *domain.AgentState) {
		s.CurrentStep = "explore"
		s.Metadata["learning_path"] = []string{}
	})
}

func (p *AdaptiveLearning) Config() map[string]any {
	cfg := p.baseConfig()
	cfg["nodes"] = []string{"explore", "assess", "refine"}
	cfg["max_iterations"] = adaptiveMaxIterations
	cfg["target_confidence"] = adaptiveTarget
	return cfg
}

// decideNextStep stops after the iteration budget, refines open gaps, and
// keeps exploring while any topic is below the target confidence.
func decideNextStep(s *domain.AgentState) string {
	if s.Iterations >= adaptiveMaxIterations {
		return "end"
	}
	if len(s.UnderstandingGaps) > 0 {
		return "refine"
	}
	lowest := 0.0
	if len(s.ConfidenceScores) > 0 {
		lowest = math.Inf(1)
		for _, c := range s.ConfidenceScores {
			lowest = math.Min(lowest, c)
		}
	}
	if lowest < adaptiveTarget {
		return "explore"
	}
	return "end"
}

func appendLearningPath(s *domain.AgentState, topics ...string) {
	var path []string
	switch v := s.Metadata["learning_path"].(type) {
	case []string:
		path = append(path, v...)
	case []any:
		for _, x := range v {
			if str, ok := x.(string); ok {
				path = append(path, str)
			}
		}
	}
	s.Metadata["learning_path"] = append(path, topics...)
}

func (p *AdaptiveLearning) explore(ctx context.Context, s *domain.AgentState) error {
	s.Iterations++

	if len(s.KnowledgeBase) == 0 {
		out, err := p.complete(ctx, exploreTopicsSystem, s.Question)
		if err != nil {
			return err
		}
		topics := parseTopics(out)
		if len(topics) > adaptiveMaxTopics {
			topics = topics[:adaptiveMaxTopics]
		}
		if len(topics) == 0 {
			topics = []string{normalizeTopic(s.Question)}
		}
		addTopics(s, topics)
	}

	var explored []string
	for _, topic := range sortedTopics(s) {
		if s.ConfidenceScores[topic] >= adaptiveTarget || s.IsGap(topic) {
			continue
		}
		out, err := p.complete(ctx, exploreSystem, "Topic: "+topic+"\nContext question: "+s.Question)
		if err != nil {
			return err
		}
		learn(s, topic, out, exploreStep, "llm")
		explored = append(explored, topic)
	}
	appendLearningPath(s, explored...)
	s.AddMessage("assistant", "Explored: "+strings.Join(explored, ", "))
	return nil
}

func (p *AdaptiveLearning) assess(ctx context.Context, s *domain.AgentState) error {
	s.UnderstandingGaps = nil
	for _, t := range sortedTopics(s) {
		if s.ConfidenceScores[t] < adaptiveGapThreshold {
			addGap(s, t)
		}
	}

	var notes strings.Builder
	for _, t := range sortedTopics(s) {
		notes.WriteString(t + ": " + s.KnowledgeBase[t].Summary + "\n")
	}
	out, err := p.complete(ctx, assessSystem, notes.String())
	if err != nil {
		return err
	}
	for _, t := range parseTopics(out) {
		if _, known := s.KnowledgeBase[t]; known {
			addGap(s, t)
		}
	}

	s.Perplexity = perplexity(s.ConfidenceScores)
	s.QuizResults = append(s.QuizResults, assessmentResults(s, p.deps.Now())...)
	s.AddMessage("assistant", "Gaps: "+strings.Join(s.UnderstandingGaps, ", "))
	return nil
}

func (p *AdaptiveLearning) refine(ctx context.Context, s *domain.AgentState) error {
	gaps := append([]string(nil), s.UnderstandingGaps...)
	for _, topic := range gaps {
		prompt := "Topic: " + topic + "\nCurrent notes: " + s.KnowledgeBase[topic].Summary
		out, err := p.complete(ctx, refineSystem, prompt)
		if err != nil {
			return err
		}
		learn(s, topic, out, refineStep, "llm")
		removeGap(s, topic)
	}
	s.AddMessage("assistant", "Refined: "+strings.Join(gaps, ", "))
	return nil
}
