package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/emiliopalmerini/amadeus/internal/domain"
	"github.com/emiliopalmerini/amadeus/internal/llm"
)

const (
	researchStep        = 0.45
	validateThreshold   = 0.8
	structuredMaxTopics = 5
)

const (
	analyzeSystem    = "You analyze a learning request. List the key topics needed to answer it, one per line, most important first."
	planSystem       = "You write learning plans. Given the topics and the open gaps, list concrete learning objectives, one per line."
	researchSystem   = "Explain the topic below accurately and concisely for a learner. Finish with a single line of the form 'Related: topic, topic'."
	synthesizeSystem = "Synthesize the notes below into a coherent summary. If something essential is still missing, add one line per missing topic of the form 'GAP: topic'."
	validateSystem   = "Rate your understanding of the topic below from 0 to 1 given the notes. Reply with the number only."
)

// StructuredLearning is a plan-and-execute pipeline:
//
//	analyze -> plan -> research -> synthesize -> {research | validate | plan}
//	validate -> end
type StructuredLearning struct {
	*BasePipeline
}

func NewStructuredLearning(deps Deps) (*StructuredLearning, error) {
	p := &StructuredLearning{BasePipeline: newBase(string(TypeStructuredLearning), deps)}

	p.graph = NewGraph().
		AddNode("analyze", p.analyze).
		AddNode("plan", p.plan).
		AddNode("research", p.research).
		AddNode("synthesize", p.synthesize).
		AddNode("validate", p.validate).
		SetEntryPoint("analyze").
		AddEdge("analyze", "plan").
		AddEdge("plan", "research").
		AddEdge("research", "synthesize").
		AddConditionalEdges("synthesize", shouldContinueLearning, map[string]string{
			"research": "research",
			"validate": "validate",
			"plan":     "plan",
		}).
		AddEdge("validate", End)

	if err := p.graph.Compile(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *StructuredLearning) Run(ctx context.Context, input string, opts ...RunOption) (*domain.AgentState, error) {
	return p.run(ctx, input, opts, func(s *domain.AgentState) {
		s.CurrentStep = "analyze"
	})
}

func (p *StructuredLearning) Config() map[string]any {
	cfg := p.baseConfig()
	cfg["nodes"] = []string{"analyze", "plan", "research", "synthesize", "validate"}
	cfg["research_step"] = researchStep
	cfg["validate_threshold"] = validateThreshold
	return cfg
}

// shouldContinueLearning sends open gaps back to research, validates once
// every topic is above the threshold, and otherwise revises the plan.
func shouldContinueLearning(s *domain.AgentState) string {
	if len(s.UnderstandingGaps) > 0 {
		return "research"
	}
	for _, c := range s.ConfidenceScores {
		if c <= validateThreshold {
			return "plan"
		}
	}
	return "validate"
}

func (p *StructuredLearning) analyze(ctx context.Context, s *domain.AgentState) error {
	out, err := p.complete(ctx, analyzeSystem, s.Question)
	if err != nil {
		return err
	}
	topics := parseTopics(out)
	if len(topics) > structuredMaxTopics {
		topics = topics[:structuredMaxTopics]
	}
	if len(topics) == 0 {
		topics = []string{normalizeTopic(s.Question)}
	}
	addTopics(s, topics)
	s.AddMessage("assistant", "Topics: "+strings.Join(topics, ", "))
	return nil
}

func (p *StructuredLearning) plan(ctx context.Context, s *domain.AgentState) error {
	s.UnderstandingGaps = nil
	for _, t := range sortedTopics(s) {
		if s.ConfidenceScores[t] <= validateThreshold {
			addGap(s, t)
		}
	}

	prompt := fmt.Sprintf("Question: %s\nTopics: %s\nGaps: %s",
		s.Question, strings.Join(sortedTopics(s), ", "), strings.Join(s.UnderstandingGaps, ", "))
	out, err := p.complete(ctx, planSystem, prompt)
	if err != nil {
		return err
	}
	if objectives := llm.ParseList(out); len(objectives) > 0 {
		s.LearningObjectives = objectives
	}
	s.AddMessage("assistant", "Plan: "+strings.Join(s.LearningObjectives, "; "))
	return nil
}

func (p *StructuredLearning) research(ctx context.Context, s *domain.AgentState) error {
	targets := append([]string(nil), s.UnderstandingGaps...)
	if len(targets) == 0 {
		targets = sortedTopics(s)
	}

	for _, topic := range targets {
		prompt := "Topic: " + topic + "\nContext question: " + s.Question
		source := "llm"

		if p.deps.Searcher != nil {
			found, err := p.deps.Searcher.Search(ctx, topic)
			if err != nil {
				p.logger.Warn("search failed", "topic", topic, "error", err)
			} else {
				recordTool(s, "web_search", topic, found, p.deps.Now())
				s.Sources = append(s.Sources, domain.Source{Title: topic})
				prompt += "\nSearch results:\n" + found
				source = "web_search"
			}
		}

		out, err := p.complete(ctx, researchSystem, prompt)
		if err != nil {
			return err
		}
		learn(s, topic, out, researchStep, source)
		removeGap(s, topic)
	}
	s.AddMessage("assistant", "Researched: "+strings.Join(targets, ", "))
	return nil
}

func (p *StructuredLearning) synthesize(ctx context.Context, s *domain.AgentState) error {
	s.Iterations++

	var notes strings.Builder
	for _, t := range sortedTopics(s) {
		fmt.Fprintf(&notes, "## %s\n%s\n", t, s.KnowledgeBase[t].Summary)
	}
	out, err := p.complete(ctx, synthesizeSystem, "Question: "+s.Question+"\n"+notes.String())
	if err != nil {
		return err
	}

	var summary []string
	for _, line := range strings.Split(out, "\n") {
		if gap, ok := cutPrefixFold(strings.TrimSpace(line), "gap:"); ok {
			for _, t := range addTopics(s, []string{normalizeTopic(gap)}) {
				addGap(s, t)
			}
			continue
		}
		summary = append(summary, line)
	}

	s.AnswerText = strings.TrimSpace(strings.Join(summary, "\n"))
	s.Perplexity = perplexity(s.ConfidenceScores)
	s.AddMessage("assistant", s.AnswerText)
	return nil
}

func (p *StructuredLearning) validate(ctx context.Context, s *domain.AgentState) error {
	for _, topic := range sortedTopics(s) {
		prompt := "Topic: " + topic + "\nNotes: " + s.KnowledgeBase[topic].Summary
		out, err := p.complete(ctx, validateSystem, prompt)
		if err != nil {
			return err
		}
		score, ok := parseScore(out)
		if !ok {
			score = s.ConfidenceScores[topic]
		}
		s.QuizResults = append(s.QuizResults, domain.QuizResult{
			Timestamp: p.deps.Now(),
			Topic:     topic,
			Score:     score,
		})
	}
	s.AddMessage("assistant", fmt.Sprintf("Validated %d topics", len(s.KnowledgeBase)))
	return nil
}
