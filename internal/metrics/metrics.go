// Package metrics computes scalar measurements over agent state.
package metrics

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/emiliopalmerini/amadeus/internal/domain"
)

var ErrUnknownMetric = errors.New("unknown metric")

type Type string

const (
	NumKnowledgeNodes Type = "num_knowledge_nodes"
	NumKnowledgeEdges Type = "num_knowledge_edges"
	NodeRelevance     Type = "node_relevance"
	AveragePerplexity Type = "average_perplexity"
)

// Metric measures one aspect of an agent state.
type Metric interface {
	Name() string
	Description() string
	Calculate(state *domain.AgentState) float64
}

// Types lists the available metrics.
func Types() []Type {
	return []Type{NumKnowledgeNodes, NumKnowledgeEdges, NodeRelevance, AveragePerplexity}
}

// Get returns the metric registered under t.
func Get(t Type) (Metric, error) {
	switch t {
	case NumKnowledgeNodes:
		return nodeCount{}, nil
	case NumKnowledgeEdges:
		return edgeCount{}, nil
	case NodeRelevance:
		return nodeRelevance{}, nil
	case AveragePerplexity:
		return averagePerplexity{}, nil
	default:
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownMetric, t, Types())
	}
}

// GetAll resolves a list of metric names, failing on the first unknown one.
func GetAll(names []string) ([]Metric, error) {
	out := make([]Metric, 0, len(names))
	for _, n := range names {
		m, err := Get(Type(n))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Evaluate calculates every metric against state. A nil state yields an
// empty map.
func Evaluate(ms []Metric, state *domain.AgentState) map[string]float64 {
	out := make(map[string]float64, len(ms))
	if state == nil {
		return out
	}
	for _, m := range ms {
		out[m.Name()] = m.Calculate(state)
	}
	return out
}

type nodeCount struct{}

func (nodeCount) Name() string        { return string(NumKnowledgeNodes) }
func (nodeCount) Description() string { return "Number of nodes in the knowledge graph" }
func (nodeCount) Calculate(s *domain.AgentState) float64 {
	return float64(len(s.KnowledgeGraph().Nodes))
}

type edgeCount struct{}

func (edgeCount) Name() string        { return string(NumKnowledgeEdges) }
func (edgeCount) Description() string { return "Number of edges in the knowledge graph" }
func (edgeCount) Calculate(s *domain.AgentState) float64 {
	return float64(len(s.KnowledgeGraph().Edges))
}

// nodeRelevance is the fraction of graph nodes that share at least one word
// with the learning objectives or the question.
type nodeRelevance struct{}

func (nodeRelevance) Name() string { return string(NodeRelevance) }
func (nodeRelevance) Description() string {
	return "Fraction of knowledge nodes related to the learning objectives"
}

func (nodeRelevance) Calculate(s *domain.AgentState) float64 {
	nodes := s.KnowledgeGraph().Nodes
	if len(nodes) == 0 {
		return 0
	}
	focus := Keywords(s.Question)
	for _, o := range s.LearningObjectives {
		for w := range Keywords(o) {
			focus[w] = struct{}{}
		}
	}
	if len(focus) == 0 {
		return 0
	}

	relevant := 0
	for _, n := range nodes {
		for w := range Keywords(n) {
			if _, ok := focus[w]; ok {
				relevant++
				break
			}
		}
	}
	return float64(relevant) / float64(len(nodes))
}

// averagePerplexity reports the perplexity stored on the state by the
// synthesis step.
type averagePerplexity struct{}

func (averagePerplexity) Name() string { return string(AveragePerplexity) }
func (averagePerplexity) Description() string {
	return "Average perplexity of the agent over its knowledge"
}
func (averagePerplexity) Calculate(s *domain.AgentState) float64 {
	return s.Perplexity
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "how": {}, "what": {}, "why": {},
	"does": {}, "with": {}, "are": {}, "its": {}, "this": {}, "that": {},
}

// Keywords lowercases text and returns its words of three or more letters,
// minus common stopwords.
func Keywords(text string) map[string]struct{} {
	out := map[string]struct{}{}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if len(w) < 3 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}
