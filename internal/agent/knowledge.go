package agent

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emiliopalmerini/amadeus/internal/domain"
	"github.com/emiliopalmerini/amadeus/internal/llm"
)

const (
	maxTopics     = 8
	maxTopicRunes = 80
	minConfidence = 0.01
)

// parseExplanation splits a model explanation into its summary and the
// topics named on a trailing "Related:" line.
func parseExplanation(text string) (string, []string) {
	var summary []string
	var related []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if rest, ok := cutPrefixFold(trimmed, "related:"); ok {
			for _, r := range strings.Split(rest, ",") {
				if t := normalizeTopic(r); t != "" {
					related = append(related, t)
				}
			}
			continue
		}
		summary = append(summary, line)
	}
	return strings.TrimSpace(strings.Join(summary, "\n")), related
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(s[len(prefix):]), true
}

// normalizeTopic lowercases and trims a topic name, dropping trailing
// punctuation and capping its length.
func normalizeTopic(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	t = strings.TrimRight(t, ".:;!?")
	if r := []rune(t); len(r) > maxTopicRunes {
		t = strings.TrimSpace(string(r[:maxTopicRunes]))
	}
	return t
}

// parseTopics reads a list of topics from model output.
func parseTopics(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, item := range llm.ParseList(text) {
		t := normalizeTopic(item)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// addTopics registers new topics with zero confidence, up to maxTopics in
// total. It returns the topics actually added.
func addTopics(s *domain.AgentState, topics []string) []string {
	var added []string
	for _, t := range topics {
		if _, ok := s.KnowledgeBase[t]; ok {
			continue
		}
		if len(s.KnowledgeBase) >= maxTopics {
			break
		}
		s.KnowledgeBase[t] = domain.KnowledgeEntry{}
		s.ConfidenceScores[t] = 0
		added = append(added, t)
	}
	return added
}

// sortedTopics returns the knowledge base topics in stable order.
func sortedTopics(s *domain.AgentState) []string {
	out := make([]string, 0, len(s.KnowledgeBase))
	for t := range s.KnowledgeBase {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// learn merges an explanation into the entry for topic and raises its
// confidence by step, capped at 1.
func learn(s *domain.AgentState, topic, explanation string, step float64, source string) {
	summary, related := parseExplanation(explanation)
	entry := s.KnowledgeBase[topic]
	if summary != "" {
		entry.Summary = summary
	}
	for _, r := range related {
		if r != topic && !contains(entry.RelatedTopics, r) {
			entry.RelatedTopics = append(entry.RelatedTopics, r)
		}
	}
	if source != "" && !contains(entry.Sources, source) {
		entry.Sources = append(entry.Sources, source)
	}
	s.KnowledgeBase[topic] = entry
	s.ConfidenceScores[topic] = math.Min(1, s.ConfidenceScores[topic]+step)
}

func removeGap(s *domain.AgentState, topic string) {
	out := s.UnderstandingGaps[:0]
	for _, g := range s.UnderstandingGaps {
		if g != topic {
			out = append(out, g)
		}
	}
	s.UnderstandingGaps = out
}

func addGap(s *domain.AgentState, topic string) {
	if !s.IsGap(topic) {
		s.UnderstandingGaps = append(s.UnderstandingGaps, topic)
	}
}

// perplexity is exp of the mean negative log confidence over all topics,
// i.e. the inverse geometric mean of the confidence scores.
func perplexity(scores map[string]float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, c := range scores {
		sum += math.Log(math.Max(c, minConfidence))
	}
	return math.Exp(-sum / float64(len(scores)))
}

// parseScore reads the first number in text as a score in [0,1]. Values in
// (1,100] are treated as percentages.
func parseScore(text string) (float64, bool) {
	for _, f := range strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= '0' && r <= '9') && r != '.'
	}) {
		v, err := strconv.ParseFloat(strings.Trim(f, "."), 64)
		if err != nil {
			continue
		}
		if v > 1 && v <= 100 {
			v /= 100
		}
		if v < 0 || v > 1 {
			continue
		}
		return v, true
	}
	return 0, false
}

func recordTool(s *domain.AgentState, tool, input, output string, at time.Time) {
	s.ToolOutputs = append(s.ToolOutputs, domain.ToolOutput{
		Tool:      tool,
		Input:     input,
		Output:    output,
		Timestamp: at,
	})
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// assessmentResults records the current confidence of every topic as a
// self-assessment score.
func assessmentResults(s *domain.AgentState, at time.Time) []domain.QuizResult {
	out := make([]domain.QuizResult, 0, len(s.KnowledgeBase))
	for _, t := range sortedTopics(s) {
		out = append(out, domain.QuizResult{Timestamp: at, Topic: t, Score: s.ConfidenceScores[t]})
	}
	return out
}
