package domain

import (
	"sort"
	"time"
)

// Message is one conversational turn recorded in the agent state.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// KnowledgeEntry is what the agent has learned about one topic.
type KnowledgeEntry struct {
	Summary       string   `json:"summary"`
	RelatedTopics []string `json:"related_topics,omitempty"`
	Sources       []string `json:"sources,omitempty"`
}

// Source is a reference consulted during research.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// QuizResult is one self-assessment score.
type QuizResult struct {
	Timestamp time.Time `json:"timestamp"`
	Topic     string    `json:"topic"`
	Score     float64   `json:"score"`
}

// ToolOutput records one tool invocation made by a pipeline node.
type ToolOutput struct {
	Tool      string    `json:"tool"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentState is the mutable state threaded through a pipeline run.
type AgentState struct {
	Messages    []Message    `json:"messages"`
	CurrentStep string       `json:"current_step"`
	Timestamp   time.Time    `json:"timestamp"`
	Status      string       `json:"status"`
	Error       string       `json:"error,omitempty"`
	Iterations  int          `json:"iterations"`
	ToolOutputs []ToolOutput `json:"tool_outputs,omitempty"`

	KnowledgeBase      map[string]KnowledgeEntry `json:"knowledge_base"`
	LearningObjectives []string                  `json:"learning_objectives"`
	UnderstandingGaps  []string                  `json:"understanding_gaps"`
	ConfidenceScores   map[string]float64        `json:"confidence_scores"`
	Sources            []Source                  `json:"sources,omitempty"`
	QuizResults        []QuizResult              `json:"quiz_results,omitempty"`
	Perplexity         float64                   `json:"perplexity,omitempty"`
	Metadata           map[string]any            `json:"metadata,omitempty"`

	Question        string   `json:"question,omitempty"`
	KnowledgeChunks []string `json:"knowledge_chunks,omitempty"`
	Subquestions    []string `json:"subquestions,omitempty"`
	AnswerText      string   `json:"answer_text,omitempty"`
	ExternalData    []string `json:"external_data,omitempty"`
	NoveltyPassed   bool     `json:"novelty_passed,omitempty"`
	NoveltyAttempts int      `json:"novelty_attempts,omitempty"`
}

// NewAgentState returns an initialized state for a run started at now.
func NewAgentState(input string, now time.Time) *AgentState {
	return &AgentState{
		Messages:         []Message{{Role: "user", Content: input}},
		Timestamp:        now,
		Status:           "running",
		KnowledgeBase:    map[string]KnowledgeEntry{},
		ConfidenceScores: map[string]float64{},
		Metadata:         map[string]any{},
		Question:         input,
	}
}

// Clone returns a deep copy. Metadata values are copied shallowly.
func (s *AgentState) Clone() *AgentState {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = append([]Message(nil), s.Messages...)
	out.ToolOutputs = append([]ToolOutput(nil), s.ToolOutputs...)
	out.LearningObjectives = append([]string(nil), s.LearningObjectives...)
	out.UnderstandingGaps = append([]string(nil), s.UnderstandingGaps...)
	out.Sources = append([]Source(nil), s.Sources...)
	out.QuizResults = append([]QuizResult(nil), s.QuizResults...)
	out.KnowledgeChunks = append([]string(nil), s.KnowledgeChunks...)
	out.Subquestions = append([]string(nil), s.Subquestions...)
	out.ExternalData = append([]string(nil), s.ExternalData...)

	if s.KnowledgeBase != nil {
		out.KnowledgeBase = make(map[string]KnowledgeEntry, len(s.KnowledgeBase))
		for k, v := range s.KnowledgeBase {
			v.RelatedTopics = append([]string(nil), v.RelatedTopics...)
			v.Sources = append([]string(nil), v.Sources...)
			out.KnowledgeBase[k] = v
		}
	}
	if s.ConfidenceScores != nil {
		out.ConfidenceScores = make(map[string]float64, len(s.ConfidenceScores))
		for k, v := range s.ConfidenceScores {
			out.ConfidenceScores[k] = v
		}
	}
	out.Metadata = cloneAnyMap(s.Metadata)
	return &out
}

// IsGap reports whether topic is listed as an understanding gap.
func (s *AgentState) IsGap(topic string) bool {
	for _, g := range s.UnderstandingGaps {
		if g == topic {
			return true
		}
	}
	return false
}

// AddMessage appends a message to the transcript.
func (s *AgentState) AddMessage(role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content})
}

// KnowledgeGraph is the node/edge view of the knowledge base.
type KnowledgeGraph struct {
	Nodes []string
	Edges [][2]string
}

// KnowledgeGraph derives a graph from the knowledge base: every topic and
// every related topic is a node; each topic links to its related topics.
// Edges are undirected and de-duplicated. Output is sorted.
func (s *AgentState) KnowledgeGraph() KnowledgeGraph {
	nodes := map[string]struct{}{}
	edges := map[[2]string]struct{}{}

	for topic, entry := range s.KnowledgeBase {
		nodes[topic] = struct{}{}
		for _, rel := range entry.RelatedTopics {
			if rel == "" || rel == topic {
				continue
			}
			nodes[rel] = struct{}{}
			a, b := topic, rel
			if b < a {
				a, b = b, a
			}
			edges[[2]string{a, b}] = struct{}{}
		}
	}

	g := KnowledgeGraph{
		Nodes: make([]string, 0, len(nodes)),
		Edges: make([][2]string, 0, len(edges)),
	}
	for n := range nodes {
		g.Nodes = append(g.Nodes, n)
	}
	for e := range edges {
		g.Edges = append(g.Edges, e)
	}
	sort.Strings(g.Nodes)
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i][0] != g.Edges[j][0] {
			return g.Edges[i][0] < g.Edges[j][0]
		}
		return g.Edges[i][1] < g.Edges[j][1]
	})
	return g
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
