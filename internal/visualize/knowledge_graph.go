package visualize

import (
	"context"
	"math"

	"github.com/a-h/templ"

	"github.com/emiliopalmerini/amadeus/internal/domain"
)

const (
	graphMargin = 60.0
	nodeRadius  = 14.0
)

// NodeStatus marks whether a topic is still an understanding gap.
type NodeStatus string

const (
	StatusLearned NodeStatus = "learned"
	StatusGap     NodeStatus = "gap"
)

type GraphNode struct {
	Topic      string     `json:"topic"`
	Confidence float64    `json:"confidence"`
	Status     NodeStatus `json:"status"`
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
}

type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type GraphData struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// KnowledgeGraphVisualizer draws topics on a circle, coloured by confidence
// and outlined when they are gaps.
type KnowledgeGraphVisualizer struct {
	cfg Config
}

func NewKnowledgeGraph(cfg Config) *KnowledgeGraphVisualizer {
	return &KnowledgeGraphVisualizer{cfg: cfg}
}

func (v *KnowledgeGraphVisualizer) Type() Type     { return KnowledgeGraph }
func (v *KnowledgeGraphVisualizer) Config() Config { return v.cfg }

func (v *KnowledgeGraphVisualizer) ProcessData(state *domain.AgentState) GraphData {
	data := GraphData{Nodes: []GraphNode{}, Edges: []GraphEdge{}}
	if state == nil {
		return data
	}

	g := state.KnowledgeGraph()
	for _, e := range g.Edges {
		data.Edges = append(data.Edges, GraphEdge{From: e[0], To: e[1]})
	}

	cx, cy := float64(v.cfg.Width)/2, float64(v.cfg.Height)/2
	radius := math.Max(0, math.Min(cx, cy)-graphMargin)
	n := len(g.Nodes)
	for i, topic := range g.Nodes {
		node := GraphNode{
			Topic:      topic,
			Confidence: state.ConfidenceScores[topic],
			Status:     StatusLearned,
			X:          cx,
			Y:          cy,
		}
		if state.IsGap(topic) {
			node.Status = StatusGap
		}
		if n > 1 {
			angle := 2*math.Pi*float64(i)/float64(n) - math.Pi/2
			node.X = cx + radius*math.Cos(angle)
			node.Y = cy + radius*math.Sin(angle)
		}
		data.Nodes = append(data.Nodes, node)
	}
	return data
}

func (v *KnowledgeGraphVisualizer) Render(data GraphData) templ.Component {
	p := paletteFor(v.cfg.Theme)
	pos := make(map[string]GraphNode, len(data.Nodes))
	for _, n := range data.Nodes {
		pos[n.Topic] = n
	}

	s := newSVG(v.cfg)
	for _, e := range data.Edges {
		a, okA := pos[e.From]
		b, okB := pos[e.To]
		if !okA || !okB {
			continue
		}
		s.add(`<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s" stroke-width="1"/>`, a.X, a.Y, b.X, b.Y, p.muted)
	}
	for _, n := range data.Nodes {
		stroke := "none"
		if n.Status == StatusGap {
			stroke = p.gap
		}
		s.add(`<g class="node %s">`, n.Status)
		s.add(`<circle cx="%.1f" cy="%.1f" r="%.0f" fill="%s" stroke="%s" stroke-width="3">`,
			n.X, n.Y, nodeRadius, confidenceColor(n.Confidence), stroke)
		s.tooltip(v.cfg, n.Topic+" ("+string(n.Status)+", confidence "+formatScore(n.Confidence)+")")
		s.add(`</circle>`)
		s.add(`<text x="%.1f" y="%.1f" text-anchor="middle">%s</text>`, n.X, n.Y+nodeRadius+14, esc(n.Topic))
		s.add(`</g>`)
	}
	return s.component()
}

func (v *KnowledgeGraphVisualizer) Export(ctx context.Context, data GraphData, path string) error {
	return export(ctx, v.cfg, "Knowledge Graph", data, v.Render(data), path)
}
