package visualize

import (
	"context"
	"math"
	"sort"

	"github.com/a-h/templ"

	"github.com/emiliopalmerini/amadeus/internal/domain"
)

type HeatmapCell struct {
	Topic      string  `json:"topic"`
	Confidence float64 `json:"confidence"`
	Gap        bool    `json:"gap"`
}

type HeatmapData struct {
	Cells []HeatmapCell `json:"cells"`
}

// ConfidenceHeatmapVisualizer lays out one cell per scored topic, weakest
// first.
type ConfidenceHeatmapVisualizer struct {
	cfg Config
}

func NewConfidenceHeatmap(cfg Config) *ConfidenceHeatmapVisualizer {
	return &ConfidenceHeatmapVisualizer{cfg: cfg}
}

func (v *ConfidenceHeatmapVisualizer) Type() Type     { return ConfidenceHeatmap }
func (v *ConfidenceHeatmapVisualizer) Config() Config { return v.cfg }

func (v *ConfidenceHeatmapVisualizer) ProcessData(state *domain.AgentState) HeatmapData {
	data := HeatmapData{Cells: []HeatmapCell{}}
	if state == nil {
		return data
	}
	for topic, c := range state.ConfidenceScores {
		data.Cells = append(data.Cells, HeatmapCell{Topic: topic, Confidence: c, Gap: state.IsGap(topic)})
	}
	sort.Slice(data.Cells, func(i, j int) bool {
		a, b := data.Cells[i], data.Cells[j]
		if a.Confidence != b.Confidence {
			return a.Confidence < b.Confidence
		}
		return a.Topic < b.Topic
	})
	return data
}

func (v *ConfidenceHeatmapVisualizer) Render(data HeatmapData) templ.Component {
	p := paletteFor(v.cfg.Theme)
	s := newSVG(v.cfg)
	n := len(data.Cells)
	if n == 0 {
		return s.component()
	}

	cols := int(math.Ceil(math.Sqrt(float64(n))))
	rows := (n + cols - 1) / cols
	cellW := (float64(v.cfg.Width) - 2*chartMargin) / float64(cols)
	cellH := (float64(v.cfg.Height) - 2*chartMargin) / float64(rows)

	for i, c := range data.Cells {
		x := chartMargin + float64(i%cols)*cellW
		y := chartMargin + float64(i/cols)*cellH
		stroke := p.background
		if c.Gap {
			stroke = p.gap
		}
		s.add(`<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s" stroke="%s" stroke-width="2">`,
			x, y, cellW, cellH, confidenceColor(c.Confidence), stroke)
		s.tooltip(v.cfg, c.Topic+": "+formatScore(c.Confidence))
		s.add(`</rect>`)
		s.add(`<text x="%.1f" y="%.1f" text-anchor="middle">%s</text>`, x+cellW/2, y+cellH/2, esc(c.Topic))
		s.add(`<text x="%.1f" y="%.1f" text-anchor="middle">%s</text>`, x+cellW/2, y+cellH/2+14, formatScore(c.Confidence))
	}
	return s.component()
}

func (v *ConfidenceHeatmapVisualizer) Export(ctx context.Context, data HeatmapData, path string) error {
	return export(ctx, v.cfg, "Confidence Heatmap", data, v.Render(data), path)
}
