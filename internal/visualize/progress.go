package visualize

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/emiliopalmerini/amadeus/internal/domain"
)

const chartMargin = 50.0

var seriesColors = []string{"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd", "#8c564b", "#e377c2", "#17becf"}

type ProgressPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
}

type ProgressSeries struct {
	Topic  string          `json:"topic"`
	Points []ProgressPoint `json:"points"`
}

type ProgressData struct {
	Series []ProgressSeries `json:"series"`
}

// LearningProgressVisualizer plots quiz scores over time, one line per topic.
type LearningProgressVisualizer struct {
	cfg Config
}

func NewLearningProgress(cfg Config) *LearningProgressVisualizer {
	return &LearningProgressVisualizer{cfg: cfg}
}

func (v *LearningProgressVisualizer) Type() Type     { return LearningProgress }
func (v *LearningProgressVisualizer) Config() Config { return v.cfg }

func (v *LearningProgressVisualizer) ProcessData(state *domain.AgentState) ProgressData {
	data := ProgressData{Series: []ProgressSeries{}}
	if state == nil {
		return data
	}

	byTopic := map[string][]ProgressPoint{}
	for _, q := range state.QuizResults {
		byTopic[q.Topic] = append(byTopic[q.Topic], ProgressPoint{Timestamp: q.Timestamp, Score: q.Score})
	}
	for topic, points := range byTopic {
		sort.SliceStable(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
		data.Series = append(data.Series, ProgressSeries{Topic: topic, Points: points})
	}
	sort.Slice(data.Series, func(i, j int) bool { return data.Series[i].Topic < data.Series[j].Topic })
	return data
}

func (v *LearningProgressVisualizer) Render(data ProgressData) templ.Component {
	p := paletteFor(v.cfg.Theme)
	w, h := float64(v.cfg.Width), float64(v.cfg.Height)

	// Points share one time axis, indexed by distinct timestamp.
	var stamps []time.Time
	seen := map[time.Time]bool{}
	for _, s := range data.Series {
		for _, pt := range s.Points {
			if !seen[pt.Timestamp] {
				seen[pt.Timestamp] = true
				stamps = append(stamps, pt.Timestamp)
			}
		}
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
	index := make(map[time.Time]int, len(stamps))
	for i, t := range stamps {
		index[t] = i
	}

	x := func(t time.Time) float64 {
		if len(stamps) < 2 {
			return w / 2
		}
		return chartMargin + float64(index[t])*(w-2*chartMargin)/float64(len(stamps)-1)
	}
	y := func(score float64) float64 {
		return h - chartMargin - score*(h-2*chartMargin)
	}

	s := newSVG(v.cfg)
	s.add(`<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s"/>`, chartMargin, y(0), w-chartMargin, y(0), p.muted)
	s.add(`<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s"/>`, chartMargin, y(0), chartMargin, y(1), p.muted)
	s.add(`<text x="%.1f" y="%.1f" text-anchor="end">1.0</text>`, chartMargin-6, y(1)+4)
	s.add(`<text x="%.1f" y="%.1f" text-anchor="end">0.0</text>`, chartMargin-6, y(0)+4)

	for i, series := range data.Series {
		color := seriesColors[i%len(seriesColors)]
		coords := make([]string, 0, len(series.Points))
		for _, pt := range series.Points {
			coords = append(coords, fmt.Sprintf("%.1f,%.1f", x(pt.Timestamp), y(pt.Score)))
		}
		s.add(`<g class="series">`)
		s.add(`<polyline points="%s" fill="none" stroke="%s" stroke-width="2"/>`, strings.Join(coords, " "), color)
		for _, pt := range series.Points {
			s.add(`<circle cx="%.1f" cy="%.1f" r="3" fill="%s">`, x(pt.Timestamp), y(pt.Score), color)
			s.tooltip(v.cfg, series.Topic+" "+formatScore(pt.Score)+" at "+pt.Timestamp.Format(time.RFC3339))
			s.add(`</circle>`)
		}
		s.add(`<text x="%.1f" y="%.1f" fill="%s">%s</text>`, w-chartMargin+6, chartMargin+float64(i)*16, color, esc(series.Topic))
		s.add(`</g>`)
	}
	return s.component()
}

func (v *LearningProgressVisualizer) Export(ctx context.Context, data ProgressData, path string) error {
	return export(ctx, v.cfg, "Learning Progress", data, v.Render(data), path)
}

func formatScore(c float64) string {
	return fmt.Sprintf("%.2f", c)
}
