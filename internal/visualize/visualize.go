// Package visualize renders agent state as standalone HTML (inline SVG), as
// a bare SVG image, or exports the processed data as JSON.
package visualize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/a-h/templ"

	"github.com/emiliopalmerini/amadeus/internal/domain"
	"github.com/emiliopalmerini/amadeus/internal/settings"
)

var (
	ErrUnknownVisualizer = errors.New("unknown visualizer")
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

// Type names a visualizer.
type Type string

const (
	KnowledgeGraph    Type = "knowledge_graph"
	LearningProgress  Type = "learning_progress"
	ConfidenceHeatmap Type = "confidence_heatmap"
)

func Types() []Type {
	return []Type{KnowledgeGraph, LearningProgress, ConfidenceHeatmap}
}

// Format is an export file format.
type Format string

const (
	FormatHTML Format = "html"
	FormatJSON Format = "json"
	FormatSVG  Format = "svg"
)

func Formats() []Format {
	return []Format{FormatHTML, FormatJSON, FormatSVG}
}

// Config controls the output of a visualizer.
type Config struct {
	Width        int
	Height       int
	Theme        string
	Interactive  bool
	ExportFormat Format
}

// DefaultConfig reads the visualizer settings.
func DefaultConfig() Config {
	v := settings.Global().Visualizer
	return Config{
		Width:        v.Width,
		Height:       v.Height,
		Theme:        v.Theme,
		Interactive:  v.Interactive,
		ExportFormat: Format(v.ExportFormat),
	}
}

// Visualizer turns agent state into data of type V and renders it.
type Visualizer[V any] interface {
	Type() Type
	Config() Config
	ProcessData(state *domain.AgentState) V
	Render(data V) templ.Component
	Export(ctx context.Context, data V, path string) error
}

// Renderer is a Visualizer with its data type hidden, so callers can pick
// one by name.
type Renderer interface {
	Type() Type
	Config() Config
	Component(state *domain.AgentState) templ.Component
	Export(ctx context.Context, state *domain.AgentState, path string) error
}

type renderer[V any] struct {
	v Visualizer[V]
}

// Adapt wraps v as a Renderer.
func Adapt[V any](v Visualizer[V]) Renderer {
	return renderer[V]{v: v}
}

func (r renderer[V]) Type() Type     { return r.v.Type() }
func (r renderer[V]) Config() Config { return r.v.Config() }

func (r renderer[V]) Component(state *domain.AgentState) templ.Component {
	return r.v.Render(r.v.ProcessData(state))
}

func (r renderer[V]) Export(ctx context.Context, state *domain.AgentState, path string) error {
	return r.v.Export(ctx, r.v.ProcessData(state), path)
}

// New returns the visualizer registered under t. An empty t selects the
// knowledge graph.
func New(t Type, cfg Config) (Renderer, error) {
	switch t {
	case "", KnowledgeGraph:
		return Adapt[GraphData](NewKnowledgeGraph(cfg)), nil
	case LearningProgress:
		return Adapt[ProgressData](NewLearningProgress(cfg)), nil
	case ConfidenceHeatmap:
		return Adapt[HeatmapData](NewConfidenceHeatmap(cfg)), nil
	default:
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownVisualizer, t, Types())
	}
}

// export writes data to path in cfg.ExportFormat: a full HTML page around
// body, body alone as an SVG image, or the data itself as JSON.
func export(ctx context.Context, cfg Config, title string, data any, body templ.Component, path string) error {
	var buf bytes.Buffer
	switch cfg.ExportFormat {
	case FormatHTML, "":
		if err := Page(title, cfg, body).Render(ctx, &buf); err != nil {
			return fmt.Errorf("failed to render %s: %w", title, err)
		}
	case FormatSVG:
		if err := Image(cfg, body).Render(ctx, &buf); err != nil {
			return fmt.Errorf("failed to render %s: %w", title, err)
		}
	case FormatJSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(data); err != nil {
			return fmt.Errorf("failed to encode %s: %w", title, err)
		}
	default:
		return fmt.Errorf("%w %q (available: %v)", ErrUnsupportedFormat, cfg.ExportFormat, Formats())
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}
