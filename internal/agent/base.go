// Package agent implements the knowledge-gathering pipelines.
//
// A pipeline is a Graph of nodes over domain.AgentState. BasePipeline owns
// the state shared between a running graph and concurrent readers such as
// the experiment runner's snapshot loop: every node works on a private copy
// and the result is committed under a lock, so CurrentState never observes
// a half-applied step.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emiliopalmerini/amadeus/internal/domain"
	"github.com/emiliopalmerini/amadeus/internal/llm"
	"github.com/emiliopalmerini/amadeus/internal/logging"
	"github.com/emiliopalmerini/amadeus/internal/ports"
	"github.com/emiliopalmerini/amadeus/internal/settings"
)

// Pipeline runs an agent over an input and exposes its live state.
type Pipeline interface {
	Name() string
	Run(ctx context.Context, input string, opts ...RunOption) (*domain.AgentState, error)
	CurrentState() *domain.AgentState
	Config() map[string]any
}

// Deps are the collaborators a pipeline may use. Zero values are allowed:
// a nil LLM is created from the resolved model name on first use, and a
// nil Searcher or Memory disables the steps that need them.
type Deps struct {
	LLM      llm.Client
	Model    string
	Searcher llm.Searcher
	Memory   ports.DBClient
	Logger   logging.Logger
	Now      func() time.Time
}

// RunOption adjusts a single Run call.
type RunOption func(*runConfig)

type runConfig struct {
	model string
}

// WithModel overrides the model for one run.
func WithModel(model string) RunOption {
	return func(c *runConfig) { c.model = model }
}

// BasePipeline carries the state handling shared by all pipelines.
type BasePipeline struct {
	name   string
	deps   Deps
	graph  *Graph
	logger logging.Logger

	runMu sync.Mutex

	mu       sync.RWMutex
	state    *domain.AgentState
	runModel string
}

func newBase(name string, deps Deps) *BasePipeline {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &BasePipeline{
		name:   name,
		deps:   deps,
		logger: logging.With(logging.OrNoOp(deps.Logger), "component", "pipeline", "pipeline", name),
	}
}

func (b *BasePipeline) Name() string { return b.name }

// CurrentState returns a copy of the latest committed state, or nil before
// the first run.
func (b *BasePipeline) CurrentState() *domain.AgentState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state.Clone()
}

// Model resolves the model name: call override, then the pipeline's
// instance setting, then the global LLM setting.
func (b *BasePipeline) Model() string {
	b.mu.RLock()
	call := b.runModel
	b.mu.RUnlock()
	return settings.Resolve(call, b.deps.Model, settings.Global().LLM)
}

func (b *BasePipeline) baseConfig() map[string]any {
	g := settings.Global()
	return map[string]any{
		"type":            b.name,
		"llm":             b.Model(),
		"temperature":     g.Temperature,
		"max_tokens":      g.MaxTokens,
		"recursion_limit": b.graph.RecursionLimit(),
		"web_search":      b.deps.Searcher != nil,
		"memory":          b.deps.Memory != nil,
	}
}

func (b *BasePipeline) commit(node string, s *domain.AgentState) {
	s.Timestamp = b.deps.Now()
	b.mu.Lock()
	b.state = s.Clone()
	b.mu.Unlock()
	if node != "" {
		b.logger.Debug("step committed", "node", node, "iterations", s.Iterations)
	}
}

// complete sends one prompt using the resolved model. Temperature and max
// tokens always come from the global settings.
func (b *BasePipeline) complete(ctx context.Context, system, user string) (string, error) {
	model := b.Model()
	client := b.deps.LLM
	if client == nil {
		c, err := llm.New(model)
		if err != nil {
			return "", fmt.Errorf("failed to create LLM client: %w", err)
		}
		client = c
	}

	g := settings.Global()
	req := llm.Prompt(system, user)
	req.Model = model
	req.Temperature = &g.Temperature
	req.MaxTokens = g.MaxTokens

	resp, err := client.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	b.logger.Debug("completion", "model", model, "input_tokens", resp.InputTokens, "output_tokens", resp.OutputTokens)
	return resp.Content, nil
}

// run executes the graph from a fresh state. init customises the initial
// state before the first node.
func (b *BasePipeline) run(ctx context.Context, input string, opts []RunOption, init func(*domain.AgentState)) (*domain.AgentState, error) {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	var cfg runConfig
	for _, o := range opts {
		o(&cfg)
	}
	b.mu.Lock()
	b.runModel = cfg.model
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.runModel = ""
		b.mu.Unlock()
	}()

	state := domain.NewAgentState(input, b.deps.Now())
	if init != nil {
		init(state)
	}
	b.commit("", state)
	b.logger.Info("pipeline started", "model", b.Model())

	final, err := b.graph.Invoke(ctx, state, b.commit)
	if err != nil {
		final.Status = string(domain.StatusFailed)
		final.Error = err.Error()
		b.commit("", final)
		b.logger.Error("pipeline failed", "error", err, "step", final.CurrentStep)
		return final.Clone(), fmt.Errorf("pipeline %s: %w", b.name, err)
	}

	final.Status = string(domain.StatusCompleted)
	b.commit("", final)
	b.logger.Info("pipeline completed", "iterations", final.Iterations, "topics", len(final.KnowledgeBase))
	return final.Clone(), nil
}
