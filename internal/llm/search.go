package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/emiliopalmerini/amadeus/internal/settings"
)

// Searcher answers a free-text query with web-grounded text.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// SearchFunc adapts a function to Searcher.
type SearchFunc func(ctx context.Context, query string) (string, error)

func (f SearchFunc) Search(ctx context.Context, query string) (string, error) {
	return f(ctx, query)
}

const searchSystemPrompt = "You are a research assistant. Answer concisely with facts from current web sources."

// Perplexity searches through Perplexity's OpenAI-compatible API.
type Perplexity struct {
	client *OpenAI
	model  string
}

// NewPerplexity builds a searcher from search settings. The key comes from
// PERPLEXITY_API_KEY.
func NewPerplexity(cfg settings.SearchSettings) (*Perplexity, error) {
	key := os.Getenv("PERPLEXITY_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("%w: PERPLEXITY_API_KEY environment variable not set", ErrSearchUnavailable)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: search base URL not configured", ErrSearchUnavailable)
	}
	client, err := NewOpenAI(key, cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	return &Perplexity{client: client, model: cfg.Model}, nil
}

func (p *Perplexity) Search(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("empty search query")
	}
	resp, err := p.client.Complete(ctx, Request{
		Model:  p.model,
		System: searchSystemPrompt,
		Messages: []Message{
			{Role: "user", Content: query},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to search: %w", err)
	}
	return resp.Content, nil
}
