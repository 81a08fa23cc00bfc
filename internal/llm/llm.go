// Package llm wraps chat-completion providers behind a single Client.
package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/emiliopalmerini/amadeus/internal/domain"
)

var (
	ErrMissingAPIKey     = errors.New("missing API key")
	ErrEmptyResponse     = errors.New("empty response from model")
	ErrSearchUnavailable = errors.New("web search unavailable")
)

// Message is one chat turn.
type Message = domain.Message

// Request is a provider-neutral chat completion request. System is sent as
// the system prompt; Messages carry user and assistant turns. A nil
// Temperature leaves the provider default in place.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Temperature *float64
	MaxTokens   int
}

type Response struct {
	Content      string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Client completes chat requests.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Provider() string
}

// Prompt builds a request with one user message.
func Prompt(system, user string) Request {
	return Request{
		System:   system,
		Messages: []Message{{Role: "user", Content: user}},
	}
}

// New picks a provider for model: claude* goes to Anthropic, mock* to the
// scripted mock, everything else to OpenAI.
func New(model string) (Client, error) {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "claude"):
		c, err := NewAnthropic("")
		if err != nil {
			return nil, err
		}
		return c, nil
	case strings.HasPrefix(m, "mock"):
		return NewMock(), nil
	default:
		c, err := NewOpenAI("", "")
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// ParseList splits model output into list items, dropping bullets and
// numbering. Blank lines are skipped.
func ParseList(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		item := strings.TrimSpace(line)
		item = strings.TrimLeft(item, "-*•# \t")
		item = trimNumbering(item)
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

// trimNumbering removes a leading "12." or "3)" marker.
func trimNumbering(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(s) {
		return s
	}
	if s[i] == '.' || s[i] == ')' {
		return s[i+1:]
	}
	return s
}
