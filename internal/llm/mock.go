package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/emiliopalmerini/amadeus/internal/domain"
)

// Rule maps a prompt substring to a canned reply.
type Rule struct {
	Contains string
	Reply    string
}

// Mock is a deterministic Client driven by substring rules. The prompt
// matched is the system prompt followed by the last user turn; the first
// matching rule wins.
type Mock struct {
	mu    sync.Mutex
	rules []Rule
	err   error
	calls []Request
}

func NewMock(rules ...Rule) *Mock {
	return &Mock{rules: rules}
}

// On appends a rule.
func (m *Mock) On(contains, reply string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, Rule{Contains: contains, Reply: reply})
	return m
}

// Fail makes every subsequent call return err.
func (m *Mock) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the requests received so far.
func (m *Mock) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}

func (m *Mock) Provider() string { return "mock" }

func (m *Mock) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}

	input := lastUser(req.Messages)
	prompt := req.System + "\n" + input
	reply := fmt.Sprintf("Mock response to: %s", input)
	for _, r := range m.rules {
		if strings.Contains(prompt, r.Contains) {
			reply = r.Reply
			break
		}
	}
	return &Response{
		Content:      reply,
		Model:        req.Model,
		InputTokens:  int64(len(strings.Fields(prompt))),
		OutputTokens: int64(len(strings.Fields(reply))),
	}, nil
}

// lastUser returns the content of the final user turn.
func lastUser(msgs []domain.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}
