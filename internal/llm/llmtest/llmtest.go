// Package llmtest provides a scripted llm.Model for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/apresai/eduanim/internal/llm"
)

// ErrExhausted is returned once every scripted reply has been used.
var ErrExhausted = errors.New("llmtest: no scripted reply left")

// Reply is one scripted answer. A non-nil Err is returned instead of Text.
type Reply struct {
	Text string
	Err  error
}

// Model answers prompts with scripted replies in order and records every
// prompt it receives.
type Model struct {
	mu      sync.Mutex
	replies []Reply
	prompts []llm.Prompt
}

// New returns a Model that answers with texts in order.
func New(texts ...string) *Model {
	m := &Model{}
	for _, t := range texts {
		m.replies = append(m.replies, Reply{Text: t})
	}
	return m
}

// Push appends scripted replies.
func (m *Model) Push(replies ...Reply) *Model {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, replies...)
	return m
}

func (m *Model) Name() string { return "scripted" }

func (m *Model) Generate(ctx context.Context, p llm.Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, p)
	if len(m.replies) == 0 {
		return "", &llm.GenerationError{Backend: "scripted", Attempts: 1, Err: ErrExhausted}
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	if r.Err != nil {
		return "", r.Err
	}
	return r.Text, nil
}

// Prompts returns the prompts received so far.
func (m *Model) Prompts() []llm.Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Prompt(nil), m.prompts...)
}
