// Package llm wraps the text-generation backends behind one interface.
package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a prior exchange.
type Turn struct {
	Role Role
	Text string
}

// Prompt is a single generation request. History turns are sent before
// User, oldest first.
type Prompt struct {
	System    string
	User      string
	History   []Turn
	MaxTokens int
}

// Model generates text from a prompt.
type Model interface {
	Name() string
	Generate(ctx context.Context, p Prompt) (string, error)
}

// GenerationError is returned when a backend could not produce text.
type GenerationError struct {
	Backend  string
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed after %d attempt(s): %v", e.Backend, e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ErrEmptyResponse is returned when a backend answers with no text.
var ErrEmptyResponse = errors.New("empty response")

const (
	temperature     = 0.7
	defaultMaxToken = 8192
	maxAttempts     = 3
	initialBackoff  = 1 * time.Second
	backoffMult     = 2
	maxBackoff      = 10 * time.Second
)

// withRetry calls fn until it returns non-empty text, backing off between
// attempts. Every failure, including an empty reply, is retried.
func withRetry(ctx context.Context, backend string, fn func(ctx context.Context) (string, error)) (string, error) {
	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		text, err := fn(ctx)
		switch {
		case err != nil:
			lastErr = fmt.Errorf("attempt %d/%d: %w", attempt, maxAttempts, err)
		case strings.TrimSpace(text) == "":
			lastErr = fmt.Errorf("attempt %d/%d: %w", attempt, maxAttempts, ErrEmptyResponse)
		default:
			return text, nil
		}

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*backoffMult, maxBackoff)
		}
	}

	return "", &GenerationError{Backend: backend, Attempts: maxAttempts, Err: lastErr}
}

// Config carries backend credentials. Empty keys fall back to the
// backend's own environment lookup.
type Config struct {
	AnthropicAPIKey string
	GeminiAPIKey    string
	AWSRegion       string
}

// Models lists the accepted model names.
func Models() []string {
	return []string{"haiku", "sonnet", "gemini-flash", "gemini-pro", "nova-lite"}
}

// New creates a Model by name.
func New(ctx context.Context, name string, cfg Config) (Model, error) {
	switch name {
	case "haiku", "sonnet":
		return NewClaude(name, cfg.AnthropicAPIKey), nil
	case "gemini-flash", "gemini-pro":
		return NewGemini(ctx, name, cfg.GeminiAPIKey)
	case "nova-lite":
		return NewNova(ctx, name, cfg.AWSRegion)
	default:
		return nil, fmt.Errorf("unknown model %q: choose %s", name, strings.Join(Models(), ", "))
	}
}

var (
	scratchpadRe = regexp.MustCompile(`(?s)<scratchpad>.*?</scratchpad>`)
	jsonFenceRe  = regexp.MustCompile("(?s)```(?:json)?\\s*\n?(.*?)\n?```")
)

// ExtractJSON strips scratchpad tags and markdown fences from a reply and
// returns the text between the first '{' and the last '}'.
func ExtractJSON(text string) string {
	text = scratchpadRe.ReplaceAllString(text, "")
	if m := jsonFenceRe.FindStringSubmatch(text); len(m) > 1 {
		text = m[1]
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

// Truncate shortens s to at most n bytes for logs and error messages.
func Truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
