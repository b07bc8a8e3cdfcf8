package llm

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

var claudeModels = map[string]string{
	"haiku":  "claude-haiku-4-5-20251001",
	"sonnet": "claude-sonnet-4-5-20250929",
}

// Claude generates text with the Anthropic Messages API.
type Claude struct {
	name   string
	client anthropic.Client
}

// NewClaude creates a Claude backend. An empty apiKey uses ANTHROPIC_API_KEY.
func NewClaude(name, apiKey string) *Claude {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &Claude{name: name, client: anthropic.NewClient(opts...)}
}

func (c *Claude) Name() string { return c.name }

func (c *Claude) Generate(ctx context.Context, p Prompt) (string, error) {
	modelID := claudeModels[c.name]
	if modelID == "" {
		modelID = claudeModels["sonnet"]
	}
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxToken
	}

	messages := make([]anthropic.MessageParam, 0, len(p.History)+1)
	for _, t := range p.History {
		if t.Role == RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Text)))
		} else {
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Text)))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(p.User)))

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(modelID),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temperature),
		Messages:    messages,
	}
	if p.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: p.System}}
	}

	return withRetry(ctx, "claude", func(ctx context.Context) (string, error) {
		msg, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return "", err
		}
		var parts []string
		for _, block := range msg.Content {
			if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
				parts = append(parts, tb.Text)
			}
		}
		return strings.Join(parts, ""), nil
	})
}
