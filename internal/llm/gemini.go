package llm

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"
)

var geminiModels = map[string]string{
	"gemini-flash": "gemini-2.5-flash",
	"gemini-pro":   "gemini-2.5-pro",
}

// Gemini generates text with the Gemini API through the genai SDK.
type Gemini struct {
	name   string
	client *genai.Client
}

// NewGemini creates a Gemini backend. An empty apiKey uses GEMINI_API_KEY,
// then GOOGLE_API_KEY.
func NewGemini(ctx context.Context, name, apiKey string) (*Gemini, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{name: name, client: client}, nil
}

func (g *Gemini) Name() string { return g.name }

func (g *Gemini) Generate(ctx context.Context, p Prompt) (string, error) {
	modelID := geminiModels[g.name]
	if modelID == "" {
		modelID = geminiModels["gemini-flash"]
	}
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxToken
	}

	contents := make([]*genai.Content, 0, len(p.History)+1)
	for _, t := range p.History {
		role := genai.Role(genai.RoleUser)
		if t.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}
	contents = append(contents, genai.NewContentFromText(p.User, genai.RoleUser))

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](temperature),
		MaxOutputTokens: int32(maxTokens),
	}
	if p.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(p.System, genai.RoleUser)
	}

	return withRetry(ctx, "gemini", func(ctx context.Context) (string, error) {
		resp, err := g.client.Models.GenerateContent(ctx, modelID, contents, cfg)
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	})
}
