package plan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/apresai/eduanim/internal/llm"
)

var tracer = otel.Tracer("eduanim-plan")

// Request describes the lesson to plan.
type Request struct {
	Topic      string
	Complexity Complexity
	Domain     string
	// Reference is optional source material, already extracted to text.
	Reference string
}

// Synthesizer produces plans with a single model call. It keeps no memory
// between calls.
type Synthesizer struct {
	model  llm.Model
	policy DomainPolicy
	log    *slog.Logger
}

// NewSynthesizer creates a Synthesizer. A nil policy allows every topic.
func NewSynthesizer(model llm.Model, policy DomainPolicy, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{model: model, policy: policy, log: logger}
}

// Synthesize plans req. Every failure wraps ErrPlanGeneration, except a
// policy rejection, which wraps ErrTopicNotAllowed and happens before any
// model call.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (*Plan, []Issue, error) {
	ctx, span := tracer.Start(ctx, "plan.synthesize")
	defer span.End()

	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		return nil, nil, fmt.Errorf("%w: empty topic", ErrPlanGeneration)
	}
	if !s.policy.Allows(req.Topic) {
		return nil, nil, fmt.Errorf("%w: %q is outside the configured subject areas", ErrTopicNotAllowed, req.Topic)
	}
	if req.Complexity == "" {
		req.Complexity = DefaultComplexity
	}
	span.SetAttributes(
		attribute.String("plan.topic", req.Topic),
		attribute.String("plan.complexity", string(req.Complexity)),
	)

	start := time.Now()
	reply, err := s.model.Generate(ctx, llm.Prompt{
		System:    systemPrompt,
		User:      buildUserPrompt(req),
		MaxTokens: 8192,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrPlanGeneration, err)
	}

	text := llm.ExtractJSON(reply)
	if text == "" {
		return nil, nil, fmt.Errorf("%w: no JSON content found in response", ErrPlanGeneration)
	}
	p, issues, err := Parse([]byte(text))
	if err != nil {
		s.log.Warn("plan reply rejected", "error", err, "reply", llm.Truncate(reply, 500))
		return nil, nil, err
	}
	if p.Title == "" {
		p.Title = req.Topic
	}

	s.log.Info("plan synthesized",
		"stage", "content",
		"title", p.Title,
		"steps", len(p.Steps),
		"total_seconds", p.TotalDuration(),
		"issues", len(issues),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	for _, is := range issues {
		s.log.Warn("plan issue", "category", is.Category, "message", is.Message)
	}
	return p, issues, nil
}
