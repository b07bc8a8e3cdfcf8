// Package program asks the model for a Manim program implementing a plan.
package program

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/apresai/eduanim/internal/llm"
	"github.com/apresai/eduanim/internal/plan"
	"github.com/apresai/eduanim/internal/style"
)

var tracer = otel.Tracer("eduanim-program")

// ErrNoPriorReply is returned by Refine when memory holds nothing to refine.
var ErrNoPriorReply = errors.New("no prior program to refine")

// Options configures a Synthesizer.
type Options struct {
	Style    style.Profile
	Branding string
	Logger   *slog.Logger
}

// Synthesizer produces raw model replies containing a program. It returns
// the reply untouched; extraction and repair happen downstream.
type Synthesizer struct {
	model    llm.Model
	style    style.Profile
	branding string
	log      *slog.Logger
}

func NewSynthesizer(model llm.Model, opts Options) *Synthesizer {
	if opts.Style.Name == "" {
		opts.Style = style.MustLookup(style.Default)
	}
	if opts.Branding == "" {
		opts.Branding = style.DefaultBranding
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Synthesizer{model: model, style: opts.Style, branding: opts.Branding, log: opts.Logger}
}

// Style returns the profile the synthesizer writes for.
func (s *Synthesizer) Style() style.Profile { return s.style }

// Synthesize asks for a program implementing p. Replies already in mem are
// quoted as previous attempts, and the new reply is added to mem. A nil mem
// disables memory for this call.
func (s *Synthesizer) Synthesize(ctx context.Context, p *plan.Plan, mem *Memory) (string, error) {
	ctx, span := tracer.Start(ctx, "program.synthesize")
	defer span.End()

	var previous []string
	if mem != nil {
		previous = mem.Replies()
	}
	span.SetAttributes(
		attribute.String("program.style", string(s.style.Name)),
		attribute.Int("program.previous_attempts", len(previous)),
	)

	start := time.Now()
	reply, err := s.model.Generate(ctx, llm.Prompt{
		System:    systemPrompt,
		User:      buildUserPrompt(p, s.style, s.branding, previous),
		MaxTokens: 16384,
	})
	if err != nil {
		return "", fmt.Errorf("generate program: %w", err)
	}
	if mem != nil {
		mem.Add(reply)
	}

	s.log.Info("program synthesized",
		"stage", "code",
		"style", s.style.Name,
		"previous_attempts", len(previous),
		"reply_bytes", len(reply),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return reply, nil
}

// Refine sends feedback about the latest reply in mem and returns the
// model's revision, which is also added to mem.
func (s *Synthesizer) Refine(ctx context.Context, feedback string, mem *Memory) (string, error) {
	ctx, span := tracer.Start(ctx, "program.refine")
	defer span.End()

	if mem == nil {
		return "", ErrNoPriorReply
	}
	latest, ok := mem.Latest()
	if !ok {
		return "", ErrNoPriorReply
	}
	if strings.TrimSpace(feedback) == "" {
		return "", errors.New("refine: empty feedback")
	}

	start := time.Now()
	reply, err := s.model.Generate(ctx, llm.Prompt{
		System: systemPrompt,
		History: []llm.Turn{
			{Role: llm.RoleUser, Text: refineOpening},
			{Role: llm.RoleAssistant, Text: latest},
		},
		User:      buildRefinePrompt(feedback),
		MaxTokens: 16384,
	})
	if err != nil {
		return "", fmt.Errorf("refine program: %w", err)
	}
	mem.Add(reply)

	s.log.Info("program refined",
		"stage", "code",
		"feedback_bytes", len(feedback),
		"reply_bytes", len(reply),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return reply, nil
}
