package program

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/eduanim/internal/llm"
	"github.com/apresai/eduanim/internal/llm/llmtest"
	"github.com/apresai/eduanim/internal/plan"
	"github.com/apresai/eduanim/internal/style"
)

func testPlan() *plan.Plan {
	return &plan.Plan{
		Title: "Gradient Descent",
		Steps: []plan.Step{
			{Title: "Hills and valleys", DurationSeconds: 20, KeyConcepts: []string{"loss"}, NarrationScript: "Imagine a ball on a hill."},
			{Title: "The update rule", DurationSeconds: 40, Equations: []string{`\theta \leftarrow \theta - \eta \nabla L`}},
			{Title: "Recap", DurationSeconds: 15},
		},
	}
}

func TestMemoryCapacityIsClamped(t *testing.T) {
	assert.Equal(t, MinMemory, NewMemory(0).Cap())
	assert.Equal(t, 4, NewMemory(4).Cap())
	assert.Equal(t, MaxMemory, NewMemory(50).Cap())
	assert.Equal(t, DefaultMemory, (&Memory{}).Cap())
}

func TestMemoryEvictsOldest(t *testing.T) {
	m := NewMemory(3)
	_, ok := m.Latest()
	assert.False(t, ok)

	for _, r := range []string{"a", "b", "c", "d", "e"} {
		m.Add(r)
	}
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, []string{"c", "d", "e"}, m.Replies())
	latest, ok := m.Latest()
	require.True(t, ok)
	assert.Equal(t, "e", latest)

	var zero Memory
	zero.Add("x")
	assert.Equal(t, []string{"x"}, zero.Replies())
}

func TestSynthesizeRecordsReplies(t *testing.T) {
	model := llmtest.New("first reply", "second reply")
	s := NewSynthesizer(model, Options{})
	mem := NewMemory(3)

	got, err := s.Synthesize(context.Background(), testPlan(), mem)
	require.NoError(t, err)
	assert.Equal(t, "first reply", got)

	_, err = s.Synthesize(context.Background(), testPlan(), mem)
	require.NoError(t, err)
	assert.Equal(t, []string{"first reply", "second reply"}, mem.Replies())

	prompts := model.Prompts()
	require.Len(t, prompts, 2)
	assert.NotContains(t, prompts[0].User, "PREVIOUS ATTEMPTS")
	assert.Contains(t, prompts[1].User, "PREVIOUS ATTEMPTS")
	assert.Contains(t, prompts[1].User, "first reply")

	first := prompts[0].User
	assert.Contains(t, first, "Name the scene class GradientDescent")
	assert.Contains(t, first, "Step 2: The update rule (40s, graph_scene)")
	assert.Contains(t, first, "Step 1: Hills and valleys (20s, intro_scene)")
	assert.Contains(t, first, `"LearnVidAI"`)
}

func TestSynthesizeWithoutMemory(t *testing.T) {
	model := llmtest.New("reply")
	_, err := NewSynthesizer(model, Options{}).Synthesize(context.Background(), testPlan(), nil)
	require.NoError(t, err)
}

func TestPromptFollowsStyle(t *testing.T) {
	p := testPlan()
	whiteboard := buildUserPrompt(p, style.MustLookup(style.Whiteboard), "Acme", nil)
	assert.Contains(t, whiteboard, "LaTeX is NOT available")
	assert.Contains(t, whiteboard, "background WHITE")
	assert.Contains(t, whiteboard, `"Acme"`)

	classic := buildUserPrompt(p, style.MustLookup(style.Classic), "Acme", nil)
	assert.NotContains(t, classic, "LaTeX is NOT available")

	segmented := buildUserPrompt(p, style.MustLookup(style.Segmented), "Acme", nil)
	assert.Contains(t, segmented, "INTRO, FUNDAMENTALS, PRINCIPLES, EXAMPLE, CONCLUSION")
}

func TestSynthesizePropagatesModelErrors(t *testing.T) {
	cause := &llm.GenerationError{Backend: "scripted", Attempts: 3, Err: errors.New("overloaded")}
	model := (&llmtest.Model{}).Push(llmtest.Reply{Err: cause})
	mem := NewMemory(3)

	_, err := NewSynthesizer(model, Options{}).Synthesize(context.Background(), testPlan(), mem)
	var ge *llm.GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, 0, mem.Len())
}

func TestRefineSendsLatestReply(t *testing.T) {
	model := llmtest.New("v1", "v2")
	s := NewSynthesizer(model, Options{})
	mem := NewMemory(3)

	_, err := s.Refine(context.Background(), "make it blue", mem)
	assert.ErrorIs(t, err, ErrNoPriorReply)

	_, err = s.Synthesize(context.Background(), testPlan(), mem)
	require.NoError(t, err)
	got, err := s.Refine(context.Background(), "make it blue", mem)
	require.NoError(t, err)
	assert.Equal(t, "v2", got)
	assert.Equal(t, []string{"v1", "v2"}, mem.Replies())

	last := model.Prompts()[1]
	require.Len(t, last.History, 2)
	assert.Equal(t, llm.RoleAssistant, last.History[1].Role)
	assert.Equal(t, "v1", last.History[1].Text)
	assert.Contains(t, last.User, "make it blue")
}
