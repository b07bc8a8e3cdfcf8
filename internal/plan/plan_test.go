package plan

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/eduanim/internal/llm"
	"github.com/apresai/eduanim/internal/llm/llmtest"
)

const pythagorasReply = "<scratchpad>ideas first</scratchpad>\n```json\n" + `{
  "educational_breakdown": {
    "title": "The Pythagorean Theorem",
    "learning_objectives": ["State the theorem"],
    "educational_steps": [
      {"step_title": "Right triangles", "duration_seconds": 30, "key_concepts": ["hypotenuse", "legs", "Hypotenuse"], "narration_script": "Meet the right triangle."},
      {"step_title": "Squares on sides", "duration_seconds": 60, "equations": ["a^2 + b^2 = c^2"], "narration_script": "Build a square on each side."},
      {"step_title": "Recap", "duration_seconds": 30, "narration_script": "That is the theorem."}
    ],
    "metadata": {"estimated_total_duration": 120, "target_audience": "high school"}
  }
}` + "\n```\n"

func TestSynthesizeParsesPlan(t *testing.T) {
	model := llmtest.New(pythagorasReply)
	s := NewSynthesizer(model, nil, nil)

	p, issues, err := s.Synthesize(context.Background(), Request{Topic: "Pythagorean theorem", Domain: "geometry"})
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Equal(t, "The Pythagorean Theorem", p.Title)
	require.Len(t, p.Steps, 3)
	assert.Equal(t, []string{"hypotenuse", "legs"}, p.Steps[0].KeyConcepts)
	assert.InDelta(t, 120, p.TotalDuration(), 0.001)

	prompts := model.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0].User, `"Pythagorean theorem"`)
	assert.Contains(t, prompts[0].User, "high-school")
	assert.Contains(t, prompts[0].User, "SUBJECT AREA: geometry")
	assert.Empty(t, prompts[0].History)
}

func TestParseAcceptsBarePlan(t *testing.T) {
	p, _, err := Parse([]byte(`{"title": "Bare", "educational_steps": [{"step_title": "", "duration_seconds": 5}]}`))
	require.NoError(t, err)
	assert.Equal(t, "Bare", p.Title)
	assert.Equal(t, "Step 1", p.Steps[0].Title)
}

func TestParseRejectsBrokenPlans(t *testing.T) {
	tests := map[string]string{
		"not json":          `{"educational_breakdown": `,
		"no steps":          `{"educational_breakdown": {"title": "x", "educational_steps": []}}`,
		"zero duration":     `{"educational_breakdown": {"educational_steps": [{"step_title": "a", "duration_seconds": 0}]}}`,
		"negative duration": `{"educational_breakdown": {"educational_steps": [{"step_title": "a", "duration_seconds": -4}]}}`,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := Parse([]byte(in))
			assert.ErrorIs(t, err, ErrPlanGeneration)
		})
	}
}

func TestParseReportsDurationMismatch(t *testing.T) {
	_, issues, err := Parse([]byte(`{"educational_steps": [{"step_title": "a", "duration_seconds": 10, "narration_script": "hi"}], "metadata": {"estimated_total_duration": 100}}`))
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "duration", issues[0].Category)
	assert.Equal(t, SeverityWarning, issues[0].Severity)
}

func TestSynthesizeFailures(t *testing.T) {
	transport := &llm.GenerationError{Backend: "scripted", Attempts: 3, Err: errors.New("throttled")}
	tests := []struct {
		name  string
		model *llmtest.Model
		topic string
		want  error
	}{
		{"empty topic", llmtest.New(), "  ", ErrPlanGeneration},
		{"model error", (&llmtest.Model{}).Push(llmtest.Reply{Err: transport}), "waves", ErrPlanGeneration},
		{"prose reply", llmtest.New("I cannot help with that."), "waves", ErrPlanGeneration},
		{"no steps", llmtest.New(`{"title": "x", "educational_steps": []}`), "waves", ErrPlanGeneration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := NewSynthesizer(tt.model, nil, nil).Synthesize(context.Background(), Request{Topic: tt.topic})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, _, err := NewSynthesizer((&llmtest.Model{}).Push(llmtest.Reply{Err: transport}), nil, nil).
		Synthesize(context.Background(), Request{Topic: "waves"})
	var ge *llm.GenerationError
	assert.ErrorAs(t, err, &ge)
}

func TestDomainPolicyRejectsBeforeModelCall(t *testing.T) {
	model := llmtest.New(pythagorasReply)
	s := NewSynthesizer(model, KeywordPolicy(STEMKeywords...), nil)

	_, _, err := s.Synthesize(context.Background(), Request{Topic: "French cooking"})
	assert.ErrorIs(t, err, ErrTopicNotAllowed)
	assert.NotErrorIs(t, err, ErrPlanGeneration)
	assert.Empty(t, model.Prompts())

	_, _, err = s.Synthesize(context.Background(), Request{Topic: "Intro to Linear Algebra"})
	assert.NoError(t, err)
}

func TestDomainPolicy(t *testing.T) {
	assert.True(t, DomainPolicy(nil).Allows("anything"))
	assert.Nil(t, KeywordPolicy(" ", ""))

	p := append(KeywordPolicy("fourier"), func(topic string) bool { return strings.HasPrefix(topic, "Physics:") })
	assert.True(t, p.Allows("the FOURIER transform"))
	assert.True(t, p.Allows("Physics: optics"))
	assert.False(t, p.Allows("poetry"))
}

func TestParseComplexity(t *testing.T) {
	c, err := ParseComplexity("")
	require.NoError(t, err)
	assert.Equal(t, HighSchool, c)

	c, err = ParseComplexity(" Graduate ")
	require.NoError(t, err)
	assert.Equal(t, Graduate, c)

	_, err = ParseComplexity("kindergarten")
	assert.Error(t, err)
}

func TestReferenceIsTruncated(t *testing.T) {
	prompt := buildUserPrompt(Request{Topic: "x", Complexity: HighSchool, Reference: strings.Repeat("a", maxReferenceChars+50)})
	assert.Contains(t, prompt, "[truncated]")
	assert.NotContains(t, prompt, strings.Repeat("a", maxReferenceChars+1))
}

func TestBuildStoryboard(t *testing.T) {
	p, _, err := Parse([]byte(llm.ExtractJSON(pythagorasReply)))
	require.NoError(t, err)

	got := BuildStoryboard(p)
	want := Storyboard{
		Transition: TransitionClean,
		Scenes: []Scene{
			{Index: 1, StepTitle: "Right triangles", Template: TemplateIntro, DurationSeconds: 30},
			{Index: 2, StepTitle: "Squares on sides", Template: TemplateGraph, DurationSeconds: 60},
			{Index: 3, StepTitle: "Recap", Template: TemplateOutro, DurationSeconds: 30},
		},
		TotalDurationSeconds: 120,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("storyboard mismatch (-want +got):\n%s", diff)
	}
}

func TestClassName(t *testing.T) {
	tests := map[string]string{
		"The Pythagorean Theorem": "ThePythagoreanTheorem",
		"bayes' rule, explained":  "BayesRuleExplained",
		"Newton's laws":           "NewtonsLaws",
		"3D vectors":              "Educational3DVectors",
		"¿?":                      "Educational",
		"":                        "Educational",
		"None":                    "NoneScene",
		"true":                    "TrueScene",
		"False!":                  "FalseScene",
	}
	for title, want := range tests {
		assert.Equal(t, want, (&Plan{Title: title}).ClassName(), title)
	}
}
