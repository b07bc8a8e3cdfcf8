// Package plan turns a topic into a structured educational plan.
package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrPlanGeneration wraps every failure to produce a usable plan.
	ErrPlanGeneration = errors.New("plan generation failed")
	// ErrTopicNotAllowed is returned when the domain policy rejects a topic.
	ErrTopicNotAllowed = errors.New("topic not allowed")
)

// Plan is an educational breakdown of one topic. It is not modified after
// synthesis.
type Plan struct {
	Title              string   `json:"title"`
	Abstract           string   `json:"abstract,omitempty"`
	LearningObjectives []string `json:"learning_objectives,omitempty"`
	Steps              []Step   `json:"educational_steps"`
	Metadata           Metadata `json:"metadata"`
}

// Step is one teaching step, in the order it is presented.
type Step struct {
	Title             string         `json:"step_title"`
	DurationSeconds   float64        `json:"duration_seconds"`
	KeyConcepts       []string       `json:"key_concepts,omitempty"`
	NarrationScript   string         `json:"narration_script,omitempty"`
	AnimationPlan     string         `json:"animation_plan,omitempty"`
	VisualElements    map[string]any `json:"visual_elements,omitempty"`
	Equations         []string       `json:"equations,omitempty"`
	RealWorldExamples []string       `json:"real_world_examples,omitempty"`
}

type Metadata struct {
	TargetAudience                string  `json:"target_audience,omitempty"`
	EstimatedTotalDurationSeconds float64 `json:"estimated_total_duration"`
	DifficultyProgression         string  `json:"difficulty_progression,omitempty"`
}

// TotalDuration sums the step durations.
func (p *Plan) TotalDuration() float64 {
	var total float64
	for _, s := range p.Steps {
		total += s.DurationSeconds
	}
	return total
}

// Severity of a plan issue.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Issue is a quality problem found in a plan that did not stop synthesis.
type Issue struct {
	Category string
	Message  string
	Severity Severity
}

// durationTolerance is the relative gap allowed between the step sum and
// the estimated total before a warning is raised.
const durationTolerance = 0.2

// Parse decodes a model reply into a plan, checking the hard invariants:
// at least one step and a positive duration for every step. Soft problems
// come back as issues.
func Parse(data []byte) (*Plan, []Issue, error) {
	var envelope struct {
		Breakdown *Plan `json:"educational_breakdown"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, nil, fmt.Errorf("%w: invalid JSON: %v", ErrPlanGeneration, err)
	}
	p := envelope.Breakdown
	if p == nil {
		p = &Plan{}
		if err := json.Unmarshal(data, p); err != nil {
			return nil, nil, fmt.Errorf("%w: invalid JSON: %v", ErrPlanGeneration, err)
		}
	}

	if len(p.Steps) == 0 {
		return nil, nil, fmt.Errorf("%w: plan has no steps", ErrPlanGeneration)
	}
	for i := range p.Steps {
		s := &p.Steps[i]
		if !(s.DurationSeconds > 0) || math.IsInf(s.DurationSeconds, 0) {
			return nil, nil, fmt.Errorf("%w: step %d has non-positive duration %v", ErrPlanGeneration, i+1, s.DurationSeconds)
		}
		s.Title = strings.TrimSpace(s.Title)
		if s.Title == "" {
			s.Title = fmt.Sprintf("Step %d", i+1)
		}
		s.KeyConcepts = dedupe(s.KeyConcepts)
	}
	p.Title = strings.TrimSpace(p.Title)

	return p, check(p), nil
}

func check(p *Plan) []Issue {
	var issues []Issue
	total, est := p.TotalDuration(), p.Metadata.EstimatedTotalDurationSeconds
	if est > 0 && math.Abs(total-est) > durationTolerance*est {
		issues = append(issues, Issue{
			Category: "duration",
			Message:  fmt.Sprintf("steps sum to %.0fs but the estimated total is %.0fs", total, est),
			Severity: SeverityWarning,
		})
	}
	for i, s := range p.Steps {
		if strings.TrimSpace(s.NarrationScript) == "" {
			issues = append(issues, Issue{
				Category: "narration",
				Message:  fmt.Sprintf("step %d (%s) has no narration", i+1, s.Title),
				Severity: SeverityWarning,
			})
		}
	}
	return issues
}

func dedupe(items []string) []string {
	if len(items) == 0 {
		return items
	}
	seen := make(map[string]bool, len(items))
	out := items[:0:0]
	for _, it := range items {
		it = strings.TrimSpace(it)
		key := strings.ToLower(it)
		if it == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}

// ClassName derives a Python class name from the plan title, e.g.
// "The Pythagorean Theorem" becomes "ThePythagoreanTheorem".
func (p *Plan) ClassName() string {
	var b strings.Builder
	title := strings.NewReplacer("'", "", "\u2019", "").Replace(p.Title)
	for _, word := range strings.FieldsFunc(title, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	}) {
		b.WriteString(strings.ToUpper(word[:1]) + word[1:])
	}
	name := b.String()
	if name == "" {
		return "Educational"
	}
	if name[0] >= '0' && name[0] <= '9' {
		return "Educational" + name
	}
	if name == "None" || name == "True" || name == "False" {
		return name + "Scene"
	}
	return name
}
