// Package fallback renders fixed Manim programs from a plan. They are used
// when a synthesized program cannot be repaired, and always parse.
package fallback

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/apresai/eduanim/internal/plan"
	"github.com/apresai/eduanim/internal/repair"
	"github.com/apresai/eduanim/internal/style"
)

// Stage is the kind of scene a template draws.
type Stage string

const (
	StageIntro         Stage = "intro"
	StageConcept       Stage = "concept"
	StageWorkedExample Stage = "worked-example"
	StageConclusion    Stage = "conclusion"
)

// Stages lists the template kinds in lesson order.
func Stages() []Stage {
	return []Stage{StageIntro, StageConcept, StageWorkedExample, StageConclusion}
}

const maxLines = 5

type scene struct {
	Kind     Stage
	Method   string
	Title    string
	Lines    []string
	Wait     float64
	Branding string
	Palette  style.Palette
}

type program struct {
	ClassName string
	Palette   style.Palette
	Scenes    []scene
}

// Generator renders fallback programs in one style.
type Generator struct {
	style    style.Profile
	branding string
}

// New creates a Generator. An empty branding uses style.DefaultBranding.
func New(prof style.Profile, branding string) *Generator {
	if prof.Name == "" {
		prof = style.MustLookup(style.Default)
	}
	if branding == "" {
		branding = style.DefaultBranding
	}
	return &Generator{style: prof, branding: branding}
}

// ForStage renders a single-scene program of the given kind from p.
func ForStage(stage Stage, p *plan.Plan, prof style.Profile) *repair.Program {
	return New(prof, "").ForStage(stage, p)
}

// FromPlan renders a program covering the whole of p.
func FromPlan(p *plan.Plan, prof style.Profile) *repair.Program {
	return New(prof, "").FromPlan(p)
}

func (g *Generator) ForStage(stage Stage, p *plan.Plan) *repair.Program {
	p = orEmpty(p)
	var sc scene
	switch stage {
	case StageIntro:
		sc = g.intro(p)
	case StageWorkedExample:
		sc = g.workedExample(p, firstStepWith(p, func(s plan.Step) bool { return len(s.Equations) > 0 }))
	case StageConclusion:
		sc = g.conclusion(p)
	default:
		sc = g.concept(p, firstStepWith(p, func(plan.Step) bool { return true }))
	}
	sc.Method = string(sc.Kind) + "_scene"
	sc.Method = strings.ReplaceAll(sc.Method, "-", "_")
	return g.render(p, []scene{sc})
}

func (g *Generator) FromPlan(p *plan.Plan) *repair.Program {
	p = orEmpty(p)
	if g.style.Segmented() {
		return g.render(p, g.segmented(p))
	}

	scenes := []scene{g.intro(p)}
	for i := range p.Steps {
		s := &p.Steps[i]
		if len(s.Equations) > 0 {
			scenes = append(scenes, g.workedExample(p, s))
		} else {
			scenes = append(scenes, g.concept(p, s))
		}
	}
	scenes = append(scenes, g.conclusion(p))
	for i := range scenes {
		scenes[i].Method = fmt.Sprintf("scene_%d_%s", i+1, strings.ReplaceAll(string(scenes[i].Kind), "-", "_"))
	}
	return g.render(p, scenes)
}

// segmented maps the plan onto the profile's fixed segments: the intro,
// two concept segments splitting the steps, a worked example and the
// conclusion.
func (g *Generator) segmented(p *plan.Plan) []scene {
	half := (len(p.Steps) + 1) / 2
	first, second := p.Steps[:half], p.Steps[half:]
	scenes := []scene{
		g.intro(p),
		g.conceptFrom(p, g.style.Segments[1], first),
		g.conceptFrom(p, g.style.Segments[2], second),
		g.workedExample(p, firstStepWith(p, func(s plan.Step) bool { return len(s.Equations) > 0 })),
		g.conclusion(p),
	}
	for i := range scenes {
		name := strings.ToLower(g.style.Segments[min(i, len(g.style.Segments)-1)])
		scenes[i].Method = fmt.Sprintf("segment_%d_%s", i+1, name)
	}
	return scenes
}

func (g *Generator) render(p *plan.Plan, scenes []scene) *repair.Program {
	for i := range scenes {
		scenes[i].Branding = g.branding
		scenes[i].Palette = g.style.Palette
		if scenes[i].Wait <= 0 {
			scenes[i].Wait = 1
		}
	}
	var buf bytes.Buffer
	data := program{ClassName: p.ClassName(), Palette: g.style.Palette, Scenes: scenes}
	if err := programTmpl.Execute(&buf, data); err != nil {
		// The templates are static and the data is plain strings, so this
		// only fails on a programming error.
		panic(fmt.Sprintf("fallback: render template: %v", err))
	}
	return &repair.Program{
		Source:    buf.String(),
		ClassName: data.ClassName,
		IsValid:   true,
	}
}

func (g *Generator) intro(p *plan.Plan) scene {
	sc := scene{Kind: StageIntro, Title: p.Title, Wait: 2}
	switch {
	case p.Abstract != "":
		sc.Lines = []string{p.Abstract}
	case len(p.LearningObjectives) > 0:
		sc.Lines = []string{p.LearningObjectives[0]}
	}
	return sc
}

func (g *Generator) concept(p *plan.Plan, s *plan.Step) scene {
	if s == nil {
		return g.conceptFrom(p, "Key Ideas", nil)
	}
	lines := append([]string(nil), s.KeyConcepts...)
	lines = append(lines, s.RealWorldExamples...)
	if len(lines) == 0 {
		lines = sentences(s.NarrationScript)
	}
	return scene{Kind: StageConcept, Title: s.Title, Lines: limit(lines, s.Title), Wait: waitFor(s)}
}

// conceptFrom summarizes several steps by their titles.
func (g *Generator) conceptFrom(p *plan.Plan, title string, steps []plan.Step) scene {
	var lines []string
	for _, s := range steps {
		lines = append(lines, s.Title)
	}
	if len(lines) == 0 {
		lines = objectives(p)
	}
	return scene{Kind: StageConcept, Title: titleCase(title), Lines: limit(lines, p.Title), Wait: 2}
}

func (g *Generator) workedExample(p *plan.Plan, s *plan.Step) scene {
	if s == nil {
		var examples []string
		for _, st := range p.Steps {
			examples = append(examples, st.RealWorldExamples...)
		}
		return scene{Kind: StageWorkedExample, Title: "Worked Example", Lines: limit(examples, p.Title), Wait: 2}
	}
	lines := append([]string(nil), s.Equations...)
	if len(lines) == 0 {
		lines = s.RealWorldExamples
	}
	return scene{Kind: StageWorkedExample, Title: s.Title, Lines: limit(lines, s.Title), Wait: waitFor(s)}
}

func (g *Generator) conclusion(p *plan.Plan) scene {
	var lines []string
	seen := map[string]bool{}
	for _, s := range p.Steps {
		for _, c := range s.KeyConcepts {
			if k := strings.ToLower(c); !seen[k] {
				seen[k] = true
				lines = append(lines, c)
			}
		}
	}
	if len(lines) == 0 {
		lines = objectives(p)
	}
	return scene{Kind: StageConclusion, Title: "Key Takeaways", Lines: limit(lines, p.Title), Wait: 2}
}

func objectives(p *plan.Plan) []string {
	if len(p.LearningObjectives) > 0 {
		return p.LearningObjectives
	}
	var titles []string
	for _, s := range p.Steps {
		titles = append(titles, s.Title)
	}
	return titles
}

func firstStepWith(p *plan.Plan, pred func(plan.Step) bool) *plan.Step {
	for i := range p.Steps {
		if pred(p.Steps[i]) {
			return &p.Steps[i]
		}
	}
	return nil
}

// limit drops blank entries and keeps at most maxLines. An empty result
// becomes the single line def.
func limit(lines []string, def string) []string {
	var out []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
		if len(out) == maxLines {
			break
		}
	}
	if len(out) == 0 {
		out = []string{def}
	}
	return out
}

func sentences(text string) []string {
	var out []string
	for _, s := range strings.FieldsFunc(text, func(r rune) bool { return r == '.' || r == '!' || r == '?' }) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// waitFor holds a scene long enough that the lesson keeps roughly its
// planned length.
func waitFor(s *plan.Step) float64 {
	return min(max(s.DurationSeconds/4, 1), 8)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

func orEmpty(p *plan.Plan) *plan.Plan {
	if p == nil || p.Title == "" {
		cp := plan.Plan{Title: "Educational Animation"}
		if p != nil {
			cp.Steps = p.Steps
			cp.Abstract = p.Abstract
			cp.LearningObjectives = p.LearningObjectives
		}
		return &cp
	}
	return p
}
