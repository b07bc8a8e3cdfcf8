package program

import (
	"fmt"
	"strings"

	"github.com/apresai/eduanim/internal/plan"
	"github.com/apresai/eduanim/internal/style"
)

const systemPrompt = `You are an expert Manim Community Edition developer who writes educational animations in the style of 3Blue1Brown.
You answer with one complete, runnable Python file inside a single ` + "```python" + ` block and nothing else.`

const rulesBlock = `HARD CONSTRAINTS:
- Start with "from manim import *" and define exactly one class that inherits from Scene
- Indent with 4 spaces; never mix tabs and spaces
- Never load files: no ImageMobject, SVGMobject, Image.open, PIL, cv2, pygame or image paths
- Never call self.set_background, self.set_color_scheme, self.set_theme or self.configure_camera; set self.camera.background_color instead
- Positions are ORIGIN, UP, DOWN, LEFT, RIGHT and their multiples; CENTER, MIDDLE, TOP and BOTTOM do not exist
- Colours are base names (BLUE, RED, GREEN, YELLOW, WHITE, ORANGE, PURPLE, GRAY); variants such as BLUE_LIGHT do not exist
- Every call is closed on the line where it ends; never write a comma before a method call, e.g. Text("x",.shift(UP)

LAYOUT (16:9 frame, 14.2 x 8 units):
- Titles sit between Y=2.5 and Y=3.5, e.g. title.to_edge(UP) or .shift(UP*3)
- Content stays within |X| <= 6 and between Y=-3 and Y=2
- Give every Text an explicit position; never stack two texts on the same spot
- Scale long text down with .scale() or font_size instead of letting it leave the frame
- If old content is no longer needed, FadeOut it before new content appears; if it is part of a sequence, Transform it

SCENE STRUCTURE:
- intro_scene: title card with the branding line, then the lesson title
- graph_scene: axes or diagrams for steps that carry equations
- explanation_scene: text and shapes that build the idea step by step
- outro_scene: recap of key concepts and the branding line
- Between scenes call self.clean_transition(), defined as:
    def clean_transition(self):
        if self.mobjects:
            self.play(FadeOut(*self.mobjects), run_time=0.5)
        self.wait(0.3)
- construct() only calls the scene methods in order`

const examplesBlock = `GOOD:
    title = Text("Derivatives", font_size=48).to_edge(UP)
    curve = axes.plot(lambda x: x**2, color=BLUE)
    self.play(Write(title), Create(curve))

BAD (do not write):
    title = Text("Derivatives",.shift(UP)      # comma before a method
    logo = ImageMobject("logo.png")             # file asset
    dot.move_to(CENTER)                          # undefined constant
    label = Text("f(x)").shift(RIGHT*12)        # outside the frame`

// maxAttemptChars bounds each previous attempt quoted back to the model.
const maxAttemptChars = 6000

func buildUserPrompt(p *plan.Plan, prof style.Profile, branding string, previous []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a Manim program for the lesson %q.\n", p.Title)
	fmt.Fprintf(&b, "Name the scene class %s. Target length: about %.0f seconds.\n\n", p.ClassName(), p.TotalDuration())

	fmt.Fprintf(&b, "STYLE (%s): %s\n", prof.Name, prof.Guidance)
	pal := prof.Palette
	fmt.Fprintf(&b, "Palette: background %s, titles %s, text %s, primary %s, secondary %s, accent %s.\n",
		pal.Background, pal.Title, pal.Text, pal.Primary, pal.Secondary, pal.Accent)
	if !prof.AllowLaTeX {
		b.WriteString("LaTeX is NOT available: MathTex, Tex and MathText will crash the render.\n")
	}
	if prof.Segmented() {
		fmt.Fprintf(&b, "Segments, one method each, in this order: %s.\n", strings.Join(prof.Segments, ", "))
	}
	fmt.Fprintf(&b, "Branding line for intro and outro: %q.\n\n", branding)

	b.WriteString(rulesBlock)
	b.WriteString("\n\nLESSON STEPS:\n")
	sb := plan.BuildStoryboard(p)
	for i, s := range p.Steps {
		fmt.Fprintf(&b, "\nStep %d: %s (%.0fs, %s)\n", i+1, s.Title, s.DurationSeconds, sb.Scenes[i].Template)
		if len(s.KeyConcepts) > 0 {
			fmt.Fprintf(&b, "  Key concepts: %s\n", strings.Join(s.KeyConcepts, ", "))
		}
		if s.AnimationPlan != "" {
			fmt.Fprintf(&b, "  Animation: %s\n", s.AnimationPlan)
		}
		if len(s.Equations) > 0 {
			fmt.Fprintf(&b, "  Equations: %s\n", strings.Join(s.Equations, "; "))
		}
		if len(s.RealWorldExamples) > 0 {
			fmt.Fprintf(&b, "  Examples (show as text or shapes): %s\n", strings.Join(s.RealWorldExamples, "; "))
		}
		if s.NarrationScript != "" {
			fmt.Fprintf(&b, "  Narration (pace the animation to it): %s\n", s.NarrationScript)
		}
	}

	b.WriteString("\n")
	b.WriteString(examplesBlock)

	if len(previous) > 0 {
		b.WriteString("\n\nPREVIOUS ATTEMPTS (oldest first). They failed validation; do not repeat their mistakes:\n")
		for i, prev := range previous {
			if len(prev) > maxAttemptChars {
				prev = prev[:maxAttemptChars] + "\n# [truncated]"
			}
			fmt.Fprintf(&b, "\n--- attempt %d ---\n%s\n", i+1, prev)
		}
	}
	return b.String()
}

const refineOpening = "Write a complete Manim program for the educational animation we discussed."

func buildRefinePrompt(feedback string) string {
	return fmt.Sprintf(`The program above needs changes:
%s

Return the complete corrected program in a single `+"```python"+` block. Keep everything that already works.`, strings.TrimSpace(feedback))
}
