package plan

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are an instructional designer who plans short animated lessons in the style of 3Blue1Brown.

RULES:
1. Order steps so that prerequisites come first; every step builds on the previous one
2. Each step teaches one idea and has a narration script a voice actor can read aloud
3. Durations are in seconds and must be positive; keep the whole lesson between 90 and 300 seconds
4. Describe visuals using simple shapes, arrows, graphs, number lines and text only; never refer to image files or photographs
5. Keep equations short and write them in plain LaTeX without surrounding dollar signs
6. Real-world examples must be concrete and familiar to the audience

OUTPUT FORMAT:
Return ONLY valid JSON matching this exact structure (no markdown fences, no extra text):
{
  "educational_breakdown": {
    "title": "Lesson title",
    "abstract": "Two-sentence summary of the lesson",
    "learning_objectives": ["Objective one", "Objective two"],
    "educational_steps": [
      {
        "step_title": "Short step title",
        "duration_seconds": 30,
        "key_concepts": ["concept"],
        "narration_script": "What the narrator says during this step.",
        "animation_plan": "What appears on screen and how it moves.",
        "visual_elements": {"shapes": ["circle"], "colors": ["BLUE"]},
        "equations": ["a^2 + b^2 = c^2"],
        "real_world_examples": ["example"]
      }
    ],
    "metadata": {
      "target_audience": "who this is for",
      "estimated_total_duration": 180,
      "difficulty_progression": "how difficulty ramps up"
    }
  }
}

IMPORTANT: Output raw JSON only. No markdown code fences. No text before or after the JSON.`

// maxReferenceChars bounds the reference material embedded in a prompt.
const maxReferenceChars = 12000

func buildUserPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(`<scratchpad>
Before writing the plan, think through:
1. The 3-6 ideas a learner needs, in dependency order
2. One visual metaphor per idea that uses only basic shapes and text
3. Where an equation helps and where it would overwhelm
</scratchpad>

`)
	fmt.Fprintf(&b, "Create an educational animation plan about %q.\n\n", req.Topic)
	fmt.Fprintf(&b, "AUDIENCE: %s (%s)\n\n", req.Complexity, req.Complexity.audience())
	if req.Domain != "" && req.Domain != AutoDetectDomain {
		fmt.Fprintf(&b, "SUBJECT AREA: %s\n\n", req.Domain)
	} else {
		b.WriteString("SUBJECT AREA: infer it from the topic\n\n")
	}
	if ref := strings.TrimSpace(req.Reference); ref != "" {
		if len(ref) > maxReferenceChars {
			ref = ref[:maxReferenceChars] + "\n[truncated]"
		}
		fmt.Fprintf(&b, "REFERENCE MATERIAL (base facts on this, do not invent beyond it):\n%s\n", ref)
	}
	return b.String()
}
