package plan

// Template is the scene layout used for one step.
type Template string

const (
	TemplateIntro       Template = "intro_scene"
	TemplateGraph       Template = "graph_scene"
	TemplateExplanation Template = "explanation_scene"
	TemplateOutro       Template = "outro_scene"
)

// TransitionClean fades every object out before the next scene starts.
const TransitionClean = "clean_transition"

// Storyboard maps each step of a plan to a scene.
type Storyboard struct {
	Scenes     []Scene `json:"scenes"`
	Transition string  `json:"transition"`
	// TotalDurationSeconds is the sum of the scene durations.
	TotalDurationSeconds float64 `json:"total_duration"`
}

type Scene struct {
	Index           int      `json:"index"`
	StepTitle       string   `json:"step_title"`
	Template        Template `json:"template"`
	DurationSeconds float64  `json:"duration_seconds"`
}

// BuildStoryboard derives a storyboard from p: the first step is the intro,
// the last the outro, and steps with equations get a graph scene.
func BuildStoryboard(p *Plan) Storyboard {
	sb := Storyboard{Transition: TransitionClean}
	for i, s := range p.Steps {
		sb.Scenes = append(sb.Scenes, Scene{
			Index:           i + 1,
			StepTitle:       s.Title,
			Template:        templateFor(i, len(p.Steps), s),
			DurationSeconds: s.DurationSeconds,
		})
		sb.TotalDurationSeconds += s.DurationSeconds
	}
	return sb
}

func templateFor(i, n int, s Step) Template {
	switch {
	case i == 0:
		return TemplateIntro
	case i == n-1:
		return TemplateOutro
	case len(s.Equations) > 0:
		return TemplateGraph
	default:
		return TemplateExplanation
	}
}
