package plan

import (
	"fmt"
	"strings"
)

// Complexity is the target audience level.
type Complexity string

const (
	Elementary    Complexity = "elementary"
	MiddleSchool  Complexity = "middle-school"
	HighSchool    Complexity = "high-school"
	Undergraduate Complexity = "undergraduate"
	Graduate      Complexity = "graduate"
	Advanced      Complexity = "advanced"
)

// DefaultComplexity is used when a request leaves the level empty.
const DefaultComplexity = HighSchool

// Complexities lists the accepted levels from easiest to hardest.
func Complexities() []Complexity {
	return []Complexity{Elementary, MiddleSchool, HighSchool, Undergraduate, Graduate, Advanced}
}

// ParseComplexity accepts a level name; an empty string yields the default.
func ParseComplexity(s string) (Complexity, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultComplexity, nil
	}
	for _, c := range Complexities() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown complexity %q", s)
}

func (c Complexity) audience() string {
	switch c {
	case Elementary:
		return "young learners aged 8-11; use simple words, concrete objects and no formal notation"
	case MiddleSchool:
		return "students aged 11-14; introduce notation gently and lean on everyday examples"
	case Undergraduate:
		return "university students; use standard notation and short derivations"
	case Graduate:
		return "graduate students; assume fluency with notation and focus on structure and proofs"
	case Advanced:
		return "experts; be rigorous and concise, and highlight subtle points"
	default:
		return "high-school students; balance intuition with basic formulas"
	}
}

// AutoDetectDomain lets the model infer the subject area.
const AutoDetectDomain = "auto-detect"
