// Package style defines the render style profiles shared by prompt
// construction, repair and the fallback templates.
package style

import (
	"fmt"
	"strings"
)

// Name identifies a profile.
type Name string

const (
	Classic    Name = "classic"
	Whiteboard Name = "whiteboard"
	Segmented  Name = "segmented"
	Minimal    Name = "minimal"
)

// Palette holds Manim colour expressions, either constant names or quoted
// hex strings ready to paste into source.
type Palette struct {
	Background string
	Title      string
	Text       string
	Primary    string
	Secondary  string
	Accent     string
}

// Profile is one render style.
type Profile struct {
	Name Name
	// AllowLaTeX keeps MathTex and Tex. Profiles without it target machines
	// that have no LaTeX installation.
	AllowLaTeX bool
	// Segments names the fixed sections of a segmented lesson, in order.
	// Empty for free-form profiles.
	Segments []string
	Palette  Palette
	// Guidance is style-specific prompt text.
	Guidance string
}

// Segmented reports whether the profile splits the lesson into named
// sections.
func (p Profile) Segmented() bool { return len(p.Segments) > 0 }

var profiles = map[Name]Profile{
	Classic: {
		Name:       Classic,
		AllowLaTeX: true,
		Palette: Palette{
			Background: `"#0F1419"`,
			Title:      "YELLOW",
			Text:       "WHITE",
			Primary:    "BLUE",
			Secondary:  "GREEN",
			Accent:     "RED",
		},
		Guidance: "Dark background in the 3Blue1Brown manner. Use MathTex for equations and colour-code related terms consistently.",
	},
	Whiteboard: {
		Name: Whiteboard,
		Palette: Palette{
			Background: "WHITE",
			Title:      "BLACK",
			Text:       "BLACK",
			Primary:    "BLUE",
			Secondary:  "DARK_GRAY",
			Accent:     "RED",
		},
		Guidance: "White background like a teacher's whiteboard. LaTeX is not installed: write every formula with Text, never MathTex or Tex.",
	},
	Segmented: {
		Name:     Segmented,
		Segments: []string{"INTRO", "FUNDAMENTALS", "PRINCIPLES", "EXAMPLE", "CONCLUSION"},
		Palette: Palette{
			Background: `"#0F1419"`,
			Title:      "BLUE",
			Text:       "WHITE",
			Primary:    "BLUE",
			Secondary:  "GREEN",
			Accent:     "ORANGE",
		},
		Guidance: "Split the lesson into exactly five segments, one method each, named after the segment. LaTeX is not installed: use Text for formulas. Use only Text, Circle, Rectangle, Line, Dot and Arrow with Create, FadeIn, FadeOut, Write and Transform.",
	},
	Minimal: {
		Name:       Minimal,
		AllowLaTeX: true,
		Palette: Palette{
			Background: "BLACK",
			Title:      "WHITE",
			Text:       "WHITE",
			Primary:    "GRAY",
			Secondary:  "WHITE",
			Accent:     "YELLOW",
		},
		Guidance: "Minimal look: few objects on screen at once, generous spacing, one accent colour.",
	},
}

// Default is the profile used when none is named.
const Default = Classic

// DefaultBranding is the line shown on intro and conclusion scenes.
const DefaultBranding = "LearnVidAI"

// Names lists the available profiles.
func Names() []Name {
	return []Name{Classic, Whiteboard, Segmented, Minimal}
}

// Lookup returns the named profile; an empty name yields the default.
func Lookup(name string) (Profile, error) {
	n := Name(strings.ToLower(strings.TrimSpace(name)))
	if n == "" {
		n = Default
	}
	p, ok := profiles[n]
	if !ok {
		return Profile{}, fmt.Errorf("unknown render style %q", name)
	}
	return p, nil
}

// MustLookup is Lookup for names known at compile time.
func MustLookup(n Name) Profile {
	p, err := Lookup(string(n))
	if err != nil {
		panic(err)
	}
	return p
}
