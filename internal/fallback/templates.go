package fallback

import (
	"strconv"
	"strings"
	"text/template"
	"unicode"
)

var funcs = template.FuncMap{
	"py":   pyString,
	"secs": func(f float64) string { return strconv.FormatFloat(f, 'f', 1, 64) },
}

// The scene templates only ever interpolate values through py (string
// literals), secs (numbers) or palette entries, which are fixed Manim
// expressions. Nothing from a plan reaches the source any other way.
var programTmpl = template.Must(template.New("program").Funcs(funcs).Parse(`from manim import *


class {{.ClassName}}(Scene):
    def construct(self):
        self.camera.background_color = {{.Palette.Background}}
{{- range .Scenes}}
        self.{{.Method}}()
        self.clean_transition()
{{- end}}

    def clean_transition(self):
        if self.mobjects:
            self.play(FadeOut(*self.mobjects), run_time=0.5)
        self.wait(0.3)
{{range .Scenes}}
{{- if eq .Kind "intro"}}{{template "intro" .}}
{{- else if eq .Kind "worked-example"}}{{template "worked-example" .}}
{{- else if eq .Kind "conclusion"}}{{template "conclusion" .}}
{{- else}}{{template "concept" .}}
{{- end}}
{{end -}}
`))

func init() {
	template.Must(programTmpl.New("fit").Parse(`
        if {{.}}.width > 12:
            {{.}}.scale_to_fit_width(12)
        if {{.}}.height > 5:
            {{.}}.scale_to_fit_height(5)`))

	template.Must(programTmpl.New("intro").Parse(`
    def {{.Method}}(self):
        brand = Text({{py .Branding}}, font_size=28, color={{.Palette.Accent}}).to_edge(UP)
        title = Text({{py .Title}}, font_size=48, color={{.Palette.Title}})
        if title.width > 12:
            title.scale_to_fit_width(12)
        self.play(FadeIn(brand))
        self.play(Write(title))
{{- if .Lines}}
        subtitle = Text({{py (index .Lines 0)}}, font_size=28, color={{.Palette.Text}})
        if subtitle.width > 11:
            subtitle.scale_to_fit_width(11)
        subtitle.next_to(title, DOWN, buff=0.5)
        self.play(FadeIn(subtitle, shift=UP * 0.3))
{{- end}}
        self.wait({{secs .Wait}})
`))

	template.Must(programTmpl.New("concept").Parse(`
    def {{.Method}}(self):
        heading = Text({{py .Title}}, font_size=40, color={{.Palette.Title}}).to_edge(UP)
        if heading.width > 12:
            heading.scale_to_fit_width(12)
        self.play(Write(heading))
        points = VGroup(
{{- range .Lines}}
            Text({{py .}}, font_size=28, color={{$.Palette.Text}}),
{{- end}}
        ).arrange(DOWN, aligned_edge=LEFT, buff=0.4)
{{- template "fit" "points"}}
        points.next_to(heading, DOWN, buff=0.6)
        marker = Dot(color={{.Palette.Primary}}).next_to(points[0], LEFT, buff=0.3)
        self.play(FadeIn(marker))
        for point in points:
            self.play(FadeIn(point, shift=RIGHT * 0.3), marker.animate.next_to(point, LEFT, buff=0.3))
        self.wait({{secs .Wait}})
`))

	template.Must(programTmpl.New("worked-example").Parse(`
    def {{.Method}}(self):
        heading = Text({{py .Title}}, font_size=40, color={{.Palette.Title}}).to_edge(UP)
        if heading.width > 12:
            heading.scale_to_fit_width(12)
        self.play(Write(heading))
        lines = VGroup(
{{- range .Lines}}
            Text({{py .}}, font_size=32, color={{$.Palette.Primary}}),
{{- end}}
        ).arrange(DOWN, buff=0.5)
{{- template "fit" "lines"}}
        lines.move_to(DOWN * 0.5)
        for line in lines:
            self.play(Write(line))
            self.wait(0.5)
        box = SurroundingRectangle(lines[-1], color={{.Palette.Accent}}, buff=0.2)
        self.play(Create(box))
        self.wait({{secs .Wait}})
`))

	template.Must(programTmpl.New("conclusion").Parse(`
    def {{.Method}}(self):
        heading = Text({{py .Title}}, font_size=40, color={{.Palette.Title}}).to_edge(UP)
        self.play(Write(heading))
        points = VGroup(
{{- range .Lines}}
            Text({{py .}}, font_size=28, color={{$.Palette.Secondary}}),
{{- end}}
        ).arrange(DOWN, aligned_edge=LEFT, buff=0.35)
{{- template "fit" "points"}}
        points.next_to(heading, DOWN, buff=0.6)
        self.play(LaggedStart(*[FadeIn(p) for p in points], lag_ratio=0.3))
        brand = Text({{py .Branding}}, font_size=24, color={{.Palette.Accent}}).to_edge(DOWN)
        self.play(FadeIn(brand))
        self.wait({{secs .Wait}})
`))
}

// maxTextRunes keeps single Text objects readable on one line.
const maxTextRunes = 70

// pyString renders s as a double-quoted Python string literal. Control
// characters become spaces and long text is cut with an ellipsis.
func pyString(s string) string {
	s = strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}), " ")
	if r := []rune(s); len(r) > maxTextRunes {
		s = strings.TrimRight(string(r[:maxTextRunes-3]), " ") + "..."
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		default:
			if !unicode.IsPrint(r) {
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
