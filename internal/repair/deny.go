package repair

import (
	"regexp"
	"strings"
)

// denyRule matches a construct that cannot render. Rules with a replace
// template rewrite the match in place; the others comment out the whole
// statement and may append substitute statements after it.
type denyRule struct {
	name  string
	match *regexp.Regexp
	// raw matches against the code text including string contents, for
	// constructs that live inside literals such as file names.
	raw     bool
	reason  string
	replace string
	// substitute returns statements to append after the removed one,
	// without indentation.
	substitute func(stmt string) []string
}

var denyRules = []denyRule{
	{
		name:   "media-import",
		match:  regexp.MustCompile(`^\s*(?:from|import)\s+(?:PIL|cv2|pygame|imageio|skimage|matplotlib\.image)\b`),
		reason: "unsupported media library import",
	},
	{
		name:       "asset-mobject",
		match:      regexp.MustCompile(`\b(?:ImageMobject|SVGMobject)\s*\(`),
		reason:     "file-based asset replaced by a text label",
		substitute: assetLabel,
	},
	{
		name:       "image-load",
		match:      regexp.MustCompile(`\b(?:Image\.open|cv2\.imread|imageio\.imread|plt\.imread|mpimg\.imread)\s*\(`),
		reason:     "image loading replaced by a text label",
		substitute: assetLabel,
	},
	{
		name:       "image-file",
		match:      regexp.MustCompile(`(?i)["'][^"'\n]*\.(?:png|jpe?g|gif|ico|bmp|svg)["']`),
		raw:        true,
		reason:     "reference to an image file",
		substitute: assetLabel,
	},
	{
		name:       "scene-config-call",
		match:      regexp.MustCompile(`\b(?:set_background|set_color_scheme|set_theme|configure_camera)\s*\(`),
		reason:     "unsupported scene configuration call",
		substitute: backgroundColor,
	},
	{
		name:    "center-constant",
		match:   regexp.MustCompile(`\b(?:CENTER|MIDDLE)\b`),
		replace: "ORIGIN",
	},
	{
		name:    "top-constant",
		match:   regexp.MustCompile(`\bTOP\b`),
		replace: "UP*3",
	},
	{
		name:    "bottom-constant",
		match:   regexp.MustCompile(`\bBOTTOM\b`),
		replace: "DOWN*3",
	},
	{
		name:    "color-variant",
		match:   regexp.MustCompile(`\b(RED|BLUE|GREEN|YELLOW|PURPLE|ORANGE|PINK|TEAL|GOLD|MAROON|GRAY|GREY)_(?:DARK|LIGHT|BRIGHT|DEEP|PALE|VIVID)\b`),
		replace: "${1}",
	},
}

var latexRules = []denyRule{
	{name: "math-tex", match: regexp.MustCompile(`\bMathTex\s*\(`), replace: "Text("},
	{name: "tex", match: regexp.MustCompile(`\bTex\s*\(`), replace: "Text("},
}

// DeniedTokens lists one representative token per comment-out rule, for
// callers that want to check a program never mentions them.
func DeniedTokens() map[string]string {
	return map[string]string{
		"media-import":      "PIL",
		"asset-mobject":     "ImageMobject",
		"image-load":        "Image.open",
		"image-file":        ".png",
		"scene-config-call": "set_background",
		"center-constant":   "CENTER",
		"top-constant":      "TOP",
		"bottom-constant":   "BOTTOM",
		"color-variant":     "RED_DARK",
	}
}

func applyDenyList(s *state, rules []denyRule) {
	for i := 0; i < len(s.lines); i++ {
		for _, r := range rules {
			li := s.info()[i]
			if li.blank() {
				break
			}
			subject := li.mask[:li.codeEnd]
			if r.raw {
				if li.inString || li.endInString {
					continue
				}
				subject = s.lines[i][:li.codeEnd]
			}
			loc := r.match.FindStringIndex(subject)
			if loc == nil {
				continue
			}
			matched := strings.TrimSpace(subject[loc[0]:loc[1]])

			if r.replace != "" {
				before := s.lines[i]
				after, ok := replaceCode(before, li.mask, r.match, r.replace)
				if !ok {
					continue
				}
				s.set(i, after)
				s.record(Action{Kind: RemovedDisallowedConstruct, Rule: r.name, Line: i + 1, Pattern: matched, Replacement: r.match.ReplaceAllString(matched, r.replace)})
				if r.name == "math-tex" || r.name == "tex" {
					mergeTextArgs(s, i)
				}
				continue
			}

			stmt := s.lines[li.stmtStart]
			start, end := commentOut(s, i, r.reason)
			s.record(Action{Kind: RemovedDisallowedConstruct, Rule: r.name, Line: start + 1, Pattern: matched, Replacement: strings.TrimSpace(s.lines[start])})
			if r.substitute != nil {
				indent := strings.Repeat(" ", indentOf(s.lines[start]))
				var extra []string
				for _, l := range r.substitute(stmt) {
					extra = append(extra, indent+l)
				}
				if len(extra) > 0 {
					s.insert(end+1, extra...)
					end += len(extra)
				}
			}
			i = end
			break
		}
	}
}

// commentOut replaces every line of the statement containing line i with a
// comment, keeping the line count, and returns the statement's first and
// last line.
func commentOut(s *state, i int, reason string) (int, int) {
	infos := s.info()
	start := infos[i].stmtStart
	end := i
	for end+1 < len(infos) && !infos[end+1].startsStatement() {
		end++
	}
	indent := strings.Repeat(" ", infos[start].stmtIndent)
	for k := start; k <= end; k++ {
		if k == start {
			s.lines[k] = indent + "# removed: " + reason
		} else {
			s.lines[k] = indent + "#"
		}
	}
	s.infos = nil
	return start, end
}

var assignTarget = regexp.MustCompile(`^\s*([A-Za-z_]\w*)\s*=[^=]`)

func assetLabel(stmt string) []string {
	m := assignTarget.FindStringSubmatch(stmt)
	if m == nil {
		return nil
	}
	return []string{m[1] + ` = Text("Visual representation of concept", font_size=24).shift(DOWN*1)`}
}

var backgroundArg = regexp.MustCompile(`^\s*self\.set_background\(\s*(?:color\s*=\s*)?([A-Z_][A-Z0-9_]*|"#[0-9A-Fa-f]{6}")\s*\)\s*$`)

func backgroundColor(stmt string) []string {
	m := backgroundArg.FindStringSubmatch(stmt)
	if m == nil {
		return nil
	}
	return []string{"self.camera.background_color = " + m[1]}
}

var textStringArgs = regexp.MustCompile(`Text\(\s*(r?"[^"]*")\s*,\s*(r?"[^"]*")`)

// mergeTextArgs joins the positional string arguments left behind when a
// multi-part MathTex becomes a Text.
func mergeTextArgs(s *state, i int) {
	for {
		li := s.info()[i]
		before := s.lines[i]
		after, ok := replaceCodeFunc(before, li.mask, textStringArgs, func(g []string) string {
			return `Text(r"` + stringBody(g[1]) + " " + stringBody(g[2]) + `"`
		})
		if !ok {
			return
		}
		s.set(i, after)
		s.record(Action{Kind: RewroteSyntax, Rule: "merge-text-args", Line: i + 1, Before: strings.TrimSpace(before), After: strings.TrimSpace(after)})
	}
}

func stringBody(lit string) string {
	return strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(lit, "r"), `"`), `"`)
}
