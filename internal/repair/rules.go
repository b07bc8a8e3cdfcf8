package repair

import (
	"regexp"
	"strings"
)

// Pass groups rules that run together.
type Pass int

const (
	PassNormalize Pass = iota + 1
	PassSyntax
	PassDenyList
	PassStructure
	PassLayout
	// PassSanity runs after the program parses. Its rules must not affect
	// validity.
	PassSanity
)

func (p Pass) String() string {
	switch p {
	case PassNormalize:
		return "normalize"
	case PassSyntax:
		return "syntax"
	case PassDenyList:
		return "deny-list"
	case PassStructure:
		return "structure"
	case PassLayout:
		return "layout"
	case PassSanity:
		return "sanity"
	}
	return "unknown"
}

// Rule is one entry of the engine's rule table.
type Rule struct {
	Name  string
	Pass  Pass
	Apply func(*state)
}

func ruleTable(opts Options) []Rule {
	rules := []Rule{
		{Name: "strip-diagnostic-header", Pass: PassNormalize, Apply: stripHeader},
		{Name: "line-endings", Pass: PassNormalize, Apply: normalizeLineEndings},
		{Name: "tabs", Pass: PassNormalize, Apply: expandTabs},
		{Name: "trailing-whitespace", Pass: PassNormalize, Apply: trimTrailing},
		{Name: "dedent", Pass: PassNormalize, Apply: dedent},
		{Name: "blank-edges", Pass: PassNormalize, Apply: trimBlankEdges},

		{Name: "line-rewrites", Pass: PassSyntax, Apply: applyLineRewrites},
		{Name: "orphaned-continuation", Pass: PassSyntax, Apply: dropOrphans},
		{Name: "unbalanced-delimiters", Pass: PassSyntax, Apply: closeDelimiters},

		{Name: "deny-list", Pass: PassDenyList, Apply: func(s *state) { applyDenyList(s, denyRules) }},
	}
	if !opts.AllowLaTeX {
		rules = append(rules, Rule{Name: "latex-to-text", Pass: PassDenyList, Apply: func(s *state) { applyDenyList(s, latexRules) }})
	}
	rules = append(rules,
		Rule{Name: "ensure-import", Pass: PassStructure, Apply: ensureImport},
		Rule{Name: "empty-block", Pass: PassStructure, Apply: ensureBlockBodies},

		Rule{Name: "inject-position", Pass: PassLayout, Apply: injectPositions},

		Rule{Name: "clamp-coordinates", Pass: PassSanity, Apply: func(s *state) { clampCoordinates(s, opts.Bounds) }},
	)
	return rules
}

func stripHeader(s *state) {
	if len(s.lines) == 0 || !strings.HasPrefix(s.lines[0], headerPrefix) {
		return
	}
	n := 1
	if n < len(s.lines) && strings.HasPrefix(s.lines[n], headerLine) {
		n++
	}
	if n < len(s.lines) && strings.TrimSpace(s.lines[n]) == "" {
		n++
	}
	s.lines = s.lines[n:]
	s.infos = nil
}

func normalizeLineEndings(s *state) {
	changed := 0
	for i, line := range s.lines {
		if strings.HasSuffix(line, "\r") {
			s.lines[i] = strings.TrimRight(line, "\r")
			changed++
		}
	}
	if changed > 0 {
		s.infos = nil
		s.record(Action{Kind: Normalized, Rule: "line-endings", Line: 1, Count: changed})
	}
}

func expandTabs(s *state) {
	changed := 0
	for i, line := range s.lines {
		n := 0
		for n < len(line) && (line[n] == ' ' || line[n] == '\t') {
			n++
		}
		lead := line[:n]
		if !strings.Contains(lead, "\t") {
			continue
		}
		s.lines[i] = strings.ReplaceAll(lead, "\t", "    ") + line[n:]
		changed++
	}
	if changed > 0 {
		s.infos = nil
		s.record(Action{Kind: Normalized, Rule: "tabs", Line: 1, Count: changed})
	}
}

func trimTrailing(s *state) {
	changed := 0
	for i, line := range s.lines {
		if t := strings.TrimRight(line, " \t"); t != line {
			s.lines[i] = t
			changed++
		}
	}
	if changed > 0 {
		s.infos = nil
		s.record(Action{Kind: Normalized, Rule: "trailing-whitespace", Line: 1, Count: changed})
	}
}

func dedent(s *state) {
	common := -1
	infos := s.info()
	for i, line := range s.lines {
		if strings.TrimSpace(line) == "" || infos[i].inString {
			continue
		}
		if w := indentOf(line); common < 0 || w < common {
			common = w
		}
	}
	if common <= 0 {
		return
	}
	for i, line := range s.lines {
		if strings.TrimSpace(line) == "" || infos[i].inString {
			continue
		}
		s.lines[i] = line[common:]
	}
	s.infos = nil
	s.record(Action{Kind: Normalized, Rule: "dedent", Line: 1, Count: common})
}

func trimBlankEdges(s *state) {
	start, end := 0, len(s.lines)
	for start < end && strings.TrimSpace(s.lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(s.lines[end-1]) == "" {
		end--
	}
	if start == 0 && end == len(s.lines) {
		return
	}
	s.lines = s.lines[start:end]
	s.infos = nil
}

// lineRewrite is a regex rewrite of one known artifact, applied to code
// only.
type lineRewrite struct {
	name string
	re   *regexp.Regexp
	repl string
}

var lineRewrites = []lineRewrite{
	// Text("x"), .shift(UP) -> Text("x").shift(UP)
	{name: "comma-dot-after-close", re: regexp.MustCompile(`\)\s*,\s*\.([A-Za-z_]\w*)`), repl: `).${1}`},
	// Text("x",.shift(UP) -> Text("x").shift(UP)
	{name: "comma-dot", re: regexp.MustCompile(`,\s*\.([A-Za-z_]\w*)`), repl: `).${1}`},
	{name: "double-comma", re: regexp.MustCompile(`,(?:\s*,)+`), repl: `,`},
	{name: "leading-comma", re: regexp.MustCompile(`\(\s*,\s*`), repl: `(`},
}

func applyLineRewrites(s *state) {
	for i := range s.lines {
		rewriteLine(s, i, "")
	}
}

// rewriteLine runs the line-rewrite catalogue over line i and reports
// whether anything changed. A non-empty strategy records the change as an
// emergency patch.
func rewriteLine(s *state, i int, strategy string) bool {
	changed := false
	for _, rw := range lineRewrites {
		li := s.info()[i]
		before := s.lines[i]
		after, ok := replaceCode(before, li.mask, rw.re, rw.repl)
		if !ok {
			continue
		}
		s.set(i, after)
		changed = true
		if strategy != "" {
			s.record(Action{Kind: EmergencyPatch, Rule: rw.name, Line: i + 1, Strategy: strategy, Before: strings.TrimSpace(before), After: strings.TrimSpace(after)})
		} else {
			s.record(Action{Kind: RewroteSyntax, Rule: rw.name, Line: i + 1, Before: strings.TrimSpace(before), After: strings.TrimSpace(after)})
		}
	}
	return changed
}
