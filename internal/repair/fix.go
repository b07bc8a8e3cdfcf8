package repair

import (
	"regexp"
	"strings"

	"github.com/apresai/eduanim/internal/pyparse"
)

var blockHeader = regexp.MustCompile(`^\s*(?:async\s+)?(?:def|class)\s|^\s*@`)

// targetedFix applies one fix chosen by the parser's error class. It
// reports false when no fix applies.
func targetedFix(s *state, err *pyparse.SyntaxError) bool {
	i := err.Line - 1
	if i < 0 || i >= len(s.lines) {
		return false
	}
	before := s.lines[i]
	rule := "parse-fix:" + string(err.Class)

	switch err.Class {
	case pyparse.ClassUnexpectedIndent, pyparse.ClassUnindentMismatch:
		shiftRun(s, i, err.Want-indentOf(before), false)

	case pyparse.ClassExpectedIndent:
		infos := s.info()
		isHeader := strings.HasSuffix(strings.TrimRight(infos[i].mask[:infos[i].codeEnd], " "), ":")
		prev := lastCodeLine(infos, 0, i-1)
		prevOpens := prev >= 0 && strings.HasSuffix(strings.TrimRight(infos[prev].mask[:infos[prev].codeEnd], " "), ":")
		atEOF := isHeader && i == lastCodeLine(infos, 0, len(infos)-1) &&
			(!prevOpens || indentOf(before) > infos[prev].stmtIndent)
		switch {
		case atEOF:
			// the block opened by line i is missing at end of input
			s.insert(i+1, strings.Repeat(" ", err.Want)+"pass")
			s.record(Action{Kind: RewroteSyntax, Rule: rule, Line: i + 2, After: "pass"})
			return true
		case isHeader || blockHeader.MatchString(before):
			s.insert(i, strings.Repeat(" ", err.Want)+"pass")
			s.record(Action{Kind: RewroteSyntax, Rule: rule, Line: i + 1, After: "pass"})
			return true
		default:
			shiftRun(s, i, err.Want-indentOf(before), true)
		}

	case pyparse.ClassUnclosedDelimiter:
		infos := s.info()
		end := err.EndLine - 1
		if end < i {
			end = i
		}
		at := lastCodeLine(infos, i, min(end, len(infos)-1))
		if at < 0 || infos[at].endInString {
			return false
		}
		s.set(at, appendToCode(s.lines[at], infos[at], string(closerFor(err.Delim))))
		s.record(Action{Kind: ClosedUnbalancedDelimiters, Rule: rule, Line: at + 1, Count: 1})
		return true

	case pyparse.ClassUnmatchedCloser:
		if err.Column >= len(before) || before[err.Column] != err.Delim {
			return false
		}
		s.set(i, before[:err.Column]+before[err.Column+1:])

	case pyparse.ClassUnterminatedString:
		if !closeQuote(s, i, err.Delim) {
			return false
		}

	default:
		end := min(max(err.EndLine-1, i), i+4, len(s.lines)-1)
		for j := i; j <= end; j++ {
			if rewriteLine(s, j, "") {
				return true
			}
		}
		return false
	}

	s.record(Action{Kind: RewroteSyntax, Rule: rule, Line: i + 1, Before: strings.TrimSpace(before), After: strings.TrimSpace(s.lines[i])})
	return true
}

// shiftRun moves line i and the lines after it that are indented at least
// as deep by delta. With stopAtHeader the run also ends at the next def or
// class at the starting indentation.
func shiftRun(s *state, i, delta int, stopAtHeader bool) {
	if delta == 0 {
		return
	}
	w := indentOf(s.lines[i])
	s.lines[i] = reindent(s.lines[i], w+delta)
	for j := i + 1; j < len(s.lines); j++ {
		line := s.lines[j]
		if strings.TrimSpace(line) == "" {
			continue
		}
		lw := indentOf(line)
		if lw < w || (stopAtHeader && lw == w && blockHeader.MatchString(line)) {
			break
		}
		s.lines[j] = reindent(line, lw+delta)
	}
	s.infos = nil
}

var trailingClosers = regexp.MustCompile(`[)\]},\s]*$`)

// closeQuote terminates the string opened on line i, before any trailing
// closing brackets. Triple-quoted strings are closed at end of input.
func closeQuote(s *state, i int, q byte) bool {
	if q != '"' && q != '\'' {
		return false
	}
	quote := string(q)
	line := s.lines[i]
	if strings.Contains(line, quote+quote+quote) {
		last := len(s.lines) - 1
		s.set(last, s.lines[last]+quote+quote+quote)
		return true
	}
	loc := trailingClosers.FindStringIndex(line)
	s.set(i, line[:loc[0]]+quote+line[loc[0]:])
	return true
}

// emergencyPatch applies the most specific rewrite that changes the failing
// line and parses once more.
func emergencyPatch(s *state, err *pyparse.SyntaxError) *pyparse.SyntaxError {
	i := err.Line - 1
	if i < 0 || i >= len(s.lines) {
		return err
	}
	for _, st := range emergencyStrategies {
		before := s.lines[i]
		if !st.apply(s, i, err) {
			continue
		}
		if st.name != "comma-dot" {
			s.record(Action{Kind: EmergencyPatch, Rule: "emergency", Line: i + 1, Strategy: st.name, Before: strings.TrimSpace(before), After: strings.TrimSpace(s.lines[i])})
		}
		return s.check()
	}
	return err
}

type emergencyStrategy struct {
	name  string
	apply func(s *state, i int, err *pyparse.SyntaxError) bool
}

var emergencyStrategies = []emergencyStrategy{
	{name: "comma-dot", apply: func(s *state, i int, _ *pyparse.SyntaxError) bool {
		return rewriteLine(s, i, "comma-dot")
	}},
	{name: "close-delimiters", apply: func(s *state, i int, _ *pyparse.SyntaxError) bool {
		li := s.info()[i]
		if len(li.endStack) <= len(li.startStack) || li.endInString || li.openQuote {
			return false
		}
		s.set(i, appendToCode(s.lines[i], li, closersFor(li.endStack[len(li.startStack):])))
		return true
	}},
	{name: "drop-stray-closer", apply: func(s *state, i int, _ *pyparse.SyntaxError) bool {
		li := s.info()[i]
		if len(li.stray) == 0 {
			return false
		}
		col := li.stray[len(li.stray)-1]
		s.set(i, s.lines[i][:col]+s.lines[i][col+1:])
		return true
	}},
	{name: "close-quote", apply: func(s *state, i int, err *pyparse.SyntaxError) bool {
		if err.Class != pyparse.ClassUnterminatedString {
			return false
		}
		return closeQuote(s, i, err.Delim)
	}},
	{name: "comment-out", apply: func(s *state, i int, _ *pyparse.SyntaxError) bool {
		if strings.HasPrefix(strings.TrimSpace(s.lines[i]), "#") {
			return false
		}
		s.set(i, strings.Repeat(" ", indentOf(s.lines[i]))+"# removed: unparseable line")
		ensureBlockBodies(s)
		return true
	}},
}
