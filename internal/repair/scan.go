package repair

import (
	"regexp"
	"strings"

	"github.com/apresai/eduanim/internal/pyparse"
)

// lineInfo is the tokenizer state around one physical line. Unlike
// pyparse.Check the scan never stops, so every rule can see every line.
type lineInfo struct {
	startStack  []byte // brackets open when the line starts
	endStack    []byte // brackets open when the line ends
	inString    bool   // line starts inside a triple-quoted string
	endInString bool   // line ends inside a triple-quoted string
	continued   bool   // previous line ended with a backslash
	openQuote   bool   // line ends inside an unterminated single-line string
	stmtIndent  int    // indentation of the statement the line belongs to
	stmtStart   int    // index of the statement's first line
	// mask has string contents replaced by '_' and the comment blanked, so
	// regexes run on it only ever match real code. It has the same byte
	// length as the line.
	mask    string
	codeEnd int // start of the trailing comment, or len(line)
	stray   []int
}

// startsStatement reports whether the line begins a new logical line.
func (li lineInfo) startsStatement() bool {
	return len(li.startStack) == 0 && !li.inString && !li.continued
}

// blank reports whether the line holds no code.
func (li lineInfo) blank() bool {
	return strings.TrimSpace(li.mask) == ""
}

func analyze(lines []string) []lineInfo {
	infos := make([]lineInfo, len(lines))
	var (
		stack      []byte
		triple     string
		continued  bool
		stmtIndent int
		stmtStart  int
	)
	for i, line := range lines {
		li := lineInfo{
			startStack: append([]byte(nil), stack...),
			inString:   triple != "",
			continued:  continued,
			codeEnd:    len(line),
		}
		if li.startsStatement() && strings.TrimSpace(line) != "" && !strings.HasPrefix(strings.TrimSpace(line), "#") {
			stmtIndent, _ = pyparse.IndentWidth(line)
			stmtStart = i
		}
		li.stmtIndent = stmtIndent
		li.stmtStart = stmtStart

		mask := []byte(line)
		continued = false
		for j := 0; j < len(line); j++ {
			c := line[j]
			if triple != "" {
				if c == '\\' && j+1 < len(line) {
					mask[j], mask[j+1] = '_', '_'
					j++
					continue
				}
				if strings.HasPrefix(line[j:], triple) {
					triple = ""
					j += 2
					continue
				}
				mask[j] = '_'
				continue
			}
			switch c {
			case '#':
				li.codeEnd = j
				for k := j; k < len(line); k++ {
					mask[k] = ' '
				}
				j = len(line)
			case '\'', '"':
				q := line[j : j+1]
				if strings.HasPrefix(line[j:], q+q+q) {
					triple = q + q + q
					j += 2
					continue
				}
				k := j + 1
				for ; k < len(line) && line[k] != c; k++ {
					if line[k] == '\\' && k+1 < len(line) {
						mask[k] = '_'
						k++
					}
					mask[k] = '_'
				}
				if k >= len(line) {
					li.openQuote = true
				}
				j = k
			case '(', '[', '{':
				stack = append(stack, c)
			case ')', ']', '}':
				if len(stack) > 0 && closerFor(stack[len(stack)-1]) == c {
					stack = stack[:len(stack)-1]
				} else {
					li.stray = append(li.stray, j)
				}
			case '\\':
				if j == len(line)-1 {
					continued = true
				}
			}
		}
		li.mask = string(mask)
		li.endStack = append([]byte(nil), stack...)
		li.endInString = triple != ""
		infos[i] = li
	}
	return infos
}

func closerFor(open byte) byte {
	switch open {
	case '(':
		return ')'
	case '[':
		return ']'
	case '{':
		return '}'
	}
	return 0
}

func closersFor(stack []byte) string {
	b := make([]byte, 0, len(stack))
	for i := len(stack) - 1; i >= 0; i-- {
		b = append(b, closerFor(stack[i]))
	}
	return string(b)
}

// replaceCode applies re to the code of line, using the mask to skip matches
// inside strings and comments. Capture groups expand from the real text.
func replaceCode(line, mask string, re *regexp.Regexp, repl string) (string, bool) {
	matches := re.FindAllStringSubmatchIndex(mask, -1)
	if len(matches) == 0 {
		return line, false
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(line[last:m[0]])
		b.Write(re.ExpandString(nil, repl, line, m))
		last = m[1]
	}
	b.WriteString(line[last:])
	return b.String(), b.String() != line
}

func indentOf(line string) int {
	w, _ := pyparse.IndentWidth(line)
	return w
}

func reindent(line string, width int) string {
	if strings.TrimSpace(line) == "" {
		return ""
	}
	_, n := pyparse.IndentWidth(line)
	if width < 0 {
		width = 0
	}
	return strings.Repeat(" ", width) + line[n:]
}

// code returns the line without its trailing comment and trailing spaces.
func code(line string, li lineInfo) string {
	return strings.TrimRight(line[:li.codeEnd], " ")
}

// appendToCode inserts s after the last code character of line, keeping any
// trailing comment after it.
func appendToCode(line string, li lineInfo, s string) string {
	c := code(line, li)
	rest := line[len(c):]
	if rest != "" && strings.TrimSpace(rest) != "" {
		return c + s + rest
	}
	return c + s
}

func lastCodeLine(infos []lineInfo, from, to int) int {
	for i := to; i >= from; i-- {
		if i >= 0 && i < len(infos) && !infos[i].blank() {
			return i
		}
	}
	return -1
}

// replaceCodeFunc is replaceCode with a computed replacement. fn receives the
// submatch texts taken from the real line.
func replaceCodeFunc(line, mask string, re *regexp.Regexp, fn func(groups []string) string) (string, bool) {
	matches := re.FindAllStringSubmatchIndex(mask, -1)
	if len(matches) == 0 {
		return line, false
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		groups := make([]string, len(m)/2)
		for g := range groups {
			if m[2*g] >= 0 {
				groups[g] = line[m[2*g]:m[2*g+1]]
			}
		}
		b.WriteString(line[last:m[0]])
		b.WriteString(fn(groups))
		last = m[1]
	}
	b.WriteString(line[last:])
	return b.String(), b.String() != line
}

// matchParen returns the index of the bracket closing the one at open, or -1.
func matchParen(mask string, open int) int {
	depth := 0
	for i := open; i < len(mask); i++ {
		switch mask[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
