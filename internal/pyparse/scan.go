package pyparse

import "strings"

type bracket struct {
	ch         byte
	line, col  int
	stmtIndent int
}

type openString struct {
	delim     string
	line, col int
}

var closerFor = map[byte]byte{'(': ')', '[': ']', '{': '}'}

// scan walks the source the way the CPython tokenizer does for indentation,
// brackets and string literals. It stops at the first error.
func scan(lines []string) *SyntaxError {
	indents := []int{0}
	var (
		stack      []bracket
		str        *openString
		pending    bool // previous logical line opened a block
		continued  bool // previous physical line ended with a backslash
		stmtIndent int
	)

	for i, line := range lines {
		ln := i + 1
		col := 0

		switch {
		case str != nil || continued:
		case len(stack) == 0:
			w, n := IndentWidth(line)
			rest := line[n:]
			if rest == "" || rest[0] == '#' {
				continue
			}
			top := indents[len(indents)-1]
			switch {
			case pending:
				if w <= top {
					return &SyntaxError{Class: ClassExpectedIndent, Line: ln, EndLine: ln, Text: line, Want: top + 4}
				}
				indents = append(indents, w)
			case w > top:
				return &SyntaxError{Class: ClassUnexpectedIndent, Line: ln, EndLine: ln, Text: line, Want: top}
			case w < top:
				popped := top
				for len(indents) > 1 && indents[len(indents)-1] > w {
					popped = indents[len(indents)-1]
					indents = indents[:len(indents)-1]
				}
				if outer := indents[len(indents)-1]; outer != w {
					want := popped
					if w-outer < popped-w {
						want = outer
					}
					return &SyntaxError{Class: ClassUnindentMismatch, Line: ln, EndLine: ln, Text: line, Want: want}
				}
			}
			pending = false
			stmtIndent = w
			col = n
		default:
			// A line inside an open bracket that sits at or left of the
			// statement's own indentation starts a new statement, so the
			// bracket was never closed.
			w, n := IndentWidth(line)
			rest := line[n:]
			if rest != "" && rest[0] != '#' && w <= stack[0].stmtIndent && !StartsContinuation(rest) {
				b := stack[len(stack)-1]
				return &SyntaxError{Class: ClassUnclosedDelimiter, Line: b.line, EndLine: ln - 1, Column: b.col, Text: lineText(lines, b.line), Delim: b.ch}
			}
		}

		continued = false
		var last byte
		for col < len(line) {
			c := line[col]
			if str != nil {
				if c == '\\' {
					col += 2
					continue
				}
				if strings.HasPrefix(line[col:], str.delim) {
					str = nil
					col += 3
					last = '"'
					continue
				}
				col++
				continue
			}

			switch c {
			case '#':
				col = len(line)
			case '\'', '"':
				if q := line[col : col+1]; strings.HasPrefix(line[col:], q+q+q) {
					str = &openString{delim: q + q + q, line: ln, col: col}
					col += 3
					continue
				}
				end := stringEnd(line, col+1, c)
				if end < 0 {
					return &SyntaxError{Class: ClassUnterminatedString, Line: ln, EndLine: ln, Column: col, Text: line, Delim: c}
				}
				col = end + 1
				last = c
			case '(', '[', '{':
				stack = append(stack, bracket{ch: c, line: ln, col: col, stmtIndent: stmtIndent})
				last = c
				col++
			case ')', ']', '}':
				if len(stack) == 0 || closerFor[stack[len(stack)-1].ch] != c {
					return &SyntaxError{Class: ClassUnmatchedCloser, Line: ln, EndLine: ln, Column: col, Text: line, Delim: c}
				}
				stack = stack[:len(stack)-1]
				last = c
				col++
			case '\\':
				if col == len(line)-1 {
					continued = true
				}
				col++
			case ' ', '\t', '\f', '\r':
				col++
			default:
				last = c
				col++
			}
		}

		if str == nil && len(stack) == 0 && !continued && last != 0 {
			pending = last == ':'
		}
	}

	switch {
	case str != nil:
		return &SyntaxError{Class: ClassUnterminatedString, Line: str.line, EndLine: len(lines), Column: str.col, Text: lineText(lines, str.line), Delim: str.delim[0]}
	case len(stack) > 0:
		b := stack[len(stack)-1]
		return &SyntaxError{Class: ClassUnclosedDelimiter, Line: b.line, EndLine: len(lines), Column: b.col, Text: lineText(lines, b.line), Delim: b.ch}
	case pending:
		n := lastCodeLine(lines)
		return &SyntaxError{Class: ClassExpectedIndent, Line: n, EndLine: n, Text: lineText(lines, n), Want: indents[len(indents)-1] + 4}
	}
	return nil
}

// IndentWidth returns the visual indentation of line (tabs advance to the
// next multiple of eight) and the number of leading whitespace bytes.
func IndentWidth(line string) (width, n int) {
	for n < len(line) {
		switch line[n] {
		case ' ':
			width++
		case '\t':
			width = (width/8 + 1) * 8
		default:
			return width, n
		}
		n++
	}
	return width, n
}

func stringEnd(line string, from int, q byte) int {
	for j := from; j < len(line); j++ {
		switch line[j] {
		case '\\':
			j++
		case q:
			return j
		}
	}
	return -1
}

// StartsContinuation reports whether code that opens a line inside brackets
// continues the previous expression rather than starting a statement.
func StartsContinuation(rest string) bool {
	if rest == "" {
		return false
	}
	if strings.ContainsRune(")]}.,+-*/%|&=<>", rune(rest[0])) {
		return true
	}
	for _, kw := range []string{"and ", "or ", "not ", "in ", "else "} {
		if strings.HasPrefix(rest, kw) {
			return true
		}
	}
	return false
}

func lastCodeLine(lines []string) int {
	for i := len(lines) - 1; i >= 0; i-- {
		if t := strings.TrimSpace(lines[i]); t != "" && !strings.HasPrefix(t, "#") {
			return i + 1
		}
	}
	return len(lines)
}
