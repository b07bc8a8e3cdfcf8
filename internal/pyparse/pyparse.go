// Package pyparse checks generated Manim programs against the Python grammar.
//
// Check runs two passes: a line-aware scanner that understands Python's
// indentation, bracket and string rules (and reports errors the way the
// CPython compiler classifies them), followed by a full tree-sitter parse
// for everything else.
package pyparse

import (
	"context"
	"fmt"
	"strings"
)

// ErrorClass groups syntax errors by the kind of targeted fix they need.
type ErrorClass string

const (
	ClassUnexpectedIndent   ErrorClass = "unexpected indent"
	ClassExpectedIndent     ErrorClass = "expected an indented block"
	ClassUnindentMismatch   ErrorClass = "unindent does not match any outer indentation level"
	ClassUnclosedDelimiter  ErrorClass = "unclosed delimiter"
	ClassUnmatchedCloser    ErrorClass = "unmatched closing delimiter"
	ClassUnterminatedString ErrorClass = "unterminated string literal"
	ClassInvalidSyntax      ErrorClass = "invalid syntax"
)

// IsIndentation reports whether the class is one of the indentation errors.
func (c ErrorClass) IsIndentation() bool {
	switch c {
	case ClassUnexpectedIndent, ClassExpectedIndent, ClassUnindentMismatch:
		return true
	}
	return false
}

// SyntaxError is the first error found in a source text.
type SyntaxError struct {
	Class  ErrorClass
	Line   int // 1-based
	Column int // 0-based
	// EndLine is the last line the error region covers.
	EndLine int
	Text    string
	// Want is the indentation width the line should have, set for
	// indentation errors only.
	Want int
	// Delim is the offending bracket for delimiter errors.
	Delim byte
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s at line %d", e.Class, e.Line)
}

// Check returns nil if src parses as Python, or the first syntax error.
func Check(src string) *SyntaxError {
	return CheckContext(context.Background(), src)
}

// CheckContext is Check with a context for the tree-sitter parse.
func CheckContext(ctx context.Context, src string) *SyntaxError {
	lines := strings.Split(src, "\n")
	if err := scan(lines); err != nil {
		return err
	}
	return treeCheck(ctx, src, lines)
}

func lineText(lines []string, n int) string {
	if n < 1 || n > len(lines) {
		return ""
	}
	return lines[n-1]
}
