package pyparse

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// treeCheck parses src with the tree-sitter Python grammar and reports the
// first ERROR or MISSING node, or else the first construct the grammar
// accepts but Python 3 does not. Parsers are not safe for concurrent use, so
// each call gets its own.
func treeCheck(ctx context.Context, src string, lines []string) *SyntaxError {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, []byte(src))
	if err != nil {
		return &SyntaxError{Class: ClassInvalidSyntax, Line: 1, EndLine: len(lines), Text: lineText(lines, 1)}
	}
	defer tree.Close()

	root := tree.RootNode()
	var n *sitter.Node
	if root.HasError() {
		if n = firstError(root); n == nil {
			n = root
		}
	} else if n = firstRejected(root, []byte(src)); n == nil {
		return nil
	}
	start, end := n.StartPoint(), n.EndPoint()
	line := int(start.Row) + 1
	return &SyntaxError{
		Class:   ClassInvalidSyntax,
		Line:    line,
		EndLine: int(end.Row) + 1,
		Column:  int(start.Column),
		Text:    lineText(lines, line),
	}
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.IsMissing() || n.Type() == "ERROR" {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if e := firstError(n.Child(i)); e != nil {
			return e
		}
	}
	return nil
}

// reservedNames cannot name a class or function.
var reservedNames = map[string]bool{"None": true, "True": true, "False": true}

// firstRejected returns the first node of an error-free tree that Python 3
// rejects: Python 2 print and exec statements, positional arguments after
// keyword arguments, required parameters after defaulted ones, and
// definitions named after a constant.
func firstRejected(n *sitter.Node, src []byte) *sitter.Node {
	switch n.Type() {
	case "print_statement", "exec_statement":
		if !parenthesizedStatement(n) {
			return n
		}
	case "argument_list":
		if bad := positionalAfterKeyword(n); bad != nil {
			return bad
		}
	case "parameters", "lambda_parameters":
		if bad := requiredAfterDefault(n); bad != nil {
			return bad
		}
	case "class_definition", "function_definition":
		if name := n.ChildByFieldName("name"); name != nil && reservedNames[name.Content(src)] {
			return name
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if bad := firstRejected(n.Child(i), src); bad != nil {
			return bad
		}
	}
	return nil
}

// parenthesizedStatement reports whether a print or exec statement is just
// the keyword applied to one parenthesized argument, which Python 3 reads
// as a call.
func parenthesizedStatement(n *sitter.Node) bool {
	var args []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() != "comment" {
			args = append(args, c)
		}
	}
	if len(args) != 1 {
		return false
	}
	switch args[0].Type() {
	case "parenthesized_expression", "tuple", "generator_expression":
		return true
	}
	return false
}

func positionalAfterKeyword(n *sitter.Node) *sitter.Node {
	keyword, mapping := false, false
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "comment":
		case "keyword_argument":
			keyword = true
		case "dictionary_splat":
			mapping = true
		case "list_splat":
			if mapping {
				return c
			}
		default:
			if keyword || mapping {
				return c
			}
		}
	}
	return nil
}

func requiredAfterDefault(n *sitter.Node) *sitter.Node {
	defaulted := false
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch c.Type() {
		case "default_parameter", "typed_default_parameter":
			defaulted = true
		case "typed_parameter":
			if c.NamedChildCount() > 0 && strings.HasSuffix(c.NamedChild(0).Type(), "splat_pattern") {
				return nil
			}
			if defaulted {
				return c
			}
		case "identifier":
			if defaulted {
				return c
			}
		case "list_splat_pattern", "dictionary_splat_pattern", "keyword_separator", "*":
			// parameters after * are keyword-only and need no default
			return nil
		}
	}
	return nil
}
