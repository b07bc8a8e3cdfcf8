package pyparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scene = `from manim import *

class Demo(Scene):
    def construct(self):
        title = Text("Hello (world", font_size=48).shift(UP*3)
        group = VGroup(
            Circle(),
            Square(),
        )
        """A docstring with ( and [ inside
        spanning lines"""
        self.play(Write(title))
        if len(group) > 1:
            self.play(Create(group))
        self.wait(1)
`

func TestCheckAcceptsValidScene(t *testing.T) {
	assert.Nil(t, Check(scene))
}

func TestCheckClassifiesErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		class ErrorClass
		line  int
		want  int
		delim byte
	}{
		{
			name:  "unexpected indent",
			src:   "x = 1\n    y = 2\n",
			class: ClassUnexpectedIndent,
			line:  2,
			want:  0,
		},
		{
			name:  "missing block",
			src:   "def f():\nreturn 1\n",
			class: ClassExpectedIndent,
			line:  2,
			want:  4,
		},
		{
			name:  "block at end of file",
			src:   "class A(Scene):\n    def construct(self):\n",
			class: ClassExpectedIndent,
			line:  2,
			want:  8,
		},
		{
			name:  "unindent mismatch",
			src:   "if x:\n    a = 1\n  b = 2\n",
			class: ClassUnindentMismatch,
			line:  3,
			want:  4,
		},
		{
			name:  "unclosed at end of file",
			src:   "t = Text(\"X\").shift(UP*2\n",
			class: ClassUnclosedDelimiter,
			line:  1,
			delim: '(',
		},
		{
			name:  "unclosed before next statement",
			src:   "def construct(self):\n    t = Text(\"X\"\n    self.play(Write(t))\n",
			class: ClassUnclosedDelimiter,
			line:  2,
			delim: '(',
		},
		{
			name:  "stray closer",
			src:   "x = f(1))\n",
			class: ClassUnmatchedCloser,
			line:  1,
			delim: ')',
		},
		{
			name:  "unterminated string",
			src:   "t = Text(\"abc)\n",
			class: ClassUnterminatedString,
			line:  1,
			delim: '"',
		},
		{
			name:  "comma before method call",
			src:   "t = Text(\"X\",.shift(UP))\n",
			class: ClassInvalidSyntax,
			line:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.src)
			require.NotNil(t, err)
			assert.Equal(t, tt.class, err.Class)
			assert.Equal(t, tt.line, err.Line)
			if tt.class.IsIndentation() {
				assert.Equal(t, tt.want, err.Want)
			}
			if tt.delim != 0 {
				assert.Equal(t, tt.delim, err.Delim)
			}
		})
	}
}

func TestCheckRejectsConstructsPython3Forbids(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
	}{
		{name: "print statement", src: "x = 1\nprint \"hello\"\n", line: 2},
		{name: "exec statement", src: "exec \"x = 1\"\n", line: 1},
		{name: "positional after keyword", src: "a = Arrow(start=LEFT, RIGHT)\n", line: 1},
		{name: "positional after mapping unpack", src: "f(**opts, 1)\n", line: 1},
		{name: "required after default", src: "def helper(a=1, b):\n    return a\n", line: 1},
		{name: "lambda required after default", src: "f = lambda a=1, b: a\n", line: 1},
		{name: "class named None", src: "class None(Scene):\n    pass\n", line: 1},
		{name: "function named True", src: "class A(Scene):\n    def True(self):\n        pass\n", line: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.src)
			require.NotNil(t, err)
			assert.Equal(t, ClassInvalidSyntax, err.Class)
			assert.Equal(t, tt.line, err.Line)
		})
	}
}

func TestCheckAcceptsPython3Forms(t *testing.T) {
	for _, src := range []string{
		"print(\"hello\")\n",
		"print(\"a\", \"b\")\n",
		"exec(\"x = 1\")\n",
		"a = Arrow(start=LEFT, end=RIGHT)\n",
		"f(1, *rest, key=2, **opts)\n",
		"f(key=2, *rest)\n",
		"def helper(a, b=1, *args, c, d=2, **kw):\n    return a\n",
		"def helper(a=1, *, b):\n    return a\n",
		"class NoneScene(Scene):\n    pass\n",
		"pair = 1, 2,\n",
	} {
		assert.Nil(t, Check(src), src)
	}
}

func TestIndentWidth(t *testing.T) {
	w, n := IndentWidth("\t  x")
	assert.Equal(t, 10, w)
	assert.Equal(t, 3, n)

	w, n = IndentWidth("")
	assert.Zero(t, w)
	assert.Zero(t, n)
}
