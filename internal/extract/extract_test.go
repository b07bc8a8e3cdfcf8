package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sceneBody = `class Demo(Scene):
    def construct(self):
        self.play(Write(Text("hi")))`

func TestExtractStrategies(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		want     string
		strategy Strategy
	}{
		{
			name:     "python fence",
			raw:      "Here you go:\n```python\nfrom manim import *\n\n" + sceneBody + "\n```\nEnjoy!",
			want:     "from manim import *\n\n" + sceneBody,
			strategy: StrategyPythonFence,
		},
		{
			name:     "py fence with import manim",
			raw:      "```py\nimport manim\n```",
			want:     "import manim",
			strategy: StrategyPythonFence,
		},
		{
			name:     "bare fence",
			raw:      "```\n" + sceneBody + "\n```",
			want:     sceneBody,
			strategy: StrategyAnyFence,
		},
		{
			name:     "python fence without import falls to any fence",
			raw:      "```python\n" + sceneBody + "\n```",
			want:     sceneBody,
			strategy: StrategyAnyFence,
		},
		{
			name:     "class in prose",
			raw:      "Sure! Below is the scene.\n\n" + sceneBody + "\n\nThis animates a greeting.",
			want:     manimImport + "\n\n" + sceneBody,
			strategy: StrategyClassDefinition,
		},
		{
			name:     "class keeps earlier imports",
			raw:      "import numpy as np\nfrom manim import *\nSome words.\n" + sceneBody + "\nclass Other(Scene):\n    pass\n",
			want:     "import numpy as np\nfrom manim import *\n\n" + sceneBody,
			strategy: StrategyClassDefinition,
		},
		{
			name:     "import-only fence before a bare class",
			raw:      "```text\nfrom manim import *\n```\nThe scene:\n" + sceneBody + "\n",
			want:     "from manim import *\n\n" + sceneBody,
			strategy: StrategyClassDefinition,
		},
		{
			name:     "fence without scene before a bare class",
			raw:      "```\nx = 1\n```\n" + sceneBody,
			want:     manimImport + "\n\n" + sceneBody,
			strategy: StrategyClassDefinition,
		},
		{
			name:     "class in unterminated fence",
			raw:      "```python\n" + sceneBody + "\n",
			want:     manimImport + "\n\n" + sceneBody,
			strategy: StrategyClassDefinition,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, strategy, ok := Extract(tt.raw)
			require.True(t, ok)
			assert.Equal(t, tt.strategy, strategy)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractPrefersEarlierStrategy(t *testing.T) {
	// The bare fence also qualifies, but the python fence is tried first
	// even though it comes later in the reply.
	raw := "```\nclass Draft(Scene):\n    pass\n```\nFinal:\n```python\nfrom manim import *\n" + sceneBody + "\n```"
	got, strategy, ok := Extract(raw)
	require.True(t, ok)
	assert.Equal(t, StrategyPythonFence, strategy)
	assert.Contains(t, got, "class Demo(Scene)")
	assert.NotContains(t, got, "Draft")
}

func TestExtractHeuristic(t *testing.T) {
	var b strings.Builder
	b.WriteString("Thinking about it...\nclass without parens, def construct follows\n")
	for i := 0; i < 25; i++ {
		b.WriteString("        self.wait(1)\n")
	}
	b.WriteString("\nTrailing prose that must not be collected.\n")

	got, strategy, ok := Extract(b.String())
	require.True(t, ok)
	assert.Equal(t, StrategyHeuristic, strategy)
	assert.True(t, strings.HasPrefix(got, "class without parens"))
	assert.NotContains(t, got, "Trailing prose")
	assert.Equal(t, 26, strings.Count(got, "\n")+1)
}

func TestExtractNothing(t *testing.T) {
	for _, raw := range []string{
		"",
		"I'm sorry, I can't write that animation.",
		"```json\n{\"a\": 1}\n```",
		"def construct is mentioned but nothing starts a program",
	} {
		got, strategy, ok := Extract(raw)
		assert.False(t, ok, raw)
		assert.Equal(t, StrategyNone, strategy)
		assert.Empty(t, got)
	}
}

func TestStrategiesOrder(t *testing.T) {
	assert.Equal(t, []Strategy{StrategyPythonFence, StrategyAnyFence, StrategyClassDefinition, StrategyHeuristic}, Strategies())
}
