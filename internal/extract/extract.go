// Package extract pulls a Manim program out of a free-form model reply.
package extract

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNoProgram means no strategy found a program in the reply.
var ErrNoProgram = errors.New("no program found in model reply")

// Strategy names the rule that produced a candidate.
type Strategy string

const (
	StrategyNone            Strategy = ""
	StrategyPythonFence     Strategy = "python-fence"
	StrategyAnyFence        Strategy = "any-fence"
	StrategyClassDefinition Strategy = "class-definition"
	StrategyHeuristic       Strategy = "heuristic"
)

// Strategies lists the strategies in the order Extract tries them.
func Strategies() []Strategy {
	return []Strategy{StrategyPythonFence, StrategyAnyFence, StrategyClassDefinition, StrategyHeuristic}
}

const manimImport = "from manim import *"

// heuristicMinLines is how many lines the heuristic collects before a
// blank line ends the program.
const heuristicMinLines = 20

var (
	fenceRe      = regexp.MustCompile("(?s)```([A-Za-z0-9_+-]*)[ \t]*\r?\n(.*?)\r?\n[ \t]*```")
	sceneClassRe = regexp.MustCompile(`(?m)^class\s+[A-Za-z_]\w*\s*\([^)\n]*Scene[^)\n]*\)\s*:`)
	importLineRe = regexp.MustCompile(`^(?:from\s+[\w.]+\s+import\s+\S.*|import\s+[\w.]+(?:\s+as\s+\w+)?)$`)
)

// Extract returns the candidate program in raw, the strategy that found
// it, and whether any strategy succeeded. Strategies are tried in the
// order given by Strategies and the first match wins.
func Extract(raw string) (string, Strategy, bool) {
	for _, try := range []struct {
		strategy Strategy
		fn       func(string) (string, bool)
	}{
		{StrategyPythonFence, pythonFence},
		{StrategyAnyFence, anyFence},
		{StrategyClassDefinition, classDefinition},
		{StrategyHeuristic, heuristic},
	} {
		if code, ok := try.fn(raw); ok {
			return code, try.strategy, true
		}
	}
	return "", StrategyNone, false
}

type fence struct {
	lang string
	body string
}

func fences(raw string) []fence {
	var out []fence
	for _, m := range fenceRe.FindAllStringSubmatch(raw, -1) {
		out = append(out, fence{lang: strings.ToLower(m[1]), body: m[2]})
	}
	return out
}

func hasManimImport(code string) bool {
	return strings.Contains(code, "from manim import") || strings.Contains(code, "import manim")
}

func pythonFence(raw string) (string, bool) {
	for _, f := range fences(raw) {
		if (f.lang == "python" || f.lang == "py") && hasManimImport(f.body) {
			return strings.TrimSpace(f.body), true
		}
	}
	return "", false
}

func anyFence(raw string) (string, bool) {
	for _, f := range fences(raw) {
		if strings.Contains(f.body, "class") && strings.Contains(f.body, "Scene") {
			return strings.TrimSpace(f.body), true
		}
	}
	return "", false
}

// classDefinition takes the first Scene subclass through the end of its
// body. Import lines that appear earlier in the reply are kept.
func classDefinition(raw string) (string, bool) {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	loc := sceneClassRe.FindStringIndex(raw)
	if loc == nil {
		return "", false
	}

	var imports []string
	for _, line := range strings.Split(raw[:loc[0]], "\n") {
		if importLineRe.MatchString(strings.TrimRight(line, " \t")) {
			imports = append(imports, strings.TrimRight(line, " \t"))
		}
	}

	lines := strings.Split(raw[loc[0]:], "\n")
	end := len(lines)
	for i := 1; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" || line[0] == ' ' || line[0] == '\t' {
			continue
		}
		// A column-zero line ends the body: the next class, or prose.
		end = i
		break
	}
	body := strings.TrimRight(strings.Join(lines[:end], "\n"), " \t\n")
	body = strings.TrimSuffix(body, "```")

	var b strings.Builder
	if !hasManimImport(strings.Join(imports, "\n")) {
		b.WriteString(manimImport + "\n")
	}
	for _, imp := range imports {
		b.WriteString(imp + "\n")
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimRight(body, " \t\n"))
	return b.String(), true
}

// heuristic is the last resort for replies that contain a construct
// method but no recognizable class header.
func heuristic(raw string) (string, bool) {
	if !strings.Contains(raw, "def construct") {
		return "", false
	}
	var collected []string
	inCode := false
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if !inCode && (hasManimImport(line) || strings.HasPrefix(trimmed, "class ")) {
			inCode = true
		}
		if !inCode {
			continue
		}
		if trimmed == "" && len(collected) > heuristicMinLines {
			break
		}
		if strings.HasPrefix(trimmed, "```") {
			continue
		}
		collected = append(collected, line)
	}
	code := strings.TrimSpace(strings.Join(collected, "\n"))
	if code == "" {
		return "", false
	}
	return code, true
}
