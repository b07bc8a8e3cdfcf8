// Package repair validates generated Manim programs and rewrites them until
// they parse.
//
// The engine is an ordered table of rules grouped into passes: whitespace
// normalization, a catalogue of known syntax artifacts, a deny-list of
// constructs that cannot render, structural fixes, and layout. After the
// rule passes it parses the program, applies a bounded number of fixes keyed
// on the parser's error class, then one surgical patch on the failing line.
// A program that still does not parse comes back with IsValid false.
package repair

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/apresai/eduanim/internal/pyparse"
)

// ErrExhausted reports that a program could not be brought to a parseable
// state within the engine's retry budget.
var ErrExhausted = errors.New("validation exhausted")

// Program is a candidate after validation. Source is owned by the engine
// until Repair returns and is read-only afterwards.
type Program struct {
	Source      string
	ClassName   string
	Diagnostics []Action
	IsValid     bool
	// Err is the last parse error when the program could not be repaired.
	Err *pyparse.SyntaxError
	// Reason explains why IsValid is false.
	Reason string
}

// Failure returns nil for a valid program and an ErrExhausted-wrapping
// error otherwise.
func (p *Program) Failure() error {
	if p.IsValid {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrExhausted, p.Reason)
}

// Bounds is the half-extent of the visible frame in scene units.
type Bounds struct {
	X, Y float64
}

// Options configures an Engine.
type Options struct {
	// AllowLaTeX keeps MathTex and Tex mobjects. When false they are
	// rewritten to plain Text.
	AllowLaTeX bool
	// MaxParseFixes bounds the targeted-fix loop. Defaults to 2.
	MaxParseFixes int
	// Bounds is the safe rectangle for coordinate clamping. Defaults to
	// 6.5 x 3.5 (a 16:9 frame).
	Bounds Bounds
	Logger *slog.Logger
}

// Engine applies the repair rules. It holds no per-program state and is
// safe for concurrent use.
type Engine struct {
	opts  Options
	rules []Rule
}

// New creates an Engine.
func New(opts Options) *Engine {
	if opts.MaxParseFixes <= 0 {
		opts.MaxParseFixes = 2
	}
	if opts.Bounds.X <= 0 || opts.Bounds.Y <= 0 {
		opts.Bounds = Bounds{X: 6.5, Y: 3.5}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{opts: opts, rules: ruleTable(opts)}
}

// Rules returns the engine's rule table in execution order.
func (e *Engine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Repair validates candidate and returns the repaired program. A program
// that cannot be made to parse is returned with IsValid false and a
// diagnostic header; callers must not render it.
func (e *Engine) Repair(candidate string) *Program {
	p := &Program{}
	s := newState(candidate, p)

	e.runPasses(s, PassNormalize, PassSyntax, PassDenyList, PassStructure, PassLayout)

	err := s.check()
	fixed := false
	for attempt := 0; err != nil && attempt < e.opts.MaxParseFixes; attempt++ {
		if !targetedFix(s, err) {
			break
		}
		fixed = true
		err = s.check()
	}
	if err != nil {
		if err = emergencyPatch(s, err); err == nil {
			fixed = true
		}
	}
	if err == nil && fixed {
		// A fix can leave trailing blanks behind or complete a statement
		// the layout pass skipped.
		trimTrailing(s)
		e.runPasses(s, PassLayout)
		err = s.check()
	}
	if err != nil {
		p.Err = err
		p.Reason = err.Error()
		p.Source = diagnosticHeader(err) + s.text()
		e.opts.Logger.Warn("program repair exhausted",
			"error", err.Error(),
			"line_text", strings.TrimSpace(err.Text),
			"actions", len(p.Diagnostics),
		)
		return p
	}

	e.runPasses(s, PassSanity)

	p.Source = s.text()
	p.ClassName = SceneClass(p.Source)
	if p.ClassName == "" {
		p.Reason = "no Scene subclass defined"
		e.opts.Logger.Warn("program has no scene class", "actions", len(p.Diagnostics))
		return p
	}
	p.IsValid = true
	e.opts.Logger.Debug("program repaired",
		"class", p.ClassName,
		"actions", len(p.Diagnostics),
		"lines", len(s.lines),
	)
	return p
}

func (e *Engine) runPasses(s *state, passes ...Pass) {
	for _, pass := range passes {
		for _, r := range e.rules {
			if r.Pass == pass {
				r.Apply(s)
			}
		}
	}
}

var sceneClass = regexp.MustCompile(`(?m)^class\s+([A-Za-z_]\w*)\s*\(\s*[\w.]*Scene\s*\)\s*:`)

// SceneClass returns the name of the first top-level Scene subclass in src.
func SceneClass(src string) string {
	m := sceneClass.FindStringSubmatch(src)
	if m == nil {
		return ""
	}
	return m[1]
}

const (
	headerPrefix = "# SYNTAX ERROR DETECTED: "
	headerLine   = "# LINE "
)

func diagnosticHeader(err *pyparse.SyntaxError) string {
	return fmt.Sprintf("%s%s\n%s%d: %s\n\n", headerPrefix, err.Error(), headerLine, err.Line, strings.TrimSpace(err.Text))
}

// state is the mutable view of one program while rules run.
type state struct {
	lines []string
	infos []lineInfo
	prog  *Program
}

func newState(src string, p *Program) *state {
	return &state{lines: strings.Split(src, "\n"), prog: p}
}

func (s *state) info() []lineInfo {
	if s.infos == nil {
		s.infos = analyze(s.lines)
	}
	return s.infos
}

func (s *state) set(i int, line string) {
	s.lines[i] = line
	s.infos = nil
}

func (s *state) insert(i int, lines ...string) {
	s.lines = append(s.lines[:i], append(append([]string(nil), lines...), s.lines[i:]...)...)
	s.infos = nil
}

func (s *state) remove(i int) {
	s.lines = append(s.lines[:i], s.lines[i+1:]...)
	s.infos = nil
}

func (s *state) record(a Action) {
	s.prog.Diagnostics = append(s.prog.Diagnostics, a)
}

func (s *state) text() string {
	return strings.Join(s.lines, "\n") + "\n"
}

func (s *state) check() *pyparse.SyntaxError {
	return pyparse.Check(s.text())
}
