package repair

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	textAssign  = regexp.MustCompile(`^\s*([A-Za-z_]\w*)\s*=\s*Text\(`)
	positioning = regexp.MustCompile(`\.(?:shift|move_to|next_to|to_edge|to_corner|align_to|arrange|arrange_in_grid|set_x|set_y|center)\(`)
	grouping    = regexp.MustCompile(`\b(?:VGroup|Group)\(`)
)

// positionSlots are handed out in order to unpositioned text objects so
// they do not all land on the origin.
var positionSlots = []string{"UP*1", "DOWN*1", "LEFT*2", "RIGHT*2", "UP*2", "DOWN*2"}

// injectPositions appends a shift to single-line Text assignments that are
// never positioned, placing titles at the top of the frame.
func injectPositions(s *state) {
	used := 0
	for i := range s.lines {
		li := s.info()[i]
		if !li.startsStatement() || len(li.endStack) > 0 || li.endInString {
			continue
		}
		loc := textAssign.FindStringSubmatchIndex(li.mask)
		if loc == nil {
			continue
		}
		c := strings.TrimRight(li.mask[:li.codeEnd], " ")
		if matchParen(c, loc[1]-1) != len(c)-1 {
			continue
		}
		name := li.mask[loc[2]:loc[3]]
		if positionedLater(s, i, name) {
			continue
		}
		var pos string
		switch lower := strings.ToLower(name); {
		case strings.Contains(lower, "subtitle"):
			pos = "UP*1.5"
		case strings.Contains(lower, "title"):
			pos = "UP*3"
		default:
			pos = positionSlots[used%len(positionSlots)]
			used++
		}
		s.set(i, appendToCode(s.lines[i], li, ".shift("+pos+")"))
		s.record(Action{Kind: InjectedPosition, Rule: "inject-position", Line: i + 1, Object: name, Position: pos})
	}
}

func positionedLater(s *state, i int, name string) bool {
	ref := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
	infos := s.info()
	for j := i + 1; j < len(infos); j++ {
		m := infos[j].mask
		if !ref.MatchString(m) {
			continue
		}
		if positioning.MatchString(m) || grouping.MatchString(m) {
			return true
		}
	}
	return false
}

const number = `(-?\b\d+(?:\.\d+)?)`

var (
	dirTimesN    = regexp.MustCompile(`\b(UP|DOWN|LEFT|RIGHT)\s*\*\s*` + number + `\b`)
	nTimesDir    = regexp.MustCompile(number + `\s*\*\s*(UP|DOWN|LEFT|RIGHT)\b`)
	pointLiteral = regexp.MustCompile(`((?:move_to\(|np\.array\(|point\s*=)\s*)\[\s*(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)`)
	rangeArgs    = regexp.MustCompile(`\b[xy]_(?:range|length)\b`)
)

// clampCoordinates pulls literal positions back inside the visible frame.
// It is best effort: if the result would not parse, the pass is undone.
func clampCoordinates(s *state, b Bounds) {
	saved := append([]string(nil), s.lines...)
	savedActions := len(s.prog.Diagnostics)

	for i := range s.lines {
		li := s.info()[i]
		if li.blank() || rangeArgs.MatchString(li.mask) {
			continue
		}
		before := s.lines[i]
		line := before
		line, _ = replaceCodeFunc(line, li.mask, dirTimesN, func(g []string) string {
			return g[0][:len(g[0])-len(g[2])] + clampText(g[2], limitFor(g[1], b))
		})
		if line != before {
			s.set(i, line)
			li = s.info()[i]
		}
		line, _ = replaceCodeFunc(line, li.mask, nTimesDir, func(g []string) string {
			return clampText(g[1], limitFor(g[2], b)) + g[0][len(g[1]):]
		})
		if line != s.lines[i] {
			s.set(i, line)
			li = s.info()[i]
		}
		line, _ = replaceCodeFunc(line, li.mask, pointLiteral, func(g []string) string {
			x, y := clampText(g[2], b.X), clampText(g[3], b.Y)
			if x == g[2] && y == g[3] {
				return g[0]
			}
			return g[1] + "[" + x + ", " + y
		})
		if line != before {
			s.set(i, line)
			s.record(Action{Kind: ClampedCoordinate, Rule: "clamp-coordinates", Line: i + 1, Before: strings.TrimSpace(before), After: strings.TrimSpace(line)})
		}
	}

	if s.check() != nil {
		s.lines = saved
		s.infos = nil
		s.prog.Diagnostics = s.prog.Diagnostics[:savedActions]
	}
}

func limitFor(dir string, b Bounds) float64 {
	if dir == "UP" || dir == "DOWN" {
		return b.Y
	}
	return b.X
}

// clampText returns lit unchanged when it is within ±limit, so untouched
// numbers keep their original spelling.
func clampText(lit string, limit float64) string {
	v, err := strconv.ParseFloat(lit, 64)
	if err != nil || math.Abs(v) <= limit {
		return lit
	}
	return strconv.FormatFloat(math.Copysign(limit, v), 'f', -1, 64)
}
